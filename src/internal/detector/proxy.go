package detector

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/vm"

	"github.com/admi-n/txguard/src/internal/dispatch"
)

// 代理合约的标准存储槽
var proxySlots = map[common.Hash]string{
	common.HexToHash("0x360894a13ba1a3210667c828492db98dca3e2076cc3735a920a3ca505d382bbc"): "EIP-1967 implementation",
	common.HexToHash("0xb53127684a568b3173ae13b9f8a6016e243e63b6e8ee1178d6a717850b5d6103"): "EIP-1967 admin",
	common.HexToHash("0xa3f0ad74e5423aebfd80d3ef4346578335a9a72aeaee59ff6cb3582b35133d50"): "EIP-1967 beacon",
	common.HexToHash("0xc5f16f0fcc639fa48a6947836d9850f504798523bf8c9a3a87d5876cf622bcf7"): "EIP-1822 proxiable",
}

// proxyPattern 识别可升级代理：DELEGATECALL 配合标准实现槽为提示；
// 没有访问控制的 upgradeTo* 函数为 danger。
type proxyPattern struct{}

func (proxyPattern) ID() string { return "proxy" }

func (d proxyPattern) Detect(in *Input) ([]Finding, error) {
	if err := requireGraph(in); err != nil {
		return nil, err
	}
	g := in.Graph

	var (
		out      []Finding
		delegate bool
		slot     string
		anchor   *Anchor
	)
	for _, b := range g.Blocks {
		if !inCode(g, b) {
			continue
		}
		for _, inst := range g.Instructions(b) {
			if !inst.Known {
				continue
			}
			if inst.Op == vm.DELEGATECALL {
				delegate = true
			}
			if inst.Op != vm.PUSH32 || slot != "" {
				continue
			}
			if name, ok := proxySlots[common.BytesToHash(inst.Operand)]; ok {
				slot, anchor = name, at(b.ID, inst.Offset)
			}
		}
	}
	if delegate && slot != "" {
		out = append(out, Finding{
			Detector: d.ID(),
			Severity: Info,
			Message:  fmt.Sprintf("upgradeable proxy pattern (%s slot)", slot),
			Anchor:   anchor,
		})
	}

	for _, fn := range in.Functions {
		if fn.Kind != dispatch.Selector || fn.Entry < 0 || !strings.HasPrefix(fn.Name, "upgradeTo") {
			continue
		}
		guarded := false
		for id, ok := range g.ReachableFrom(fn.Entry, nil) {
			if ok && isGuard(g, g.Blocks[id]) {
				guarded = true
				break
			}
		}
		if guarded {
			continue
		}
		out = append(out, Finding{
			Detector: d.ID(),
			Severity: Danger,
			Message:  fmt.Sprintf("%s can be called without an access check", fn.Name),
			Anchor:   at(fn.Entry, g.Blocks[fn.Entry].Start),
		})
	}
	return out, nil
}

// noDispatcher 在没有识别出分发器、但代码存在副作用时给出提示
type noDispatcher struct{}

func (noDispatcher) ID() string { return "no-dispatcher" }

var effectOps = []vm.OpCode{
	vm.SSTORE, vm.CALL, vm.CALLCODE, vm.DELEGATECALL, vm.STATICCALL,
	vm.CREATE, vm.CREATE2, vm.LOG0, vm.LOG1, vm.LOG2, vm.LOG3, vm.LOG4, vm.SELFDESTRUCT,
}

func (d noDispatcher) Detect(in *Input) ([]Finding, error) {
	if err := requireGraph(in); err != nil {
		return nil, err
	}
	if in.Dispatcher || len(in.Graph.Insts) == 0 {
		return nil, nil
	}
	g := in.Graph
	for _, b := range g.Blocks {
		if !b.Reachable || !inCode(g, b) {
			continue
		}
		if inst, ok := findOp(g, b, effectOps...); ok {
			return []Finding{{
				Detector: d.ID(),
				Severity: Info,
				Message:  fmt.Sprintf("no function dispatcher recognised; code with side effects (first %s at %#x) is treated as a single function", inst.Op, inst.Offset),
			}}, nil
		}
	}
	return nil, nil
}
