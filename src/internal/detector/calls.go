package detector

import (
	"fmt"

	"github.com/ethereum/go-ethereum/core/vm"

	"github.com/admi-n/txguard/src/internal/cfg"
	"github.com/admi-n/txguard/src/internal/dispatch"
	"github.com/admi-n/txguard/src/internal/evm"
)

// selfDestruct 报告可从外部函数到达的 SELFDESTRUCT。
// 路径上没有访问控制为 danger，有则为 warning；结果锚定到函数入口块。
type selfDestruct struct{}

func (selfDestruct) ID() string { return "selfdestruct" }

func (d selfDestruct) Detect(in *Input) ([]Finding, error) {
	if err := requireGraph(in); err != nil {
		return nil, err
	}
	g := in.Graph

	var sites []evm.Instruction
	var siteBlocks []int
	for _, b := range g.Blocks {
		if !inCode(g, b) {
			continue
		}
		if inst, ok := findOp(g, b, vm.SELFDESTRUCT); ok {
			sites = append(sites, inst)
			siteBlocks = append(siteBlocks, b.ID)
		}
	}
	if len(sites) == 0 {
		return nil, nil
	}

	var out []Finding
	for _, fn := range in.Functions {
		if fn.Entry < 0 {
			continue
		}
		free := unguarded(g, fn.Entry)
		all := g.ReachableFrom(fn.Entry, nil)
		for i, site := range sites {
			id := siteBlocks[i]
			switch {
			case free[id]:
				out = append(out, Finding{
					Detector: d.ID(),
					Severity: Danger,
					Message:  fmt.Sprintf("SELFDESTRUCT at %#x is reachable from %s without an access check", site.Offset, fn.Label()),
					Anchor:   at(fn.Entry, site.Offset),
				})
			case all[id]:
				out = append(out, Finding{
					Detector: d.ID(),
					Severity: Warning,
					Message:  fmt.Sprintf("SELFDESTRUCT at %#x is reachable from %s behind an access check", site.Offset, fn.Label()),
					Anchor:   at(fn.Entry, site.Offset),
				})
			}
		}
	}
	return out, nil
}

// delegateCall 报告目标地址不是常量的 DELEGATECALL
type delegateCall struct{}

func (delegateCall) ID() string { return "delegatecall" }

func (d delegateCall) Detect(in *Input) ([]Finding, error) {
	if err := requireGraph(in); err != nil {
		return nil, err
	}
	g := in.Graph

	var out []Finding
	for _, b := range g.Blocks {
		if !b.Reachable || !inCode(g, b) {
			continue
		}
		g.Simulate(b, func(inst evm.Instruction, st *cfg.Stack) {
			if !inst.Known || inst.Op != vm.DELEGATECALL {
				return
			}
			// 栈：gas, addr, argsOffset, argsSize, retOffset, retSize
			addr := st.Peek(1)
			switch {
			case addr.Const != nil:
			case addr.Calldata:
				out = append(out, Finding{
					Detector: d.ID(),
					Severity: Danger,
					Message:  fmt.Sprintf("DELEGATECALL at %#x uses a target address taken from calldata", inst.Offset),
					Anchor:   at(b.ID, inst.Offset),
				})
			default:
				out = append(out, Finding{
					Detector: d.ID(),
					Severity: Warning,
					Message:  fmt.Sprintf("DELEGATECALL at %#x uses a non-constant target address", inst.Offset),
					Anchor:   at(b.ID, inst.Offset),
				})
			}
		})
	}
	return out, nil
}

// unguardedStore 报告选择器函数中不经访问控制即可执行的常量槽 SSTORE
type unguardedStore struct{}

func (unguardedStore) ID() string { return "unguarded-sstore" }

func (d unguardedStore) Detect(in *Input) ([]Finding, error) {
	if err := requireGraph(in); err != nil {
		return nil, err
	}
	g := in.Graph

	var out []Finding
	for _, fn := range in.Functions {
		if fn.Kind != dispatch.Selector || fn.Entry < 0 {
			continue
		}
		free := unguarded(g, fn.Entry)
		var blocks []int
		for id, ok := range free {
			if ok {
				blocks = append(blocks, id)
			}
		}
		for _, s := range g.ConstSlots(blocks) {
			if !s.Write {
				continue
			}
			out = append(out, Finding{
				Detector: d.ID(),
				Severity: Warning,
				Message:  fmt.Sprintf("%s writes storage slot %s at %#x without an access check", fn.Label(), s.Slot.Hex(), s.Offset),
				Anchor:   at(s.Block, s.Offset),
			})
		}
	}
	return out, nil
}

// txOrigin 报告用 tx.origin 做权限判断的块
type txOrigin struct{}

func (txOrigin) ID() string { return "tx-origin" }

func (d txOrigin) Detect(in *Input) ([]Finding, error) {
	if err := requireGraph(in); err != nil {
		return nil, err
	}
	g := in.Graph

	var out []Finding
	for _, b := range g.Blocks {
		if !b.Reachable || !inCode(g, b) || !isGuard(g, b) {
			continue
		}
		if inst, ok := findOp(g, b, vm.ORIGIN); ok {
			out = append(out, Finding{
				Detector: d.ID(),
				Severity: Warning,
				Message:  fmt.Sprintf("tx.origin used in an authorization check at %#x", inst.Offset),
				Anchor:   at(b.ID, inst.Offset),
			})
		}
	}
	return out, nil
}
