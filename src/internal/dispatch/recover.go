// Package dispatch 从控制流图中恢复按选择器分发的函数边界。
package dispatch

import (
	"github.com/ethereum/go-ethereum/core/vm"

	"github.com/admi-n/txguard/src/internal/cfg"
	"github.com/admi-n/txguard/src/internal/evm"
)

// Kind 函数类型
type Kind uint8

const (
	Selector Kind = iota
	Fallback
	Unnamed
)

func (k Kind) String() string {
	switch k {
	case Selector:
		return "selector"
	case Fallback:
		return "fallback"
	case Unnamed:
		return "unnamed"
	}
	return "unknown"
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Function 恢复出的函数。Blocks 是从入口可达的块（升序），
// 不同函数可能共享内部子程序的块。
type Function struct {
	Selector [4]byte `json:"-"`
	Kind     Kind    `json:"kind"`
	Name     string  `json:"name,omitempty"`
	Entry    int     `json:"entry"` // -1 表示没有函数体
	Blocks   []int   `json:"blocks"`
}

// SelectorHex 返回 0x 前缀的选择器，非选择器函数返回空串
func (f Function) SelectorHex() string {
	if f.Kind != Selector {
		return ""
	}
	return evm.FormatSelector(f.Selector)
}

// Label 返回用于展示的函数名
func (f Function) Label() string {
	switch {
	case f.Name != "":
		return f.Name
	case f.Kind == Selector:
		return f.SelectorHex()
	}
	return f.Kind.String()
}

// Result 函数恢复结果
type Result struct {
	Functions  []Function
	Dispatcher bool
}

// 分发区域最多检查的块数
const maxDispatchBlocks = 1024

type compareKind uint8

const (
	noCompare compareKind = iota
	eqCompare
	splitCompare
)

type item struct {
	block        int
	afterCompare bool // 经比较块的未跳转分支到达
}

// Recover 识别分发器并划分函数。
// 从入口块出发做有界的广度优先遍历：
//   - PUSH4+EQ+JUMPI 的块产生一个选择器函数，只沿未跳转分支继续；
//   - PUSH4+GT/LT 的二分块沿两个分支继续；
//   - 比较之前的准备块沿已解析的后继继续；
//   - 比较之后不再包含比较的第一个块是 fallback 入口。
//
// 没有识别出分发器时整个可达图作为一个未命名函数返回。
func Recover(g *cfg.Graph) Result {
	if len(g.Insts) == 0 {
		return Result{}
	}

	var (
		selectors   []Function
		seen        = make(map[[4]byte]bool)
		visited     = make(map[int]bool)
		fallback    = -1
		sawCalldata bool
		queue       = []item{{block: g.Entry}}
		examined    int
	)
	for len(queue) > 0 && examined < maxDispatchBlocks {
		it := queue[0]
		queue = queue[1:]
		if visited[it.block] {
			continue
		}
		visited[it.block] = true
		examined++

		b := g.Blocks[it.block]
		kind, sel, calldata := inspect(g, b)
		sawCalldata = sawCalldata || calldata

		taken, notTaken, ok := branches(b)
		switch {
		case kind == eqCompare && ok:
			if !seen[sel] {
				seen[sel] = true
				selectors = append(selectors, newSelectorFunction(sel, taken))
			}
			if notTaken >= 0 {
				queue = append(queue, item{block: notTaken, afterCompare: true})
			}
		case kind == splitCompare && ok:
			queue = append(queue, item{block: taken, afterCompare: true})
			if notTaken >= 0 {
				queue = append(queue, item{block: notTaken, afterCompare: true})
			}
		case it.afterCompare:
			if fallback < 0 {
				fallback = b.ID
			}
		default:
			for _, e := range b.Succs {
				if e.To >= 0 {
					queue = append(queue, item{block: e.To})
				}
			}
		}
	}

	if len(selectors) == 0 || !sawCalldata {
		return Result{Functions: []Function{{
			Kind:   Unnamed,
			Entry:  g.Entry,
			Blocks: body(g, g.Entry),
		}}}
	}

	funcs := make([]Function, 0, len(selectors)+1)
	for _, f := range selectors {
		f.Blocks = body(g, f.Entry)
		funcs = append(funcs, f)
	}
	funcs = append(funcs, Function{Kind: Fallback, Entry: fallback, Blocks: body(g, fallback)})
	return Result{Functions: funcs, Dispatcher: true}
}

func newSelectorFunction(sel [4]byte, entry int) Function {
	f := Function{Selector: sel, Kind: Selector, Entry: entry}
	if name, ok := evm.SelectorName(sel); ok {
		f.Name = name
	}
	return f
}

// inspect 检查块内最后一次比较是否为选择器比较
func inspect(g *cfg.Graph, b *cfg.Block) (compareKind, [4]byte, bool) {
	var (
		kind     = noCompare
		sel      [4]byte
		calldata bool
		push4    = make(map[uint64]bool)
	)
	g.Simulate(b, func(inst evm.Instruction, st *cfg.Stack) {
		if !inst.Known {
			return
		}
		switch inst.Op {
		case vm.CALLDATALOAD:
			calldata = true
		case vm.PUSH4:
			if v := inst.Value(); v != nil {
				push4[v.Uint64()] = true
			}
		case vm.EQ, vm.GT, vm.LT:
			kind = noCompare
			for _, v := range []cfg.Value{st.Peek(0), st.Peek(1)} {
				c, ok := v.Uint64()
				if !ok || !push4[c] {
					continue
				}
				if inst.Op == vm.EQ {
					kind, sel = eqCompare, evm.SelectorFromUint(c)
				} else {
					kind = splitCompare
				}
				break
			}
		}
	})
	return kind, sel, calldata
}

// branches 返回以已解析 JUMPI 结尾的块的两个分支
func branches(b *cfg.Block) (taken, notTaken int, ok bool) {
	taken, notTaken = -1, -1
	for _, e := range b.Succs {
		switch e.Kind {
		case cfg.JumpTaken:
			taken = e.To
		case cfg.JumpNotTaken:
			notTaken = e.To
		}
	}
	return taken, notTaken, taken >= 0
}

// body 返回从 entry 可达的块，升序
func body(g *cfg.Graph, entry int) []int {
	if entry < 0 {
		return nil
	}
	var ids []int
	for id, ok := range g.ReachableFrom(entry, nil) {
		if ok {
			ids = append(ids, id)
		}
	}
	return ids
}
