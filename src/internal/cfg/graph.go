// Package cfg 把指令序列划分为基本块并恢复静态跳转边。
package cfg

import (
	"sort"

	"github.com/dominikbraun/graph"
	"github.com/ethereum/go-ethereum/core/vm"

	"github.com/admi-n/txguard/src/internal/evm"
)

// EdgeKind 边的类型
type EdgeKind uint8

const (
	Fallthrough EdgeKind = iota
	Jump
	JumpTaken
	JumpNotTaken
	Unresolved
)

var edgeKindNames = [...]string{
	Fallthrough:  "fallthrough",
	Jump:         "unconditional-jump",
	JumpTaken:    "conditional-jump-taken",
	JumpNotTaken: "conditional-jump-not-taken",
	Unresolved:   "unresolved",
}

func (k EdgeKind) String() string {
	if int(k) < len(edgeKindNames) {
		return edgeKindNames[k]
	}
	return "unknown"
}

// MarshalText 供 JSON 输出使用
func (k EdgeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Edge 表示一条控制流边。Unresolved 边的 To 为 -1，
// 若跳转目标是常量（但不是合法 JUMPDEST）则记录在 Target 中。
type Edge struct {
	From      int      `json:"from"`
	To        int      `json:"to"`
	Kind      EdgeKind `json:"kind"`
	Target    uint64   `json:"target,omitempty"`
	HasTarget bool     `json:"has_target,omitempty"`
	Site      uint64   `json:"site"` // 产生该边的指令位置
}

// Block 基本块
type Block struct {
	ID        int
	Start     uint64
	Insts     []int // Graph.Insts 的下标
	Succs     []Edge
	Preds     []int
	Reachable bool
}

// Last 返回块的最后一条指令下标，空块返回 -1
func (b *Block) Last() int {
	if len(b.Insts) == 0 {
		return -1
	}
	return b.Insts[len(b.Insts)-1]
}

// Graph 控制流图，入口块固定为 0
type Graph struct {
	Insts     []evm.Instruction
	Blocks    []*Block
	Edges     []Edge
	Entry     int
	DataStart uint64 // 尾部元数据起始位置
	JumpDests map[uint64]struct{}

	byOffset map[uint64]int
	dg       graph.Graph[int, int]
}

// Build 构建控制流图。
//  1. 块起点：偏移 0、控制转移之后的指令、静态跳转目标；
//     目标发现依赖块划分，二者迭代到不再出现新的起点。
//  2. 按起点划分基本块。
//  3. 根据每个块的最后一条指令计算后继边。
func Build(insts []evm.Instruction) *Graph {
	g := &Graph{
		Insts:     insts,
		JumpDests: evm.JumpDests(insts),
		byOffset:  make(map[uint64]int),
	}
	// 候选值，建图后再校验
	g.DataStart = evm.MetadataStart(evm.Assemble(insts))

	if len(insts) == 0 {
		g.Blocks = []*Block{{ID: 0}}
		g.byOffset[0] = 0
		g.index()
		return g
	}

	idxOf := make(map[uint64]int, len(insts))
	for i, inst := range insts {
		idxOf[inst.Offset] = i
	}

	leaders := map[int]bool{0: true}
	for i, inst := range insts {
		if inst.IsControl() && i+1 < len(insts) {
			leaders[i+1] = true
		}
	}

	// 起点集合只增不减且不超过指令数，循环必然终止
	for pass := 0; pass <= len(insts); pass++ {
		grew := false
		for _, span := range partition(leaders, len(insts)) {
			last := insts[span[1]-1]
			if !last.IsJump() {
				continue
			}
			target, ok := g.staticTarget(span[0], span[1])
			if !ok {
				continue
			}
			if _, valid := g.JumpDests[target]; !valid {
				continue
			}
			if i := idxOf[target]; !leaders[i] {
				leaders[i] = true
				grew = true
			}
		}
		if !grew {
			break
		}
	}

	for id, span := range partition(leaders, len(insts)) {
		b := &Block{ID: id, Start: insts[span[0]].Offset}
		for i := span[0]; i < span[1]; i++ {
			b.Insts = append(b.Insts, i)
		}
		g.Blocks = append(g.Blocks, b)
		g.byOffset[b.Start] = id
	}

	for _, b := range g.Blocks {
		g.link(b)
	}
	g.index()
	g.DataStart = g.dataStart(g.DataStart)
	return g
}

// dataStart 校验尾部元数据的候选起点：必须紧跟一条终止指令，且其后没有可达块。
// 否则整段字节码都按代码处理。
func (g *Graph) dataStart(start uint64) uint64 {
	end := g.Insts[len(g.Insts)-1].End()
	if start >= end {
		return end
	}
	b, ok := g.BlockAt(start)
	if !ok || b.ID == 0 {
		return end
	}
	if prev := g.Insts[b.Insts[0]-1]; !prev.IsHalt() {
		return end
	}
	for _, rest := range g.Blocks[b.ID:] {
		if rest.Reachable {
			return end
		}
	}
	return start
}

// partition 把排好序的起点转换为 [start, end) 区间
func partition(leaders map[int]bool, n int) [][2]int {
	starts := make([]int, 0, len(leaders))
	for i := range leaders {
		starts = append(starts, i)
	}
	sort.Ints(starts)
	spans := make([][2]int, len(starts))
	for i, s := range starts {
		end := n
		if i+1 < len(starts) {
			end = starts[i+1]
		}
		spans[i] = [2]int{s, end}
	}
	return spans
}

// staticTarget 在块内模拟常量栈，返回末尾跳转指令的常量目标
func (g *Graph) staticTarget(start, end int) (uint64, bool) {
	var st Stack
	for i := start; i < end-1; i++ {
		st.Step(g.Insts[i])
	}
	return st.Peek(0).Uint64()
}

func (g *Graph) next(b *Block) (int, bool) {
	if b.ID+1 < len(g.Blocks) {
		return b.ID + 1, true
	}
	return 0, false
}

func (g *Graph) link(b *Block) {
	lastIdx := b.Last()
	last := g.Insts[lastIdx]
	switch {
	case last.IsJump():
		e := Edge{From: b.ID, To: -1, Kind: Unresolved, Site: last.Offset}
		first := b.Insts[0]
		if target, ok := g.staticTarget(first, lastIdx+1); ok {
			e.Target, e.HasTarget = target, true
			if _, valid := g.JumpDests[target]; valid {
				if to, ok := g.byOffset[target]; ok {
					e.To = to
					e.Kind = Jump
					if last.Op == vm.JUMPI {
						e.Kind = JumpTaken
					}
				}
			}
		}
		g.addEdge(b, e)
		if last.Op == vm.JUMPI {
			if to, ok := g.next(b); ok {
				g.addEdge(b, Edge{From: b.ID, To: to, Kind: JumpNotTaken, Site: last.Offset})
			}
		}
	case last.IsHalt():
	case last.Truncated:
		// 截断的 PUSH 位于字节码末尾，之后隐式 STOP
	default:
		if to, ok := g.next(b); ok {
			g.addEdge(b, Edge{From: b.ID, To: to, Kind: Fallthrough, Site: last.Offset})
		}
	}
}

func (g *Graph) addEdge(b *Block, e Edge) {
	b.Succs = append(b.Succs, e)
	g.Edges = append(g.Edges, e)
	if e.To >= 0 {
		to := g.Blocks[e.To]
		to.Preds = append(to.Preds, b.ID)
	}
}

// BlockAt 返回起始于 offset 的块
func (g *Graph) BlockAt(offset uint64) (*Block, bool) {
	id, ok := g.byOffset[offset]
	if !ok {
		return nil, false
	}
	return g.Blocks[id], true
}

// BlockOf 返回包含指令下标 idx 的块
func (g *Graph) BlockOf(idx int) *Block {
	i := sort.Search(len(g.Blocks), func(i int) bool {
		b := g.Blocks[i]
		return len(b.Insts) > 0 && b.Insts[0] > idx
	})
	if i == 0 {
		return g.Blocks[0]
	}
	return g.Blocks[i-1]
}

// Instructions 返回块内的指令
func (g *Graph) Instructions(b *Block) []evm.Instruction {
	if len(b.Insts) == 0 {
		return nil
	}
	return g.Insts[b.Insts[0] : b.Last()+1]
}

// Terminator 返回块的最后一条指令
func (g *Graph) Terminator(b *Block) (evm.Instruction, bool) {
	if len(b.Insts) == 0 {
		return evm.Instruction{}, false
	}
	return g.Insts[b.Last()], true
}

// Simulate 逐条遍历块内指令，visit 在指令执行前观察栈状态
func (g *Graph) Simulate(b *Block, visit func(inst evm.Instruction, st *Stack)) {
	var st Stack
	for _, inst := range g.Instructions(b) {
		visit(inst, &st)
		st.Step(inst)
	}
}

// Unresolved 返回所有未解析的边
func (g *Graph) Unresolved() []Edge {
	var out []Edge
	for _, e := range g.Edges {
		if e.Kind == Unresolved {
			out = append(out, e)
		}
	}
	return out
}
