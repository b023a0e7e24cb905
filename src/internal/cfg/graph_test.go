package cfg

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/admi-n/txguard/src/internal/evm"
)

func build(t *testing.T, hex string) *Graph {
	t.Helper()
	code, err := evm.ParseHex(hex)
	require.NoError(t, err)
	return Build(evm.Decode(code))
}

func TestBuildEmpty(t *testing.T) {
	g := build(t, "0x")
	require.Len(t, g.Blocks, 1)
	assert.Empty(t, g.Edges)
	assert.True(t, g.Blocks[0].Reachable)
}

func TestBuildStaticJump(t *testing.T) {
	// 0 PUSH1 0x04, 2 JUMP, 3 INVALID, 4 JUMPDEST, 5 STOP
	g := build(t, "0x600456fe5b00")
	require.Len(t, g.Blocks, 3)

	assert.Equal(t, uint64(0), g.Blocks[0].Start)
	assert.Equal(t, uint64(3), g.Blocks[1].Start)
	assert.Equal(t, uint64(4), g.Blocks[2].Start)

	require.Len(t, g.Edges, 1)
	assert.Equal(t, Edge{From: 0, To: 2, Kind: Jump, Target: 4, HasTarget: true, Site: 2}, g.Edges[0])

	assert.True(t, g.Blocks[0].Reachable)
	assert.False(t, g.Blocks[1].Reachable)
	assert.True(t, g.Blocks[2].Reachable)
	assert.Equal(t, []int{0}, g.Blocks[2].Preds)
}

func TestBuildConditionalJump(t *testing.T) {
	// 0 PUSH1 1, 2 PUSH1 7, 4 JUMPI, 5 STOP, 6 STOP, 7 JUMPDEST, 8 STOP
	g := build(t, "0x600160075700005b00")
	require.Len(t, g.Blocks, 4)

	succs := g.Blocks[0].Succs
	require.Len(t, succs, 2)
	assert.Equal(t, JumpTaken, succs[0].Kind)
	assert.Equal(t, 3, succs[0].To)
	assert.Equal(t, JumpNotTaken, succs[1].Kind)
	assert.Equal(t, 1, succs[1].To)

	assert.True(t, g.Blocks[1].Reachable)
	assert.False(t, g.Blocks[2].Reachable)
	assert.True(t, g.Blocks[3].Reachable)
}

func TestBuildDynamicJump(t *testing.T) {
	// PUSH1 0 CALLDATALOAD JUMP
	g := build(t, "0x60003556")
	require.Len(t, g.Edges, 1)
	e := g.Edges[0]
	assert.Equal(t, Unresolved, e.Kind)
	assert.Equal(t, -1, e.To)
	assert.False(t, e.HasTarget)
	assert.Len(t, g.Unresolved(), 1)
}

func TestBuildInvalidConstantTarget(t *testing.T) {
	// 目标 3 是 STOP 而不是 JUMPDEST
	g := build(t, "0x60035600")
	require.Len(t, g.Edges, 1)
	e := g.Edges[0]
	assert.Equal(t, Unresolved, e.Kind)
	assert.True(t, e.HasTarget)
	assert.Equal(t, uint64(3), e.Target)
}

func TestBuildJumpIntoPushData(t *testing.T) {
	// 0 PUSH1 4, 2 JUMP, 3 PUSH1 0x5b, 5 STOP：偏移 4 的 0x5b 是立即数
	g := build(t, "0x600456605b00")
	require.Len(t, g.Edges, 1)
	assert.Equal(t, Unresolved, g.Edges[0].Kind)
	assert.Equal(t, uint64(4), g.Edges[0].Target)
}

func TestBuildTruncatedPush(t *testing.T) {
	g := build(t, "0x600161ff")
	require.Len(t, g.Blocks, 1)
	assert.Empty(t, g.Edges)
}

func TestBuildFallthrough(t *testing.T) {
	// 0 PUSH1 4, 2 JUMP, 3 JUMPDEST, 4 JUMPDEST, 5 STOP
	// 偏移 4 成为起点后，偏移 3 的块顺延到它
	g := build(t, "0x6004565b5b00")
	require.Len(t, g.Blocks, 3)
	require.Len(t, g.Blocks[1].Succs, 1)
	assert.Equal(t, Edge{From: 1, To: 2, Kind: Fallthrough, Site: 3}, g.Blocks[1].Succs[0])
	assert.False(t, g.Blocks[1].Reachable)
	assert.True(t, g.Blocks[2].Reachable)
}

func TestBuildForgedMetadata(t *testing.T) {
	// 0 PUSH1 4, 2 JUMP, 3 LOG1, 4 JUMPDEST, 5 CALLER, 6 SELFDESTRUCT, 7 STOP, 8 DIV
	// 末尾 0x0004 伪造长度，候选起点 3 前面是 JUMP，且偏移 4 可达
	g := build(t, "0x600456a15b33ff0004")
	assert.Equal(t, uint64(9), g.DataStart)
	b, ok := g.BlockAt(4)
	require.True(t, ok)
	assert.True(t, b.Reachable)
}

func TestBuildTrailingMetadata(t *testing.T) {
	// STOP 之后的 LOG1 开始的尾部不可达，保留为元数据
	g := build(t, "0x00a16003560004")
	assert.Equal(t, uint64(1), g.DataStart)
}

func TestBuildSelfJump(t *testing.T) {
	// 0 JUMPDEST, 1 PUSH1 0, 3 JUMP
	g := build(t, "0x5b600056")
	require.Len(t, g.Blocks, 1)
	require.Len(t, g.Edges, 1)
	assert.Equal(t, Edge{From: 0, To: 0, Kind: Jump, Target: 0, HasTarget: true, Site: 3}, g.Edges[0])
	assert.True(t, g.Blocks[0].Reachable)
	assert.Equal(t, []bool{true}, g.ReachableFrom(0, nil))
}

func TestBuildLoop(t *testing.T) {
	// 0 JUMPDEST, 1 PUSH1 4, 3 JUMP, 4 JUMPDEST, 5 PUSH1 0, 7 JUMP
	g := build(t, "0x5b6004565b600056")
	require.Len(t, g.Blocks, 2)
	assert.Equal(t, []Edge{
		{From: 0, To: 1, Kind: Jump, Target: 4, HasTarget: true, Site: 3},
		{From: 1, To: 0, Kind: Jump, Target: 0, HasTarget: true, Site: 7},
	}, g.Edges)
	assert.True(t, g.Blocks[1].Reachable)
}

func TestBuildEOFOpcodeHalts(t *testing.T) {
	// RJUMP 在传统字节码中未定义，之后的 JUMPDEST 不可达
	g := build(t, "0xe05b00")
	require.Len(t, g.Blocks, 2)
	assert.Empty(t, g.Blocks[0].Succs)
	assert.False(t, g.Blocks[1].Reachable)
}

func TestBuildInvariants(t *testing.T) {
	for _, hex := range []string{
		"0x600456fe5b00",
		"0x600160075700005b00",
		"0x60003556",
		"0x6080604052348015600f57600080fd5b50603f80601d6000396000f3fe",
		"0x0c0d0e0f",
		"0x5b600056",
		"0x5b6004565b600056",
		"0xe05b00",
	} {
		g := build(t, hex)

		// 块按起始位置严格递增，且覆盖所有指令
		covered := 0
		for i, b := range g.Blocks {
			assert.Equal(t, i, b.ID, hex)
			if i > 0 {
				assert.Greater(t, b.Start, g.Blocks[i-1].Start, hex)
			}
			for _, idx := range b.Insts {
				assert.Equal(t, covered, idx, hex)
				covered++
			}
		}
		assert.Equal(t, len(g.Insts), covered, hex)

		// 已解析的跳转必须落在 JUMPDEST 块起点
		for _, e := range g.Edges {
			if e.Kind == Jump || e.Kind == JumpTaken {
				first := g.Instructions(g.Blocks[e.To])[0]
				assert.Equal(t, e.Target, first.Offset, hex)
				assert.Contains(t, g.JumpDests, e.Target, hex)
			}
		}

		// 多次构建结果一致
		again := build(t, hex)
		assert.Equal(t, g.Edges, again.Edges, hex)
	}
}

func TestReachableFrom(t *testing.T) {
	g := build(t, "0x600160075700005b00")
	all := g.ReachableFrom(0, nil)
	assert.Equal(t, []bool{true, true, false, true}, all)

	stopped := g.ReachableFrom(0, func(b *Block) bool { return b.ID == 0 })
	assert.Equal(t, []bool{true, false, false, false}, stopped)
}

func TestBlockOf(t *testing.T) {
	g := build(t, "0x600456fe5b00")
	assert.Equal(t, 0, g.BlockOf(1).ID)
	assert.Equal(t, 1, g.BlockOf(2).ID)
	assert.Equal(t, 2, g.BlockOf(4).ID)

	b, ok := g.BlockAt(4)
	require.True(t, ok)
	assert.Equal(t, 2, b.ID)
	_, ok = g.BlockAt(1)
	assert.False(t, ok)
}

func TestWriteDOT(t *testing.T) {
	g := build(t, "0x600456fe5b00")
	var buf bytes.Buffer
	require.NoError(t, g.WriteDOT(&buf))
	assert.Contains(t, buf.String(), "digraph")
}
