package dispatch

import (
	"testing"

	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/admi-n/txguard/src/internal/cfg"
	"github.com/admi-n/txguard/src/internal/evm"
	"github.com/admi-n/txguard/src/internal/evm/evmtest"
)

func recoverCode(code []byte) (*cfg.Graph, Result) {
	g := cfg.Build(evm.Decode(code))
	return g, Recover(g)
}

func TestRecoverDispatcher(t *testing.T) {
	p := evmtest.Contract(
		evmtest.Func{Selector: 0xa9059cbb},
		evmtest.Func{Selector: 0x70a08231},
		evmtest.Func{Selector: 0xdeadbeef},
	)
	g, res := recoverCode(p.Bytes())

	require.True(t, res.Dispatcher)
	require.Len(t, res.Functions, 4)

	transfer := res.Functions[0]
	assert.Equal(t, Selector, transfer.Kind)
	assert.Equal(t, "transfer(address,uint256)", transfer.Name)
	assert.Equal(t, "0xa9059cbb", transfer.SelectorHex())
	entry, ok := g.BlockAt(p.Offset("fn_a9059cbb"))
	require.True(t, ok)
	assert.Equal(t, entry.ID, transfer.Entry)
	assert.Equal(t, []int{entry.ID}, transfer.Blocks)

	assert.Equal(t, "balanceOf(address)", res.Functions[1].Name)
	assert.Empty(t, res.Functions[2].Name)
	assert.Equal(t, "0xdeadbeef", res.Functions[2].Label())

	fb := res.Functions[3]
	assert.Equal(t, Fallback, fb.Kind)
	assert.GreaterOrEqual(t, fb.Entry, 0)
	revert, _ := g.BlockAt(p.Offset("fallback"))
	assert.Contains(t, fb.Blocks, revert.ID)
}

func TestRecoverNPlusOne(t *testing.T) {
	for n := 1; n <= 6; n++ {
		var funcs []evmtest.Func
		for i := 0; i < n; i++ {
			funcs = append(funcs, evmtest.Func{Selector: 0x10000000 + uint32(i)})
		}
		_, res := recoverCode(evmtest.Contract(funcs...).Bytes())
		assert.True(t, res.Dispatcher)
		assert.Len(t, res.Functions, n+1, "n=%d", n)
	}
}

func TestRecoverDuplicateSelector(t *testing.T) {
	p := evmtest.New()
	p.Push(0, 1).Op(vm.CALLDATALOAD).Push(0xe0, 1).Op(vm.SHR)
	p.Op(vm.DUP1).Push(0x8da5cb5b, 4).Op(vm.EQ).PushLabel("a").Op(vm.JUMPI)
	p.Op(vm.DUP1).Push(0x8da5cb5b, 4).Op(vm.EQ).PushLabel("b").Op(vm.JUMPI)
	p.Push(0, 1).Op(vm.DUP1, vm.REVERT)
	p.Label("a").Op(vm.STOP)
	p.Label("b").Op(vm.STOP)

	g, res := recoverCode(p.Bytes())
	require.Len(t, res.Functions, 2)
	a, _ := g.BlockAt(p.Offset("a"))
	assert.Equal(t, a.ID, res.Functions[0].Entry)
	assert.Equal(t, "owner()", res.Functions[0].Name)
	assert.Equal(t, Fallback, res.Functions[1].Kind)
}

func TestRecoverBinarySearchSplit(t *testing.T) {
	p := evmtest.New()
	p.Push(0, 1).Op(vm.CALLDATALOAD).Push(0xe0, 1).Op(vm.SHR)
	p.Op(vm.DUP1).Push(0x50000000, 4).Op(vm.GT).PushLabel("high").Op(vm.JUMPI)
	p.Op(vm.DUP1).Push(0x10000000, 4).Op(vm.EQ).PushLabel("lo").Op(vm.JUMPI)
	p.PushLabel("fb").Op(vm.JUMP)
	p.Label("high")
	p.Op(vm.DUP1).Push(0x90000000, 4).Op(vm.EQ).PushLabel("hi").Op(vm.JUMPI)
	p.PushLabel("fb").Op(vm.JUMP)
	p.Label("fb").Push(0, 1).Op(vm.DUP1, vm.REVERT)
	p.Label("lo").Op(vm.STOP)
	p.Label("hi").Op(vm.STOP)

	_, res := recoverCode(p.Bytes())
	require.True(t, res.Dispatcher)
	require.Len(t, res.Functions, 3)
	// 按发现顺序：先走二分的跳转分支
	assert.Equal(t, "0x90000000", res.Functions[0].SelectorHex())
	assert.Equal(t, "0x10000000", res.Functions[1].SelectorHex())
	assert.Equal(t, Fallback, res.Functions[2].Kind)
}

func TestRecoverNoDispatcher(t *testing.T) {
	// PUSH1 1 PUSH1 0 SSTORE STOP
	_, res := recoverCode([]byte{0x60, 0x01, 0x60, 0x00, 0x55, 0x00})
	assert.False(t, res.Dispatcher)
	require.Len(t, res.Functions, 1)
	assert.Equal(t, Unnamed, res.Functions[0].Kind)
	assert.Equal(t, 0, res.Functions[0].Entry)
	assert.Equal(t, []int{0}, res.Functions[0].Blocks)
}

func TestRecoverStop(t *testing.T) {
	_, res := recoverCode([]byte{0x00})
	require.Len(t, res.Functions, 1)
	assert.Equal(t, Unnamed, res.Functions[0].Kind)
}

func TestRecoverEmpty(t *testing.T) {
	_, res := recoverCode(nil)
	assert.Empty(t, res.Functions)
	assert.False(t, res.Dispatcher)
}

func TestRecoverCompareWithoutCalldata(t *testing.T) {
	// 没有 CALLDATALOAD 的常量比较不是分发器
	p := evmtest.New()
	p.Op(vm.CALLVALUE).Push(0x12345678, 4).Op(vm.EQ).PushLabel("x").Op(vm.JUMPI)
	p.Op(vm.STOP)
	p.Label("x").Op(vm.STOP)

	_, res := recoverCode(p.Bytes())
	assert.False(t, res.Dispatcher)
	assert.Len(t, res.Functions, 1)
}
