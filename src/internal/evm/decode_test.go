package evm

import (
	"testing"

	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	// PUSH1 0x80 PUSH1 0x40 MSTORE STOP
	insts := Decode([]byte{0x60, 0x80, 0x60, 0x40, 0x52, 0x00})
	require.Len(t, insts, 4)

	assert.Equal(t, uint64(0), insts[0].Offset)
	assert.Equal(t, vm.PUSH1, insts[0].Op)
	assert.Equal(t, []byte{0x80}, insts[0].Operand)
	assert.Equal(t, 2, insts[0].Size)
	assert.Equal(t, uint64(2), insts[1].Offset)
	assert.Equal(t, vm.MSTORE, insts[2].Op)
	assert.Equal(t, uint64(4), insts[2].Offset)
	assert.Equal(t, vm.STOP, insts[3].Op)
	assert.True(t, insts[3].IsHalt())
}

func TestDecodeEmpty(t *testing.T) {
	assert.Empty(t, Decode(nil))
	assert.Empty(t, Decode([]byte{}))
}

func TestDecodeTruncatedPush(t *testing.T) {
	// PUSH1 0x01 PUSH2 0xff <eof>
	insts := Decode([]byte{0x60, 0x01, 0x61, 0xff})
	require.Len(t, insts, 2)

	last := insts[1]
	assert.Equal(t, vm.PUSH2, last.Op)
	assert.True(t, last.Truncated)
	assert.Equal(t, []byte{0xff}, last.Operand)
	assert.Equal(t, 2, last.Size)
	assert.Contains(t, last.String(), "incomplete")
}

func TestDecodeUnknownOpcode(t *testing.T) {
	insts := Decode([]byte{0x0c, 0x00})
	require.Len(t, insts, 2)
	assert.False(t, insts[0].Known)
	assert.True(t, insts[0].IsHalt())
	assert.Equal(t, 1, insts[0].Size)
	assert.Contains(t, insts[0].String(), "UNKNOWN")
}

func TestDecodeCoversEveryByte(t *testing.T) {
	code := make([]byte, 256)
	for i := range code {
		code[i] = byte(i)
	}
	var next uint64
	for _, inst := range Decode(code) {
		assert.Equal(t, next, inst.Offset)
		next = inst.End()
	}
	assert.Equal(t, uint64(len(code)), next)
}

func TestJumpDestsSkipPushData(t *testing.T) {
	// PUSH1 0x5b JUMPDEST
	insts := Decode([]byte{0x60, 0x5b, 0x5b})
	dests := JumpDests(insts)
	assert.Len(t, dests, 1)
	assert.Contains(t, dests, uint64(2))
}

func TestPushValue(t *testing.T) {
	insts := Decode([]byte{0x5f, 0x63, 0xa9, 0x05, 0x9c, 0xbb, 0x01})
	require.Len(t, insts, 3)
	assert.True(t, insts[0].Value().IsZero())
	assert.Equal(t, uint64(0xa9059cbb), insts[1].Value().Uint64())
	assert.Nil(t, insts[2].Value())
}

func TestDecodeEOFOnlyOpcodes(t *testing.T) {
	eof := []byte{0xd0, 0xd1, 0xd2, 0xd3, 0xf7, 0xf8, 0xf9, 0xfb}
	for b := 0xe0; b <= 0xef; b++ {
		eof = append(eof, byte(b))
	}
	for _, b := range eof {
		insts := Decode([]byte{b, 0x00})
		require.Len(t, insts, 2, "%#02x", b)
		assert.False(t, insts[0].Known, "%#02x", b)
		assert.True(t, insts[0].IsHalt(), "%#02x", b)
		assert.Equal(t, 1, insts[0].Size, "%#02x", b)
	}

	for _, op := range []vm.OpCode{vm.PUSH0, vm.DELEGATECALL, vm.STATICCALL, vm.CREATE2, vm.SELFDESTRUCT, vm.TLOAD, vm.MCOPY} {
		assert.True(t, IsDefined(op), op.String())
	}
}
