package cfg

import (
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/holiman/uint256"

	"github.com/admi-n/txguard/src/internal/evm"
)

// Value 是栈上一个槽位的静态信息
type Value struct {
	Const    *uint256.Int // nil 表示无法静态确定
	Calldata bool         // 值由调用数据派生
}

// Uint64 返回可以放进 uint64 的常量
func (v Value) Uint64() (uint64, bool) {
	if v.Const == nil || !v.Const.IsUint64() {
		return 0, false
	}
	return v.Const.Uint64(), true
}

// Stack 在单个基本块内跟踪栈顶若干槽位。
// vals 只描述已知深度内的槽位，末尾为栈顶；更深的槽位一律视为未知。
type Stack struct {
	vals []Value
}

// Peek 返回距栈顶 n 个位置的槽位
func (s *Stack) Peek(n int) Value {
	if n < 0 || n >= len(s.vals) {
		return Value{}
	}
	return s.vals[len(s.vals)-1-n]
}

// Len 返回已跟踪的槽位数
func (s *Stack) Len() int { return len(s.vals) }

func (s *Stack) push(v Value) { s.vals = append(s.vals, v) }

func (s *Stack) pop() Value {
	if len(s.vals) == 0 {
		return Value{}
	}
	v := s.vals[len(s.vals)-1]
	s.vals = s.vals[:len(s.vals)-1]
	return v
}

func (s *Stack) reset() { s.vals = s.vals[:0] }

func (s *Stack) swap(n int) {
	if len(s.vals) < n+1 {
		grown := make([]Value, n+1-len(s.vals), n+1)
		s.vals = append(grown, s.vals...)
	}
	top := len(s.vals) - 1
	s.vals[top], s.vals[top-n] = s.vals[top-n], s.vals[top]
}

// Step 按指令的栈效果更新跟踪状态。
// 只模拟常量搬运（PUSH/DUP/SWAP/POP），其余指令按出入栈数量产生非常量结果。
func (s *Stack) Step(inst evm.Instruction) {
	op := inst.Op
	switch {
	case !inst.Known:
		s.reset()
	case evm.IsPush(op):
		s.push(Value{Const: inst.Value()})
	case op >= vm.DUP1 && op <= vm.DUP16:
		s.push(s.Peek(int(op - vm.DUP1)))
	case op >= vm.SWAP1 && op <= vm.SWAP16:
		s.swap(int(op-vm.SWAP1) + 1)
	case op == vm.POP:
		s.pop()
	case op == vm.JUMPDEST:
	default:
		eff, ok := stackEffects[op]
		if !ok {
			s.reset()
			return
		}
		var calldata bool
		for i := 0; i < eff.pop; i++ {
			calldata = s.pop().Calldata || calldata
		}
		for i := 0; i < eff.push; i++ {
			s.push(Value{Calldata: calldata || op == vm.CALLDATALOAD})
		}
	}
}

type effect struct{ pop, push int }

var stackEffects = map[vm.OpCode]effect{
	vm.ADD: {2, 1}, vm.MUL: {2, 1}, vm.SUB: {2, 1}, vm.DIV: {2, 1}, vm.SDIV: {2, 1},
	vm.MOD: {2, 1}, vm.SMOD: {2, 1}, vm.ADDMOD: {3, 1}, vm.MULMOD: {3, 1}, vm.EXP: {2, 1},
	vm.SIGNEXTEND: {2, 1},
	vm.LT: {2, 1}, vm.GT: {2, 1}, vm.SLT: {2, 1}, vm.SGT: {2, 1}, vm.EQ: {2, 1},
	vm.ISZERO: {1, 1}, vm.AND: {2, 1}, vm.OR: {2, 1}, vm.XOR: {2, 1}, vm.NOT: {1, 1},
	vm.BYTE: {2, 1}, vm.SHL: {2, 1}, vm.SHR: {2, 1}, vm.SAR: {2, 1},
	vm.KECCAK256: {2, 1},

	vm.ADDRESS: {0, 1}, vm.BALANCE: {1, 1}, vm.ORIGIN: {0, 1}, vm.CALLER: {0, 1},
	vm.CALLVALUE: {0, 1}, vm.CALLDATALOAD: {1, 1}, vm.CALLDATASIZE: {0, 1},
	vm.CALLDATACOPY: {3, 0}, vm.CODESIZE: {0, 1}, vm.CODECOPY: {3, 0}, vm.GASPRICE: {0, 1},
	vm.EXTCODESIZE: {1, 1}, vm.EXTCODECOPY: {4, 0}, vm.RETURNDATASIZE: {0, 1},
	vm.RETURNDATACOPY: {3, 0}, vm.EXTCODEHASH: {1, 1},

	vm.BLOCKHASH: {1, 1}, vm.COINBASE: {0, 1}, vm.TIMESTAMP: {0, 1}, vm.NUMBER: {0, 1},
	vm.GASLIMIT: {0, 1}, vm.CHAINID: {0, 1}, vm.SELFBALANCE: {0, 1}, vm.BASEFEE: {0, 1},

	vm.MLOAD: {1, 1}, vm.MSTORE: {2, 0}, vm.MSTORE8: {2, 0}, vm.SLOAD: {1, 1},
	vm.SSTORE: {2, 0}, vm.PC: {0, 1}, vm.MSIZE: {0, 1}, vm.GAS: {0, 1},
	vm.TLOAD: {1, 1}, vm.TSTORE: {2, 0}, vm.MCOPY: {3, 0},

	vm.LOG0: {2, 0}, vm.LOG1: {3, 0}, vm.LOG2: {4, 0}, vm.LOG3: {5, 0}, vm.LOG4: {6, 0},

	vm.CREATE: {3, 1}, vm.CALL: {7, 1}, vm.CALLCODE: {7, 1}, vm.DELEGATECALL: {6, 1},
	vm.CREATE2: {4, 1}, vm.STATICCALL: {6, 1},
	vm.JUMP: {1, 0}, vm.JUMPI: {2, 0},
}
