// Package evm 把原始合约字节码解码为指令序列。
package evm

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/holiman/uint256"
)

// Instruction 是一条解码后的 EVM 指令
type Instruction struct {
	Offset    uint64    // 在字节码中的位置
	Op        vm.OpCode // 操作码
	Operand   []byte    // 仅 PUSH1..PUSH32 有立即数
	Size      int       // 指令占用字节数（含立即数）
	Known     bool      // false 表示未定义的操作码
	Truncated bool      // 立即数被字节码末尾截断
}

// Decode 线性扫描字节码并返回指令序列。
// 对任意输入都会返回结果：未定义字节解码为 Known=false 的单字节指令，
// 越过末尾的 PUSH 立即数按原样保留为截断指令并停止解码。
func Decode(code []byte) []Instruction {
	insts := make([]Instruction, 0, len(code)/2+1)
	for pc := 0; pc < len(code); {
		op := vm.OpCode(code[pc])
		inst := Instruction{
			Offset: uint64(pc),
			Op:     op,
			Size:   1,
			Known:  IsDefined(op),
		}
		if n := PushWidth(op); n > 0 {
			end := pc + 1 + n
			if end > len(code) {
				end = len(code)
				inst.Truncated = true
			}
			inst.Operand = code[pc+1 : end]
			inst.Size = end - pc
		}
		insts = append(insts, inst)
		if inst.Truncated {
			break
		}
		pc += inst.Size
	}
	return insts
}

// PushWidth 返回操作码携带的立即数宽度，PUSH0 和其它操作码为 0
func PushWidth(op vm.OpCode) int {
	if op >= vm.PUSH1 && op <= vm.PUSH32 {
		return int(op-vm.PUSH1) + 1
	}
	return 0
}

// IsPush 判断是否为 PUSH0..PUSH32
func IsPush(op vm.OpCode) bool {
	return op == vm.PUSH0 || PushWidth(op) > 0
}

// eofOnly 只在 EOF 容器中有效的操作码，在传统字节码里会中止执行
var eofOnly = [256]bool{
	0xd0: true, 0xd1: true, 0xd2: true, 0xd3: true, // DATALOAD..DATACOPY
	0xe0: true, 0xe1: true, 0xe2: true, // RJUMP RJUMPI RJUMPV
	0xe3: true, 0xe4: true, 0xe5: true, // CALLF RETF JUMPF
	0xe6: true, 0xe7: true, 0xe8: true, // DUPN SWAPN EXCHANGE
	0xec: true, 0xee: true, // EOFCREATE RETURNCONTRACT
	0xf7: true, 0xf8: true, 0xf9: true, 0xfb: true, // RETURNDATALOAD EXTCALL EXTDELEGATECALL EXTSTATICCALL
}

// IsDefined 判断字节是否映射到传统字节码中已定义的操作码
func IsDefined(op vm.OpCode) bool {
	if eofOnly[op] {
		return false
	}
	return !strings.Contains(op.String(), "not defined")
}

// IsHalt 判断指令执行后是否终止当前调用帧
func (i Instruction) IsHalt() bool {
	if !i.Known {
		return true
	}
	switch i.Op {
	case vm.STOP, vm.RETURN, vm.REVERT, vm.INVALID, vm.SELFDESTRUCT:
		return true
	}
	return false
}

// IsJump 判断是否为 JUMP 或 JUMPI
func (i Instruction) IsJump() bool {
	return i.Known && (i.Op == vm.JUMP || i.Op == vm.JUMPI)
}

// IsControl 判断指令是否结束一个基本块
func (i Instruction) IsControl() bool {
	return i.IsJump() || i.IsHalt()
}

// Value 返回 PUSH 指令压栈的常量，非 PUSH 指令返回 nil
func (i Instruction) Value() *uint256.Int {
	if !i.Known || !IsPush(i.Op) {
		return nil
	}
	return new(uint256.Int).SetBytes(i.Operand)
}

// End 返回下一条指令的位置
func (i Instruction) End() uint64 {
	return i.Offset + uint64(i.Size)
}

func (i Instruction) String() string {
	if !i.Known {
		return fmt.Sprintf("%#06x UNKNOWN(%#02x)", i.Offset, byte(i.Op))
	}
	if PushWidth(i.Op) == 0 {
		return fmt.Sprintf("%#06x %s", i.Offset, i.Op)
	}
	s := fmt.Sprintf("%#06x %s 0x%x", i.Offset, i.Op, i.Operand)
	if i.Truncated {
		s += " (incomplete)"
	}
	return s
}

// JumpDests 收集所有合法的跳转目标（代码段中的 JUMPDEST，不含 PUSH 数据）
func JumpDests(insts []Instruction) map[uint64]struct{} {
	dests := make(map[uint64]struct{})
	for _, inst := range insts {
		if inst.Known && inst.Op == vm.JUMPDEST {
			dests[inst.Offset] = struct{}{}
		}
	}
	return dests
}
