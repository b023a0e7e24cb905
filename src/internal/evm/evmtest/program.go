// Package evmtest 提供测试用的字节码汇编工具。
package evmtest

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/core/vm"
)

// Program 是一个带标签的小型汇编器，跳转目标统一使用 PUSH2
type Program struct {
	code   []byte
	labels map[string]int
	fixups map[int]string
}

func New() *Program {
	return &Program{
		labels: make(map[string]int),
		fixups: make(map[int]string),
	}
}

// Op 追加无立即数的操作码
func (p *Program) Op(ops ...vm.OpCode) *Program {
	for _, op := range ops {
		p.code = append(p.code, byte(op))
	}
	return p
}

// Push 以 width 字节宽度压入常量，width 为 0 时使用 PUSH0
func (p *Program) Push(v uint64, width int) *Program {
	if width == 0 {
		return p.Op(vm.PUSH0)
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	p.code = append(p.code, byte(vm.PUSH1)+byte(width-1))
	if width > 8 {
		p.code = append(p.code, make([]byte, width-8)...)
		width = 8
	}
	p.code = append(p.code, buf[8-width:]...)
	return p
}

// PushBytes 压入任意字节常量
func (p *Program) PushBytes(b []byte) *Program {
	p.code = append(p.code, byte(vm.PUSH1)+byte(len(b)-1))
	p.code = append(p.code, b...)
	return p
}

// PushLabel 压入标签位置，在 Bytes 时回填
func (p *Program) PushLabel(name string) *Program {
	p.code = append(p.code, byte(vm.PUSH2))
	p.fixups[len(p.code)] = name
	p.code = append(p.code, 0, 0)
	return p
}

// Label 在当前位置放置 JUMPDEST
func (p *Program) Label(name string) *Program {
	p.labels[name] = len(p.code)
	return p.Op(vm.JUMPDEST)
}

// Raw 追加原始字节
func (p *Program) Raw(b ...byte) *Program {
	p.code = append(p.code, b...)
	return p
}

// Offset 返回标签的位置
func (p *Program) Offset(name string) uint64 {
	off, ok := p.labels[name]
	if !ok {
		panic(fmt.Sprintf("evmtest: unknown label %q", name))
	}
	return uint64(off)
}

// Bytes 回填标签并返回字节码
func (p *Program) Bytes() []byte {
	out := make([]byte, len(p.code))
	copy(out, p.code)
	for pos, name := range p.fixups {
		binary.BigEndian.PutUint16(out[pos:], uint16(p.Offset(name)))
	}
	return out
}

// Func 描述一个由选择器分发的函数体，函数体之后自动追加 STOP
type Func struct {
	Selector uint32
	Body     func(p *Program)
}

// Label 返回函数入口标签名
func (f Func) Label() string {
	return fmt.Sprintf("fn_%08x", f.Selector)
}

// Contract 按 solc 的常见布局生成带选择器分发的合约：
// 内存初始化、calldatasize 检查、选择器提取、逐个 EQ 比较，
// 剩余路径跳到 revert 的 fallback。
func Contract(funcs ...Func) *Program {
	p := New()
	p.Push(0x80, 1).Push(0x40, 1).Op(vm.MSTORE)
	p.Push(4, 1).Op(vm.CALLDATASIZE, vm.LT).PushLabel("fallback").Op(vm.JUMPI)
	p.Push(0, 1).Op(vm.CALLDATALOAD).Push(0xe0, 1).Op(vm.SHR)
	for _, f := range funcs {
		p.Op(vm.DUP1).Push(uint64(f.Selector), 4).Op(vm.EQ).PushLabel(f.Label()).Op(vm.JUMPI)
	}
	p.PushLabel("fallback").Op(vm.JUMP)
	p.Label("fallback").Push(0, 1).Op(vm.DUP1, vm.REVERT)
	for _, f := range funcs {
		p.Label(f.Label())
		if f.Body != nil {
			f.Body(p)
		}
		p.Op(vm.STOP)
	}
	return p
}

// OnlyOwner 生成 msg.sender == owner 的访问检查，失败时 revert
func OnlyOwner(p *Program, ok string) {
	p.Op(vm.CALLER).Push(0, 1).Op(vm.SLOAD).Op(vm.EQ).PushLabel(ok).Op(vm.JUMPI)
	p.Push(0, 1).Op(vm.DUP1, vm.REVERT)
	p.Label(ok)
}
