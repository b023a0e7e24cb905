package evm

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ParseHex 解析 0x 前缀可选的十六进制字节码
func ParseHex(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0x" || s == "0X" {
		return []byte{}, nil
	}
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	code, err := hexutil.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("invalid bytecode hex: %w", err)
	}
	return code, nil
}

// MetadataStart 返回 solc 追加的 CBOR 元数据起始位置，没有元数据时返回 len(code)。
// 元数据布局：<cbor map> <2 字节大端长度>
func MetadataStart(code []byte) uint64 {
	n := len(code)
	if n < 2 {
		return uint64(n)
	}
	size := int(code[n-2])<<8 | int(code[n-1])
	start := n - 2 - size
	if size == 0 || start < 0 {
		return uint64(n)
	}
	// CBOR map header，solc 通常写入 1~3 个键
	if h := code[start]; h < 0xa1 || h > 0xa5 {
		return uint64(n)
	}
	return uint64(start)
}

// Assemble 把指令序列还原为字节码
func Assemble(insts []Instruction) []byte {
	n := 0
	for _, inst := range insts {
		n += inst.Size
	}
	code := make([]byte, 0, n)
	for _, inst := range insts {
		code = append(code, byte(inst.Op))
		code = append(code, inst.Operand...)
	}
	return code
}
