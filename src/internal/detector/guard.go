package detector

import (
	"fmt"

	"github.com/ethereum/go-ethereum/core/vm"

	"github.com/admi-n/txguard/src/internal/cfg"
	"github.com/admi-n/txguard/src/internal/evm"
)

// isGuard 判断块是否为访问控制检查：读取 CALLER 或 ORIGIN 并以条件跳转结束
func isGuard(g *cfg.Graph, b *cfg.Block) bool {
	last, ok := g.Terminator(b)
	if !ok || !last.Known || last.Op != vm.JUMPI {
		return false
	}
	return hasOp(g, b, vm.CALLER, vm.ORIGIN)
}

// unguarded 返回不经过任何访问控制块即可从 entry 到达的块
func unguarded(g *cfg.Graph, entry int) []bool {
	return g.ReachableFrom(entry, func(b *cfg.Block) bool {
		return isGuard(g, b)
	})
}

func hasOp(g *cfg.Graph, b *cfg.Block, ops ...vm.OpCode) bool {
	_, ok := findOp(g, b, ops...)
	return ok
}

func findOp(g *cfg.Graph, b *cfg.Block, ops ...vm.OpCode) (evm.Instruction, bool) {
	for _, inst := range g.Instructions(b) {
		if !inst.Known {
			continue
		}
		for _, op := range ops {
			if inst.Op == op {
				return inst, true
			}
		}
	}
	return evm.Instruction{}, false
}

// inCode 排除尾部元数据中的块，可达块一律视为代码
func inCode(g *cfg.Graph, b *cfg.Block) bool {
	if len(b.Insts) == 0 {
		return false
	}
	return b.Reachable || b.Start < g.DataStart
}

func opName(inst evm.Instruction) string {
	if !inst.Known {
		return fmt.Sprintf("unknown opcode %#02x", byte(inst.Op))
	}
	return inst.Op.String()
}
