package cfg

import (
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/holiman/uint256"

	"github.com/admi-n/txguard/src/internal/evm"
)

// SlotAccess 一次常量存储槽访问
type SlotAccess struct {
	Slot   *uint256.Int
	Write  bool
	Block  int
	Offset uint64
}

// ConstSlots 收集给定块内以常量为键的 SLOAD/SSTORE
func (g *Graph) ConstSlots(blocks []int) []SlotAccess {
	var out []SlotAccess
	for _, id := range blocks {
		if id < 0 || id >= len(g.Blocks) {
			continue
		}
		g.Simulate(g.Blocks[id], func(inst evm.Instruction, st *Stack) {
			if !inst.Known || (inst.Op != vm.SLOAD && inst.Op != vm.SSTORE) {
				return
			}
			key := st.Peek(0).Const
			if key == nil {
				return
			}
			out = append(out, SlotAccess{
				Slot:   key,
				Write:  inst.Op == vm.SSTORE,
				Block:  id,
				Offset: inst.Offset,
			})
		})
	}
	return out
}
