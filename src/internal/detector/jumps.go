package detector

import (
	"fmt"

	"github.com/ethereum/go-ethereum/core/vm"

	"github.com/admi-n/txguard/src/internal/cfg"
)

// unresolvedJump 报告无法静态解析的跳转：
// 常量目标不是 JUMPDEST 的逐个告警，动态目标汇总为一条提示。
type unresolvedJump struct{}

func (unresolvedJump) ID() string { return "unresolved-jump" }

func (d unresolvedJump) Detect(in *Input) ([]Finding, error) {
	if err := requireGraph(in); err != nil {
		return nil, err
	}
	g := in.Graph

	var (
		out     []Finding
		dynamic int
		first   *Anchor
	)
	for _, b := range g.Blocks {
		if !inCode(g, b) {
			continue
		}
		for _, e := range b.Succs {
			if e.Kind != cfg.Unresolved {
				continue
			}
			if e.HasTarget {
				out = append(out, Finding{
					Detector: d.ID(),
					Severity: Warning,
					Message:  fmt.Sprintf("jump at %#x targets %#x, which is not a valid JUMPDEST", e.Site, e.Target),
					Anchor:   at(b.ID, e.Site),
				})
				continue
			}
			if first == nil {
				first = at(b.ID, e.Site)
			}
			dynamic++
		}
	}
	if dynamic > 0 {
		out = append(out, Finding{
			Detector: d.ID(),
			Severity: Info,
			Message:  fmt.Sprintf("%d jump(s) with dynamic targets could not be resolved statically", dynamic),
			Anchor:   first,
		})
	}
	return out, nil
}

// unreachableCode 报告紧跟在终止指令或无条件跳转之后、且没有任何入边的代码
type unreachableCode struct{}

func (unreachableCode) ID() string { return "unreachable-code" }

func (d unreachableCode) Detect(in *Input) ([]Finding, error) {
	if err := requireGraph(in); err != nil {
		return nil, err
	}
	g := in.Graph

	var out []Finding
	for i, b := range g.Blocks {
		if i == 0 || b.Reachable || !inCode(g, b) {
			continue
		}
		first := g.Insts[b.Insts[0]]
		// JUMPDEST 可能被动态跳转到达；INVALID 和未知字节通常是数据
		if !first.Known || first.Op == vm.JUMPDEST || first.Op == vm.INVALID {
			continue
		}
		prev, ok := g.Terminator(g.Blocks[i-1])
		if !ok || !(prev.IsHalt() || (prev.Known && prev.Op == vm.JUMP)) {
			continue
		}
		out = append(out, Finding{
			Detector: d.ID(),
			Severity: Info,
			Message:  fmt.Sprintf("%d unreachable instruction(s) at %#x after %s", len(b.Insts), b.Start, opName(prev)),
			Anchor:   at(b.ID, b.Start),
		})
	}
	return out, nil
}
