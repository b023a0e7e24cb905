// Package detector 在控制流图和函数划分之上运行基于模式的风险检测。
package detector

import (
	"fmt"
	"strings"
)

// Severity 风险等级，None 仅用于表示“没有发现”
type Severity uint8

const (
	None Severity = iota
	Info
	Warning
	Danger
)

func (s Severity) String() string {
	switch s {
	case Info:
		return "info"
	case Warning:
		return "warning"
	case Danger:
		return "danger"
	}
	return "none"
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "none", "":
		*s = None
	case "info":
		*s = Info
	case "warning":
		*s = Warning
	case "danger":
		*s = Danger
	default:
		return fmt.Errorf("unknown severity %q", b)
	}
	return nil
}

// Anchor 定位到块和指令
type Anchor struct {
	Block  int    `json:"block"`
	Offset uint64 `json:"offset"`
}

// Finding 单条检测结果
type Finding struct {
	Detector string   `json:"detector"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Anchor   *Anchor  `json:"anchor,omitempty"`
}

func (f Finding) String() string {
	if f.Anchor == nil {
		return fmt.Sprintf("[%s] %s: %s", f.Severity, f.Detector, f.Message)
	}
	return fmt.Sprintf("[%s] %s @%#x: %s", f.Severity, f.Detector, f.Anchor.Offset, f.Message)
}

// MaxSeverity 返回最高等级
func MaxSeverity(findings []Finding) Severity {
	level := None
	for _, f := range findings {
		if f.Severity > level {
			level = f.Severity
		}
	}
	return level
}

// Count 按等级统计
func Count(findings []Finding) map[Severity]int {
	counts := map[Severity]int{Info: 0, Warning: 0, Danger: 0}
	for _, f := range findings {
		counts[f.Severity]++
	}
	return counts
}

func at(block int, offset uint64) *Anchor {
	return &Anchor{Block: block, Offset: offset}
}
