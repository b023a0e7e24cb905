package renderers

import (
	"fmt"
	"strings"

	"github.com/admi-n/txguard/src/internal/detector"
	"github.com/admi-n/txguard/src/internal/session"
)

// MarkdownRenderer markdown渲染器
type MarkdownRenderer struct{}

// NewMarkdownRenderer 创建markdown渲染器
func NewMarkdownRenderer() *MarkdownRenderer {
	return &MarkdownRenderer{}
}

// RenderFinding 渲染单条检测结果
func (r *MarkdownRenderer) RenderFinding(f detector.Finding) string {
	line := fmt.Sprintf("%s **[%s]** `%s` %s", SeverityIcon(f.Severity), f.Severity, f.Detector, f.Message)
	if f.Anchor != nil {
		line += fmt.Sprintf(" (block %d, offset `%#x`)", f.Anchor.Block, f.Anchor.Offset)
	}
	return line
}

// RenderScanResult 渲染单个目标的结果
func (r *MarkdownRenderer) RenderScanResult(target, status, errMsg string, v *session.Verdict) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("### %s\n\n", target))
	sb.WriteString(fmt.Sprintf("**状态**: %s\n\n", status))
	if errMsg != "" {
		sb.WriteString(fmt.Sprintf("```\n%s\n```\n\n", errMsg))
	}
	if v == nil {
		return sb.String()
	}

	sb.WriteString(fmt.Sprintf("**结论**: %s %s\n\n", LevelIcon(v.RiskLevel), v.RiskLevel))
	dispatcher := "否"
	if v.Dispatcher {
		dispatcher = "是"
	}
	sb.WriteString(fmt.Sprintf("**函数数**: %d，**分发器**: %s\n\n", v.FunctionCount, dispatcher))

	if len(v.Functions) > 0 {
		sb.WriteString(r.RenderFunctions(v.Functions))
	}

	if len(v.Findings) > 0 {
		sb.WriteString("#### 检测结果\n\n")
		for i, f := range v.Findings {
			sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, r.RenderFinding(f)))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// RenderFunctions 渲染函数表
func (r *MarkdownRenderer) RenderFunctions(funcs []session.FunctionSummary) string {
	var sb strings.Builder
	sb.WriteString("| 选择器 | 名称 | 类型 | 入口块 | 块数 | 读槽 | 写槽 |\n")
	sb.WriteString("|---|---|---|---|---|---|---|\n")
	for _, fn := range funcs {
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %d | %d | %s | %s |\n",
			orDash(fn.Selector), orDash(fn.Name), fn.Kind, fn.Entry, fn.Blocks,
			orDash(strings.Join(fn.Reads, ", ")), orDash(strings.Join(fn.Writes, ", "))))
	}
	sb.WriteString("\n")
	return sb.String()
}

// SeverityIcon 获取严重等级对应的图标
func SeverityIcon(s detector.Severity) string {
	switch s {
	case detector.Danger:
		return "🔴"
	case detector.Warning:
		return "🟡"
	case detector.Info:
		return "🔵"
	default:
		return "⚪"
	}
}

// LevelIcon 获取结论对应的图标
func LevelIcon(level session.RiskLevel) string {
	switch level {
	case session.Danger:
		return "🔴"
	case session.Caution:
		return "🟡"
	case session.Safe:
		return "🟢"
	default:
		return "⚪"
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
