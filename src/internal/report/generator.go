// Package report 把批量分析的结论整理成 Markdown 报告
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/admi-n/txguard/src/internal/report/renderers"
	"github.com/admi-n/txguard/src/internal/session"
)

// ScanResult 表示单个目标的分析结果
type ScanResult struct {
	Target   string
	ScanTime time.Time
	Status   string
	Verdict  *session.Verdict
	Error    string
}

// Report 表示完整的扫描报告
type Report struct {
	Chain             string
	ScanTime          time.Time
	TotalContracts    int
	RiskyContracts    int
	FailedContracts   int
	LevelDistribution map[session.RiskLevel]int
	Results           []ScanResult
}

// Generator 报告生成器接口
type Generator interface {
	Generate(report *Report) (string, error)
}

// MarkdownGenerator markdown格式报告生成器
type MarkdownGenerator struct {
	renderer *renderers.MarkdownRenderer
}

// NewMarkdownGenerator 创建markdown报告生成器
func NewMarkdownGenerator() *MarkdownGenerator {
	return &MarkdownGenerator{renderer: renderers.NewMarkdownRenderer()}
}

// Generate 生成markdown格式报告
func (g *MarkdownGenerator) Generate(report *Report) (string, error) {
	var sb strings.Builder

	sb.WriteString("# txguard 字节码风险分析报告\n\n")
	if report.Chain != "" {
		sb.WriteString(fmt.Sprintf("**链**: %s\n", report.Chain))
	}
	sb.WriteString(fmt.Sprintf("**扫描时间**: %s\n\n", report.ScanTime.Format("2006-01-02 15:04:05")))

	sb.WriteString("## 扫描统计\n\n")
	sb.WriteString(fmt.Sprintf("- **总合约数**: %d\n", report.TotalContracts))
	sb.WriteString(fmt.Sprintf("- **存在风险**: %d\n", report.RiskyContracts))
	sb.WriteString(fmt.Sprintf("- **分析失败**: %d\n\n", report.FailedContracts))

	if len(report.LevelDistribution) > 0 {
		sb.WriteString("## 结论分布\n\n")
		// 固定顺序输出
		for _, level := range []session.RiskLevel{session.Danger, session.Caution, session.Safe} {
			if n := report.LevelDistribution[level]; n > 0 {
				sb.WriteString(fmt.Sprintf("- %s **%s**: %d\n", renderers.LevelIcon(level), level, n))
			}
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## 详细结果\n\n")
	for i, res := range report.Results {
		sb.WriteString(g.renderer.RenderScanResult(res.Target, res.Status, res.Error, res.Verdict))
		if i < len(report.Results)-1 {
			sb.WriteString("---\n\n")
		}
	}
	return sb.String(), nil
}
