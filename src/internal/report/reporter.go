package report

import (
	"fmt"
	"time"

	"github.com/admi-n/txguard/src/internal/session"
)

// Reporter 报告器，整合生成器和存储功能
type Reporter struct {
	generator Generator
	storage   Storage
}

// NewReporter 创建报告器
func NewReporter(generator Generator, storage Storage) *Reporter {
	return &Reporter{
		generator: generator,
		storage:   storage,
	}
}

// GenerateAndSave 生成并保存报告，返回文件路径
func (r *Reporter) GenerateAndSave(report *Report) (string, error) {
	content, err := r.generator.Generate(report)
	if err != nil {
		return "", fmt.Errorf("failed to generate report: %w", err)
	}

	path, err := r.storage.Save(report, content)
	if err != nil {
		return "", fmt.Errorf("failed to save report: %w", err)
	}
	return path, nil
}

// NewReport 创建新的报告实例
func NewReport(chain string) *Report {
	return &Report{
		Chain:             chain,
		ScanTime:          time.Now(),
		LevelDistribution: make(map[session.RiskLevel]int),
		Results:           make([]ScanResult, 0),
	}
}

// AddScanResult 添加扫描结果并更新统计
func (r *Report) AddScanResult(result ScanResult) {
	r.Results = append(r.Results, result)
	r.TotalContracts++

	if result.Verdict == nil {
		r.FailedContracts++
		return
	}
	r.LevelDistribution[result.Verdict.RiskLevel]++
	if result.Verdict.RiskLevel != session.Safe {
		r.RiskyContracts++
	}
}

// NewScanResult 由会话的终止事件生成扫描结果
func NewScanResult(target string, last session.Event) ScanResult {
	res := ScanResult{
		Target:   target,
		ScanTime: time.Now(),
	}
	switch last.Type {
	case session.VerdictEvent:
		res.Verdict = last.Verdict
		res.Status = "✅ 分析完成"
	case session.Failed:
		res.Status = "❌ 分析失败: " + string(last.Reason)
		res.Error = last.Error
	default:
		res.Status = "❌ 分析中断"
	}
	return res
}
