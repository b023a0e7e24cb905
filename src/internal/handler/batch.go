// Package handler 批量分析一组合约地址并汇总成报告
package handler

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/errgroup"

	"github.com/admi-n/txguard/src/internal/report"
	"github.com/admi-n/txguard/src/internal/session"
)

// BatchConfig 批量分析参数
type BatchConfig struct {
	Chain       string
	Concurrency int
	ReportDir   string // 为空时不生成报告
	FailLog     string // 为空时不记录失败地址
}

// Analyzer 对单个地址运行一次会话
type Analyzer interface {
	AnalyzeAddress(ctx context.Context, src session.Source, chain string, addr common.Address) <-chan session.Event
}

// RunBatch 并发分析 addrs，结果顺序与输入一致
func RunBatch(ctx context.Context, a Analyzer, src session.Source, addrs []common.Address, cfg BatchConfig) (*report.Report, error) {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	rep := report.NewReport(cfg.Chain)
	if len(addrs) == 0 {
		fmt.Println("⚠️  没有找到可分析的合约")
		return rep, nil
	}
	fmt.Printf("📋 共找到 %d 个目标合约\n", len(addrs))

	results := make([]report.ScanResult, len(addrs))
	var (
		done int64
		mu   sync.Mutex // 保护终端输出
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Concurrency)
	for i, addr := range addrs {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			var last session.Event
			for ev := range a.AnalyzeAddress(gctx, src, cfg.Chain, addr) {
				last = ev
			}
			target := fmt.Sprintf("%s:%s", cfg.Chain, addr.Hex())
			results[i] = report.NewScanResult(target, last)

			n := atomic.AddInt64(&done, 1)
			mu.Lock()
			fmt.Printf("\n[%d/%d] %s\n", n, len(addrs), addr.Hex())
			printVerdictSummary(results[i])
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var failed []common.Address
	for i, res := range results {
		rep.AddScanResult(res)
		if res.Verdict == nil {
			failed = append(failed, addrs[i])
		}
	}

	fmt.Printf("\n%s\n", strings.Repeat("=", 50))
	fmt.Printf("✅ 分析完成！\n")
	fmt.Printf("   - 总合约数: %d\n", rep.TotalContracts)
	fmt.Printf("   - 成功分析: %d\n", rep.TotalContracts-rep.FailedContracts)
	fmt.Printf("   - 失败: %d\n", rep.FailedContracts)
	fmt.Printf("   - 存在风险的合约: %d\n", rep.RiskyContracts)
	fmt.Printf("%s\n\n", strings.Repeat("=", 50))

	if cfg.FailLog != "" && len(failed) > 0 {
		if err := writeFailLog(cfg.FailLog, failed); err != nil {
			log.Warn("⚠️  写入失败地址文件失败", "file", cfg.FailLog, "err", err)
		} else {
			fmt.Printf("📝 %d 个失败地址已记录到 %s\n", len(failed), cfg.FailLog)
		}
	}

	if cfg.ReportDir != "" {
		fmt.Println("📄 生成分析报告...")
		path, err := report.NewReporter(report.NewMarkdownGenerator(), report.NewFileStorage(cfg.ReportDir)).GenerateAndSave(rep)
		if err != nil {
			return rep, fmt.Errorf("生成报告失败: %w", err)
		}
		fmt.Printf("✅ 报告已保存: %s\n", path)
	}
	return rep, nil
}

// printVerdictSummary 打印单个目标的结论摘要
func printVerdictSummary(res report.ScanResult) {
	if res.Verdict == nil {
		fmt.Printf("  %s\n", res.Status)
		if res.Error != "" {
			fmt.Printf("     原因: %s\n", res.Error)
		}
		return
	}
	v := res.Verdict
	if len(v.Findings) == 0 {
		fmt.Printf("  ✅ 未发现风险 (%d 个函数)\n", v.FunctionCount)
		return
	}
	fmt.Printf("  %s 结论 %s，%d 条检测结果:\n", getLevelEmoji(v.RiskLevel), v.RiskLevel, len(v.Findings))
	for i, f := range v.Findings {
		fmt.Printf("    %d. [%s] %s: %s\n", i+1, f.Severity, f.Detector, f.Message)
	}
}

func getLevelEmoji(level session.RiskLevel) string {
	switch level {
	case session.Danger:
		return "🔴"
	case session.Caution:
		return "🟡"
	default:
		return "🟢"
	}
}

// writeFailLog 每行写一个失败地址，便于之后重试
func writeFailLog(path string, addrs []common.Address) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	for _, a := range addrs {
		if _, err := fmt.Fprintln(f, a.Hex()); err != nil {
			return err
		}
	}
	return nil
}
