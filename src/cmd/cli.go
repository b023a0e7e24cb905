package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/admi-n/txguard/src/internal"
)

// CLIConfig 保存解析好的 CLI 选项
type CLIConfig struct {
	ConfigFile string // settings.yaml 路径
	Verbose    bool
	NoColor    bool
	Proxy      string // HTTP 代理，覆盖配置文件

	Chain    string        // eth | bsc | arb
	Target   string        // 合约地址或交易哈希
	Code     string        // 十六进制字节码
	CodeFile string        // 包含十六进制字节码的文件
	Timeout  time.Duration // 单次会话超时，0 表示使用配置

	JSON      bool   // 以 NDJSON 输出事件
	ReportDir string // 非空时生成 Markdown 报告

	TargetFile  string // batch: 地址文件
	FromDB      bool   // batch: 从 MySQL contracts 表读取地址
	Limit       int
	Concurrency int
	FailLog     string

	Addr    string // serve: 监听地址
	DotFile string // disasm: CFG 输出位置，"-" 表示标准输出
}

// validateInput 检查字节码来源：--code、--file、--target 三选一
func (c *CLIConfig) validateInput() error {
	n := 0
	for _, s := range []string{c.Code, c.CodeFile, c.Target} {
		if strings.TrimSpace(s) != "" {
			n++
		}
	}
	if n != 1 {
		return errors.New("exactly one of --code, --file or --target is required")
	}
	if c.Chain == "" {
		c.Chain = "eth"
	}
	if c.CodeFile != "" {
		c.CodeFile = absPath(c.CodeFile)
	}
	return internal.ValidateChain(c.Chain)
}

// ValidateAnalyze 检查 analyze 命令的输入
func (c *CLIConfig) ValidateAnalyze() error {
	if err := c.validateInput(); err != nil {
		return err
	}
	if c.Timeout < 0 {
		return errors.New("--timeout must not be negative")
	}
	return nil
}

// ValidateBatch 检查 batch 命令的输入
func (c *CLIConfig) ValidateBatch() error {
	if (c.TargetFile == "") == !c.FromDB {
		return errors.New("exactly one of --targets or --db is required")
	}
	if c.TargetFile != "" {
		c.TargetFile = absPath(c.TargetFile)
	}
	if c.Chain == "" {
		c.Chain = "eth"
	}
	if c.Concurrency < 0 || c.Concurrency > 100 {
		return fmt.Errorf("--concurrency must be between 1 and 100")
	}
	return internal.ValidateChain(c.Chain)
}

// ValidateDisasm 检查 disasm 命令的输入，交易哈希不被接受
func (c *CLIConfig) ValidateDisasm() error {
	if err := c.validateInput(); err != nil {
		return err
	}
	if c.Target != "" && internal.ValidTxHash(c.Target) {
		return errors.New("disasm needs a contract address, not a transaction hash")
	}
	return nil
}

// absPath 相对路径转为相对于当前工作目录的绝对路径
func absPath(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	cwd, _ := os.Getwd()
	return filepath.Join(cwd, p)
}

// Run 构建命令行并执行，收到中断信号时取消正在进行的分析
func Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCmd().ExecuteContext(ctx)
}

// PrintFatal 将错误打印到 stderr 并以非零代码退出。
func PrintFatal(err error) {
	if err == nil {
		return
	}

	fmt.Fprintln(os.Stderr, "错误:", err)
	os.Exit(1)
}
