package cmd

import (
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/admi-n/txguard/src/config"
)

// NewRootCmd 创建 txguard 命令树
func NewRootCmd() *cobra.Command {
	cfg := &CLIConfig{}
	var settings *config.Settings

	root := &cobra.Command{
		Use:           "txguard",
		Short:         "🛡️ txguard - EVM 字节码风险分析工具",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			s, err := config.LoadSettings(cfg.ConfigFile)
			if err != nil {
				return err
			}
			if cfg.Proxy != "" {
				s.Proxy = cfg.Proxy
			}
			level := s.Log.Level
			if cfg.Verbose {
				level = "debug"
			}
			color.NoColor = color.NoColor || cfg.NoColor
			if err := config.SetupLogger(os.Stderr, level, s.Log.Format, !color.NoColor); err != nil {
				return err
			}
			settings = s
			return nil
		},
	}
	root.CompletionOptions.HiddenDefaultCmd = true

	pf := root.PersistentFlags()
	pf.StringVar(&cfg.ConfigFile, "config", "", "config file (default is "+config.DefaultSettingsPath+")")
	pf.BoolVarP(&cfg.Verbose, "verbose", "V", false, "verbose output")
	pf.BoolVar(&cfg.NoColor, "no-color", false, "disable colorized output")
	pf.StringVar(&cfg.Proxy, "proxy", "", "HTTP proxy, e.g. http://127.0.0.1:7897")

	analyzeCmd := &cobra.Command{
		Use:   "analyze",
		Short: "分析单个合约、交易或一段字节码",
		Example: `  txguard analyze --target 0x00000000219ab540356cBB839Cbe05303d7705Fa
  txguard analyze --chain bsc --target 0x<tx hash> --json
  txguard analyze --code 0x6080604052...`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.ValidateAnalyze(); err != nil {
				return err
			}
			return ExecuteAnalyze(cmd.Context(), cfg, settings, cmd.OutOrStdout())
		},
	}
	addInputFlags(analyzeCmd, cfg)
	analyzeCmd.Flags().DurationVar(&cfg.Timeout, "timeout", 0, "session timeout (default from config)")
	analyzeCmd.Flags().BoolVar(&cfg.JSON, "json", false, "print events as newline-delimited JSON")
	analyzeCmd.Flags().StringVar(&cfg.ReportDir, "report", "", "write a Markdown report into this directory")

	batchCmd := &cobra.Command{
		Use:   "batch",
		Short: "批量分析文件或数据库中的合约地址",
		Example: `  txguard batch --targets contracts.txt --report reports
  txguard batch --db --limit 500 --concurrency 8`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.ValidateBatch(); err != nil {
				return err
			}
			return ExecuteBatch(cmd.Context(), cfg, settings)
		},
	}
	batchCmd.Flags().StringVarP(&cfg.Chain, "chain", "c", "eth", "chain: eth | bsc | arb")
	batchCmd.Flags().StringVarP(&cfg.TargetFile, "targets", "t", "", "file with one address per line")
	batchCmd.Flags().BoolVar(&cfg.FromDB, "db", false, "read addresses from the MySQL contracts table")
	batchCmd.Flags().IntVar(&cfg.Limit, "limit", 1000, "max addresses read from the database")
	batchCmd.Flags().IntVar(&cfg.Concurrency, "concurrency", 0, "concurrent sessions (default from config)")
	batchCmd.Flags().StringVar(&cfg.ReportDir, "report", "reports", "write a Markdown report into this directory")
	batchCmd.Flags().StringVar(&cfg.FailLog, "fail-log", "failed.txt", "append addresses that could not be analyzed")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "启动 HTTP 服务，以 SSE 推送分析进度",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ExecuteServe(cmd.Context(), cfg, settings)
		},
	}
	serveCmd.Flags().StringVar(&cfg.Addr, "addr", "", "listen address (default from config)")

	disasmCmd := &cobra.Command{
		Use:   "disasm",
		Short: "反汇编字节码并导出控制流图",
		Example: `  txguard disasm --code 0x6001600757005b00
  txguard disasm --target 0x00000000219ab540356cBB839Cbe05303d7705Fa --dot cfg.dot`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.ValidateDisasm(); err != nil {
				return err
			}
			return ExecuteDisasm(cmd.Context(), cfg, settings, cmd.OutOrStdout())
		},
	}
	addInputFlags(disasmCmd, cfg)
	disasmCmd.Flags().StringVar(&cfg.DotFile, "dot", "", "write the CFG in Graphviz DOT format (- for stdout)")

	root.AddCommand(analyzeCmd, batchCmd, serveCmd, disasmCmd)
	return root
}

func addInputFlags(cmd *cobra.Command, cfg *CLIConfig) {
	cmd.Flags().StringVarP(&cfg.Chain, "chain", "c", "eth", "chain: eth | bsc | arb")
	cmd.Flags().StringVarP(&cfg.Target, "target", "t", "", "contract address or transaction hash")
	cmd.Flags().StringVar(&cfg.Code, "code", "", "hex encoded runtime bytecode")
	cmd.Flags().StringVarP(&cfg.CodeFile, "file", "f", "", "file containing hex encoded runtime bytecode")
}
