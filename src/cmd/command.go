package cmd

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/admi-n/txguard/src/config"
	"github.com/admi-n/txguard/src/internal"
	"github.com/admi-n/txguard/src/internal/cfg"
	"github.com/admi-n/txguard/src/internal/detector"
	"github.com/admi-n/txguard/src/internal/download"
	"github.com/admi-n/txguard/src/internal/evm"
	"github.com/admi-n/txguard/src/internal/handler"
	"github.com/admi-n/txguard/src/internal/report"
	"github.com/admi-n/txguard/src/internal/server"
	"github.com/admi-n/txguard/src/internal/session"
)

// sources 按配置组装的字节码来源：内存缓存 → MySQL → Postgres → 链上 RPC
type sources struct {
	chain *download.ChainSource
	mysql *download.MySQLStore
	db    *sql.DB
	pg    *pgxpool.Pool
	src   session.Source
}

func (s *sources) Close() {
	if s.chain != nil {
		s.chain.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
	if s.pg != nil {
		s.pg.Close()
	}
}

// openSources 数据库不可用时只记录警告并继续使用链上来源
func openSources(ctx context.Context, settings *config.Settings, chain string) (*sources, error) {
	pm, err := internal.NewProxyManager(settings.Proxy)
	if err != nil {
		return nil, err
	}
	if pm.Enabled() {
		log.Info("🌐 使用代理", "proxy", pm.URL())
	}

	s := &sources{}
	s.chain, err = download.NewChainSource(ctx, settings.Endpoints(), pm, settings.Analysis.FetchTimeout)
	if err != nil {
		return nil, fmt.Errorf("创建链上来源失败: %w", err)
	}

	var fallback download.Fallback
	if dsn := settings.Database.MySQL; dsn != "" {
		if db, err := config.InitDB(ctx, dsn); err != nil {
			log.Warn("⚠️  MySQL 不可用，跳过", "err", err)
		} else {
			s.db = db
			s.mysql = download.NewMySQLStore(db, chain)
			fallback = append(fallback, s.mysql)
		}
	}
	if dsn := settings.Database.Postgres; dsn != "" {
		if pool, err := config.InitPG(ctx, dsn); err != nil {
			log.Warn("⚠️  Postgres 不可用，跳过", "err", err)
		} else {
			store := download.NewPGStore(pool)
			if err := store.EnsureSchema(ctx); err != nil {
				log.Warn("⚠️  Postgres 建表失败，跳过", "err", err)
				pool.Close()
			} else {
				s.pg = pool
				fallback = append(fallback, store)
			}
		}
	}
	fallback = append(fallback, s.chain)

	cache, err := download.NewCache(fallback, settings.Cache.Size)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.src = cache
	return s, nil
}

func newCoordinator(c *CLIConfig, settings *config.Settings) *session.Coordinator {
	timeout := settings.Analysis.Timeout
	if c.Timeout > 0 {
		timeout = c.Timeout
	}
	return session.NewCoordinator(detector.Default(), timeout)
}

// loadCode 读取 --code 或 --file 提供的字节码
func loadCode(c *CLIConfig) ([]byte, error) {
	s := c.Code
	if c.CodeFile != "" {
		data, err := os.ReadFile(c.CodeFile)
		if err != nil {
			return nil, fmt.Errorf("读取字节码文件失败: %w", err)
		}
		s = string(data)
	}
	return evm.ParseHex(strings.TrimSpace(s))
}

// ExecuteAnalyze 执行 analyze 命令
func ExecuteAnalyze(ctx context.Context, c *CLIConfig, settings *config.Settings, out io.Writer) error {
	coord := newCoordinator(c, settings)

	var (
		events <-chan session.Event
		label  = "bytecode"
	)
	if c.Target == "" {
		code, err := loadCode(c)
		if err != nil {
			return err
		}
		events = coord.Analyze(ctx, code)
	} else {
		target, err := internal.ParseTarget(c.Chain, c.Target)
		if err != nil {
			return err
		}
		srcs, err := openSources(ctx, settings, target.Chain)
		if err != nil {
			return err
		}
		defer srcs.Close()

		if target.IsTx {
			addr, err := srcs.chain.ResolveTarget(ctx, target.Chain, target.TxHash)
			if err != nil {
				return fmt.Errorf("解析交易目标失败: %w", err)
			}
			log.Info("🔎 交易目标", "tx", target.TxHash, "contract", addr)
			target = internal.Target{Chain: target.Chain, Address: addr}
		}
		label = target.String()
		events = coord.AnalyzeAddress(ctx, srcs.src, target.Chain, target.Address)
	}

	enc := json.NewEncoder(out)
	var last session.Event
	for ev := range events {
		last = ev
		if c.JSON {
			if err := enc.Encode(ev); err != nil {
				return err
			}
			continue
		}
		printEvent(out, ev)
	}

	if c.ReportDir != "" {
		rep := report.NewReport(c.Chain)
		rep.AddScanResult(report.NewScanResult(label, last))
		path, err := report.NewReporter(report.NewMarkdownGenerator(), report.NewFileStorage(c.ReportDir)).GenerateAndSave(rep)
		if err != nil {
			return err
		}
		log.Info("✅ 报告已保存", "path", path)
	}

	switch last.Type {
	case session.VerdictEvent:
		return nil
	case session.Failed:
		return fmt.Errorf("analysis failed: %s: %s", last.Reason, last.Error)
	}
	return ctx.Err()
}

// ExecuteBatch 执行 batch 命令
func ExecuteBatch(ctx context.Context, c *CLIConfig, settings *config.Settings) error {
	fmt.Println("🚀 启动批量分析...")

	srcs, err := openSources(ctx, settings, c.Chain)
	if err != nil {
		return err
	}
	defer srcs.Close()

	var addrs []common.Address
	if c.FromDB {
		if srcs.mysql == nil {
			return errors.New("--db requires a reachable MySQL database (database.mysql)")
		}
		addrs, err = handler.LoadAddressesFromDB(ctx, srcs.mysql, c.Limit)
	} else {
		addrs, err = handler.LoadAddressesFromFile(c.TargetFile)
	}
	if err != nil {
		return err
	}

	concurrency := c.Concurrency
	if concurrency == 0 {
		concurrency = settings.Analysis.Concurrency
	}
	_, err = handler.RunBatch(ctx, newCoordinator(c, settings), srcs.src, addrs, handler.BatchConfig{
		Chain:       c.Chain,
		Concurrency: concurrency,
		ReportDir:   c.ReportDir,
		FailLog:     c.FailLog,
	})
	return err
}

// ExecuteServe 执行 serve 命令，直到收到中断信号
func ExecuteServe(ctx context.Context, c *CLIConfig, settings *config.Settings) error {
	srcs, err := openSources(ctx, settings, "eth")
	if err != nil {
		return err
	}
	defer srcs.Close()

	addr := c.Addr
	if addr == "" {
		addr = settings.Server.Addr
	}
	return server.NewServer(newCoordinator(c, settings), srcs.src, srcs.chain).Start(ctx, addr)
}

// ExecuteDisasm 执行 disasm 命令
func ExecuteDisasm(ctx context.Context, c *CLIConfig, settings *config.Settings, out io.Writer) error {
	var code []byte
	if c.Target == "" {
		var err error
		if code, err = loadCode(c); err != nil {
			return err
		}
	} else {
		target, err := internal.ParseTarget(c.Chain, c.Target)
		if err != nil {
			return err
		}
		srcs, err := openSources(ctx, settings, target.Chain)
		if err != nil {
			return err
		}
		defer srcs.Close()
		if code, err = srcs.src.FetchCode(ctx, target.Chain, target.Address); err != nil {
			return err
		}
	}

	g := cfg.Build(evm.Decode(code))
	if c.DotFile == "" {
		printListing(out, g)
		return nil
	}
	if c.DotFile == "-" {
		return g.WriteDOT(out)
	}
	f, err := os.Create(c.DotFile)
	if err != nil {
		return fmt.Errorf("创建 DOT 文件失败: %w", err)
	}
	defer f.Close()
	if err := g.WriteDOT(f); err != nil {
		return err
	}
	log.Info("✅ 控制流图已保存", "path", c.DotFile, "blocks", len(g.Blocks))
	return nil
}
