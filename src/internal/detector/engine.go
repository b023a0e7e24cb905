package detector

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/errgroup"

	"github.com/admi-n/txguard/src/internal/cfg"
	"github.com/admi-n/txguard/src/internal/dispatch"
)

// ErrPrecondition 检测器所需的分析结果缺失
var ErrPrecondition = errors.New("detector precondition not met")

// Input 检测器的只读输入
type Input struct {
	Graph      *cfg.Graph
	Functions  []dispatch.Function
	Dispatcher bool
}

// Detector 单个风险检测器，必须无状态，不能依赖其它检测器的输出
type Detector interface {
	ID() string
	Detect(in *Input) ([]Finding, error)
}

// Engine 持有固定顺序的检测器列表，初始化后只读，可在多个会话间共享
type Engine struct {
	detectors []Detector
}

func NewEngine(detectors ...Detector) *Engine {
	return &Engine{detectors: detectors}
}

// Default 返回内置检测器，顺序即输出顺序
func Default() *Engine {
	return NewEngine(
		unresolvedJump{},
		unreachableCode{},
		selfDestruct{},
		delegateCall{},
		unguardedStore{},
		txOrigin{},
		proxyPattern{},
		noDispatcher{},
	)
}

// IDs 返回已注册检测器的 ID
func (e *Engine) IDs() []string {
	ids := make([]string, len(e.detectors))
	for i, d := range e.detectors {
		ids[i] = d.ID()
	}
	return ids
}

// Run 并发执行所有检测器，结果按注册顺序拼接。
// 单个检测器出错或 panic 只会让它贡献零条结果；只有 ctx 被取消时返回错误。
func (e *Engine) Run(ctx context.Context, in *Input) ([]Finding, error) {
	slots := make([][]Finding, len(e.detectors))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, d := range e.detectors {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			findings, err := safeDetect(d, in)
			if err != nil {
				log.Info("ℹ️ 检测器执行失败，已跳过", "detector", d.ID(), "err", err)
				return nil
			}
			slots[i] = findings
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []Finding
	for _, s := range slots {
		out = append(out, s...)
	}
	return out, nil
}

func safeDetect(d Detector, in *Input) (findings []Finding, err error) {
	defer func() {
		if r := recover(); r != nil {
			findings, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	return d.Detect(in)
}

func requireGraph(in *Input) error {
	if in == nil || in.Graph == nil {
		return fmt.Errorf("%w: control flow graph missing", ErrPrecondition)
	}
	return nil
}
