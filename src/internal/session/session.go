// Package session 驱动 解码 → CFG → 函数恢复 → 风险检测 的流水线，
// 并以事件流的形式向调用方报告进度和结论。
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"

	"github.com/admi-n/txguard/src/internal/cfg"
	"github.com/admi-n/txguard/src/internal/detector"
	"github.com/admi-n/txguard/src/internal/dispatch"
	"github.com/admi-n/txguard/src/internal/download"
	"github.com/admi-n/txguard/src/internal/evm"
)

var (
	ErrCancelled = errors.New("session cancelled")
	ErrTimeout   = errors.New("session timed out")
)

// Source 字节码来源
type Source interface {
	FetchCode(ctx context.Context, chain string, addr common.Address) ([]byte, error)
}

// Coordinator 创建并驱动分析会话。检测引擎只读，可在多个会话间共享。
type Coordinator struct {
	engine  *detector.Engine
	timeout time.Duration
}

// NewCoordinator timeout 为 0 表示不限制
func NewCoordinator(engine *detector.Engine, timeout time.Duration) *Coordinator {
	if engine == nil {
		engine = detector.Default()
	}
	return &Coordinator{engine: engine, timeout: timeout}
}

// Session 一次分析请求，独占其字节码和中间结果
type Session struct {
	ID string

	c     *Coordinator
	fetch func(ctx context.Context) ([]byte, error)

	mu        sync.Mutex
	started   bool
	cancelled bool
	cancel    context.CancelCauseFunc
	released  bool

	// sending 在单次发送期间持有，Cancel 借它等待进行中的发送结束
	sending sync.Mutex

	// 以下字段只在会话 goroutine 中读写
	code     []byte
	insts    []evm.Instruction
	graph    *cfg.Graph
	result   dispatch.Result
	findings []detector.Finding
}

// NewSession 为给定字节码创建会话，字节码会被复制
func (c *Coordinator) NewSession(code []byte) *Session {
	s := c.newSession()
	s.code = append([]byte{}, code...)
	return s
}

// NewAddressSession 创建先从 src 拉取字节码的会话
func (c *Coordinator) NewAddressSession(src Source, chain string, addr common.Address) *Session {
	s := c.newSession()
	s.fetch = func(ctx context.Context) ([]byte, error) {
		return src.FetchCode(ctx, chain, addr)
	}
	return s
}

func (c *Coordinator) newSession() *Session {
	return &Session{ID: uuid.NewString(), c: c}
}

// Analyze 创建会话并立即开始
func (c *Coordinator) Analyze(ctx context.Context, code []byte) <-chan Event {
	return c.NewSession(code).Start(ctx)
}

// AnalyzeAddress 拉取地址上的字节码并分析
func (c *Coordinator) AnalyzeAddress(ctx context.Context, src Source, chain string, addr common.Address) <-chan Event {
	return c.NewAddressSession(src, chain, addr).Start(ctx)
}

// Start 启动流水线并返回无缓冲的事件通道。
// 通道在终止事件（verdict 或 failed）之后关闭；ctx 被取消视为调用方断开，
// 此后不再发送任何事件。重复调用返回已关闭的通道。
func (s *Session) Start(ctx context.Context) <-chan Event {
	ch := make(chan Event)

	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		close(ch)
		return ch
	}
	s.started = true
	runCtx, cancel := context.WithCancelCause(ctx)
	s.cancel = cancel
	if s.cancelled {
		cancel(ErrCancelled)
	}
	s.mu.Unlock()

	var stop context.CancelFunc = func() {}
	if s.c.timeout > 0 {
		runCtx, stop = context.WithTimeoutCause(runCtx, s.c.timeout, ErrTimeout)
	}

	go func() {
		defer close(ch)
		defer s.release()
		defer stop()
		defer cancel(nil)
		s.run(ctx, runCtx, ch)
	}()
	return ch
}

// Cancel 取消会话；调用方仍在接收时会收到 failed(cancelled)。
// 返回之后调用方不会再收到非终止事件。
func (s *Session) Cancel() {
	s.mu.Lock()
	s.cancelled = true
	if s.cancel != nil {
		s.cancel(ErrCancelled)
	}
	s.mu.Unlock()

	s.sending.Lock()
	s.sending.Unlock()
}

// Released 报告会话数据是否已释放
func (s *Session) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

func (s *Session) release() {
	s.code, s.insts, s.graph, s.findings = nil, nil, nil, nil
	s.result = dispatch.Result{}

	s.mu.Lock()
	s.released = true
	s.mu.Unlock()
	log.Debug("🧹 会话数据已释放", "session", s.ID)
}

// emitter 负责向调用方发送事件
type emitter struct {
	id     string
	parent context.Context // 调用方的 ctx
	ctx    context.Context // 会话 ctx，含取消和超时
	ch     chan<- Event
	gate   *sync.Mutex
}

func (e *emitter) send(ev Event) bool {
	e.gate.Lock()
	defer e.gate.Unlock()

	// ctx 已结束时优先退出，不和接收方竞争
	select {
	case <-e.ctx.Done():
		return false
	default:
	}
	ev.Session = e.id
	select {
	case <-e.ctx.Done():
		return false
	case e.ch <- ev:
		return true
	}
}

// fail 发送 failed 终止事件；调用方已断开时什么也不发
func (e *emitter) fail(reason Reason, err error) {
	if e.parent.Err() != nil {
		return
	}
	ev := Event{Type: Failed, Session: e.id, Reason: reason}
	if err != nil {
		ev.Error = err.Error()
	}
	select {
	case <-e.parent.Done():
	case e.ch <- ev:
	}
}

// interrupted 在会话 ctx 结束后给出对应的终止事件
func (e *emitter) interrupted() {
	switch cause := context.Cause(e.ctx); {
	case e.parent.Err() != nil:
		log.Debug("🔌 调用方已断开", "session", e.id)
	case errors.Is(cause, ErrTimeout):
		log.Warn("⏰ 会话超时", "session", e.id)
		e.fail(ReasonTimeout, cause)
	default:
		log.Info("🛑 会话已取消", "session", e.id)
		e.fail(ReasonCancelled, cause)
	}
}

func (s *Session) run(parent, ctx context.Context, ch chan<- Event) {
	e := &emitter{id: s.ID, parent: parent, ctx: ctx, ch: ch, gate: &s.sending}
	start := time.Now()
	log.Debug("🚀 会话开始", "session", s.ID)

	if s.fetch != nil {
		if !e.send(Event{Type: StageStarted, Stage: StageFetch}) {
			e.interrupted()
			return
		}
		code, err := runStage(ctx, func() ([]byte, error) { return s.fetch(ctx) })
		if ctx.Err() != nil {
			e.interrupted()
			return
		}
		if err != nil {
			reason := ReasonFetch
			if errors.Is(err, download.ErrNotFound) {
				reason = ReasonNotFound
			}
			log.Warn("❌ 获取字节码失败", "session", s.ID, "err", err)
			e.fail(reason, err)
			return
		}
		s.code = code
		if !e.send(Event{Type: StageCompleted, Stage: StageFetch, Summary: humanize.Bytes(uint64(len(code)))}) {
			e.interrupted()
			return
		}
	}

	// 辅助 goroutine 只读取局部变量，release 清空字段时不会与之竞争
	var (
		code  = s.code
		insts []evm.Instruction
		graph *cfg.Graph
		res   dispatch.Result
	)
	ok := stage(e, StageDecode, func() ([]evm.Instruction, error) {
		return evm.Decode(code), nil
	}, func(v []evm.Instruction) string {
		insts, s.insts = v, v
		return fmt.Sprintf("%d instructions from %s", len(v), humanize.Bytes(uint64(len(code))))
	}) && stage(e, StageCFG, func() (*cfg.Graph, error) {
		return cfg.Build(insts), nil
	}, func(g *cfg.Graph) string {
		graph, s.graph = g, g
		return fmt.Sprintf("%d blocks, %d edges, %d unresolved", len(g.Blocks), len(g.Edges), len(g.Unresolved()))
	}) && stage(e, StageFunctions, func() (dispatch.Result, error) {
		return dispatch.Recover(graph), nil
	}, func(r dispatch.Result) string {
		res, s.result = r, r
		return fmt.Sprintf("%d functions, dispatcher=%t", len(r.Functions), r.Dispatcher)
	})
	if !ok {
		e.interrupted()
		return
	}

	if !e.send(Event{Type: StageStarted, Stage: StageDetectors}) {
		e.interrupted()
		return
	}
	in := &detector.Input{Graph: graph, Functions: res.Functions, Dispatcher: res.Dispatcher}
	findings, err := runStage(ctx, func() ([]detector.Finding, error) { return s.c.engine.Run(ctx, in) })
	if err != nil || ctx.Err() != nil {
		e.interrupted()
		return
	}
	s.findings = findings
	for i := range findings {
		if !e.send(Event{Type: FindingEvent, Finding: &findings[i]}) {
			e.interrupted()
			return
		}
	}
	if !e.send(Event{Type: StageCompleted, Stage: StageDetectors, Summary: fmt.Sprintf("%d findings", len(findings))}) {
		e.interrupted()
		return
	}

	v := newVerdict(findings, res, summarize(graph, res))
	if !e.send(Event{Type: VerdictEvent, Verdict: v}) {
		e.interrupted()
		return
	}
	log.Info("✅ 分析完成", "session", s.ID, "risk", v.RiskLevel, "findings", len(findings),
		"functions", v.FunctionCount, "elapsed", time.Since(start))
}

// stage 发送开始事件，在辅助 goroutine 中执行 fn，完成后发送带摘要的完成事件
func stage[T any](e *emitter, name Stage, fn func() (T, error), done func(T) string) bool {
	if !e.send(Event{Type: StageStarted, Stage: name}) {
		return false
	}
	v, err := runStage(e.ctx, fn)
	if err != nil || e.ctx.Err() != nil {
		return false
	}
	return e.send(Event{Type: StageCompleted, Stage: name, Summary: done(v)})
}

// runStage 让阶段执行期间也能及时响应取消
func runStage[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{v, err}
	}()
	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, context.Cause(ctx)
	}
}

func summarize(g *cfg.Graph, res dispatch.Result) []FunctionSummary {
	out := make([]FunctionSummary, 0, len(res.Functions))
	for _, fn := range res.Functions {
		fs := FunctionSummary{
			Selector: fn.SelectorHex(),
			Name:     fn.Name,
			Kind:     fn.Kind,
			Entry:    fn.Entry,
			Blocks:   len(fn.Blocks),
		}
		seen := make(map[string]bool)
		for _, a := range g.ConstSlots(fn.Blocks) {
			key := fmt.Sprintf("%t:%s", a.Write, a.Slot.Hex())
			if seen[key] {
				continue
			}
			seen[key] = true
			if a.Write {
				fs.Writes = append(fs.Writes, a.Slot.Hex())
			} else {
				fs.Reads = append(fs.Reads, a.Slot.Hex())
			}
		}
		out = append(out, fs)
	}
	return out
}
