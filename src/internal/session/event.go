package session

import (
	"github.com/admi-n/txguard/src/internal/detector"
	"github.com/admi-n/txguard/src/internal/dispatch"
)

// Stage 分析阶段
type Stage string

const (
	StageFetch     Stage = "fetch"
	StageDecode    Stage = "decode"
	StageCFG       Stage = "cfg"
	StageFunctions Stage = "functions"
	StageDetectors Stage = "detectors"
)

// EventType 事件类型，JSON 中的 type 字段
type EventType string

const (
	StageStarted   EventType = "stage-started"
	StageCompleted EventType = "stage-completed"
	FindingEvent   EventType = "finding"
	VerdictEvent   EventType = "verdict"
	Failed         EventType = "failed"
)

// Terminal 判断是否为终止事件
func (t EventType) Terminal() bool {
	return t == VerdictEvent || t == Failed
}

// Reason 失败原因
type Reason string

const (
	ReasonCancelled Reason = "cancelled"
	ReasonTimeout   Reason = "timeout"
	ReasonNotFound  Reason = "not-found"
	ReasonFetch     Reason = "fetch"
)

// Event 会话向调用方推送的事件
type Event struct {
	Type    EventType         `json:"type"`
	Session string            `json:"session"`
	Stage   Stage             `json:"stage,omitempty"`
	Summary string            `json:"summary,omitempty"`
	Finding *detector.Finding `json:"finding,omitempty"`
	Verdict *Verdict          `json:"verdict,omitempty"`
	Reason  Reason            `json:"reason,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// RiskLevel 最终结论
type RiskLevel string

const (
	Safe    RiskLevel = "safe"
	Caution RiskLevel = "caution"
	Danger  RiskLevel = "danger"
)

// LevelOf 把最高严重级别映射为结论
func LevelOf(s detector.Severity) RiskLevel {
	switch s {
	case detector.Danger:
		return Danger
	case detector.Warning:
		return Caution
	}
	return Safe
}

// Verdict 终止事件的载荷
type Verdict struct {
	RiskLevel     RiskLevel          `json:"risk_level"`
	Severity      detector.Severity  `json:"severity"`
	Counts        map[string]int     `json:"counts"`
	Findings      []detector.Finding `json:"findings"`
	FunctionCount int                `json:"function_count"`
	Dispatcher    bool               `json:"dispatcher"`
	Functions     []FunctionSummary  `json:"functions,omitempty"`
}

// FunctionSummary 函数摘要，附带函数内常量存储槽
type FunctionSummary struct {
	Selector string        `json:"selector,omitempty"`
	Name     string        `json:"name,omitempty"`
	Kind     dispatch.Kind `json:"kind"`
	Entry    int           `json:"entry"`
	Blocks   int           `json:"blocks"`
	Reads    []string      `json:"reads,omitempty"`
	Writes   []string      `json:"writes,omitempty"`
}

func newVerdict(findings []detector.Finding, res dispatch.Result, funcs []FunctionSummary) *Verdict {
	level := detector.MaxSeverity(findings)
	counts := make(map[string]int)
	for sev, n := range detector.Count(findings) {
		counts[sev.String()] = n
	}
	if findings == nil {
		findings = []detector.Finding{}
	}
	return &Verdict{
		RiskLevel:     LevelOf(level),
		Severity:      level,
		Counts:        counts,
		Findings:      findings,
		FunctionCount: len(res.Functions),
		Dispatcher:    res.Dispatcher,
		Functions:     funcs,
	}
}
