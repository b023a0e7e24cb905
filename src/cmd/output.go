package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/admi-n/txguard/src/internal/cfg"
	"github.com/admi-n/txguard/src/internal/detector"
	"github.com/admi-n/txguard/src/internal/session"
)

var (
	colorBold    = color.New(color.Bold).SprintFunc()
	colorStage   = color.New(color.FgHiBlue).SprintFunc()
	colorFaint   = color.New(color.Faint).SprintFunc()
	colorDanger  = color.New(color.FgRed, color.Bold).SprintFunc()
	colorWarning = color.New(color.FgYellow).SprintFunc()
	colorInfo    = color.New(color.FgCyan).SprintFunc()
	colorSafe    = color.New(color.FgGreen, color.Bold).SprintFunc()
)

func severityColor(s detector.Severity) func(a ...any) string {
	switch s {
	case detector.Danger:
		return colorDanger
	case detector.Warning:
		return colorWarning
	case detector.Info:
		return colorInfo
	}
	return colorFaint
}

func levelColor(level session.RiskLevel) func(a ...any) string {
	switch level {
	case session.Danger:
		return colorDanger
	case session.Caution:
		return colorWarning
	}
	return colorSafe
}

// printEvent 以人类可读的形式输出一个事件
func printEvent(w io.Writer, ev session.Event) {
	switch ev.Type {
	case session.StageStarted:
		fmt.Fprintf(w, "%s %s\n", colorStage("▶"), ev.Stage)
	case session.StageCompleted:
		fmt.Fprintf(w, "%s %s %s\n", colorStage("✓"), ev.Stage, colorFaint(ev.Summary))
	case session.FindingEvent:
		f := ev.Finding
		fmt.Fprintf(w, "  %s %s: %s\n", severityColor(f.Severity)("["+f.Severity.String()+"]"), colorBold(f.Detector), f.Message)
	case session.VerdictEvent:
		printVerdict(w, ev.Verdict)
	case session.Failed:
		fmt.Fprintf(w, "%s %s %s\n", colorDanger("✗ failed:"), ev.Reason, colorFaint(ev.Error))
	}
}

func printVerdict(w io.Writer, v *session.Verdict) {
	fmt.Fprintln(w, strings.Repeat("=", 50))
	fmt.Fprintf(w, "%s %s\n", colorBold("verdict:"), levelColor(v.RiskLevel)(strings.ToUpper(string(v.RiskLevel))))
	fmt.Fprintf(w, "functions: %d (dispatcher: %t)\n", v.FunctionCount, v.Dispatcher)
	for _, fn := range v.Functions {
		name := fn.Name
		if name == "" {
			name = fn.Kind.String()
			if fn.Selector != "" {
				name = fn.Selector
			}
		}
		fmt.Fprintf(w, "  %-40s entry=%-4d blocks=%d", name, fn.Entry, fn.Blocks)
		if len(fn.Writes) > 0 {
			fmt.Fprintf(w, " writes=%s", strings.Join(fn.Writes, ","))
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "findings: %d danger, %d warning, %d info\n",
		v.Counts[detector.Danger.String()], v.Counts[detector.Warning.String()], v.Counts[detector.Info.String()])
	fmt.Fprintln(w, strings.Repeat("=", 50))
}

// printListing 按基本块输出反汇编
func printListing(w io.Writer, g *cfg.Graph) {
	for _, b := range g.Blocks {
		state := "reachable"
		if !b.Reachable {
			state = "unreachable"
		}
		fmt.Fprintf(w, "%s\n", colorStage(fmt.Sprintf("; block %d @%#x (%s)", b.ID, b.Start, state)))
		for _, inst := range g.Instructions(b) {
			line := inst.String()
			if inst.Offset >= g.DataStart {
				line = colorFaint(line)
			}
			fmt.Fprintf(w, "  %s\n", line)
		}
		for _, e := range b.Succs {
			var edge string
			switch {
			case e.Kind != cfg.Unresolved:
				edge = fmt.Sprintf("-> %s block %d", e.Kind, e.To)
			case e.HasTarget:
				edge = fmt.Sprintf("-> unresolved (invalid target %#x)", e.Target)
			default:
				edge = "-> unresolved (dynamic)"
			}
			fmt.Fprintf(w, "  %s\n", colorFaint(edge))
		}
	}
}
