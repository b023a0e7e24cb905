package cmd

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/admi-n/txguard/src/internal/session"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append(args, "--no-color"))
	err := root.Execute()
	return out.String(), err
}

func TestValidateAnalyze(t *testing.T) {
	tests := []struct {
		name    string
		cfg     CLIConfig
		wantErr bool
	}{
		{"code", CLIConfig{Code: "0x00"}, false},
		{"address", CLIConfig{Target: "0x00000000219ab540356cBB839Cbe05303d7705Fa", Chain: "bsc"}, false},
		{"nothing", CLIConfig{}, true},
		{"two inputs", CLIConfig{Code: "0x00", Target: "0x00000000219ab540356cBB839Cbe05303d7705Fa"}, true},
		{"bad chain", CLIConfig{Code: "0x00", Chain: "sol"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.ValidateAnalyze()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, tt.cfg.Chain)
		})
	}
}

func TestValidateBatch(t *testing.T) {
	assert.Error(t, (&CLIConfig{}).ValidateBatch())
	assert.Error(t, (&CLIConfig{TargetFile: "a.txt", FromDB: true}).ValidateBatch())
	assert.Error(t, (&CLIConfig{FromDB: true, Concurrency: 101}).ValidateBatch())

	c := &CLIConfig{TargetFile: "a.txt"}
	require.NoError(t, c.ValidateBatch())
	assert.True(t, filepath.IsAbs(c.TargetFile))
	assert.Equal(t, "eth", c.Chain)
}

func TestValidateDisasm(t *testing.T) {
	c := &CLIConfig{Target: "0x5c504ed432cb51138bcf09aa5e8a410dd4a1e204ef84bfed1be16dfba1b22060"}
	assert.Error(t, c.ValidateDisasm())
	assert.NoError(t, (&CLIConfig{Code: "0x00"}).ValidateDisasm())
}

func TestAnalyzeJSON(t *testing.T) {
	out, err := run(t, "analyze", "--code", "0x6000ff", "--json")
	require.NoError(t, err)

	var events []session.Event
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		var ev session.Event
		require.NoError(t, json.Unmarshal(sc.Bytes(), &ev), sc.Text())
		events = append(events, ev)
	}
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	require.Equal(t, session.VerdictEvent, last.Type)
	assert.Equal(t, session.Danger, last.Verdict.RiskLevel)
}

func TestAnalyzeText(t *testing.T) {
	out, err := run(t, "analyze", "--code", "0x00")
	require.NoError(t, err)
	assert.Contains(t, out, "verdict: SAFE")
	assert.Contains(t, out, "functions: 1 (dispatcher: false)")
}

func TestAnalyzeReport(t *testing.T) {
	dir := t.TempDir()
	codeFile := filepath.Join(dir, "code.hex")
	require.NoError(t, os.WriteFile(codeFile, []byte("0x6000ff\n"), 0644))

	_, err := run(t, "analyze", "--file", codeFile, "--report", dir)
	require.NoError(t, err)

	matches, err := filepath.Glob(filepath.Join(dir, "txguard_report_*.md"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), "### bytecode")
	assert.Contains(t, string(data), "selfdestruct")
}

func TestAnalyzeErrors(t *testing.T) {
	_, err := run(t, "analyze")
	assert.Error(t, err)

	_, err = run(t, "analyze", "--code", "0xzz")
	assert.Error(t, err)
}

func TestDisasmListing(t *testing.T) {
	out, err := run(t, "disasm", "--code", "0x600160075700005b00")
	require.NoError(t, err)
	assert.Contains(t, out, "; block 0 @0x0 (reachable)")
	assert.Contains(t, out, "(unreachable)")
	assert.Contains(t, out, "JUMPDEST")
	assert.Contains(t, out, "-> conditional-jump-taken block")
}

func TestDisasmDOT(t *testing.T) {
	out, err := run(t, "disasm", "--code", "0x600160075700005b00", "--dot", "-")
	require.NoError(t, err)
	assert.Contains(t, out, "digraph")

	path := filepath.Join(t.TempDir(), "cfg.dot")
	_, err = run(t, "disasm", "--code", "0x600160075700005b00", "--dot", path)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "digraph")
}
