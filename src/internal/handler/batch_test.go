package handler

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/admi-n/txguard/src/internal/detector"
	"github.com/admi-n/txguard/src/internal/download"
	"github.com/admi-n/txguard/src/internal/session"
)

var (
	safeAddr    = common.HexToAddress("0x1000000000000000000000000000000000000001")
	killAddr    = common.HexToAddress("0x2000000000000000000000000000000000000002")
	missingAddr = common.HexToAddress("0x3000000000000000000000000000000000000003")
)

type mapSource map[common.Address][]byte

func (m mapSource) FetchCode(ctx context.Context, chain string, addr common.Address) ([]byte, error) {
	code, ok := m[addr]
	if !ok {
		return nil, download.ErrNotFound
	}
	return code, nil
}

type fakeLister struct {
	addrs []common.Address
	limit int
}

func (f *fakeLister) Addresses(ctx context.Context, limit int) ([]common.Address, error) {
	f.limit = limit
	return f.addrs, nil
}

func TestRunBatch(t *testing.T) {
	src := mapSource{
		safeAddr: {0x00},
		killAddr: {0x60, 0x00, 0xff},
	}
	dir := t.TempDir()
	failLog := filepath.Join(dir, "failed.txt")

	rep, err := RunBatch(context.Background(), session.NewCoordinator(detector.Default(), 0), src,
		[]common.Address{safeAddr, killAddr, missingAddr},
		BatchConfig{Chain: "eth", Concurrency: 2, ReportDir: dir, FailLog: failLog})
	require.NoError(t, err)

	require.Len(t, rep.Results, 3)
	assert.Equal(t, 3, rep.TotalContracts)
	assert.Equal(t, 1, rep.RiskyContracts)
	assert.Equal(t, 1, rep.FailedContracts)

	// 顺序与输入一致
	assert.Equal(t, "eth:"+safeAddr.Hex(), rep.Results[0].Target)
	assert.Equal(t, session.Safe, rep.Results[0].Verdict.RiskLevel)
	assert.Equal(t, session.Danger, rep.Results[1].Verdict.RiskLevel)
	assert.Nil(t, rep.Results[2].Verdict)

	data, err := os.ReadFile(failLog)
	require.NoError(t, err)
	assert.Equal(t, missingAddr.Hex()+"\n", string(data))

	matches, err := filepath.Glob(filepath.Join(dir, "txguard_report_eth_*.md"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestRunBatchEmpty(t *testing.T) {
	rep, err := RunBatch(context.Background(), session.NewCoordinator(nil, 0), mapSource{}, nil, BatchConfig{Chain: "eth"})
	require.NoError(t, err)
	assert.Equal(t, 0, rep.TotalContracts)
}

func TestRunBatchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := RunBatch(ctx, session.NewCoordinator(nil, 0), mapSource{}, []common.Address{safeAddr}, BatchConfig{Chain: "eth"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoadAddressesFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "targets.txt")
	content := strings.Join([]string{
		"# comment",
		"",
		safeAddr.Hex() + ",some label",
		"// another comment",
		"not-an-address",
		strings.ToLower(killAddr.Hex()) + "\textra",
		safeAddr.Hex(),
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	addrs, err := LoadAddressesFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{safeAddr, killAddr}, addrs)

	_, err = LoadAddressesFromFile("")
	assert.Error(t, err)
	_, err = LoadAddressesFromFile(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestLoadAddressesFromDB(t *testing.T) {
	db := &fakeLister{addrs: []common.Address{killAddr}}
	addrs, err := LoadAddressesFromDB(context.Background(), db, 0)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{killAddr}, addrs)
	assert.Equal(t, 1000, db.limit)
}
