package download

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testAddr = common.HexToAddress("0x00000000219ab540356cBB839Cbe05303d7705Fa")

type memStore struct {
	codes map[string][]byte
	calls int
	err   error
}

func newMemStore() *memStore {
	return &memStore{codes: make(map[string][]byte)}
}

func (m *memStore) FetchCode(_ context.Context, chain string, addr common.Address) ([]byte, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	code, ok := m.codes[chain+normalizeAddress(addr)]
	if !ok {
		return nil, ErrNotFound
	}
	return code, nil
}

func (m *memStore) SaveCode(_ context.Context, chain string, addr common.Address, code []byte) error {
	m.codes[chain+normalizeAddress(addr)] = code
	return nil
}

func TestFallbackWriteBack(t *testing.T) {
	cache, chain := newMemStore(), newMemStore()
	chain.codes["eth"+normalizeAddress(testAddr)] = []byte{0x60, 0x00}

	f := Fallback{cache, chain}
	code, err := f.FetchCode(context.Background(), "eth", testAddr)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x60, 0x00}, code)
	assert.Equal(t, []byte{0x60, 0x00}, cache.codes["eth"+normalizeAddress(testAddr)])

	_, err = f.FetchCode(context.Background(), "eth", testAddr)
	require.NoError(t, err)
	assert.Equal(t, 1, chain.calls)
}

func TestFallbackNotFound(t *testing.T) {
	f := Fallback{newMemStore(), newMemStore()}
	_, err := f.FetchCode(context.Background(), "eth", testAddr)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFallbackErrors(t *testing.T) {
	broken := newMemStore()
	broken.err = errors.New("connection refused")
	f := Fallback{newMemStore(), broken}

	_, err := f.FetchCode(context.Background(), "eth", testAddr)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestCache(t *testing.T) {
	src := newMemStore()
	src.codes["eth"+normalizeAddress(testAddr)] = []byte{0x00}

	c, err := NewCache(src, 2)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		code, err := c.FetchCode(context.Background(), "eth", testAddr)
		require.NoError(t, err)
		assert.Equal(t, []byte{0x00}, code)
	}
	assert.Equal(t, 1, src.calls)
	assert.Equal(t, 1, c.Len())

	// 不同链分开缓存
	_, err = c.FetchCode(context.Background(), "bsc", testAddr)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 2, src.calls)
}

func TestDecodeStored(t *testing.T) {
	code, err := decodeStored("0x6080", 0)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x60, 0x80}, code)

	_, err = decodeStored("pragma solidity ^0.8.0;", 1)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = decodeStored("0x", 0)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = decodeStored("not hex", 0)
	assert.Error(t, err)
}
