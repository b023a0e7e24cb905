// Package download 获取待分析合约的字节码：链上 RPC、MySQL/Postgres 缓存表和内存缓存。
package download

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
)

// ErrNotFound 地址上没有合约代码
var ErrNotFound = errors.New("contract code not found")

// Source 字节码来源
type Source interface {
	FetchCode(ctx context.Context, chain string, addr common.Address) ([]byte, error)
}

// Store 可写回的字节码缓存
type Store interface {
	Source
	SaveCode(ctx context.Context, chain string, addr common.Address, code []byte) error
}

// Fallback 依次尝试多个来源，第一个命中的结果会写回之前未命中的 Store
type Fallback []Source

func (f Fallback) FetchCode(ctx context.Context, chain string, addr common.Address) ([]byte, error) {
	var errs []error
	for i, src := range f {
		code, err := src.FetchCode(ctx, chain, addr)
		if err == nil {
			f.writeBack(ctx, i, chain, addr, code)
			return code, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !errors.Is(err, ErrNotFound) {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("fetch %s on %s: %w", addr.Hex(), chain, errors.Join(errs...))
	}
	return nil, fmt.Errorf("%w: %s on %s", ErrNotFound, addr.Hex(), chain)
}

func (f Fallback) writeBack(ctx context.Context, hit int, chain string, addr common.Address, code []byte) {
	for _, src := range f[:hit] {
		store, ok := src.(Store)
		if !ok {
			continue
		}
		if err := store.SaveCode(ctx, chain, addr, code); err != nil {
			log.Warn("⚠️  写回字节码缓存失败", "address", addr, "err", err)
		}
	}
}

func normalizeAddress(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}
