package download

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache 在内存中缓存最近使用的字节码
type Cache struct {
	src Source
	lru *lru.Cache[string, []byte]
}

func NewCache(src Source, size int) (*Cache, error) {
	c, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, fmt.Errorf("create bytecode cache: %w", err)
	}
	return &Cache{src: src, lru: c}, nil
}

func (c *Cache) FetchCode(ctx context.Context, chain string, addr common.Address) ([]byte, error) {
	key := chain + ":" + normalizeAddress(addr)
	if code, ok := c.lru.Get(key); ok {
		return append([]byte{}, code...), nil
	}
	code, err := c.src.FetchCode(ctx, chain, addr)
	if err != nil {
		return nil, err
	}
	c.lru.Add(key, append([]byte{}, code...))
	return code, nil
}

// Len 返回缓存条目数
func (c *Cache) Len() int {
	return c.lru.Len()
}
