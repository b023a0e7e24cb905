package download

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/admi-n/txguard/src/internal"
)

// ChainSource 通过各链的 RPC 节点读取合约字节码
type ChainSource struct {
	clients map[string]*ethclient.Client
	limiter *RateLimiter
}

// NewChainSource 为每条链建立 RPC 客户端，pm 非空时所有请求走代理
func NewChainSource(ctx context.Context, endpoints map[string]string, pm *internal.ProxyManager, timeout time.Duration) (*ChainSource, error) {
	if pm == nil {
		pm = &internal.ProxyManager{}
	}
	cs := &ChainSource{
		clients: make(map[string]*ethclient.Client, len(endpoints)),
		limiter: NewRateLimiter(20),
	}
	for chain, url := range endpoints {
		if url == "" {
			continue
		}
		rc, err := rpc.DialOptions(ctx, url, rpc.WithHTTPClient(pm.HTTPClient(timeout)))
		if err != nil {
			cs.Close()
			return nil, fmt.Errorf("连接 %s 节点失败: %w", chain, err)
		}
		cs.clients[chain] = ethclient.NewClient(rc)
		log.Info("✅ 已连接节点", "chain", chain, "url", url, "proxy", pm.URL())
	}
	return cs, nil
}

// Chains 返回已配置的链
func (cs *ChainSource) Chains() []string {
	chains := make([]string, 0, len(cs.clients))
	for c := range cs.clients {
		chains = append(chains, c)
	}
	sort.Strings(chains)
	return chains
}

func (cs *ChainSource) client(chain string) (*ethclient.Client, error) {
	c, ok := cs.clients[chain]
	if !ok {
		return nil, fmt.Errorf("no rpc endpoint configured for chain %q", chain)
	}
	return c, nil
}

// FetchCode 读取最新区块上的合约代码，没有代码时返回 ErrNotFound
func (cs *ChainSource) FetchCode(ctx context.Context, chain string, addr common.Address) ([]byte, error) {
	c, err := cs.client(chain)
	if err != nil {
		return nil, err
	}
	if err := cs.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	code, err := withRetry(ctx, func(ctx context.Context) ([]byte, error) {
		return c.CodeAt(ctx, addr, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("获取合约代码失败 %s: %w", addr.Hex(), err)
	}
	if len(code) == 0 {
		return nil, fmt.Errorf("%w: %s on %s", ErrNotFound, addr.Hex(), chain)
	}
	return code, nil
}

// ResolveTarget 返回交易调用的合约；合约创建交易返回新合约地址
func (cs *ChainSource) ResolveTarget(ctx context.Context, chain string, txHash common.Hash) (common.Address, error) {
	c, err := cs.client(chain)
	if err != nil {
		return common.Address{}, err
	}
	tx, _, err := c.TransactionByHash(ctx, txHash)
	if errors.Is(err, ethereum.NotFound) {
		return common.Address{}, fmt.Errorf("%w: transaction %s", ErrNotFound, txHash.Hex())
	}
	if err != nil {
		return common.Address{}, fmt.Errorf("获取交易失败 %s: %w", txHash.Hex(), err)
	}
	if to := tx.To(); to != nil {
		return *to, nil
	}

	// 合约创建交易的 To 地址为 nil
	receipt, err := c.TransactionReceipt(ctx, txHash)
	if errors.Is(err, ethereum.NotFound) {
		return common.Address{}, fmt.Errorf("%w: receipt of %s", ErrNotFound, txHash.Hex())
	}
	if err != nil {
		return common.Address{}, fmt.Errorf("获取交易收据失败 %s: %w", txHash.Hex(), err)
	}
	if receipt.ContractAddress == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: transaction %s created no contract", ErrNotFound, txHash.Hex())
	}
	return receipt.ContractAddress, nil
}

// Close 关闭连接
func (cs *ChainSource) Close() {
	for _, c := range cs.clients {
		c.Close()
	}
	if cs.limiter != nil {
		cs.limiter.Stop()
	}
}
