package internal

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// 支持的链
var Chains = []string{"eth", "bsc", "arb"}

var txHashPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// Target 一个待分析的目标：合约地址，或需要先解析的交易哈希
type Target struct {
	Chain   string
	Address common.Address
	TxHash  common.Hash
	IsTx    bool
}

func (t Target) String() string {
	if t.IsTx {
		return fmt.Sprintf("%s:tx:%s", t.Chain, t.TxHash.Hex())
	}
	return fmt.Sprintf("%s:%s", t.Chain, t.Address.Hex())
}

// Key 用于去重，地址不区分大小写
func (t Target) Key() string {
	return strings.ToLower(t.String())
}

// ValidateChain 检查链名
func ValidateChain(chain string) error {
	for _, c := range Chains {
		if c == chain {
			return nil
		}
	}
	return fmt.Errorf("unsupported chain: %s (must be one of %s)", chain, strings.Join(Chains, ", "))
}

// ValidTxHash 判断是否为 0x 开头的 64 位十六进制交易哈希
func ValidTxHash(s string) bool {
	return txHashPattern.MatchString(s)
}

// ParseTarget 解析地址或交易哈希
func ParseTarget(chain, s string) (Target, error) {
	s = strings.TrimSpace(s)
	if err := ValidateChain(chain); err != nil {
		return Target{}, err
	}
	switch {
	case ValidTxHash(s):
		return Target{Chain: chain, TxHash: common.HexToHash(s), IsTx: true}, nil
	case common.IsHexAddress(s):
		return Target{Chain: chain, Address: common.HexToAddress(s)}, nil
	}
	return Target{}, fmt.Errorf("invalid address or transaction hash: %q", s)
}
