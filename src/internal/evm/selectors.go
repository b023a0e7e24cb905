package evm

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
)

// Selector 计算函数签名的 4 字节选择器
func Selector(signature string) [4]byte {
	var sel [4]byte
	copy(sel[:], crypto.Keccak256([]byte(signature))[:4])
	return sel
}

// SelectorFromUint 把 PUSH4 常量转为选择器
func SelectorFromUint(v uint64) [4]byte {
	var sel [4]byte
	binary.BigEndian.PutUint32(sel[:], uint32(v))
	return sel
}

// FormatSelector 以 0x 前缀的 8 位十六进制输出
func FormatSelector(sel [4]byte) string {
	return fmt.Sprintf("0x%x", sel[:])
}

// 常见函数签名
var knownSignatures = []string{
	// ERC20
	"transfer(address,uint256)",
	"approve(address,uint256)",
	"transferFrom(address,address,uint256)",
	"balanceOf(address)",
	"totalSupply()",
	"decimals()",
	"name()",
	"symbol()",
	"allowance(address,address)",
	// ERC721
	"safeTransferFrom(address,address,uint256)",
	"safeTransferFrom(address,address,uint256,bytes)",
	"ownerOf(uint256)",
	"getApproved(uint256)",
	"tokenURI(uint256)",
	// Uniswap V2
	"swapExactETHForTokens(uint256,address[],address,uint256)",
	"swapExactTokensForTokens(uint256,uint256,address[],address,uint256)",
	// Ownable / 管理
	"owner()",
	"transferOwnership(address)",
	"renounceOwnership()",
	"withdraw()",
	"withdraw(uint256)",
	"kill()",
	"destroy()",
	// 代理合约
	"upgradeTo(address)",
	"upgradeToAndCall(address,bytes)",
	"implementation()",
	"admin()",
	"changeAdmin(address)",
	// Gnosis Safe
	"execTransaction(address,uint256,bytes,uint8,uint256,uint256,uint256,address,address,bytes)",
	"multicall(bytes[])",
}

var knownSelectors = func() map[[4]byte]string {
	m := make(map[[4]byte]string, len(knownSignatures))
	for _, sig := range knownSignatures {
		m[Selector(sig)] = sig
	}
	return m
}()

// SelectorName 返回已知选择器对应的函数签名
func SelectorName(sel [4]byte) (string, bool) {
	name, ok := knownSelectors[sel]
	return name, ok
}
