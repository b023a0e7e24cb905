package handler

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
)

// AddressLister 能列出已入库合约地址的存储，例如 MySQL contracts 表
type AddressLister interface {
	Addresses(ctx context.Context, limit int) ([]common.Address, error)
}

// LoadAddressesFromFile 从文件读取地址列表。
// 每行取第一个字段（逗号、空格或制表符分隔），忽略空行和 # 或 // 开头的注释，重复地址只保留一次。
func LoadAddressesFromFile(path string) ([]common.Address, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("文件路径为空")
	}
	bs, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	seen := make(map[common.Address]bool)
	var addrs []common.Address
	for _, l := range strings.Split(string(bs), "\n") {
		line := strings.TrimSpace(l)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "//") {
			continue
		}
		fields := strings.FieldsFunc(line, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' })
		if len(fields) == 0 {
			continue
		}
		if !common.IsHexAddress(fields[0]) {
			log.Warn("⚠️  跳过无效地址", "line", line)
			continue
		}
		addr := common.HexToAddress(fields[0])
		if seen[addr] {
			continue
		}
		seen[addr] = true
		addrs = append(addrs, addr)
	}
	return addrs, nil
}

// LoadAddressesFromDB 读取数据库中的合约地址，limit <= 0 时默认 1000
func LoadAddressesFromDB(ctx context.Context, db AddressLister, limit int) ([]common.Address, error) {
	if limit <= 0 {
		limit = 1000
	}
	addrs, err := db.Addresses(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("从数据库获取地址失败: %w", err)
	}
	return addrs, nil
}
