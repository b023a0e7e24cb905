package download

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/admi-n/txguard/src/internal/evm"
)

// MySQLStore 读写 contracts 表中的字节码。
// 表结构沿用下载器的 contracts 表，一张表只对应一条链。
type MySQLStore struct {
	db    *sql.DB
	chain string
}

// ContractInfo contracts 表中的一行
type ContractInfo struct {
	Address      string
	Contract     string
	Balance      string
	IsOpenSource int
	CreateTime   time.Time
	CreateBlock  uint64
	TxLast       time.Time
	IsDecompiled int
	DedCode      string
}

func NewMySQLStore(db *sql.DB, chain string) *MySQLStore {
	return &MySQLStore{db: db, chain: chain}
}

// FetchCode 只返回保存为字节码的记录；已开源合约保存的是源码，视为未命中
func (s *MySQLStore) FetchCode(ctx context.Context, chain string, addr common.Address) ([]byte, error) {
	if chain != s.chain {
		return nil, ErrNotFound
	}
	var (
		contract     string
		isOpenSource int
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT contract, isopensource FROM contracts WHERE address = ?", addr.Hex()).
		Scan(&contract, &isOpenSource)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询合约失败 %s: %w", addr.Hex(), err)
	}
	return decodeStored(contract, isOpenSource)
}

func decodeStored(contract string, isOpenSource int) ([]byte, error) {
	if isOpenSource != 0 {
		return nil, ErrNotFound
	}
	code, err := evm.ParseHex(contract)
	if err != nil {
		return nil, fmt.Errorf("contracts 表中的字节码无效: %w", err)
	}
	if len(code) == 0 {
		return nil, ErrNotFound
	}
	return code, nil
}

// SaveCode 保存合约字节码
func (s *MySQLStore) SaveCode(ctx context.Context, chain string, addr common.Address, code []byte) error {
	if chain != s.chain {
		return nil
	}
	now := time.Now()
	return s.SaveContract(ctx, &ContractInfo{
		Address:    addr.Hex(),
		Contract:   fmt.Sprintf("0x%x", code),
		Balance:    "0",
		CreateTime: now,
		TxLast:     now,
	})
}

// SaveContract 保存合约信息到数据库
func (s *MySQLStore) SaveContract(ctx context.Context, info *ContractInfo) error {
	query := `
	INSERT INTO contracts (address, contract, balance, isopensource, createtime, createblock, txlast, isdecompiled, dedcode)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON DUPLICATE KEY UPDATE
		contract = VALUES(contract),
		isopensource = VALUES(isopensource),
		txlast = VALUES(txlast)
	`
	_, err := s.db.ExecContext(ctx, query,
		info.Address,
		info.Contract,
		info.Balance,
		info.IsOpenSource,
		info.CreateTime,
		int64(info.CreateBlock),
		info.TxLast,
		info.IsDecompiled,
		info.DedCode,
	)
	if err != nil {
		return fmt.Errorf("保存合约失败 %s: %w", info.Address, err)
	}
	return nil
}

// Addresses 读取保存为字节码的合约地址，limit<=0 表示不限制
func (s *MySQLStore) Addresses(ctx context.Context, limit int) ([]common.Address, error) {
	query := "SELECT address FROM contracts WHERE isopensource = 0 ORDER BY createblock"
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("查询合约列表失败: %w", err)
	}
	defer rows.Close()

	var out []common.Address
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, err
		}
		if !common.IsHexAddress(addr) {
			continue
		}
		out = append(out, common.HexToAddress(addr))
	}
	return out, rows.Err()
}
