package download

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS bytecodes (
	chain      TEXT        NOT NULL,
	address    TEXT        NOT NULL,
	code       BYTEA       NOT NULL,
	fetched_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (chain, address)
)`

// pgConn 是 *pgxpool.Pool 中用到的部分
type pgConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGStore 把字节码缓存在 Postgres 的 bytecodes 表中，按链和地址区分
type PGStore struct {
	conn pgConn
}

func NewPGStore(conn pgConn) *PGStore {
	return &PGStore{conn: conn}
}

// EnsureSchema 创建 bytecodes 表
func (s *PGStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.conn.Exec(ctx, pgSchema); err != nil {
		return fmt.Errorf("创建 bytecodes 表失败: %w", err)
	}
	return nil
}

func (s *PGStore) FetchCode(ctx context.Context, chain string, addr common.Address) ([]byte, error) {
	var code []byte
	err := s.conn.QueryRow(ctx,
		"SELECT code FROM bytecodes WHERE chain = $1 AND address = $2",
		chain, normalizeAddress(addr)).Scan(&code)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询字节码失败 %s: %w", addr.Hex(), err)
	}
	if len(code) == 0 {
		return nil, ErrNotFound
	}
	return code, nil
}

func (s *PGStore) SaveCode(ctx context.Context, chain string, addr common.Address, code []byte) error {
	_, err := s.conn.Exec(ctx, `
		INSERT INTO bytecodes (chain, address, code) VALUES ($1, $2, $3)
		ON CONFLICT (chain, address) DO UPDATE SET code = EXCLUDED.code, fetched_at = now()`,
		chain, normalizeAddress(addr), code)
	if err != nil {
		return fmt.Errorf("保存字节码失败 %s: %w", addr.Hex(), err)
	}
	return nil
}
