// Package duckdb writes classified transactions and blocks to a DuckDB file.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/marcboeker/go-duckdb"

	"dexwatch/internal/model"
	"dexwatch/internal/storage"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS transactions (
		hash VARCHAR PRIMARY KEY,
		from_address VARCHAR NOT NULL,
		to_address VARCHAR,
		input BLOB,
		nonce BIGINT NOT NULL,
		value VARCHAR,
		gas BIGINT NOT NULL,
		gas_price VARCHAR,
		max_priority_fee_per_gas VARCHAR,
		max_fee_per_gas VARCHAR,
		tx_type SMALLINT NOT NULL,
		chain_id VARCHAR,
		role VARCHAR NOT NULL,
		dex VARCHAR,
		dex_version INTEGER,
		block_number BIGINT,
		stored_at TIMESTAMP DEFAULT current_timestamp
	)`,
	`CREATE TABLE IF NOT EXISTS blocks (
		hash VARCHAR PRIMARY KEY,
		number BIGINT NOT NULL,
		parent_hash VARCHAR NOT NULL,
		block_timestamp BIGINT NOT NULL,
		miner VARCHAR NOT NULL,
		gas_limit BIGINT NOT NULL,
		gas_used BIGINT NOT NULL,
		base_fee VARCHAR,
		tx_count INTEGER NOT NULL
	)`,
}

// Store is a column-store sink. An empty path opens an in-memory database.
type Store struct {
	db *sql.DB
}

func Open(ctx context.Context, path string) (*Store, error) {
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create duckdb dir: %w", err)
		}
	}
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate duckdb: %w", err)
		}
	}
	return nil
}

func (s *Store) Store(ctx context.Context, tx model.ClassifiedTx) error {
	row := storage.NewTxRow(tx)
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO transactions (
			hash, from_address, to_address, input, nonce, value, gas, gas_price,
			max_priority_fee_per_gas, max_fee_per_gas, tx_type, chain_id, role, dex, dex_version, block_number
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
	`,
		row.Hash, row.From, nullString(row.To), row.Input, row.Nonce, nullString(row.Value), row.Gas,
		nullString(row.GasPrice), nullString(row.GasTipCap), nullString(row.GasFeeCap), row.Type,
		nullString(row.ChainID), row.Role, nullString(row.Dex), nullInt32(row.DexVersion), nullInt64(row.BlockNumber),
	)
	if err != nil {
		return fmt.Errorf("store tx %s: %w", row.Hash, err)
	}
	return nil
}

func (s *Store) IsStored(ctx context.Context, tx model.Transaction) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM transactions WHERE hash = ?`, tx.Hash.Hex()).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check tx %s: %w", tx.Hash.Hex(), err)
	}
	return n > 0, nil
}

func (s *Store) Delete(ctx context.Context, tx model.Transaction) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM transactions WHERE hash = ?`, tx.Hash.Hex()); err != nil {
		return fmt.Errorf("delete tx %s: %w", tx.Hash.Hex(), err)
	}
	return nil
}

func (s *Store) StoreBlock(ctx context.Context, block model.Block) error {
	row := storage.NewBlockRow(block)
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO blocks (
			hash, number, parent_hash, block_timestamp, miner, gas_limit, gas_used, base_fee, tx_count
		) VALUES (?,?,?,?,?,?,?,?,?)
	`,
		row.Hash, row.Number, row.ParentHash, row.Timestamp, row.Miner,
		row.GasLimit, row.GasUsed, nullString(row.BaseFee), row.TxCount,
	)
	if err != nil {
		return fmt.Errorf("store block %d: %w", block.Number, err)
	}
	return nil
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func nullInt32(v *int32) sql.NullInt32 {
	if v == nil {
		return sql.NullInt32{}
	}
	return sql.NullInt32{Int32: *v, Valid: true}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
