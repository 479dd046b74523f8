package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dexwatch/internal/model"
	"dexwatch/internal/storage"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS transactions (
		hash TEXT PRIMARY KEY,
		from_address TEXT NOT NULL,
		to_address TEXT,
		input BYTEA,
		nonce BIGINT NOT NULL,
		value NUMERIC,
		gas BIGINT NOT NULL,
		gas_price NUMERIC,
		max_priority_fee_per_gas NUMERIC,
		max_fee_per_gas NUMERIC,
		tx_type SMALLINT NOT NULL,
		chain_id NUMERIC,
		role TEXT NOT NULL,
		dex TEXT,
		dex_version INTEGER,
		block_number BIGINT,
		first_seen_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS transactions_to_address_idx ON transactions (to_address)`,
	`CREATE TABLE IF NOT EXISTS blocks (
		hash TEXT PRIMARY KEY,
		number BIGINT NOT NULL,
		parent_hash TEXT NOT NULL,
		block_timestamp BIGINT NOT NULL,
		miner TEXT NOT NULL,
		gas_limit BIGINT NOT NULL,
		gas_used BIGINT NOT NULL,
		base_fee NUMERIC,
		tx_count INTEGER NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS blocks_number_idx ON blocks (number)`,
	`CREATE TABLE IF NOT EXISTS block_transactions (
		block_hash TEXT NOT NULL,
		tx_index INTEGER NOT NULL,
		tx_hash TEXT NOT NULL,
		PRIMARY KEY (block_hash, tx_index)
	)`,
}

// Store provides Postgres persistence for classified transactions and blocks.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

const upsertTx = `
	INSERT INTO transactions (
		hash, from_address, to_address, input, nonce, value, gas, gas_price,
		max_priority_fee_per_gas, max_fee_per_gas, tx_type, chain_id, role, dex, dex_version, block_number
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	ON CONFLICT (hash)
	DO UPDATE SET
		role = EXCLUDED.role,
		dex = EXCLUDED.dex,
		dex_version = EXCLUDED.dex_version,
		block_number = COALESCE(EXCLUDED.block_number, transactions.block_number),
		updated_at = now()
`

func txArgs(row storage.TxRow) []any {
	return []any{
		row.Hash, row.From, row.To, row.Input, row.Nonce, row.Value, row.Gas, row.GasPrice,
		row.GasTipCap, row.GasFeeCap, row.Type, row.ChainID, row.Role, row.Dex, row.DexVersion, row.BlockNumber,
	}
}

// Store upserts a classified transaction.
func (s *Store) Store(ctx context.Context, tx model.ClassifiedTx) error {
	if _, err := s.pool.Exec(ctx, upsertTx, txArgs(storage.NewTxRow(tx))...); err != nil {
		return fmt.Errorf("store tx %s: %w", tx.Transaction.Hash.Hex(), err)
	}
	return nil
}

func (s *Store) IsStored(ctx context.Context, tx model.Transaction) (bool, error) {
	var exists bool
	row := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM transactions WHERE hash=$1)`, tx.Hash.Hex())
	if err := row.Scan(&exists); err != nil {
		return false, fmt.Errorf("check tx %s: %w", tx.Hash.Hex(), err)
	}
	return exists, nil
}

func (s *Store) Delete(ctx context.Context, tx model.Transaction) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM transactions WHERE hash=$1`, tx.Hash.Hex()); err != nil {
		return fmt.Errorf("delete tx %s: %w", tx.Hash.Hex(), err)
	}
	return nil
}

// StoreBlock upserts the block header and its transaction index in one batch.
func (s *Store) StoreBlock(ctx context.Context, block model.Block) error {
	batch := blockBatch(block)
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("store block %d: %w", block.Number, err)
		}
	}
	return nil
}

func blockBatch(block model.Block) *pgx.Batch {
	row := storage.NewBlockRow(block)
	batch := &pgx.Batch{}
	batch.Queue(`
		INSERT INTO blocks (
			hash, number, parent_hash, block_timestamp, miner, gas_limit, gas_used, base_fee, tx_count
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (hash) DO NOTHING
	`,
		row.Hash, row.Number, row.ParentHash, row.Timestamp, row.Miner,
		row.GasLimit, row.GasUsed, row.BaseFee, row.TxCount,
	)
	for i, hash := range block.TransactionHashes() {
		batch.Queue(`
			INSERT INTO block_transactions (block_hash, tx_index, tx_hash)
			VALUES ($1, $2, $3)
			ON CONFLICT (block_hash, tx_index) DO NOTHING
		`, row.Hash, int32(i), hash.Hex())
	}
	return batch
}
