// Package storage defines the durable sinks fed by the fanout consumers.
package storage

import (
	"context"

	"dexwatch/internal/model"
)

// TxStorage persists classified transactions. Writes are upserts keyed by
// transaction hash, so storing the same transaction twice is harmless.
type TxStorage interface {
	Store(ctx context.Context, tx model.ClassifiedTx) error
	IsStored(ctx context.Context, tx model.Transaction) (bool, error)
	Delete(ctx context.Context, tx model.Transaction) error
}

// BlockStorage persists blocks keyed by block hash.
type BlockStorage interface {
	StoreBlock(ctx context.Context, block model.Block) error
}
