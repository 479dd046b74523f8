package duckdb

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dexwatch/internal/model"
)

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, "")
	require.NoError(t, err)
	defer store.Close()

	to := common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	tx := model.ClassifiedTx{
		Transaction: model.Transaction{Hash: common.HexToHash("0x01"), To: &to, Input: []byte{0x01}},
		Role:        model.RoleRouter,
		Dex:         "testdex",
		DexVersion:  2,
	}

	require.NoError(t, store.Store(ctx, tx))
	require.NoError(t, store.Store(ctx, tx))

	var count int
	require.NoError(t, store.db.QueryRowContext(ctx, `SELECT count(*) FROM transactions`).Scan(&count))
	assert.Equal(t, 1, count)

	stored, err := store.IsStored(ctx, tx.Transaction)
	require.NoError(t, err)
	assert.True(t, stored)

	require.NoError(t, store.Delete(ctx, tx.Transaction))
	stored, err = store.IsStored(ctx, tx.Transaction)
	require.NoError(t, err)
	assert.False(t, stored)
}

func TestStoreBlockIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, "")
	require.NoError(t, err)
	defer store.Close()

	block := model.Block{Number: 10, Hash: common.HexToHash("0x0b")}
	require.NoError(t, store.StoreBlock(ctx, block))
	require.NoError(t, store.StoreBlock(ctx, block))

	var number int64
	require.NoError(t, store.db.QueryRowContext(ctx, `SELECT number FROM blocks WHERE hash = ?`, block.Hash.Hex()).Scan(&number))
	assert.Equal(t, int64(10), number)
}
