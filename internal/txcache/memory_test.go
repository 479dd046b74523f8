package txcache

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"dexwatch/internal/model"
)

func TestMemoryCacheExpiry(t *testing.T) {
	cache := NewMemoryCacheWithCleanup(50*time.Millisecond, time.Hour)
	ctx := context.Background()
	tx := model.Transaction{Hash: common.HexToHash("0x01")}

	if err := cache.Cache(ctx, tx); err != nil {
		t.Fatalf("cache: %v", err)
	}
	if err := cache.Cache(ctx, tx); err != nil {
		t.Fatalf("cache twice: %v", err)
	}
	if ok, _ := cache.IsCached(ctx, tx); !ok {
		t.Fatalf("expected cached")
	}

	time.Sleep(100 * time.Millisecond)
	if ok, _ := cache.IsCached(ctx, tx); ok {
		t.Fatalf("expected expiry")
	}

	if err := cache.Cache(ctx, tx); err != nil {
		t.Fatalf("cache: %v", err)
	}
	if err := cache.Delete(ctx, tx); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if ok, _ := cache.IsCached(ctx, tx); ok {
		t.Fatalf("expected deleted")
	}
}

func TestMemoryCacheEvictsExpiredEntries(t *testing.T) {
	cache := NewMemoryCacheWithCleanup(time.Millisecond, 5*time.Millisecond)
	ctx := context.Background()

	for i := 0; i < 1000; i++ {
		tx := model.Transaction{Hash: common.BigToHash(big.NewInt(int64(i + 1)))}
		if err := cache.Cache(ctx, tx); err != nil {
			t.Fatalf("cache: %v", err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for cache.ItemCount() > 0 {
		if time.Now().After(deadline) {
			t.Fatalf("expired entries still held: %d", cache.ItemCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}
