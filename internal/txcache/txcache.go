// Package txcache records recently seen transactions by hash with an expiry.
package txcache

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"dexwatch/internal/model"
)

// DefaultExpiration is how long a cached transaction is remembered.
const DefaultExpiration = 24 * time.Hour

// TxCache is the transaction cache capability. Cache is idempotent.
type TxCache interface {
	Cache(ctx context.Context, tx model.Transaction) error
	IsCached(ctx context.Context, tx model.Transaction) (bool, error)
	Delete(ctx context.Context, tx model.Transaction) error
}

// MemoryCache is an in-process TxCache. Expired entries are evicted by a
// background janitor every cleanup interval.
type MemoryCache struct {
	items *cache.Cache
}

// NewMemoryCache builds a MemoryCache whose janitor runs at the expiration
// interval, capped at one minute.
func NewMemoryCache(expiration time.Duration) *MemoryCache {
	if expiration <= 0 {
		expiration = DefaultExpiration
	}
	cleanup := expiration
	if cleanup > time.Minute {
		cleanup = time.Minute
	}
	return NewMemoryCacheWithCleanup(expiration, cleanup)
}

func NewMemoryCacheWithCleanup(expiration, cleanup time.Duration) *MemoryCache {
	if expiration <= 0 {
		expiration = DefaultExpiration
	}
	return &MemoryCache{items: cache.New(expiration, cleanup)}
}

func (c *MemoryCache) Cache(_ context.Context, tx model.Transaction) error {
	c.items.SetDefault(key(tx), time.Now().Unix())
	return nil
}

func (c *MemoryCache) IsCached(_ context.Context, tx model.Transaction) (bool, error) {
	_, found := c.items.Get(key(tx))
	return found, nil
}

func (c *MemoryCache) Delete(_ context.Context, tx model.Transaction) error {
	c.items.Delete(key(tx))
	return nil
}

// ItemCount returns the number of held entries, including expired ones the
// janitor has not evicted yet.
func (c *MemoryCache) ItemCount() int {
	return c.items.ItemCount()
}

func key(tx model.Transaction) string {
	return tx.Hash.Hex()
}
