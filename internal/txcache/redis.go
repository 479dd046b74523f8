package txcache

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"dexwatch/internal/model"
)

// RedisConfig describes the redis connection.
type RedisConfig struct {
	URL      string
	DB       int
	Username string
	Password string
	// Insecure skips TLS certificate verification for rediss:// URLs.
	Insecure bool
}

// NewRedisClient opens a client from a redis:// or rediss:// URL. A bare
// host:port is accepted as well. Explicit fields override the URL.
func NewRedisClient(cfg RedisConfig) (*redis.Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("redis url is required")
	}

	var opts *redis.Options
	if strings.Contains(cfg.URL, "://") {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: cfg.URL}
	}

	if cfg.DB != 0 {
		opts.DB = cfg.DB
	}
	if cfg.Username != "" {
		opts.Username = cfg.Username
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if opts.TLSConfig != nil && cfg.Insecure {
		opts.TLSConfig = &tls.Config{
			ServerName:         opts.TLSConfig.ServerName,
			InsecureSkipVerify: true,
		}
	}

	return redis.NewClient(opts), nil
}

// RedisCache stores one key per transaction hash, valued with the unix time it was cached.
type RedisCache struct {
	client     redis.Cmdable
	prefix     string
	expiration time.Duration
	now        func() time.Time
}

func NewRedisCache(client redis.Cmdable, prefix string, expiration time.Duration) *RedisCache {
	if expiration <= 0 {
		expiration = DefaultExpiration
	}
	return &RedisCache{
		client:     client,
		prefix:     prefix,
		expiration: expiration,
		now:        time.Now,
	}
}

func (c *RedisCache) key(tx model.Transaction) string {
	return c.prefix + tx.Hash.Hex()
}

func (c *RedisCache) Cache(ctx context.Context, tx model.Transaction) error {
	if err := c.client.Set(ctx, c.key(tx), c.now().Unix(), c.expiration).Err(); err != nil {
		return fmt.Errorf("cache tx %s: %w", tx.Hash.Hex(), err)
	}
	return nil
}

func (c *RedisCache) IsCached(ctx context.Context, tx model.Transaction) (bool, error) {
	n, err := c.client.Exists(ctx, c.key(tx)).Result()
	if err != nil {
		return false, fmt.Errorf("check tx %s: %w", tx.Hash.Hex(), err)
	}
	return n > 0, nil
}

func (c *RedisCache) Delete(ctx context.Context, tx model.Transaction) error {
	if err := c.client.Del(ctx, c.key(tx)).Err(); err != nil {
		return fmt.Errorf("delete tx %s: %w", tx.Hash.Hex(), err)
	}
	return nil
}
