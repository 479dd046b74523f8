package config

import "fmt"

// RequireNode checks the settings needed to talk to the chain node.
func (c Config) RequireNode() error {
	if c.NodeWS == "" {
		return fmt.Errorf("node-ws: %w", ErrMissing)
	}
	return nil
}

// RequireRegistry checks the settings needed to build the contract registry.
func (c Config) RequireRegistry() error {
	if len(c.Dex) == 0 {
		return fmt.Errorf("dex: %w", ErrMissing)
	}
	if c.CachePath == "" {
		return fmt.Errorf("cache-path: %w", ErrMissing)
	}
	return nil
}

// RequireNATS checks the relay settings.
func (c Config) RequireNATS() error {
	if c.NATS.URL == "" {
		return fmt.Errorf("nats.url: %w", ErrMissing)
	}
	return nil
}

// RequireBackends checks that the selected cache and storage backends are
// known and have their connection settings.
func (c Config) RequireBackends() error {
	switch c.CacheBackend {
	case BackendMemory:
	case BackendRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("redis.url: %w", ErrMissing)
		}
	default:
		return fmt.Errorf("unknown cache-backend %q", c.CacheBackend)
	}

	switch c.StorageBackend {
	case BackendMemory:
	case BackendPostgres:
		if c.PGDSN == "" {
			return fmt.Errorf("pg-dsn: %w", ErrMissing)
		}
	case BackendDuckDB:
		if c.DuckDBPath == "" {
			return fmt.Errorf("duckdb-path: %w", ErrMissing)
		}
	default:
		return fmt.Errorf("unknown storage-backend %q", c.StorageBackend)
	}
	return nil
}
