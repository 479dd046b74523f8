package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"dexwatch/internal/abistore"
	"dexwatch/internal/config"
	"dexwatch/internal/explorer"
	"dexwatch/internal/metrics"
	"dexwatch/internal/pipeline"
	"dexwatch/internal/registry"
	"dexwatch/internal/storage"
	"dexwatch/internal/storage/duckdb"
	"dexwatch/internal/storage/postgres"
	"dexwatch/internal/txcache"
)

// setup loads configuration and builds the logger shared by every command.
func setup(cmd *cobra.Command) (config.Config, *zap.Logger, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return config.Config{}, nil, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newABIStore(cfg config.Config, logger *zap.Logger) *abistore.Store {
	client := explorer.NewClient(cfg.Explorer.URL, cfg.Explorer.APIKey, nil, logger)
	return abistore.New(abistore.NewFileCache(cfg.CachePath), client, abistore.Options{
		TTL:          cfg.CacheTTL,
		FetchTimeout: cfg.FetchTimeout,
		Logger:       logger,
	})
}

func buildRegistry(ctx context.Context, cfg config.Config, logger *zap.Logger) (*registry.Registry, error) {
	if err := cfg.RequireRegistry(); err != nil {
		return nil, err
	}
	reg, err := registry.Build(ctx, newABIStore(cfg, logger), cfg.Dex, logger)
	if err != nil {
		return nil, fmt.Errorf("build registry: %w", err)
	}
	logger.Info("registry ready",
		zap.Int("dex", len(reg.Routers())),
		zap.Int("addresses", len(reg.Addresses())),
	)
	return reg, nil
}

func newPipeline(cfg config.Config, m *metrics.Metrics, logger *zap.Logger) *pipeline.Pipeline {
	policy := pipeline.DefaultPolicy
	policy.MaxRestarts = cfg.MaxRestarts
	if cfg.RestartBackoff > 0 {
		policy.BaseDelay = cfg.RestartBackoff
	}
	return pipeline.New(pipeline.Options{
		Capacity: cfg.ChannelCapacity,
		Policy:   policy,
		Observer: m,
		Logger:   logger,
	})
}

// serveMetrics exposes m in the background when an address is configured.
func serveMetrics(ctx context.Context, cfg config.Config, m *metrics.Metrics, logger *zap.Logger) {
	if cfg.MetricsAddr == "" {
		return
	}
	go func() {
		if err := m.Serve(ctx, cfg.MetricsAddr, logger); err != nil {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
}

type txBlockStorage interface {
	storage.TxStorage
	storage.BlockStorage
}

type consumers struct {
	cache  txcache.TxCache
	store  txBlockStorage
	blocks storage.BlockStorage
	close  []func()
}

func (c *consumers) Close() {
	for i := len(c.close) - 1; i >= 0; i-- {
		c.close[i]()
	}
}

// openConsumers builds the configured cache and storage backends.
func openConsumers(ctx context.Context, cfg config.Config, logger *zap.Logger) (*consumers, error) {
	if err := cfg.RequireBackends(); err != nil {
		return nil, err
	}
	c := &consumers{}

	switch cfg.CacheBackend {
	case config.BackendRedis:
		client, err := txcache.NewRedisClient(txcache.RedisConfig{
			URL:      cfg.Redis.URL,
			DB:       cfg.Redis.DB,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			Insecure: cfg.Redis.Insecure,
		})
		if err != nil {
			return nil, err
		}
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		c.close = append(c.close, func() { _ = client.Close() })
		c.cache = txcache.NewRedisCache(client, cfg.Redis.KeyPrefix, cfg.Redis.Expiration)
	default:
		c.cache = txcache.NewMemoryCache(cfg.Redis.Expiration)
	}

	switch cfg.StorageBackend {
	case config.BackendPostgres:
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.close = append(c.close, store.Close)
		if err := store.Migrate(ctx); err != nil {
			c.Close()
			return nil, err
		}
		c.store = store
	case config.BackendDuckDB:
		store, err := duckdb.Open(ctx, cfg.DuckDBPath)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.close = append(c.close, func() { _ = store.Close() })
		c.store = store
	default:
		c.store = storage.NewMemoryStorage()
	}

	if cfg.StoreBlocks {
		blocks := storage.MultiBlockStorage{c.store}
		if cfg.BlockJournal != "" {
			blocks = append(blocks, storage.NewBlockJournal(cfg.BlockJournal))
		}
		c.blocks = blocks
	}

	logger.Info("consumers ready",
		zap.String("cache_backend", cfg.CacheBackend),
		zap.String("storage_backend", cfg.StorageBackend),
		zap.Bool("store_blocks", cfg.StoreBlocks),
		zap.String("block_journal", cfg.BlockJournal),
	)
	return c, nil
}

// attach wires the consumers onto p.
func (c *consumers) attach(p *pipeline.Pipeline) {
	p.CacheTo(c.cache)
	p.StoreTo(c.store)
	if c.blocks != nil {
		p.StoreBlocks(c.blocks)
	}
}
