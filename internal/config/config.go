package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"dexwatch/internal/registry"
)

const envPrefix = "DEXWATCH"

const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendDuckDB   = "duckdb"
)

var ErrMissing = errors.New("missing required setting")

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	NodeWS          string
	Explorer        ExplorerConfig
	CachePath       string
	CacheTTL        time.Duration
	FetchTimeout    time.Duration
	ConnectTimeout  time.Duration
	ChannelCapacity int
	CacheBackend    string
	StorageBackend  string
	Redis           RedisConfig
	PGDSN           string
	DuckDBPath      string
	BlockJournal    string
	NATS            NATSConfig
	StoreBlocks     bool
	MetricsAddr     string
	MaxRestarts     int
	RestartBackoff  time.Duration
	LogLevel        string
	Dex             []registry.Definition
}

type ExplorerConfig struct {
	URL    string
	APIKey string
}

type RedisConfig struct {
	URL        string
	DB         int
	Username   string
	Password   string
	Insecure   bool
	Expiration time.Duration
	KeyPrefix  string
}

type NATSConfig struct {
	URL           string
	SubjectPrefix string
	QueueGroup    string
}

// flagKeys maps flag names to the nested keys they override.
var flagKeys = map[string]string{
	"explorer-url":     "explorer.url",
	"explorer-api-key": "explorer.api-key",
	"redis-url":        "redis.url",
	"nats-url":         "nats.url",
	"nats-prefix":      "nats.subject-prefix",
	"nats-queue":       "nats.queue-group",
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	v.SetDefault("node-ws", "")
	v.SetDefault("explorer.url", "https://api.etherscan.io/api")
	v.SetDefault("explorer.api-key", "")
	v.SetDefault("cache-path", "./data/abi")
	v.SetDefault("cache-ttl", time.Hour)
	v.SetDefault("fetch-timeout", 10*time.Second)
	v.SetDefault("connect-timeout", 10*time.Second)
	v.SetDefault("channel-capacity", 100)
	v.SetDefault("cache-backend", BackendMemory)
	v.SetDefault("storage-backend", BackendMemory)
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.username", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.insecure", false)
	v.SetDefault("redis.expiration", 24*time.Hour)
	v.SetDefault("redis.key-prefix", "")
	v.SetDefault("pg-dsn", "")
	v.SetDefault("duckdb-path", "./data/dexwatch.duckdb")
	v.SetDefault("block-journal", "")
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject-prefix", "eth")
	v.SetDefault("nats.queue-group", "")
	v.SetDefault("store-blocks", false)
	v.SetDefault("metrics-addr", "")
	v.SetDefault("max-restarts", 5)
	v.SetDefault("restart-backoff", time.Second)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return Config{}, err
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var dex []registry.Definition
	if err := v.UnmarshalKey("dex", &dex); err != nil {
		return Config{}, fmt.Errorf("decode dex definitions: %w", err)
	}

	cfg := Config{
		NodeWS: v.GetString("node-ws"),
		Explorer: ExplorerConfig{
			URL:    v.GetString("explorer.url"),
			APIKey: v.GetString("explorer.api-key"),
		},
		CachePath:       v.GetString("cache-path"),
		CacheTTL:        v.GetDuration("cache-ttl"),
		FetchTimeout:    v.GetDuration("fetch-timeout"),
		ConnectTimeout:  v.GetDuration("connect-timeout"),
		ChannelCapacity: v.GetInt("channel-capacity"),
		CacheBackend:    strings.ToLower(v.GetString("cache-backend")),
		StorageBackend:  strings.ToLower(v.GetString("storage-backend")),
		Redis: RedisConfig{
			URL:        v.GetString("redis.url"),
			DB:         v.GetInt("redis.db"),
			Username:   v.GetString("redis.username"),
			Password:   v.GetString("redis.password"),
			Insecure:   v.GetBool("redis.insecure"),
			Expiration: v.GetDuration("redis.expiration"),
			KeyPrefix:  v.GetString("redis.key-prefix"),
		},
		PGDSN:        v.GetString("pg-dsn"),
		DuckDBPath:   v.GetString("duckdb-path"),
		BlockJournal: v.GetString("block-journal"),
		NATS: NATSConfig{
			URL:           v.GetString("nats.url"),
			SubjectPrefix: v.GetString("nats.subject-prefix"),
			QueueGroup:    v.GetString("nats.queue-group"),
		},
		StoreBlocks:    v.GetBool("store-blocks"),
		MetricsAddr:    v.GetString("metrics-addr"),
		MaxRestarts:    v.GetInt("max-restarts"),
		RestartBackoff: v.GetDuration("restart-backoff"),
		LogLevel:       v.GetString("log-level"),
		Dex:            dex,
	}

	return cfg, nil
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var bindErr error
	flags.VisitAll(func(f *pflag.Flag) {
		if bindErr != nil {
			return
		}
		key := f.Name
		if nested, ok := flagKeys[f.Name]; ok {
			key = nested
		}
		if err := v.BindPFlag(key, f); err != nil {
			bindErr = fmt.Errorf("bind flag %s: %w", f.Name, err)
		}
	})
	return bindErr
}
