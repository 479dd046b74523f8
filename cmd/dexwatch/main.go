package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "dexwatch",
		Short:        "Mempool and block watcher for DEX contracts",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Watch the node, classify transactions and feed the consumers",
		RunE:  runPipeline,
	}
	addNodeFlags(runCmd.Flags())
	addPipelineFlags(runCmd.Flags())
	addConsumerFlags(runCmd.Flags())
	root.AddCommand(runCmd)

	relayCmd := &cobra.Command{
		Use:   "relay",
		Short: "Watch the node and forward both feeds to NATS",
		RunE:  runRelay,
	}
	addNodeFlags(relayCmd.Flags())
	addPipelineFlags(relayCmd.Flags())
	addNATSFlags(relayCmd.Flags())
	root.AddCommand(relayCmd)

	processCmd := &cobra.Command{
		Use:   "process",
		Short: "Classify feeds received from NATS and feed the consumers",
		RunE:  runProcess,
	}
	addPipelineFlags(processCmd.Flags())
	addNATSFlags(processCmd.Flags())
	addConsumerFlags(processCmd.Flags())
	root.AddCommand(processCmd)

	resolveCmd := &cobra.Command{
		Use:   "resolve <address>...",
		Short: "Resolve contract interfaces through the ABI cache",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runResolve,
	}
	addExplorerFlags(resolveCmd.Flags())
	root.AddCommand(resolveCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addNodeFlags(flags *pflag.FlagSet) {
	flags.String("node-ws", "", "node websocket URL")
	flags.Duration("connect-timeout", 10*time.Second, "node connect timeout")
}

func addPipelineFlags(flags *pflag.FlagSet) {
	flags.Int("channel-capacity", 100, "retained messages per channel")
	flags.String("metrics-addr", "", "prometheus listen address (empty disables)")
	flags.Int("max-restarts", 5, "restarts per task before it is given up")
	flags.Duration("restart-backoff", time.Second, "initial restart backoff")
}

func addExplorerFlags(flags *pflag.FlagSet) {
	flags.String("explorer-url", "", "etherscan-compatible API URL")
	flags.String("explorer-api-key", "", "explorer API key")
	flags.String("cache-path", "./data/abi", "ABI cache directory")
	flags.Duration("cache-ttl", time.Hour, "ABI cache freshness")
	flags.Duration("fetch-timeout", 10*time.Second, "ABI fetch timeout")
}

func addConsumerFlags(flags *pflag.FlagSet) {
	addExplorerFlags(flags)
	flags.String("cache-backend", "memory", "transaction cache backend (memory, redis)")
	flags.String("storage-backend", "memory", "transaction storage backend (memory, postgres, duckdb)")
	flags.String("redis-url", "", "redis URL")
	flags.String("pg-dsn", "", "Postgres DSN")
	flags.String("duckdb-path", "./data/dexwatch.duckdb", "DuckDB database path")
	flags.Bool("store-blocks", false, "persist blocks from the block feed")
	flags.String("block-journal", "", "optional JSONL block journal path")
}

func addNATSFlags(flags *pflag.FlagSet) {
	flags.String("nats-url", "", "NATS URL")
	flags.String("nats-prefix", "eth", "NATS subject prefix")
	flags.String("nats-queue", "", "NATS queue group")
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
