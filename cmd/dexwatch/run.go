package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"dexwatch/internal/chain"
	"dexwatch/internal/metrics"
	"dexwatch/internal/model"
	"dexwatch/internal/relay"
	"dexwatch/internal/watcher"
)

func runPipeline(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if err := cfg.RequireNode(); err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	reg, err := buildRegistry(ctx, cfg, logger)
	if err != nil {
		return err
	}

	sinks, err := openConsumers(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer sinks.Close()

	chainClient, err := chain.NewClient(ctx, cfg.NodeWS, cfg.ConnectTimeout)
	if err != nil {
		return fmt.Errorf("connect node: %w", err)
	}
	defer chainClient.Close()

	chainID, err := chainClient.GetChainID(ctx)
	if err != nil {
		return fmt.Errorf("get chain id: %w", err)
	}

	m := metrics.New()
	serveMetrics(ctx, cfg, m, logger)

	p := newPipeline(cfg, m, logger)
	p.WatchChain(chainClient, watcher.Options{ConnectTimeout: cfg.ConnectTimeout})
	p.Classify(reg)
	sinks.attach(p)

	logger.Info("dexwatch start",
		zap.String("node_ws", cfg.NodeWS),
		zap.String("chain_id", chainID.String()),
		zap.Int("channel_capacity", p.RawTxs.Capacity()),
	)
	return p.Run(ctx)
}

func runRelay(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if err := cfg.RequireNode(); err != nil {
		return err
	}
	if err := cfg.RequireNATS(); err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	conn, err := relay.Connect(cfg.NATS.URL, "dexwatch-relay", logger)
	if err != nil {
		return err
	}
	defer conn.Drain()

	chainClient, err := chain.NewClient(ctx, cfg.NodeWS, cfg.ConnectTimeout)
	if err != nil {
		return fmt.Errorf("connect node: %w", err)
	}
	defer chainClient.Close()

	chainID, err := chainClient.GetChainID(ctx)
	if err != nil {
		return fmt.Errorf("get chain id: %w", err)
	}

	m := metrics.New()
	serveMetrics(ctx, cfg, m, logger)

	p := newPipeline(cfg, m, logger)
	txs := p.RawTxs.Subscribe()
	blocks := p.Blocks.Subscribe()
	p.WatchChain(chainClient, watcher.Options{ConnectTimeout: cfg.ConnectTimeout})

	txSubject := relay.TxSubject(cfg.NATS.SubjectPrefix)
	blockSubject := relay.BlockSubject(cfg.NATS.SubjectPrefix)
	p.Go("relay."+txSubject, func(ctx context.Context) error {
		return relay.Forward[model.Transaction](ctx, txs, conn, txSubject, logger)
	})
	p.Go("relay."+blockSubject, func(ctx context.Context) error {
		return relay.Forward[model.Block](ctx, blocks, conn, blockSubject, logger)
	})

	logger.Info("relay start",
		zap.String("node_ws", cfg.NodeWS),
		zap.String("chain_id", chainID.String()),
		zap.String("nats_url", cfg.NATS.URL),
		zap.String("tx_subject", txSubject),
		zap.String("block_subject", blockSubject),
	)
	return p.Run(ctx)
}

func runProcess(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if err := cfg.RequireNATS(); err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	reg, err := buildRegistry(ctx, cfg, logger)
	if err != nil {
		return err
	}

	sinks, err := openConsumers(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer sinks.Close()

	conn, err := relay.Connect(cfg.NATS.URL, "dexwatch-process", logger)
	if err != nil {
		return err
	}
	defer conn.Drain()

	m := metrics.New()
	serveMetrics(ctx, cfg, m, logger)

	p := newPipeline(cfg, m, logger)
	txSub := relay.NewSubscriber(relay.TxSubject(cfg.NATS.SubjectPrefix), cfg.NATS.QueueGroup, p.RawTxs, logger)
	blockSub := relay.NewSubscriber(relay.BlockSubject(cfg.NATS.SubjectPrefix), cfg.NATS.QueueGroup, p.Blocks, logger)
	p.Go("relay.txs", func(ctx context.Context) error { return txSub.Run(ctx, conn) }, p.RawTxs)
	p.Go("relay.blocks", func(ctx context.Context) error { return blockSub.Run(ctx, conn) }, p.Blocks)
	p.Classify(reg)
	sinks.attach(p)

	logger.Info("process start",
		zap.String("nats_url", cfg.NATS.URL),
		zap.String("queue_group", cfg.NATS.QueueGroup),
	)
	return p.Run(ctx)
}
