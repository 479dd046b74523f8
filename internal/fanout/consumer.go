// Package fanout runs the independent subscribers of the classified and block
// channels, each writing to one sink.
package fanout

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"dexwatch/internal/broadcast"
	"dexwatch/internal/model"
	"dexwatch/internal/storage"
	"dexwatch/internal/txcache"
)

// Observer receives consumer counts.
type Observer interface {
	Written(consumer string)
	WriteFailed(consumer string)
	Lagged(subscriber string, skipped uint64)
}

type nopObserver struct{}

func (nopObserver) Written(string)        {}
func (nopObserver) WriteFailed(string)    {}
func (nopObserver) Lagged(string, uint64) {}

// Consumer drains one subscription into one sink.
type Consumer[T any] struct {
	name     string
	rx       *broadcast.Receiver[T]
	write    func(ctx context.Context, v T) error
	observer Observer
	logger   *zap.Logger
}

// NewCacheConsumer feeds classified transactions into a TxCache.
func NewCacheConsumer(rx *broadcast.Receiver[model.ClassifiedTx], cache txcache.TxCache, observer Observer, logger *zap.Logger) *Consumer[model.ClassifiedTx] {
	return newConsumer("cache", rx, func(ctx context.Context, tx model.ClassifiedTx) error {
		return cache.Cache(ctx, tx.Transaction)
	}, observer, logger)
}

// NewStorageConsumer feeds classified transactions into a TxStorage.
func NewStorageConsumer(rx *broadcast.Receiver[model.ClassifiedTx], store storage.TxStorage, observer Observer, logger *zap.Logger) *Consumer[model.ClassifiedTx] {
	return newConsumer("storage", rx, store.Store, observer, logger)
}

// NewBlockConsumer feeds blocks into a BlockStorage.
func NewBlockConsumer(rx *broadcast.Receiver[model.Block], store storage.BlockStorage, observer Observer, logger *zap.Logger) *Consumer[model.Block] {
	return newConsumer("blocks", rx, store.StoreBlock, observer, logger)
}

func newConsumer[T any](name string, rx *broadcast.Receiver[T], write func(context.Context, T) error, observer Observer, logger *zap.Logger) *Consumer[T] {
	if observer == nil {
		observer = nopObserver{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer[T]{
		name:     name,
		rx:       rx,
		write:    write,
		observer: observer,
		logger:   logger.With(zap.String("consumer", name)),
	}
}

// Name identifies the consumer in logs and metrics.
func (c *Consumer[T]) Name() string {
	return c.name
}

// Run consumes until the channel is closed and drained (nil), ctx is done, or
// a write fails.
func (c *Consumer[T]) Run(ctx context.Context) error {
	for {
		v, err := c.rx.Recv(ctx)
		if err != nil {
			var lagged *broadcast.LaggedError
			switch {
			case errors.As(err, &lagged):
				c.logger.Warn("consumer lagged", zap.Uint64("skipped", lagged.Skipped))
				c.observer.Lagged(c.name, lagged.Skipped)
				continue
			case errors.Is(err, broadcast.ErrClosed):
				return nil
			default:
				return err
			}
		}

		if err := c.write(ctx, v); err != nil {
			c.observer.WriteFailed(c.name)
			return fmt.Errorf("%s consumer: %w", c.name, err)
		}
		c.observer.Written(c.name)
	}
}
