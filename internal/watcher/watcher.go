// Package watcher turns hash-only node subscriptions into a stream of full
// blocks or transactions on a broadcast channel.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"go.uber.org/zap"

	"dexwatch/internal/broadcast"
	"dexwatch/internal/model"
)

var (
	// ErrNoChannel means the watcher was started without an output channel.
	ErrNoChannel = errors.New("watcher has no output channel")
	// ErrSubscriptionEnded means the node closed the subscription.
	ErrSubscriptionEnded = errors.New("node subscription ended")
)

const hashBuffer = 256

// Source is the node surface the watchers need.
type Source interface {
	SubscribeBlockHashes(ctx context.Context, ch chan<- common.Hash) (event.Subscription, error)
	SubscribePendingTransactions(ctx context.Context, ch chan<- common.Hash) (event.Subscription, error)
	BlockByHash(ctx context.Context, hash common.Hash) (model.Block, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (model.Transaction, error)
}

type subscribeFunc func(ctx context.Context, ch chan<- common.Hash) (event.Subscription, error)

type fetchFunc[T any] func(ctx context.Context, hash common.Hash) (T, error)

// Observer is notified about watcher progress. Any method may be a no-op.
type Observer interface {
	Published(feed string)
	Missing(feed string)
}

type nopObserver struct{}

func (nopObserver) Published(string) {}
func (nopObserver) Missing(string)   {}

// Options configure a watcher.
type Options struct {
	ConnectTimeout time.Duration
	Observer       Observer
	Logger         *zap.Logger
}

// Watcher follows one feed.
type Watcher[T any] struct {
	feed      string
	subscribe subscribeFunc
	fetch     fetchFunc[T]
	out       *broadcast.Channel[T]
	opts      Options
	logger    *zap.Logger
}

// NewBlockWatcher follows new heads and publishes full blocks.
func NewBlockWatcher(src Source, out *broadcast.Channel[model.Block], opts Options) *Watcher[model.Block] {
	return newWatcher("blocks", src.SubscribeBlockHashes, src.BlockByHash, out, opts)
}

// NewPendingTxWatcher follows the node's pending pool and publishes full transactions.
func NewPendingTxWatcher(src Source, out *broadcast.Channel[model.Transaction], opts Options) *Watcher[model.Transaction] {
	return newWatcher("pending_txs", src.SubscribePendingTransactions, src.TransactionByHash, out, opts)
}

func newWatcher[T any](feed string, subscribe subscribeFunc, fetch fetchFunc[T], out *broadcast.Channel[T], opts Options) *Watcher[T] {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	return &Watcher[T]{
		feed:      feed,
		subscribe: subscribe,
		fetch:     fetch,
		out:       out,
		opts:      opts,
		logger:    opts.Logger.With(zap.String("feed", feed)),
	}
}

// Feed names the followed feed.
func (w *Watcher[T]) Feed() string {
	return w.feed
}

// Watch runs until ctx is done, the subscription ends or fails, a fetch fails
// with anything but not-found, or publishing fails. It never reconnects.
func (w *Watcher[T]) Watch(ctx context.Context) error {
	if w.out == nil {
		return ErrNoChannel
	}

	hashes := make(chan common.Hash, hashBuffer)
	subCtx := ctx
	if w.opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		subCtx, cancel = context.WithTimeout(ctx, w.opts.ConnectTimeout)
		defer cancel()
	}
	sub, err := w.subscribe(subCtx, hashes)
	if err != nil {
		return fmt.Errorf("%s: %w", w.feed, err)
	}
	defer sub.Unsubscribe()

	w.logger.Info("watcher subscribed")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			if err == nil {
				return fmt.Errorf("%s: %w", w.feed, ErrSubscriptionEnded)
			}
			return fmt.Errorf("%s: %w: %v", w.feed, ErrSubscriptionEnded, err)
		case hash := <-hashes:
			if err := w.handle(ctx, hash); err != nil {
				return err
			}
		}
	}
}

func (w *Watcher[T]) handle(ctx context.Context, hash common.Hash) error {
	item, err := w.fetch(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		w.logger.Debug("notified hash no longer available", zap.String("hash", hash.Hex()))
		w.opts.Observer.Missing(w.feed)
		return nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s: fetch %s: %w", w.feed, hash.Hex(), err)
	}

	if _, err := w.out.Send(item); err != nil {
		return fmt.Errorf("%s: publish: %w", w.feed, err)
	}
	w.opts.Observer.Published(w.feed)
	return nil
}
