// Package pipeline assembles watchers, the classifier and the fanout consumers
// around the three broadcast channels and runs them as supervised tasks.
package pipeline

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"dexwatch/internal/broadcast"
	"dexwatch/internal/classifier"
	"dexwatch/internal/fanout"
	"dexwatch/internal/model"
	"dexwatch/internal/storage"
	"dexwatch/internal/txcache"
	"dexwatch/internal/watcher"
)

// DefaultCapacity is the retained window of each channel.
const DefaultCapacity = 100

// Observer receives counts from every stage. *metrics.Metrics implements it.
type Observer interface {
	watcher.Observer
	classifier.Observer
	fanout.Observer
	Restarted(task string)
}

type nopObserver struct{}

func (nopObserver) Published(string)      {}
func (nopObserver) Missing(string)        {}
func (nopObserver) Classified(model.Role) {}
func (nopObserver) Dropped()              {}
func (nopObserver) Decoded(int)           {}
func (nopObserver) Lagged(string, uint64) {}
func (nopObserver) Written(string)        {}
func (nopObserver) WriteFailed(string)    {}
func (nopObserver) Restarted(string)      {}

// Options configure a Pipeline.
type Options struct {
	Capacity int
	Policy   Policy
	Observer Observer
	Logger   *zap.Logger
}

type closer interface {
	Close()
}

type task struct {
	name    string
	run     func(context.Context) error
	closers []closer
}

// Pipeline owns the channels. They exist from New onwards, so every stage can
// subscribe while it is being added, before anything runs.
type Pipeline struct {
	Blocks     *broadcast.Channel[model.Block]
	RawTxs     *broadcast.Channel[model.Transaction]
	Classified *broadcast.Channel[model.ClassifiedTx]

	policy   Policy
	observer Observer
	logger   *zap.Logger
	tasks    []task
}

func New(opts Options) *Pipeline {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Policy == (Policy{}) {
		opts.Policy = DefaultPolicy
	}
	return &Pipeline{
		Blocks:     broadcast.New[model.Block](opts.Capacity),
		RawTxs:     broadcast.New[model.Transaction](opts.Capacity),
		Classified: broadcast.New[model.ClassifiedTx](opts.Capacity),
		policy:     opts.Policy,
		observer:   opts.Observer,
		logger:     opts.Logger,
	}
}

// Observer returns the observer shared by all stages.
func (p *Pipeline) Observer() Observer {
	return p.observer
}

// Go adds a task. The given channels are closed when the task ends for good.
func (p *Pipeline) Go(name string, run func(context.Context) error, closes ...closer) {
	p.tasks = append(p.tasks, task{name: name, run: run, closers: closes})
}

// WatchChain adds the block and pending-transaction watchers.
func (p *Pipeline) WatchChain(src watcher.Source, opts watcher.Options) {
	opts.Observer = p.observer
	if opts.Logger == nil {
		opts.Logger = p.logger
	}
	blocks := watcher.NewBlockWatcher(src, p.Blocks, opts)
	txs := watcher.NewPendingTxWatcher(src, p.RawTxs, opts)
	p.Go("watcher."+blocks.Feed(), blocks.Watch, p.Blocks)
	p.Go("watcher."+txs.Feed(), txs.Watch, p.RawTxs)
}

// Classify adds the classifier between the raw and classified channels.
func (p *Pipeline) Classify(matcher classifier.Matcher) {
	c := classifier.New(matcher, p.RawTxs.Subscribe(), p.Classified, p.observer, p.logger)
	p.Go("classifier", c.Run, p.Classified)
}

// CacheTo adds the transaction cache consumer.
func (p *Pipeline) CacheTo(cache txcache.TxCache) {
	c := fanout.NewCacheConsumer(p.Classified.Subscribe(), cache, p.observer, p.logger)
	p.Go("consumer."+c.Name(), c.Run)
}

// StoreTo adds the transaction storage consumer.
func (p *Pipeline) StoreTo(store storage.TxStorage) {
	c := fanout.NewStorageConsumer(p.Classified.Subscribe(), store, p.observer, p.logger)
	p.Go("consumer."+c.Name(), c.Run)
}

// StoreBlocks adds the block persistence consumer.
func (p *Pipeline) StoreBlocks(store storage.BlockStorage) {
	c := fanout.NewBlockConsumer(p.Blocks.Subscribe(), store, p.observer, p.logger)
	p.Go("consumer."+c.Name(), c.Run)
}

// Run starts every task under supervision and waits for all of them. A task
// that fails for good only stops itself; cancelling ctx stops everything.
// Errors of tasks that failed for a reason other than ctx are joined.
func (p *Pipeline) Run(ctx context.Context) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)

	for _, t := range p.tasks {
		t := t
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				for _, c := range t.closers {
					c.Close()
				}
			}()

			logger := p.logger.With(zap.String("task", t.name))
			logger.Debug("task started")
			err := Supervise(ctx, t.name, p.policy, t.run, logger, func(int, error) {
				p.observer.Restarted(t.name)
			})
			switch {
			case err == nil:
				logger.Info("task finished")
			case ctx.Err() != nil && errors.Is(err, ctx.Err()):
				logger.Debug("task cancelled")
			default:
				logger.Error("task failed", zap.Error(err))
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	return errors.Join(errs...)
}
