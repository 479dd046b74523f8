// Package abistore resolves contract interfaces cache-aside: a fresh cached ABI
// is returned as is, anything else is fetched from the metadata provider and
// written back. Stale entries are never served when the fetch fails.
package abistore

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultTTL          = time.Hour
	DefaultFetchTimeout = 10 * time.Second
)

// Fetcher retrieves raw ABI JSON for a contract.
type Fetcher interface {
	FetchABI(ctx context.Context, address common.Address) ([]byte, error)
}

// Interface is a resolved contract interface.
type Interface struct {
	Address   common.Address
	ABI       abi.ABI
	Raw       []byte
	FetchedAt time.Time
}

// MetadataUnavailableError is returned when an address has no fresh cache
// entry and the provider could not supply one.
type MetadataUnavailableError struct {
	Address common.Address
	Err     error
}

func (e *MetadataUnavailableError) Error() string {
	return fmt.Sprintf("metadata unavailable for %s: %v", e.Address.Hex(), e.Err)
}

func (e *MetadataUnavailableError) Unwrap() error {
	return e.Err
}

// Options tune a Store. Zero values select defaults.
type Options struct {
	TTL          time.Duration
	FetchTimeout time.Duration
	Now          func() time.Time
	Logger       *zap.Logger
}

// Store is the cache-aside interface resolver.
type Store struct {
	cache        Cache
	fetcher      Fetcher
	ttl          time.Duration
	fetchTimeout time.Duration
	now          func() time.Time
	logger       *zap.Logger

	flights singleflight.Group
}

func New(cache Cache, fetcher Fetcher, opts Options) *Store {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Store{
		cache:        cache,
		fetcher:      fetcher,
		ttl:          opts.TTL,
		fetchTimeout: opts.FetchTimeout,
		now:          opts.Now,
		logger:       opts.Logger,
	}
}

// Resolve returns the interface for address. Concurrent calls for the same
// address share a single provider fetch.
func (s *Store) Resolve(ctx context.Context, address common.Address) (Interface, error) {
	if iface, ok := s.lookup(ctx, address); ok {
		return iface, nil
	}

	key := strings.ToLower(address.Hex())
	// The flight outlives any single caller; each caller only stops waiting on its own ctx.
	flightCtx := context.WithoutCancel(ctx)
	ch := s.flights.DoChan(key, func() (interface{}, error) {
		// A flight that finished between our lookup and DoChan has already refreshed the entry.
		if iface, ok := s.lookup(flightCtx, address); ok {
			return iface, nil
		}
		return s.refresh(flightCtx, address)
	})

	select {
	case <-ctx.Done():
		return Interface{}, &MetadataUnavailableError{Address: address, Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return Interface{}, res.Err
		}
		if res.Shared {
			s.logger.Debug("shared abi fetch", zap.String("address", address.Hex()))
		}
		return res.Val.(Interface), nil
	}
}

func (s *Store) lookup(ctx context.Context, address common.Address) (Interface, bool) {
	entry, ok, err := s.cache.Get(ctx, address)
	if err != nil {
		s.logger.Warn("abi cache read failed", zap.String("address", address.Hex()), zap.Error(err))
		return Interface{}, false
	}
	if !ok || !s.fresh(entry) {
		return Interface{}, false
	}

	iface, err := parse(entry)
	if err != nil {
		s.logger.Warn("cached abi unreadable", zap.String("address", address.Hex()), zap.Error(err))
		return Interface{}, false
	}
	return iface, true
}

func (s *Store) fresh(entry Entry) bool {
	return s.now().Sub(entry.FetchedAt) < s.ttl
}

func (s *Store) refresh(ctx context.Context, address common.Address) (Interface, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()

	raw, err := s.fetcher.FetchABI(fetchCtx, address)
	if err != nil {
		return Interface{}, &MetadataUnavailableError{Address: address, Err: err}
	}

	entry := Entry{Address: address, Raw: raw, FetchedAt: s.now()}
	iface, err := parse(entry)
	if err != nil {
		return Interface{}, &MetadataUnavailableError{Address: address, Err: err}
	}

	if err := s.cache.Put(ctx, entry); err != nil {
		s.logger.Warn("abi cache write failed", zap.String("address", address.Hex()), zap.Error(err))
	}
	s.logger.Debug("abi fetched", zap.String("address", address.Hex()), zap.Int("methods", len(iface.ABI.Methods)))
	return iface, nil
}

func parse(entry Entry) (Interface, error) {
	parsed, err := abi.JSON(bytes.NewReader(entry.Raw))
	if err != nil {
		return Interface{}, fmt.Errorf("parse abi: %w", err)
	}
	return Interface{
		Address:   entry.Address,
		ABI:       parsed,
		Raw:       entry.Raw,
		FetchedAt: entry.FetchedAt,
	}, nil
}
