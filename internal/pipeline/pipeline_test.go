package pipeline

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"

	"dexwatch/internal/abistore"
	"dexwatch/internal/model"
	"dexwatch/internal/registry"
	"dexwatch/internal/storage"
	"dexwatch/internal/txcache"
	"dexwatch/internal/watcher"
)

const swapABI = `[{"type":"function","name":"swap","stateMutability":"nonpayable",
  "inputs":[{"name":"amountIn","type":"uint256"},{"name":"to","type":"address"}],
  "outputs":[{"name":"amountOut","type":"uint256"}]}]`

var (
	routerAddr  = common.HexToAddress("0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")
	factoryAddr = common.HexToAddress("0xFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFF")
	unknownAddr = common.HexToAddress("0x1234567890123456789012345678901234567890")
)

// chainStub serves a fixed set of pending transactions, then ends both feeds.
type chainStub struct {
	txs   map[common.Hash]model.Transaction
	order []common.Hash

	once    sync.Once
	fetched chan struct{}
}

func newChainStub(txs ...model.Transaction) *chainStub {
	s := &chainStub{txs: map[common.Hash]model.Transaction{}, fetched: make(chan struct{})}
	for _, tx := range txs {
		s.txs[tx.Hash] = tx
		s.order = append(s.order, tx.Hash)
	}
	return s
}

func feed(hashes []common.Hash, done <-chan struct{}, ch chan<- common.Hash) event.Subscription {
	return event.NewSubscription(func(quit <-chan struct{}) error {
		for _, h := range hashes {
			select {
			case ch <- h:
			case <-quit:
				return nil
			}
		}
		if done != nil {
			select {
			case <-done:
			case <-quit:
				return nil
			}
		}
		return errors.New("stream closed by node")
	})
}

func (s *chainStub) SubscribeBlockHashes(_ context.Context, ch chan<- common.Hash) (event.Subscription, error) {
	return feed(nil, nil, ch), nil
}

func (s *chainStub) SubscribePendingTransactions(_ context.Context, ch chan<- common.Hash) (event.Subscription, error) {
	// One hash the node has already forgotten precedes the real ones.
	hashes := append([]common.Hash{common.HexToHash("0xdead")}, s.order...)
	return feed(hashes, s.fetched, ch), nil
}

func (s *chainStub) BlockByHash(context.Context, common.Hash) (model.Block, error) {
	return model.Block{}, ethereum.NotFound
}

func (s *chainStub) TransactionByHash(_ context.Context, hash common.Hash) (model.Transaction, error) {
	if len(s.order) > 0 && hash == s.order[len(s.order)-1] {
		defer s.once.Do(func() { close(s.fetched) })
	}
	tx, ok := s.txs[hash]
	if !ok {
		return model.Transaction{}, ethereum.NotFound
	}
	return tx, nil
}

func testRegistry(t *testing.T) (*registry.Registry, abi.ABI) {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(swapABI))
	if err != nil {
		t.Fatalf("parse abi: %v", err)
	}
	iface := abistore.Interface{ABI: parsed}
	return registry.New([]registry.Router{{
		Name:      "testdex",
		Version:   2,
		Factory:   registry.Factory{Address: factoryAddr, Interface: iface, Name: "testdex", Version: 2},
		Addresses: []registry.RouterAddress{{Address: routerAddr, Interface: iface}},
	}}), parsed
}

func TestPipelineEndToEnd(t *testing.T) {
	reg, parsed := testRegistry(t)
	input, err := parsed.Pack("swap", big.NewInt(1), unknownAddr)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}

	router, unknown := routerAddr, unknownAddr
	swap := model.Transaction{Hash: common.HexToHash("0x01"), To: &router, Input: input}
	transfer := model.Transaction{Hash: common.HexToHash("0x02"), To: &unknown}
	creation := model.Transaction{Hash: common.HexToHash("0x03"), Input: []byte{0x60, 0x80}}
	stub := newChainStub(swap, transfer, creation)

	cache := txcache.NewMemoryCache(time.Hour)
	store := storage.NewMemoryStorage()

	p := New(Options{Capacity: 16, Policy: Policy{MaxRestarts: 0, BaseDelay: time.Millisecond}})
	p.WatchChain(stub, watcher.Options{})
	p.Classify(reg)
	p.CacheTo(cache)
	p.StoreTo(store)
	p.StoreBlocks(store)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = p.Run(ctx)
	if !errors.Is(err, watcher.ErrSubscriptionEnded) {
		t.Fatalf("expected watchers to end with the subscription, got %v", err)
	}
	if ctx.Err() != nil {
		t.Fatalf("pipeline did not drain before the deadline")
	}

	if store.Len() != 2 {
		t.Fatalf("expected 2 stored transactions, got %d", store.Len())
	}
	for _, tx := range []model.Transaction{swap, creation} {
		if ok, _ := store.IsStored(ctx, tx); !ok {
			t.Fatalf("tx %s not stored", tx.Hash.Hex())
		}
		if ok, _ := cache.IsCached(ctx, tx); !ok {
			t.Fatalf("tx %s not cached", tx.Hash.Hex())
		}
	}
	if ok, _ := store.IsStored(ctx, transfer); ok {
		t.Fatalf("unknown destination must be dropped")
	}
}

func TestPipelineStopsOnCancel(t *testing.T) {
	reg, _ := testRegistry(t)
	p := New(Options{Capacity: 4})
	p.Classify(reg)
	p.StoreTo(storage.NewMemoryStorage())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("cancellation is a clean shutdown, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("pipeline did not stop")
	}
}
