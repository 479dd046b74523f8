package abistore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const swapABI = `[{"type":"function","name":"swap","stateMutability":"nonpayable","inputs":[{"name":"amountIn","type":"uint256"}],"outputs":[{"name":"amountOut","type":"uint256"}]}]`

var testAddress = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")

type fakeFetcher struct {
	calls atomic.Int32
	raw   []byte
	err   error
	gate  chan struct{}
}

func (f *fakeFetcher) FetchABI(ctx context.Context, _ common.Address) ([]byte, error) {
	f.calls.Add(1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.raw, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestResolveFetchesOnceWithinTTL(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	fetcher := &fakeFetcher{raw: []byte(swapABI)}
	store := New(NewMemoryCache(), fetcher, Options{TTL: time.Hour, Now: clock.Now})

	first, err := store.Resolve(context.Background(), testAddress)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	clock.Advance(59 * time.Minute)
	second, err := store.Resolve(context.Background(), testAddress)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if got := fetcher.calls.Load(); got != 1 {
		t.Fatalf("expected 1 fetch, got %d", got)
	}
	if string(first.Raw) != swapABI || string(second.Raw) != swapABI {
		t.Fatalf("unexpected raw abi")
	}
	if _, ok := second.ABI.Methods["swap"]; !ok {
		t.Fatalf("swap method missing from resolved abi")
	}
}

func TestResolveRefetchesOnceAfterTTL(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	fetcher := &fakeFetcher{raw: []byte(swapABI)}
	store := New(NewMemoryCache(), fetcher, Options{TTL: time.Hour, Now: clock.Now})

	if _, err := store.Resolve(context.Background(), testAddress); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	clock.Advance(time.Hour)
	for i := 0; i < 3; i++ {
		if _, err := store.Resolve(context.Background(), testAddress); err != nil {
			t.Fatalf("resolve: %v", err)
		}
	}

	if got := fetcher.calls.Load(); got != 2 {
		t.Fatalf("expected 2 fetches, got %d", got)
	}
}

func TestResolveFailsClosedOnStaleEntry(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	cache := NewMemoryCache()
	if err := cache.Put(context.Background(), Entry{Address: testAddress, Raw: []byte(swapABI), FetchedAt: clock.Now()}); err != nil {
		t.Fatalf("seed cache: %v", err)
	}
	clock.Advance(2 * time.Hour)

	cause := errors.New("provider down")
	store := New(cache, &fakeFetcher{err: cause}, Options{TTL: time.Hour, Now: clock.Now})

	_, err := store.Resolve(context.Background(), testAddress)
	var unavailable *MetadataUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected MetadataUnavailableError, got %v", err)
	}
	if unavailable.Address != testAddress {
		t.Fatalf("unexpected address %s", unavailable.Address.Hex())
	}
	if !errors.Is(err, cause) {
		t.Fatalf("error should unwrap to provider cause")
	}
}

func TestResolveRejectsMalformedABI(t *testing.T) {
	store := New(NewMemoryCache(), &fakeFetcher{raw: []byte("not json")}, Options{})
	_, err := store.Resolve(context.Background(), testAddress)
	var unavailable *MetadataUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected MetadataUnavailableError, got %v", err)
	}
}

func TestResolveSingleFlight(t *testing.T) {
	fetcher := &fakeFetcher{raw: []byte(swapABI), gate: make(chan struct{})}
	store := New(NewMemoryCache(), fetcher, Options{})

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Resolve(context.Background(), testAddress)
			errs <- err
		}()
	}

	deadline := time.After(time.Second)
	for fetcher.calls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatalf("fetch never started")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	time.Sleep(20 * time.Millisecond)
	close(fetcher.gate)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
	}
	if got := fetcher.calls.Load(); got != 1 {
		t.Fatalf("expected 1 concurrent fetch, got %d", got)
	}
}

func TestResolveCallerCancelDoesNotFailSharedFetch(t *testing.T) {
	fetcher := &fakeFetcher{raw: []byte(swapABI), gate: make(chan struct{})}
	store := New(NewMemoryCache(), fetcher, Options{})

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := store.Resolve(leaderCtx, testAddress)
		leaderErr <- err
	}()

	deadline := time.After(time.Second)
	for fetcher.calls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatalf("fetch never started")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	followerErr := make(chan error, 1)
	go func() {
		_, err := store.Resolve(context.Background(), testAddress)
		followerErr <- err
	}()
	time.Sleep(20 * time.Millisecond)

	cancelLeader()
	if err := <-leaderErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected leader to see its own cancellation, got %v", err)
	}

	close(fetcher.gate)
	if err := <-followerErr; err != nil {
		t.Fatalf("follower failed: %v", err)
	}
	if got := fetcher.calls.Load(); got != 1 {
		t.Fatalf("expected 1 fetch, got %d", got)
	}
}

type readOnlyCache struct {
	*MemoryCache
}

func (readOnlyCache) Put(context.Context, Entry) error {
	return errors.New("read-only file system")
}

func TestResolveReturnsInterfaceWhenCacheWriteFails(t *testing.T) {
	fetcher := &fakeFetcher{raw: []byte(swapABI)}
	store := New(readOnlyCache{NewMemoryCache()}, fetcher, Options{})

	iface, err := store.Resolve(context.Background(), testAddress)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, ok := iface.ABI.Methods["swap"]; !ok {
		t.Fatalf("expected swap method in resolved interface")
	}
}

func TestResolveDifferentAddressesIndependently(t *testing.T) {
	fetcher := &fakeFetcher{raw: []byte(swapABI)}
	store := New(NewMemoryCache(), fetcher, Options{})

	other := common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	for _, addr := range []common.Address{testAddress, other} {
		iface, err := store.Resolve(context.Background(), addr)
		if err != nil {
			t.Fatalf("resolve %s: %v", addr.Hex(), err)
		}
		if iface.Address != addr {
			t.Fatalf("address mismatch %s", iface.Address.Hex())
		}
	}
	if got := fetcher.calls.Load(); got != 2 {
		t.Fatalf("expected 2 fetches, got %d", got)
	}
}

func TestFileCacheSurvivesRestart(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "abi")
	clock := &fakeClock{now: time.Now().Truncate(time.Second)}

	first := New(NewFileCache(dir), &fakeFetcher{raw: []byte(swapABI)}, Options{TTL: time.Hour, Now: clock.Now})
	want, err := first.Resolve(context.Background(), testAddress)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	clock.Advance(30 * time.Minute)
	fetcher := &fakeFetcher{err: errors.New("must not fetch")}
	restarted := New(NewFileCache(dir), fetcher, Options{TTL: time.Hour, Now: clock.Now})
	got, err := restarted.Resolve(context.Background(), testAddress)
	if err != nil {
		t.Fatalf("resolve after restart: %v", err)
	}

	if fetcher.calls.Load() != 0 {
		t.Fatalf("expected no fetch after restart")
	}
	if string(got.Raw) != string(want.Raw) {
		t.Fatalf("raw abi mismatch")
	}
	if len(got.ABI.Methods) != len(want.ABI.Methods) {
		t.Fatalf("method set mismatch")
	}
	if !got.FetchedAt.Equal(want.FetchedAt) {
		t.Fatalf("fetched_at should come from file mtime: %v != %v", got.FetchedAt, want.FetchedAt)
	}
}

func TestFileCacheLayout(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "abi")
	cache := NewFileCache(dir)

	if _, ok, err := cache.Get(context.Background(), testAddress); err != nil || ok {
		t.Fatalf("expected miss on missing dir, got ok=%v err=%v", ok, err)
	}
	if err := cache.Put(context.Background(), Entry{Address: testAddress, Raw: []byte(swapABI), FetchedAt: time.Now()}); err != nil {
		t.Fatalf("put: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected a single file, got %d", len(entries))
	}
	want := strings.ToLower(testAddress.Hex()) + ".json"
	if entries[0].Name() != want {
		t.Fatalf("expected %s, got %s", want, entries[0].Name())
	}
}
