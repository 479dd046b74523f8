package abistore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Entry is one persisted ABI document.
type Entry struct {
	Address   common.Address
	Raw       []byte
	FetchedAt time.Time
}

// Cache persists raw ABI documents by contract address.
type Cache interface {
	// Get returns the entry for address, with ok=false on a miss.
	Get(ctx context.Context, address common.Address) (entry Entry, ok bool, err error)
	// Put replaces the entry for entry.Address as a whole.
	Put(ctx context.Context, entry Entry) error
}

// FileCache stores one JSON file per address. The file's modification time is
// the entry's fetch time.
type FileCache struct {
	dir string
}

func NewFileCache(dir string) *FileCache {
	return &FileCache{dir: dir}
}

func (c *FileCache) path(address common.Address) string {
	return filepath.Join(c.dir, strings.ToLower(address.Hex())+".json")
}

func (c *FileCache) Get(_ context.Context, address common.Address) (Entry, bool, error) {
	path := c.path(address)
	stat, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("stat abi cache: %w", err)
	}
	if stat.IsDir() {
		return Entry{}, false, fmt.Errorf("abi cache path %s is a directory", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Entry{}, false, fmt.Errorf("read abi cache: %w", err)
	}

	return Entry{Address: address, Raw: data, FetchedAt: stat.ModTime()}, true, nil
}

func (c *FileCache) Put(_ context.Context, entry Entry) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("create abi cache dir: %w", err)
	}

	path := c.path(entry.Address)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, entry.Raw, 0o644); err != nil {
		return fmt.Errorf("write abi cache tmp: %w", err)
	}
	if !entry.FetchedAt.IsZero() {
		if err := os.Chtimes(tmpPath, entry.FetchedAt, entry.FetchedAt); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("set abi cache mtime: %w", err)
		}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename abi cache: %w", err)
	}
	return nil
}

// MemoryCache keeps entries in process memory.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[common.Address]Entry
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[common.Address]Entry)}
}

func (c *MemoryCache) Get(_ context.Context, address common.Address) (Entry, bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[address]
	c.mu.RUnlock()
	return entry, ok, nil
}

func (c *MemoryCache) Put(_ context.Context, entry Entry) error {
	raw := make([]byte, len(entry.Raw))
	copy(raw, entry.Raw)
	entry.Raw = raw

	c.mu.Lock()
	c.entries[entry.Address] = entry
	c.mu.Unlock()
	return nil
}
