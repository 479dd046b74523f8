package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"dexwatch/internal/model"
)

// BlockJournal appends blocks to a JSONL file. It is an append-only log:
// a block delivered twice is written twice.
type BlockJournal struct {
	path string
	mu   sync.Mutex
}

func NewBlockJournal(path string) *BlockJournal {
	return &BlockJournal{path: path}
}

// StoreBlock appends one block as a JSON line.
func (j *BlockJournal) StoreBlock(_ context.Context, block model.Block) error {
	dir := filepath.Dir(j.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create journal dir: %w", err)
		}
	}

	line, err := json.Marshal(block)
	if err != nil {
		return fmt.Errorf("marshal block: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	file, err := os.OpenFile(j.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	if _, err := writer.Write(line); err != nil {
		return fmt.Errorf("write block: %w", err)
	}
	if err := writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush journal: %w", err)
	}
	return nil
}

// MultiBlockStorage writes each block to every backend in order.
type MultiBlockStorage []BlockStorage

func (m MultiBlockStorage) StoreBlock(ctx context.Context, block model.Block) error {
	for _, s := range m {
		if err := s.StoreBlock(ctx, block); err != nil {
			return err
		}
	}
	return nil
}
