package storage

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"dexwatch/internal/model"
)

// MemoryStorage keeps transactions and blocks in process memory.
type MemoryStorage struct {
	mu     sync.RWMutex
	txs    map[common.Hash]model.ClassifiedTx
	blocks map[common.Hash]model.Block
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		txs:    make(map[common.Hash]model.ClassifiedTx),
		blocks: make(map[common.Hash]model.Block),
	}
}

func (s *MemoryStorage) Store(_ context.Context, tx model.ClassifiedTx) error {
	s.mu.Lock()
	s.txs[tx.Transaction.Hash] = tx
	s.mu.Unlock()
	return nil
}

func (s *MemoryStorage) IsStored(_ context.Context, tx model.Transaction) (bool, error) {
	s.mu.RLock()
	_, ok := s.txs[tx.Hash]
	s.mu.RUnlock()
	return ok, nil
}

func (s *MemoryStorage) Delete(_ context.Context, tx model.Transaction) error {
	s.mu.Lock()
	delete(s.txs, tx.Hash)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStorage) StoreBlock(_ context.Context, block model.Block) error {
	s.mu.Lock()
	s.blocks[block.Hash] = block
	s.mu.Unlock()
	return nil
}

// Len returns the number of stored transactions.
func (s *MemoryStorage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.txs)
}

// Block returns a stored block by hash.
func (s *MemoryStorage) Block(hash common.Hash) (model.Block, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	block, ok := s.blocks[hash]
	return block, ok
}
