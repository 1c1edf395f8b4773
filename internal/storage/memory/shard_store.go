package memory

import (
	"context"
	"sync"

	"github.com/congo-pay/icrc_ledger/internal/storage"
	"github.com/congo-pay/icrc_ledger/internal/transaction"
)

type shard struct {
	desc storage.ShardDescriptor
	txs  []transaction.Transaction
}

// ShardStore is an in-memory implementation of storage.ShardStore.
type ShardStore struct {
	id       string
	capacity uint64 // zero means unbounded

	mu     sync.RWMutex
	shards map[uint64]shard
	size   uint64
}

// NewShardStore creates an in-memory shard store holding at most capacity
// transactions. A zero capacity means unbounded.
func NewShardStore(id string, capacity uint64) *ShardStore {
	return &ShardStore{
		id:       id,
		capacity: capacity,
		shards:   make(map[uint64]shard),
	}
}

var _ storage.ShardStore = (*ShardStore)(nil)

// ID returns the store identifier.
func (s *ShardStore) ID() string { return s.id }

// WriteShard stores txs as shard d.
func (s *ShardStore) WriteShard(_ context.Context, d storage.ShardDescriptor, txs []transaction.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.shards[d.ID]; exists {
		return storage.ErrDuplicateKey
	}
	if s.capacity > 0 && s.size+uint64(len(txs)) > s.capacity {
		return storage.ErrStoreFull
	}

	stored := make([]transaction.Transaction, len(txs))
	copy(stored, txs)
	d.StoreID = s.id
	d.End = d.Start + uint64(len(stored))
	s.shards[d.ID] = shard{desc: d, txs: stored}
	s.size += uint64(len(txs))
	return nil
}

// ReadRange returns the transactions of shard d in [start, end). The range is
// clamped to what the shard actually holds.
func (s *ShardStore) ReadRange(_ context.Context, d storage.ShardDescriptor, start, end uint64) ([]transaction.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sh, ok := s.shards[d.ID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	start = max(start, d.Start, sh.desc.Start)
	end = min(end, d.End, sh.desc.End)
	if start >= end {
		return nil, nil
	}

	out := make([]transaction.Transaction, end-start)
	copy(out, sh.txs[start-sh.desc.Start:end-sh.desc.Start])
	return out, nil
}

// Lookup returns the stored range of shard id.
func (s *ShardStore) Lookup(_ context.Context, id uint64) (storage.ShardDescriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sh, ok := s.shards[id]
	if !ok {
		return storage.ShardDescriptor{}, storage.ErrNotFound
	}
	return sh.desc, nil
}

// Size returns the number of stored transactions.
func (s *ShardStore) Size() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}
