package pebblestore

import (
	"context"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"

	"github.com/congo-pay/icrc_ledger/internal/storage"
	"github.com/congo-pay/icrc_ledger/internal/transaction"
)

// ShardStore stores sealed shards in db, namespaced by store id.
type ShardStore struct {
	db       *DB
	id       string
	capacity uint64 // zero means unbounded

	mu sync.Mutex
}

// ShardStore returns a shard store named id holding at most capacity
// transactions. A zero capacity means unbounded.
func (db *DB) ShardStore(id string, capacity uint64) *ShardStore {
	return &ShardStore{db: db, id: id, capacity: capacity}
}

var _ storage.ShardStore = (*ShardStore)(nil)

// ID returns the store identifier.
func (s *ShardStore) ID() string { return s.id }

// Size returns the number of transactions held by the store.
func (s *ShardStore) Size() (uint64, error) {
	val, ok, err := s.db.get(sizeKey(s.id))
	if err != nil || !ok {
		return 0, err
	}
	return decodeUint64(val), nil
}

// WriteShard stores txs as shard d in one atomic batch.
func (s *ShardStore) WriteShard(_ context.Context, d storage.ShardDescriptor, txs []transaction.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mark := storeKey(prefixShardMark, s.id, d.ID)
	if _, exists, err := s.db.get(mark); err != nil {
		return fmt.Errorf("shard lookup %d: %w", d.ID, err)
	} else if exists {
		return storage.ErrDuplicateKey
	}

	size, err := s.Size()
	if err != nil {
		return fmt.Errorf("shard store size: %w", err)
	}
	if s.capacity > 0 && size+uint64(len(txs)) > s.capacity {
		return storage.ErrStoreFull
	}

	batch := s.db.pebble.NewBatch()
	defer batch.Close()

	for _, tx := range txs {
		data, err := transaction.Marshal(tx)
		if err != nil {
			return err
		}
		if err := batch.Set(storeKey(prefixShardTx, s.id, tx.Index), data, nil); err != nil {
			return err
		}
	}
	if err := batch.Set(mark, encodeRange(d.Start, d.Start+uint64(len(txs))), nil); err != nil {
		return err
	}
	if err := batch.Set(sizeKey(s.id), encodeUint64(size+uint64(len(txs))), nil); err != nil {
		return err
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("commit shard %d: %w", d.ID, err)
	}
	return nil
}

// ReadRange returns the transactions of shard d in [start, end). The range is
// clamped to what the shard actually holds.
func (s *ShardStore) ReadRange(ctx context.Context, d storage.ShardDescriptor, start, end uint64) ([]transaction.Transaction, error) {
	stored, err := s.Lookup(ctx, d.ID)
	if err != nil {
		return nil, err
	}

	start = max(start, d.Start, stored.Start)
	end = min(end, d.End, stored.End)
	if start >= end {
		return nil, nil
	}

	out := make([]transaction.Transaction, 0, end-start)
	err = s.db.scan(storeKey(prefixShardTx, s.id, start), storeKey(prefixShardTx, s.id, end), func(_, value []byte) error {
		tx, err := transaction.Unmarshal(value)
		if err != nil {
			return err
		}
		out = append(out, tx)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read shard %d: %w", d.ID, err)
	}
	return out, nil
}

// Lookup returns the stored range of shard id.
func (s *ShardStore) Lookup(_ context.Context, id uint64) (storage.ShardDescriptor, error) {
	val, exists, err := s.db.get(storeKey(prefixShardMark, s.id, id))
	if err != nil {
		return storage.ShardDescriptor{}, fmt.Errorf("shard lookup %d: %w", id, err)
	}
	if !exists {
		return storage.ShardDescriptor{}, storage.ErrNotFound
	}
	if len(val) != 16 {
		return storage.ShardDescriptor{}, fmt.Errorf("shard %d: corrupt range marker", id)
	}
	return storage.ShardDescriptor{
		ID:      id,
		Start:   decodeUint64(val[:8]),
		End:     decodeUint64(val[8:]),
		StoreID: s.id,
	}, nil
}

func encodeRange(start, end uint64) []byte {
	return append(encodeUint64(start), encodeUint64(end)...)
}
