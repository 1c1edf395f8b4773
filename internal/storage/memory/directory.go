package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/congo-pay/icrc_ledger/internal/storage"
)

// Directory is an in-memory implementation of storage.Directory.
type Directory struct {
	mu     sync.RWMutex
	shards []storage.ShardDescriptor
}

// NewDirectory creates an empty in-memory shard directory.
func NewDirectory() *Directory {
	return &Directory{}
}

var _ storage.Directory = (*Directory)(nil)

// Append records a newly sealed shard.
func (d *Directory) Append(_ context.Context, desc storage.ShardDescriptor) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, existing := range d.shards {
		if existing.ID == desc.ID {
			return storage.ErrDuplicateKey
		}
	}
	d.shards = append(d.shards, desc)
	return nil
}

// List returns every descriptor ordered by Start.
func (d *Directory) List(_ context.Context) ([]storage.ShardDescriptor, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]storage.ShardDescriptor, len(d.shards))
	copy(out, d.shards)
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out, nil
}
