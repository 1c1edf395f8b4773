package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/congo-pay/icrc_ledger/internal/storage"
	"github.com/congo-pay/icrc_ledger/internal/transaction"
)

// Journal is an in-memory implementation of storage.Journal.
type Journal struct {
	mu      sync.RWMutex
	entries map[uint64]transaction.Transaction
}

// NewJournal creates an empty in-memory journal.
func NewJournal() *Journal {
	return &Journal{entries: make(map[uint64]transaction.Transaction)}
}

var _ storage.Journal = (*Journal)(nil)

// Append records tx.
func (j *Journal) Append(_ context.Context, tx transaction.Transaction) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if _, exists := j.entries[tx.Index]; exists {
		return storage.ErrDuplicateKey
	}
	j.entries[tx.Index] = tx
	return nil
}

// Truncate removes every entry with index below before.
func (j *Journal) Truncate(_ context.Context, before uint64) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	for index := range j.entries {
		if index < before {
			delete(j.entries, index)
		}
	}
	return nil
}

// Load returns every entry ordered by index.
func (j *Journal) Load(_ context.Context) ([]transaction.Transaction, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	out := make([]transaction.Transaction, 0, len(j.entries))
	for _, tx := range j.entries {
		out = append(out, tx)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Index < out[b].Index })
	return out, nil
}

// Len returns the number of journaled entries.
func (j *Journal) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.entries)
}
