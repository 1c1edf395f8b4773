// Package txlog holds the live, journaled tail of the transaction log.
package txlog

import (
	"context"
	"errors"
	"fmt"

	"github.com/congo-pay/icrc_ledger/internal/storage"
	"github.com/congo-pay/icrc_ledger/internal/transaction"
)

// ErrLogFull is returned when the live segment reached its capacity.
var ErrLogFull = errors.New("transaction log is full")

// Log is the live segment of the transaction log: indices [First, Next).
// It is not safe for concurrent use; the ledger serializes access.
type Log struct {
	journal  storage.Journal
	capacity uint64 // zero means unbounded
	first    uint64
	entries  []transaction.Transaction
}

// Open loads the journal. Entries below first are already archived and are
// skipped; the rest must be contiguous from first.
func Open(ctx context.Context, journal storage.Journal, first, capacity uint64) (*Log, error) {
	loaded, err := journal.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load journal: %w", err)
	}

	l := &Log{journal: journal, capacity: capacity, first: first}
	for _, tx := range loaded {
		if tx.Index < first {
			continue
		}
		if tx.Index != l.Next() {
			return nil, fmt.Errorf("journal gap: found index %d, expected %d", tx.Index, l.Next())
		}
		l.entries = append(l.entries, tx)
	}
	if first > 0 && len(loaded) > 0 && loaded[0].Index < first {
		if err := journal.Truncate(ctx, first); err != nil {
			return nil, fmt.Errorf("truncate archived journal prefix: %w", err)
		}
	}
	return l, nil
}

// First returns the index of the oldest live entry.
func (l *Log) First() uint64 { return l.first }

// Len returns the number of live entries.
func (l *Log) Len() uint64 { return uint64(len(l.entries)) }

// Next returns the index the next appended transaction receives.
func (l *Log) Next() uint64 { return l.first + uint64(len(l.entries)) }

// Entries returns the live entries in index order. Callers must not modify them.
func (l *Log) Entries() []transaction.Transaction { return l.entries }

// Append journals tx and adds it to the live segment. tx.Index must be Next().
// On error the log is unchanged.
func (l *Log) Append(ctx context.Context, tx transaction.Transaction) error {
	if l.capacity > 0 && l.Len() >= l.capacity {
		return ErrLogFull
	}
	if tx.Index != l.Next() {
		return fmt.Errorf("append index %d, expected %d", tx.Index, l.Next())
	}
	if err := l.journal.Append(ctx, tx); err != nil {
		return fmt.Errorf("journal append: %w", err)
	}
	l.entries = append(l.entries, tx)
	return nil
}

// Get returns the live entry at index.
func (l *Log) Get(index uint64) (transaction.Transaction, bool) {
	if index < l.first || index >= l.Next() {
		return transaction.Transaction{}, false
	}
	return l.entries[index-l.first], true
}

// Slice returns copies of the live entries in [start, end), clamped to the
// live range.
func (l *Log) Slice(start, end uint64) []transaction.Transaction {
	start = max(start, l.first)
	end = min(end, l.Next())
	if start >= end {
		return nil
	}
	out := make([]transaction.Transaction, end-start)
	copy(out, l.entries[start-l.first:end-l.first])
	return out
}

// Drop removes the n oldest entries after they were sealed into a shard and
// truncates the journal below the new first index. The in-memory segment is
// advanced even when the journal truncation fails.
func (l *Log) Drop(ctx context.Context, n uint64) error {
	n = min(n, l.Len())
	remaining := make([]transaction.Transaction, len(l.entries)-int(n))
	copy(remaining, l.entries[n:])
	l.entries = remaining
	l.first += n

	if err := l.journal.Truncate(ctx, l.first); err != nil {
		return fmt.Errorf("truncate journal below %d: %w", l.first, err)
	}
	return nil
}
