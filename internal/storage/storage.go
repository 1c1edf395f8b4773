// Package storage declares the durable primitives the ledger consumes for its
// live transaction log and its sealed archive shards.
package storage

import (
	"context"
	"errors"

	"github.com/congo-pay/icrc_ledger/internal/transaction"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrStoreFull is returned by a shard store that cannot accept more entries.
	ErrStoreFull = errors.New("store full")

	// ErrDuplicateKey is returned when a shard or entry index is written twice.
	// Shards are append-only and never rewritten.
	ErrDuplicateKey = errors.New("duplicate key: append-only store does not allow updates")
)

// ShardDescriptor locates a sealed shard holding indices [Start, End).
type ShardDescriptor struct {
	ID      uint64 `cbor:"1,keyasint" json:"id"`
	Start   uint64 `cbor:"2,keyasint" json:"start"`
	End     uint64 `cbor:"3,keyasint" json:"end"`
	StoreID string `cbor:"4,keyasint" json:"store_id"`
}

// Len returns the number of transactions in the shard.
func (d ShardDescriptor) Len() uint64 { return d.End - d.Start }

// Contains reports whether index falls inside the shard.
func (d ShardDescriptor) Contains(index uint64) bool {
	return index >= d.Start && index < d.End
}

// ShardStore persists sealed shards. Implementations never mutate a shard
// once WriteShard has returned successfully.
type ShardStore interface {
	// ID names the store in shard descriptors.
	ID() string

	// WriteShard stores txs as shard d. Returns ErrStoreFull if the store
	// has no room for d.Len() more entries; nothing is written in that case.
	WriteShard(ctx context.Context, d ShardDescriptor, txs []transaction.Transaction) error

	// ReadRange returns the transactions of shard d with indices in [start, end),
	// ordered by index.
	ReadRange(ctx context.Context, d ShardDescriptor, start, end uint64) ([]transaction.Transaction, error)

	// Lookup returns the range shard id was written with. Returns ErrNotFound
	// if no such shard exists.
	Lookup(ctx context.Context, id uint64) (ShardDescriptor, error)
}

// Directory persists shard descriptors in seal order.
type Directory interface {
	// Append records a newly sealed shard. Returns ErrDuplicateKey if d.ID exists.
	Append(ctx context.Context, d ShardDescriptor) error

	// List returns every descriptor ordered by Start.
	List(ctx context.Context) ([]ShardDescriptor, error)
}

// Journal persists the live segment of the transaction log.
type Journal interface {
	// Append durably records tx. Returns ErrDuplicateKey if tx.Index exists.
	Append(ctx context.Context, tx transaction.Transaction) error

	// Truncate removes every entry with index below before.
	Truncate(ctx context.Context, before uint64) error

	// Load returns every journaled entry ordered by index.
	Load(ctx context.Context) ([]transaction.Transaction, error)
}
