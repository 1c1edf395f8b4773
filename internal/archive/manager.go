// Package archive moves old transactions from the live log into sealed
// shards and routes historical reads to the shard holding each index.
package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/congo-pay/icrc_ledger/internal/storage"
	"github.com/congo-pay/icrc_ledger/internal/transaction"
)

// ErrArchiveFull is returned when every configured store rejected a shard.
var ErrArchiveFull = errors.New("all archive stores are full")

// Segment is the live, mutable tail of the transaction log.
type Segment interface {
	// First returns the index of the oldest live entry.
	First() uint64
	// Len returns the number of live entries.
	Len() uint64
	// Slice returns copies of the live entries in [start, end).
	Slice(start, end uint64) []transaction.Transaction
	// Drop removes the n oldest entries once they are sealed.
	Drop(ctx context.Context, n uint64) error
}

// Config controls when and how much of the live log is sealed.
type Config struct {
	// TriggerThreshold is the live length above which sealing starts.
	TriggerThreshold uint64
	// NumBlocksToArchive is the size of each new shard.
	NumBlocksToArchive uint64
}

// Manager owns the shard directory. The directory snapshot is replaced, never
// mutated, so readers holding an old snapshot stay consistent.
type Manager struct {
	cfg    Config
	dir    storage.Directory
	stores []storage.ShardStore
	byID   map[string]storage.ShardStore
	logger *slog.Logger

	sealMu sync.Mutex
	shards atomic.Pointer[[]storage.ShardDescriptor]
}

// Open loads the shard directory and validates that it covers a contiguous
// index range starting at zero.
func Open(ctx context.Context, cfg Config, dir storage.Directory, stores []storage.ShardStore, logger *slog.Logger) (*Manager, error) {
	if cfg.NumBlocksToArchive == 0 {
		return nil, fmt.Errorf("num blocks to archive must be positive")
	}
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		cfg:    cfg,
		dir:    dir,
		stores: stores,
		byID:   make(map[string]storage.ShardStore, len(stores)),
		logger: logger,
	}
	for _, s := range stores {
		if _, dup := m.byID[s.ID()]; dup {
			return nil, fmt.Errorf("duplicate archive store id %q", s.ID())
		}
		m.byID[s.ID()] = s
	}

	shards, err := dir.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("load shard directory: %w", err)
	}
	var next uint64
	for _, d := range shards {
		if d.Start != next || d.End <= d.Start {
			return nil, fmt.Errorf("shard %d covers [%d, %d), expected start %d", d.ID, d.Start, d.End, next)
		}
		if _, ok := m.byID[d.StoreID]; !ok {
			return nil, fmt.Errorf("shard %d references unknown store %q", d.ID, d.StoreID)
		}
		next = d.End
	}
	m.shards.Store(&shards)
	return m, nil
}

// Shards returns the current directory snapshot. Callers must not modify it.
func (m *Manager) Shards() []storage.ShardDescriptor {
	return *m.shards.Load()
}

// End returns the first index not held by any shard.
func (m *Manager) End() uint64 {
	shards := m.Shards()
	if len(shards) == 0 {
		return 0
	}
	return shards[len(shards)-1].End
}

// Stores returns the configured stores in write-preference order.
func (m *Manager) Stores() []storage.ShardStore {
	return m.stores
}

// MaybeSeal moves the oldest NumBlocksToArchive live entries into a new shard
// when the live length exceeds TriggerThreshold. Without stores nothing is
// sealed. The descriptor is persisted before the live segment is truncated.
// On error the entries stay live.
func (m *Manager) MaybeSeal(ctx context.Context, live Segment) (bool, error) {
	if len(m.stores) == 0 || live.Len() <= m.cfg.TriggerThreshold {
		return false, nil
	}

	m.sealMu.Lock()
	defer m.sealMu.Unlock()

	n := m.cfg.NumBlocksToArchive
	if n > live.Len() {
		n = live.Len()
	}
	shards := m.Shards()
	start := live.First()
	if start != m.End() {
		return false, fmt.Errorf("live log starts at %d but archive ends at %d", start, m.End())
	}

	desc := storage.ShardDescriptor{Start: start, End: start + n}
	if len(shards) > 0 {
		desc.ID = shards[len(shards)-1].ID + 1
	}
	txs := live.Slice(desc.Start, desc.End)

	store, err := m.write(ctx, &desc, txs, start+live.Len())
	if err != nil {
		return false, err
	}
	n = desc.Len()
	if err := m.dir.Append(ctx, desc); err != nil {
		return false, fmt.Errorf("record shard %d: %w", desc.ID, err)
	}

	next := make([]storage.ShardDescriptor, len(shards), len(shards)+1)
	copy(next, shards)
	next = append(next, desc)
	m.shards.Store(&next)

	m.logger.Info("archive shard sealed",
		slog.Uint64("shard_id", desc.ID),
		slog.Uint64("start", desc.Start),
		slog.Uint64("end", desc.End),
		slog.String("store_id", store),
	)

	if err := live.Drop(ctx, n); err != nil {
		// The shard is durable; the stale journal prefix is skipped on replay.
		m.logger.Warn("truncate live journal", slog.Uint64("before", desc.End), slog.Any("error", err))
	}
	return true, nil
}

// write stores the shard in the first store that accepts it. A shard written
// by an earlier attempt whose descriptor was never recorded is adopted with
// the range it was stored with, which may differ from desc when the live log
// grew in between. desc is updated to the range that ends up in the store.
func (m *Manager) write(ctx context.Context, desc *storage.ShardDescriptor, txs []transaction.Transaction, liveEnd uint64) (string, error) {
	for _, s := range m.stores {
		desc.StoreID = s.ID()
		err := s.WriteShard(ctx, *desc, txs)
		switch {
		case err == nil:
			return s.ID(), nil
		case errors.Is(err, storage.ErrDuplicateKey):
			stored, err := s.Lookup(ctx, desc.ID)
			if err != nil {
				return "", fmt.Errorf("inspect shard %d in %s: %w", desc.ID, s.ID(), err)
			}
			if stored.Start != desc.Start || stored.End <= stored.Start || stored.End > liveEnd {
				return "", fmt.Errorf("shard %d in %s covers [%d, %d), cannot seal [%d, %d)",
					desc.ID, s.ID(), stored.Start, stored.End, desc.Start, desc.End)
			}
			stored.StoreID = s.ID()
			*desc = stored
			return s.ID(), nil
		case errors.Is(err, storage.ErrStoreFull):
			continue
		default:
			return "", fmt.Errorf("write shard %d to %s: %w", desc.ID, s.ID(), err)
		}
	}
	return "", ErrArchiveFull
}

type part struct {
	desc       storage.ShardDescriptor
	start, end uint64
}

// RangePlan is a read of the log resolved against one directory snapshot.
// Planning needs the live segment to be stable; fetching does not.
type RangePlan struct {
	stores map[string]storage.ShardStore
	parts  []part
	live   []transaction.Transaction
}

// PlanRange resolves up to count entries starting at start. The live entries
// are copied so the plan can be fetched after the caller releases its lock.
func (m *Manager) PlanRange(live Segment, start, count uint64) RangePlan {
	plan := RangePlan{stores: m.byID}

	head := live.First() + live.Len()
	end := head
	if count < head-min(start, head) {
		end = start + count
	}
	if start >= end {
		return plan
	}

	shards := m.Shards()
	archivedEnd := min(end, live.First())
	i := sort.Search(len(shards), func(i int) bool { return shards[i].End > start })
	for ; i < len(shards) && shards[i].Start < archivedEnd; i++ {
		d := shards[i]
		plan.parts = append(plan.parts, part{desc: d, start: max(start, d.Start), end: min(archivedEnd, d.End)})
	}

	if liveStart := max(start, live.First()); liveStart < end {
		plan.live = live.Slice(liveStart, end)
	}
	return plan
}

// Fetch reads the planned entries in index order.
func (p RangePlan) Fetch(ctx context.Context) ([]transaction.Transaction, error) {
	var out []transaction.Transaction
	for _, pt := range p.parts {
		store, ok := p.stores[pt.desc.StoreID]
		if !ok {
			return nil, fmt.Errorf("shard %d references unknown store %q", pt.desc.ID, pt.desc.StoreID)
		}
		txs, err := store.ReadRange(ctx, pt.desc, pt.start, pt.end)
		if err != nil {
			return nil, fmt.Errorf("read shard %d: %w", pt.desc.ID, err)
		}
		if uint64(len(txs)) != pt.end-pt.start {
			return nil, fmt.Errorf("shard %d returned %d entries, want %d", pt.desc.ID, len(txs), pt.end-pt.start)
		}
		out = append(out, txs...)
	}
	return append(out, p.live...), nil
}

// Empty reports whether the plan resolves no entries.
func (p RangePlan) Empty() bool {
	return len(p.parts) == 0 && len(p.live) == 0
}
