package archive

import (
	"context"
	"errors"
	"testing"

	"github.com/congo-pay/icrc_ledger/internal/logging"
	"github.com/congo-pay/icrc_ledger/internal/storage"
	"github.com/congo-pay/icrc_ledger/internal/storage/memory"
	"github.com/congo-pay/icrc_ledger/internal/transaction"
)

// liveLog is a minimal Segment for exercising the manager in isolation.
type liveLog struct {
	first   uint64
	entries []transaction.Transaction
	dropErr error
}

func (l *liveLog) First() uint64 { return l.first }
func (l *liveLog) Len() uint64   { return uint64(len(l.entries)) }

func (l *liveLog) Slice(start, end uint64) []transaction.Transaction {
	start = max(start, l.first)
	end = min(end, l.first+l.Len())
	if start >= end {
		return nil
	}
	return append([]transaction.Transaction(nil), l.entries[start-l.first:end-l.first]...)
}

func (l *liveLog) Drop(_ context.Context, n uint64) error {
	l.entries = l.entries[n:]
	l.first += n
	return l.dropErr
}

func (l *liveLog) push(n int) {
	for i := 0; i < n; i++ {
		l.entries = append(l.entries, transaction.Transaction{Index: l.first + l.Len(), Amount: l.first + l.Len()})
	}
}

func newManager(t *testing.T, cfg Config, stores ...storage.ShardStore) (*Manager, *memory.Directory) {
	t.Helper()
	dir := memory.NewDirectory()
	m, err := Open(context.Background(), cfg, dir, stores, logging.Discard())
	if err != nil {
		t.Fatalf("open manager: %v", err)
	}
	return m, dir
}

func TestMaybeSealMovesOldestBlock(t *testing.T) {
	ctx := context.Background()
	m, dir := newManager(t, Config{TriggerThreshold: 4, NumBlocksToArchive: 3}, memory.NewShardStore("a", 0))
	live := &liveLog{}
	live.push(4)

	if sealed, err := m.MaybeSeal(ctx, live); err != nil || sealed {
		t.Fatalf("must not seal at threshold, sealed=%v err=%v", sealed, err)
	}

	live.push(1)
	sealed, err := m.MaybeSeal(ctx, live)
	if err != nil || !sealed {
		t.Fatalf("expected seal, sealed=%v err=%v", sealed, err)
	}
	if live.First() != 3 || live.Len() != 2 {
		t.Fatalf("live suffix must remain, first=%d len=%d", live.First(), live.Len())
	}

	persisted, _ := dir.List(ctx)
	if len(persisted) != 1 || persisted[0].Start != 0 || persisted[0].End != 3 || persisted[0].StoreID != "a" {
		t.Fatalf("unexpected directory %+v", persisted)
	}
	if m.End() != 3 {
		t.Fatalf("expected archive end 3, got %d", m.End())
	}
}

func TestSealFallsThroughFullStores(t *testing.T) {
	ctx := context.Background()
	small := memory.NewShardStore("small", 2)
	big := memory.NewShardStore("big", 0)
	m, _ := newManager(t, Config{TriggerThreshold: 0, NumBlocksToArchive: 2}, small, big)
	live := &liveLog{}

	live.push(2)
	if _, err := m.MaybeSeal(ctx, live); err != nil {
		t.Fatalf("first seal: %v", err)
	}
	live.push(2)
	if _, err := m.MaybeSeal(ctx, live); err != nil {
		t.Fatalf("second seal: %v", err)
	}

	shards := m.Shards()
	if len(shards) != 2 || shards[0].StoreID != "small" || shards[1].StoreID != "big" {
		t.Fatalf("unexpected shard placement %+v", shards)
	}
	if shards[1].ID != 1 || shards[1].Start != 2 {
		t.Fatalf("unexpected second shard %+v", shards[1])
	}
}

func TestSealFailureKeepsEntriesLive(t *testing.T) {
	ctx := context.Background()
	full := memory.NewShardStore("full", 1)
	m, _ := newManager(t, Config{TriggerThreshold: 1, NumBlocksToArchive: 2}, full)
	live := &liveLog{}
	live.push(3)

	_, err := m.MaybeSeal(ctx, live)
	if !errors.Is(err, ErrArchiveFull) {
		t.Fatalf("expected ErrArchiveFull, got %v", err)
	}
	if live.Len() != 3 || len(m.Shards()) != 0 {
		t.Fatalf("failed seal must not move entries, len=%d shards=%d", live.Len(), len(m.Shards()))
	}
}

func TestSealSurvivesJournalTruncateFailure(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t, Config{TriggerThreshold: 1, NumBlocksToArchive: 2}, memory.NewShardStore("a", 0))
	live := &liveLog{dropErr: errors.New("truncate failed")}
	live.push(3)

	sealed, err := m.MaybeSeal(ctx, live)
	if err != nil || !sealed {
		t.Fatalf("shard is durable, expected success: sealed=%v err=%v", sealed, err)
	}
	if live.First() != 2 {
		t.Fatalf("expected live first 2, got %d", live.First())
	}
}

func TestPlanRangeAcrossShardBoundaries(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t, Config{TriggerThreshold: 3, NumBlocksToArchive: 3}, memory.NewShardStore("a", 0))
	live := &liveLog{}
	for i := 0; i < 11; i++ {
		live.push(1)
		if _, err := m.MaybeSeal(ctx, live); err != nil {
			t.Fatalf("seal: %v", err)
		}
	}
	if len(m.Shards()) != 3 || live.First() != 9 {
		t.Fatalf("expected 3 shards and live from 9, got %d shards, first=%d", len(m.Shards()), live.First())
	}

	cases := []struct {
		start, count uint64
		want         []uint64
	}{
		{start: 0, count: 11, want: []uint64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10}},
		{start: 2, count: 3, want: []uint64{2, 3, 4}},
		{start: 5, count: 3, want: []uint64{5, 6, 7}},
		{start: 9, count: 100, want: []uint64{9, 10}},
		{start: 11, count: 5, want: nil},
		{start: 4, count: 0, want: nil},
	}
	for _, tc := range cases {
		got, err := m.PlanRange(live, tc.start, tc.count).Fetch(ctx)
		if err != nil {
			t.Fatalf("fetch [%d,+%d): %v", tc.start, tc.count, err)
		}
		if len(got) != len(tc.want) {
			t.Fatalf("range [%d,+%d): got %d entries, want %d", tc.start, tc.count, len(got), len(tc.want))
		}
		for i, tx := range got {
			if tx.Index != tc.want[i] {
				t.Fatalf("range [%d,+%d): entry %d has index %d, want %d", tc.start, tc.count, i, tx.Index, tc.want[i])
			}
		}
	}
}

func TestOpenValidatesDirectory(t *testing.T) {
	ctx := context.Background()
	dir := memory.NewDirectory()
	_ = dir.Append(ctx, storage.ShardDescriptor{ID: 0, Start: 0, End: 4, StoreID: "a"})
	_ = dir.Append(ctx, storage.ShardDescriptor{ID: 1, Start: 5, End: 8, StoreID: "a"})

	if _, err := Open(ctx, Config{NumBlocksToArchive: 1}, dir, []storage.ShardStore{memory.NewShardStore("a", 0)}, nil); err == nil {
		t.Fatalf("expected gap in directory to be rejected")
	}

	dir = memory.NewDirectory()
	_ = dir.Append(ctx, storage.ShardDescriptor{ID: 0, Start: 0, End: 4, StoreID: "missing"})
	if _, err := Open(ctx, Config{NumBlocksToArchive: 1}, dir, []storage.ShardStore{memory.NewShardStore("a", 0)}, nil); err == nil {
		t.Fatalf("expected unknown store to be rejected")
	}
}

// flakyDirectory fails Append while failing is set.
type flakyDirectory struct {
	*memory.Directory
	failing bool
}

func (d *flakyDirectory) Append(ctx context.Context, desc storage.ShardDescriptor) error {
	if d.failing {
		return errors.New("directory unavailable")
	}
	return d.Directory.Append(ctx, desc)
}

func TestSealRetryAfterDirectoryFailureKeepsEveryEntry(t *testing.T) {
	ctx := context.Background()
	dir := &flakyDirectory{Directory: memory.NewDirectory(), failing: true}
	store := memory.NewShardStore("a", 0)
	m, err := Open(ctx, Config{TriggerThreshold: 0, NumBlocksToArchive: 10}, dir, []storage.ShardStore{store}, logging.Discard())
	if err != nil {
		t.Fatalf("open manager: %v", err)
	}
	live := &liveLog{}
	live.push(2)

	if _, err := m.MaybeSeal(ctx, live); err == nil {
		t.Fatalf("expected directory failure to fail the seal")
	}
	if live.Len() != 2 || len(m.Shards()) != 0 {
		t.Fatalf("failed seal must not move entries, len=%d shards=%d", live.Len(), len(m.Shards()))
	}

	// The live log grows before the retry; the retry may only claim what the
	// store already holds for this shard id.
	live.push(1)
	dir.failing = false
	sealed, err := m.MaybeSeal(ctx, live)
	if err != nil || !sealed {
		t.Fatalf("retry: sealed=%v err=%v", sealed, err)
	}
	shards := m.Shards()
	if len(shards) != 1 || shards[0].Start != 0 || shards[0].End != 2 {
		t.Fatalf("expected shard [0, 2), got %+v", shards)
	}
	if live.First() != 2 || live.Len() != 1 {
		t.Fatalf("index 2 must stay live, first=%d len=%d", live.First(), live.Len())
	}

	got, err := m.PlanRange(live, 0, 3).Fetch(ctx)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(got))
	}
	for i, tx := range got {
		if tx.Index != uint64(i) {
			t.Fatalf("entry %d has index %d", i, tx.Index)
		}
	}

	if sealed, err := m.MaybeSeal(ctx, live); err != nil || !sealed {
		t.Fatalf("next seal: sealed=%v err=%v", sealed, err)
	}
	if shards := m.Shards(); len(shards) != 2 || shards[1].Start != 2 || shards[1].End != 3 {
		t.Fatalf("unexpected shards %+v", shards)
	}
}

func TestSealRejectsConflictingStoredShard(t *testing.T) {
	ctx := context.Background()
	store := memory.NewShardStore("a", 0)
	stray := storage.ShardDescriptor{ID: 0, Start: 7, End: 9}
	if err := store.WriteShard(ctx, stray, []transaction.Transaction{{Index: 7}, {Index: 8}}); err != nil {
		t.Fatalf("write stray shard: %v", err)
	}
	m, _ := newManager(t, Config{TriggerThreshold: 0, NumBlocksToArchive: 2}, store)
	live := &liveLog{}
	live.push(2)

	if _, err := m.MaybeSeal(ctx, live); err == nil {
		t.Fatalf("expected conflicting shard to fail the seal")
	}
	if live.Len() != 2 || len(m.Shards()) != 0 {
		t.Fatalf("failed seal must not move entries, len=%d shards=%d", live.Len(), len(m.Shards()))
	}
}
