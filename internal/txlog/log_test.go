package txlog

import (
	"context"
	"errors"
	"testing"

	"github.com/congo-pay/icrc_ledger/internal/archive"
	"github.com/congo-pay/icrc_ledger/internal/storage"
	"github.com/congo-pay/icrc_ledger/internal/storage/memory"
	"github.com/congo-pay/icrc_ledger/internal/transaction"
)

var _ archive.Segment = (*Log)(nil)

type failingJournal struct {
	*memory.Journal
	err error
}

func (f failingJournal) Append(ctx context.Context, tx transaction.Transaction) error {
	if f.err != nil {
		return f.err
	}
	return f.Journal.Append(ctx, tx)
}

func TestLogAppendAndCapacity(t *testing.T) {
	ctx := context.Background()
	l, err := Open(ctx, memory.NewJournal(), 0, 2)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	for i := uint64(0); i < 2; i++ {
		if err := l.Append(ctx, transaction.Transaction{Index: i}); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	if err := l.Append(ctx, transaction.Transaction{Index: 2}); !errors.Is(err, ErrLogFull) {
		t.Fatalf("expected ErrLogFull, got %v", err)
	}
	if err := l.Drop(ctx, 1); err != nil {
		t.Fatalf("drop: %v", err)
	}
	if err := l.Append(ctx, transaction.Transaction{Index: 5}); err == nil {
		t.Fatalf("expected out-of-order append to fail")
	}
	if err := l.Append(ctx, transaction.Transaction{Index: 2}); err != nil {
		t.Fatalf("append after drop: %v", err)
	}
	if l.First() != 1 || l.Next() != 3 {
		t.Fatalf("unexpected bounds first=%d next=%d", l.First(), l.Next())
	}
}

func TestLogJournalFailureLeavesLogUnchanged(t *testing.T) {
	ctx := context.Background()
	j := failingJournal{Journal: memory.NewJournal(), err: errors.New("disk gone")}
	l, err := Open(ctx, j, 0, 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := l.Append(ctx, transaction.Transaction{Index: 0}); err == nil {
		t.Fatalf("expected journal error")
	}
	if l.Len() != 0 {
		t.Fatalf("log must be unchanged, len=%d", l.Len())
	}
}

func TestOpenSkipsArchivedPrefix(t *testing.T) {
	ctx := context.Background()
	j := memory.NewJournal()
	for i := uint64(0); i < 6; i++ {
		_ = j.Append(ctx, transaction.Transaction{Index: i, Amount: i})
	}

	l, err := Open(ctx, j, 4, 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if l.Len() != 2 || l.First() != 4 {
		t.Fatalf("unexpected live segment first=%d len=%d", l.First(), l.Len())
	}
	if tx, ok := l.Get(5); !ok || tx.Amount != 5 {
		t.Fatalf("unexpected entry %+v ok=%v", tx, ok)
	}
	if _, ok := l.Get(3); ok {
		t.Fatalf("archived index must not be live")
	}
	if j.Len() != 2 {
		t.Fatalf("archived journal prefix must be truncated, len=%d", j.Len())
	}
}

func TestOpenRejectsGap(t *testing.T) {
	ctx := context.Background()
	j := memory.NewJournal()
	_ = j.Append(ctx, transaction.Transaction{Index: 0})
	_ = j.Append(ctx, transaction.Transaction{Index: 2})

	if _, err := Open(ctx, j, 0, 0); err == nil {
		t.Fatalf("expected gap error")
	}
	if _, err := Open(ctx, storage.Journal(memory.NewJournal()), 3, 0); err != nil {
		t.Fatalf("empty journal must open at any first index: %v", err)
	}
}

func TestSliceClamps(t *testing.T) {
	ctx := context.Background()
	l, _ := Open(ctx, memory.NewJournal(), 0, 0)
	for i := uint64(0); i < 4; i++ {
		_ = l.Append(ctx, transaction.Transaction{Index: i})
	}
	got := l.Slice(2, 100)
	if len(got) != 2 || got[0].Index != 2 {
		t.Fatalf("unexpected slice %+v", got)
	}
	if l.Slice(10, 20) != nil {
		t.Fatalf("expected empty slice past head")
	}
}
