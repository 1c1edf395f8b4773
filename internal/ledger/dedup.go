package ledger

import (
	"container/heap"
	"time"

	"github.com/congo-pay/icrc_ledger/internal/transaction"
)

type dedupEntry struct {
	hash      transaction.Hash
	index     uint64
	createdAt time.Time
}

// dedupWindow remembers recent request hashes, oldest created_at first.
type dedupWindow struct {
	byHash map[transaction.Hash]uint64
	order  dedupQueue
}

func newDedupWindow() *dedupWindow {
	return &dedupWindow{byHash: make(map[transaction.Hash]uint64)}
}

func (w *dedupWindow) lookup(h transaction.Hash) (uint64, bool) {
	index, ok := w.byHash[h]
	return index, ok
}

func (w *dedupWindow) insert(h transaction.Hash, index uint64, createdAt time.Time) {
	if _, ok := w.byHash[h]; ok {
		return
	}
	w.byHash[h] = index
	heap.Push(&w.order, dedupEntry{hash: h, index: index, createdAt: createdAt})
}

// prune forgets every request created before horizon.
func (w *dedupWindow) prune(horizon time.Time) {
	for w.order.Len() > 0 && w.order[0].createdAt.Before(horizon) {
		entry := heap.Pop(&w.order).(dedupEntry)
		delete(w.byHash, entry.hash)
	}
}

func (w *dedupWindow) len() int { return len(w.byHash) }

type dedupQueue []dedupEntry

func (q dedupQueue) Len() int           { return len(q) }
func (q dedupQueue) Less(i, j int) bool { return q[i].createdAt.Before(q[j].createdAt) }
func (q dedupQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *dedupQueue) Push(x any)        { *q = append(*q, x.(dedupEntry)) }
func (q *dedupQueue) Pop() any {
	old := *q
	n := len(old)
	entry := old[n-1]
	*q = old[:n-1]
	return entry
}
