package ledger

import (
	"container/heap"
	"time"

	"github.com/congo-pay/icrc_ledger/internal/account"
)

type allowanceKey struct {
	owner   account.Key
	spender account.Key
}

type allowance struct {
	amount    uint64
	expiresAt *time.Time
}

func (a allowance) active(now time.Time) bool {
	return a.expiresAt == nil || now.Before(*a.expiresAt)
}

// allowances holds approvals. Expired records read as zero and are removed
// on the next mutation touching them or by prune. The expiry queue holds at
// most one item per record that has an expiry.
type allowances struct {
	records map[allowanceKey]allowance
	expiry  expiryQueue
}

func newAllowances() *allowances {
	return &allowances{
		records: make(map[allowanceKey]allowance),
		expiry:  expiryQueue{pos: make(map[allowanceKey]int)},
	}
}

// get returns the active allowance, zero if absent or expired.
func (a *allowances) get(k allowanceKey, now time.Time) allowance {
	rec, ok := a.records[k]
	if !ok || !rec.active(now) {
		return allowance{}
	}
	return rec
}

// lookup returns the stored record regardless of expiry.
func (a *allowances) lookup(k allowanceKey) (allowance, bool) {
	rec, ok := a.records[k]
	return rec, ok
}

// put stores rec. A zero amount deletes the record.
func (a *allowances) put(k allowanceKey, rec allowance) {
	if rec.amount == 0 {
		a.remove(k)
		return
	}
	a.records[k] = rec
	a.track(k, rec.expiresAt)
}

// restore reinstates a record observed before a mutation.
func (a *allowances) restore(k allowanceKey, rec allowance, existed bool) {
	if !existed {
		a.remove(k)
		return
	}
	a.records[k] = rec
	a.track(k, rec.expiresAt)
}

func (a *allowances) remove(k allowanceKey) {
	delete(a.records, k)
	a.track(k, nil)
}

// track keeps the queue item of k in line with its expiry.
func (a *allowances) track(k allowanceKey, at *time.Time) {
	idx, queued := a.expiry.pos[k]
	switch {
	case at == nil && queued:
		heap.Remove(&a.expiry, idx)
	case at == nil:
	case queued:
		a.expiry.items[idx].at = *at
		heap.Fix(&a.expiry, idx)
	default:
		heap.Push(&a.expiry, expiryItem{key: k, at: *at})
	}
}

func (a *allowances) consume(k allowanceKey, amount uint64, now time.Time) error {
	rec := a.get(k, now)
	rest, ok := subAmount(rec.amount, amount)
	if !ok {
		return &Error{Err: ErrInsufficientAllowance, Allowance: rec.amount}
	}
	if amount == 0 {
		return nil
	}
	rec.amount = rest
	a.put(k, rec)
	return nil
}

// prune removes up to limit records that expired by now, oldest first.
func (a *allowances) prune(now time.Time, limit int) int {
	removed := 0
	for removed < limit && a.expiry.Len() > 0 && !now.Before(a.expiry.items[0].at) {
		item := heap.Pop(&a.expiry).(expiryItem)
		delete(a.records, item.key)
		removed++
	}
	return removed
}

type expiryItem struct {
	key allowanceKey
	at  time.Time
}

// expiryQueue is a min-heap on expiry time indexed by key.
type expiryQueue struct {
	items []expiryItem
	pos   map[allowanceKey]int
}

func (q *expiryQueue) Len() int           { return len(q.items) }
func (q *expiryQueue) Less(i, j int) bool { return q.items[i].at.Before(q.items[j].at) }

func (q *expiryQueue) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
	q.pos[q.items[i].key] = i
	q.pos[q.items[j].key] = j
}

func (q *expiryQueue) Push(x any) {
	item := x.(expiryItem)
	q.pos[item.key] = len(q.items)
	q.items = append(q.items, item)
}

func (q *expiryQueue) Pop() any {
	n := len(q.items)
	item := q.items[n-1]
	q.items = q.items[:n-1]
	delete(q.pos, item.key)
	return item
}
