package scheduler

import "container/heap"

// tickKind distinguishes the two timers a subscription can have armed at
// once: its payment tick and (optionally) its reminder tick.
type tickKind string

const (
	tickPayment  tickKind = "payment"
	tickReminder tickKind = "reminder"
)

// armedKey identifies one armed timer slot. A subscription has at most one
// armedItem per kind.
type armedKey struct {
	subID string
	kind  tickKind
}

// armedItem is one entry in the fire-time index: a (subID, kind) pair
// ordered by the instant it is due to fire.
type armedItem struct {
	key    armedKey
	fireAt int64
	index  int // maintained by container/heap
}

// armedQueue is a min-heap on (fireAt, subID, kind), mirroring
// libs/store's dueQueue but keyed on armed timers rather than due
// subscriptions, and carrying a kind so payment and reminder ticks for the
// same subscription coexist. Ties break on subID (lexicographic), then
// kind, matching the timer fire-order rule.
type armedQueue []*armedItem

func (q armedQueue) Len() int { return len(q) }

func (q armedQueue) Less(i, j int) bool {
	if q[i].fireAt != q[j].fireAt {
		return q[i].fireAt < q[j].fireAt
	}
	if q[i].key.subID != q[j].key.subID {
		return q[i].key.subID < q[j].key.subID
	}
	return q[i].key.kind < q[j].key.kind
}

func (q armedQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *armedQueue) Push(x interface{}) {
	item := x.(*armedItem)
	item.index = len(*q)
	*q = append(*q, item)
}

func (q *armedQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*q = old[:n-1]
	return item
}

// armedIndex wraps armedQueue with by-key lookup, so Reschedule/Cancel can
// find and move an arbitrary timer without a linear scan.
type armedIndex struct {
	q     armedQueue
	items map[armedKey]*armedItem
}

func newArmedIndex() *armedIndex {
	idx := &armedIndex{items: make(map[armedKey]*armedItem)}
	heap.Init(&idx.q)
	return idx
}

// Upsert arms (or re-arms) the timer for key at fireAt.
func (idx *armedIndex) Upsert(key armedKey, fireAt int64) {
	if item, ok := idx.items[key]; ok {
		item.fireAt = fireAt
		heap.Fix(&idx.q, item.index)
		return
	}
	item := &armedItem{key: key, fireAt: fireAt}
	heap.Push(&idx.q, item)
	idx.items[key] = item
}

// Cancel disarms the timer for key, if armed.
func (idx *armedIndex) Cancel(key armedKey) {
	item, ok := idx.items[key]
	if !ok {
		return
	}
	heap.Remove(&idx.q, item.index)
	delete(idx.items, key)
}

// CancelSub disarms every timer (payment and reminder) for subID.
func (idx *armedIndex) CancelSub(subID string) {
	idx.Cancel(armedKey{subID: subID, kind: tickPayment})
	idx.Cancel(armedKey{subID: subID, kind: tickReminder})
}

// PeekReady pops (removing from the index) every entry whose fireAt <= now,
// in ascending fire-time/subID/kind order.
func (idx *armedIndex) PeekReady(now int64) []armedKey {
	var ready []*armedItem
	for idx.q.Len() > 0 && idx.q[0].fireAt <= now {
		item := heap.Pop(&idx.q).(*armedItem)
		delete(idx.items, item.key)
		ready = append(ready, item)
	}
	keys := make([]armedKey, len(ready))
	for i, item := range ready {
		keys[i] = item.key
	}
	return keys
}

// NextFireAt returns the earliest armed fire time and whether anything is
// armed at all.
func (idx *armedIndex) NextFireAt() (int64, bool) {
	if idx.q.Len() == 0 {
		return 0, false
	}
	return idx.q[0].fireAt, true
}

func (idx *armedIndex) Len() int { return idx.q.Len() }
