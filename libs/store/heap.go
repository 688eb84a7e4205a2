package store

import "container/heap"

// dueItem is one entry in the next-execution index: a SubId ordered by the
// instant its subscription is next due to fire.
type dueItem struct {
	subID           string
	nextExecutionAt int64
	index           int // maintained by container/heap
}

// dueQueue is a min-heap on (nextExecutionAt, subID), with ties broken on
// SubId so pop order stays deterministic. PeekDue and Next do not pop: each
// call scans the whole heap slice and sorts the result, O(N) or more per call.
type dueQueue []*dueItem

func (q dueQueue) Len() int { return len(q) }

func (q dueQueue) Less(i, j int) bool {
	if q[i].nextExecutionAt != q[j].nextExecutionAt {
		return q[i].nextExecutionAt < q[j].nextExecutionAt
	}
	return q[i].subID < q[j].subID
}

func (q dueQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *dueQueue) Push(x interface{}) {
	item := x.(*dueItem)
	item.index = len(*q)
	*q = append(*q, item)
}

func (q *dueQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*q = old[:n-1]
	return item
}

// dueIndex wraps dueQueue with the bookkeeping needed to update or remove an
// arbitrary subscription's position, which a bare container/heap does not
// give you for free.
type dueIndex struct {
	q     dueQueue
	items map[string]*dueItem
}

func newDueIndex() *dueIndex {
	idx := &dueIndex{items: make(map[string]*dueItem)}
	heap.Init(&idx.q)
	return idx
}

// Upsert places subID at nextExecutionAt, moving it if already indexed.
func (idx *dueIndex) Upsert(subID string, nextExecutionAt int64) {
	if item, ok := idx.items[subID]; ok {
		item.nextExecutionAt = nextExecutionAt
		heap.Fix(&idx.q, item.index)
		return
	}
	item := &dueItem{subID: subID, nextExecutionAt: nextExecutionAt}
	heap.Push(&idx.q, item)
	idx.items[subID] = item
}

// Remove drops subID from the index, if present.
func (idx *dueIndex) Remove(subID string) {
	item, ok := idx.items[subID]
	if !ok {
		return
	}
	heap.Remove(&idx.q, item.index)
	delete(idx.items, subID)
}

// PeekDue returns up to limit SubIds whose nextExecutionAt <= now, ascending,
// without removing them from the index.
func (idx *dueIndex) PeekDue(now int64, limit int) []string {
	out := make([]string, 0, limit)
	for _, item := range idx.q {
		if item.nextExecutionAt <= now {
			out = append(out, item.subID)
		}
	}
	sortDueItems(out, idx)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Next returns up to limit SubIds in ascending nextExecutionAt order,
// regardless of whether they are currently due.
func (idx *dueIndex) Next(limit int) []string {
	items := make([]*dueItem, len(idx.q))
	copy(items, idx.q)
	out := make([]string, 0, limit)
	for _, item := range items {
		out = append(out, item.subID)
	}
	sortDueItems(out, idx)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func sortDueItems(subIDs []string, idx *dueIndex) {
	// Small N per call (bounded by limit/active-set size); a plain
	// insertion sort on the already-mostly-ordered heap slice avoids
	// pulling in sort.Slice's reflection overhead for the common case.
	for i := 1; i < len(subIDs); i++ {
		j := i
		for j > 0 {
			a, b := idx.items[subIDs[j-1]], idx.items[subIDs[j]]
			if a.nextExecutionAt < b.nextExecutionAt || (a.nextExecutionAt == b.nextExecutionAt && a.subID < b.subID) {
				break
			}
			subIDs[j-1], subIDs[j] = subIDs[j], subIDs[j-1]
			j--
		}
	}
}

func (idx *dueIndex) Len() int { return len(idx.q) }
