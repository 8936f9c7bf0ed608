package floor

import (
	"container/heap"
	"time"
)

// expiryEntry schedules the removal of one floor item. Entries are never
// updated in place: a merge pushes a fresh entry and stale ones are skipped
// when popped.
type expiryEntry struct {
	id     string
	expiry time.Time
}

// expiryHeap is a min-heap of entries ordered by expiry time.
type expiryHeap []expiryEntry

func (h expiryHeap) Len() int { return len(h) }

func (h expiryHeap) Less(i, j int) bool {
	return h[i].expiry.Before(h[j].expiry)
}

func (h expiryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
}

func (h *expiryHeap) Push(x any) {
	*h = append(*h, x.(expiryEntry))
}

func (h *expiryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[0 : n-1]
	return e
}

func newExpiryHeap() *expiryHeap {
	h := &expiryHeap{}
	heap.Init(h)
	return h
}

// popDue extracts every entry whose expiry is not after now, earliest first.
func (h *expiryHeap) popDue(now time.Time) []expiryEntry {
	var due []expiryEntry
	for h.Len() > 0 {
		next := (*h)[0]
		if now.Before(next.expiry) {
			break
		}
		heap.Pop(h)
		due = append(due, next)
	}
	return due
}
