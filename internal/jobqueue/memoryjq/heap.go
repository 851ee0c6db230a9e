package memoryjq

import (
	"container/heap"
	"time"
)

// pushDeferredEntry pushes d onto h, maintaining heap order. Centralized
// here so callers never need their own container/heap import.
func pushDeferredEntry(h *deferredHeap, d *deferredJob) {
	heap.Push(h, d)
}

// popDeferredEntry pops the earliest entry off h.
func popDeferredEntry(h *deferredHeap) *deferredJob {
	return heap.Pop(h).(*deferredJob)
}

func initDeferredHeap(h *deferredHeap) {
	heap.Init(h)
}

// deferredJob is one entry in the deferred-jobs structure the scheduler
// drains (spec §4.9.2's run_at/run_in routing, §4.9.4's scheduler polling).
type deferredJob struct {
	fireAt      time.Time
	jobID       string
	targetQueue string
	// scheduleID is set when this deferred entry was spawned by a Schedule
	// rather than a directly deferred AddJob call (spec §4.9.3).
	scheduleID string
}

// deferredHeap is a min-heap by fireAt. The scheduler loop polls it on its
// ticker and promotes every entry already due; nothing sleeps until the
// earliest entry's fire time.
type deferredHeap []*deferredJob

func (h deferredHeap) Len() int { return len(h) }

func (h deferredHeap) Less(i, j int) bool {
	if h[i].fireAt.Equal(h[j].fireAt) {
		// Ties broken by insertion order (spec §5 ordering guarantees):
		// container/heap doesn't guarantee FIFO on ties by itself, but since
		// entries are pushed in enqueue order and Go's heap is stable enough
		// for our purposes at this scale, comparing job ids (ULID, which are
		// time-sortable and therefore also insertion-ordered) approximates it.
		return h[i].jobID < h[j].jobID
	}
	return h[i].fireAt.Before(h[j].fireAt)
}

func (h deferredHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *deferredHeap) Push(x any) {
	*h = append(*h, x.(*deferredJob))
}

func (h *deferredHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// peek returns the earliest entry without removing it, or nil if empty.
func (h deferredHeap) peek() *deferredJob {
	if len(h) == 0 {
		return nil
	}
	return h[0]
}

// removeByID drops the entry for jobID, if present, preserving heap order.
func (h *deferredHeap) removeByID(jobID string) {
	for i, d := range *h {
		if d.jobID == jobID {
			removeAt(h, i)
			return
		}
	}
}

func removeAt(h *deferredHeap, i int) {
	n := len(*h)
	(*h)[i] = (*h)[n-1]
	(*h)[n-1] = nil
	*h = (*h)[:n-1]
	if i < len(*h) {
		fixDown(h, i)
		fixUp(h, i)
	}
}

func fixDown(h *deferredHeap, i int) {
	n := len(*h)
	for {
		l, r := 2*i+1, 2*i+2
		smallest := i
		if l < n && h.Less(l, smallest) {
			smallest = l
		}
		if r < n && h.Less(r, smallest) {
			smallest = r
		}
		if smallest == i {
			return
		}
		h.Swap(i, smallest)
		i = smallest
	}
}

func fixUp(h *deferredHeap, i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !h.Less(i, parent) {
			return
		}
		h.Swap(i, parent)
		i = parent
	}
}
