// Package timer implements the reactor's timer wheel (C4): insertion of
// timeouts, reporting the earliest deadline, and removing expired timers.
// It is a thin wrapper around container/heap giving O(log n) insertion and
// O(1) peek of the next deadline. There are no ordering guarantees across
// timers that expire simultaneously.
package timer

import (
	"container/heap"
	"time"
)

// ID identifies a previously inserted timer, for cancellation.
type ID uint64

type entry struct {
	id       ID
	deadline time.Time
	index    int // heap index, maintained by container/heap
}

type entryHeap []*entry

func (h entryHeap) Len() int { return len(h) }
func (h entryHeap) Less(i, j int) bool {
	return h[i].deadline.Before(h[j].deadline)
}
func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *entryHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Wheel is a min-heap of pending deadlines. The zero value is ready to use.
// Not safe for concurrent use; the reactor calls it only from its own
// goroutine.
type Wheel struct {
	h      entryHeap
	byID   map[ID]*entry
	nextID ID
}

func New() *Wheel {
	return &Wheel{byID: make(map[ID]*entry)}
}

// SetTimeout inserts a deadline of now+d and returns an ID that can be
// passed to Remove to cancel it before it fires.
func (w *Wheel) SetTimeout(d time.Duration, now time.Time) ID {
	if w.byID == nil {
		w.byID = make(map[ID]*entry)
	}
	w.nextID++
	e := &entry{id: w.nextID, deadline: now.Add(d)}
	heap.Push(&w.h, e)
	w.byID[e.id] = e
	return e.id
}

// Remove cancels a pending timer. A no-op if id is unknown (already fired
// or already removed).
func (w *Wheel) Remove(id ID) {
	e, ok := w.byID[id]
	if !ok {
		return
	}
	heap.Remove(&w.h, e.index)
	delete(w.byID, id)
}

// Len reports the number of pending timers.
func (w *Wheel) Len() int { return len(w.h) }

// NextExpiringFrom returns the duration until the earliest pending
// deadline, measured from now, and true. If there are no pending timers it
// returns (0, false).
func (w *Wheel) NextExpiringFrom(now time.Time) (time.Duration, bool) {
	if len(w.h) == 0 {
		return 0, false
	}
	d := w.h[0].deadline.Sub(now)
	if d < 0 {
		d = 0
	}
	return d, true
}

// RemoveExpiredBy removes every timer with deadline <= now and returns how
// many fired.
func (w *Wheel) RemoveExpiredBy(now time.Time) int {
	fired := 0
	for len(w.h) > 0 && !w.h[0].deadline.After(now) {
		e := heap.Pop(&w.h).(*entry)
		delete(w.byID, e.id)
		fired++
	}
	return fired
}
