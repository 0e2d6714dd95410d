// Package queue carries readings from one producer to one consumer without
// coupling their cadences.
package queue

import (
	"sync"
	"sync/atomic"
)

// Handoff is a bounded FIFO with exactly one producer and one consumer.
// Push never blocks and never drops: a full queue is reported to the
// producer as ErrQueueFull.
type Handoff[T any] struct {
	items chan T

	closeOnce sync.Once
	closeMu   sync.RWMutex // guards closed against a concurrent Push
	closed    bool

	pushed    atomic.Uint64
	popped    atomic.Uint64
	highWater atomic.Int64
}

// NewHandoff creates a queue holding up to capacity items. A non-positive
// capacity selects DefaultCapacity.
func NewHandoff[T any](capacity int) *Handoff[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Handoff[T]{
		items: make(chan T, capacity),
	}
}

// Push appends v to the queue.
func (q *Handoff[T]) Push(v T) error {
	q.closeMu.RLock()
	defer q.closeMu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.items <- v:
		q.pushed.Add(1)
		q.trackHighWater(len(q.items))
		return nil
	default:
		return ErrQueueFull
	}
}

// TryPop removes the oldest item if one is ready.
func (q *Handoff[T]) TryPop() (T, bool) {
	select {
	case v, ok := <-q.items:
		if !ok {
			var zero T
			return zero, false
		}
		q.popped.Add(1)
		return v, true
	default:
		var zero T
		return zero, false
	}
}

// Close stops further pushes. Items already queued can still be popped.
func (q *Handoff[T]) Close() {
	q.closeOnce.Do(func() {
		q.closeMu.Lock()
		q.closed = true
		q.closeMu.Unlock()
	})
}

// Len returns the number of queued items.
func (q *Handoff[T]) Len() int {
	return len(q.items)
}

// Cap returns the queue capacity.
func (q *Handoff[T]) Cap() int {
	return cap(q.items)
}

// Stats returns queue counters.
func (q *Handoff[T]) Stats() Stats {
	q.closeMu.RLock()
	closed := q.closed
	q.closeMu.RUnlock()

	return Stats{
		Len:       len(q.items),
		Cap:       cap(q.items),
		Pushed:    q.pushed.Load(),
		Popped:    q.popped.Load(),
		HighWater: int(q.highWater.Load()),
		Closed:    closed,
	}
}

func (q *Handoff[T]) trackHighWater(n int) {
	for {
		cur := q.highWater.Load()
		if int64(n) <= cur || q.highWater.CompareAndSwap(cur, int64(n)) {
			return
		}
	}
}
