// Package queue implements the update queue: a bounded FIFO of admitted
// Signal values awaiting fan-out, drained in a single batch by the
// dispatcher. A sync.Cond (rather than a channel) is used deliberately so
// that Drain can atomically take the entire pending backlog in one step,
// which the dispatcher's "wait, then drain everything" loop requires; a
// channel only gives one item per receive and would let new Pushes race
// into a batch that's still being assembled.
package queue

import (
	"sync"

	"github.com/signal-pubsub/server/internal/signal"
)

// Queue is a FIFO of admitted signals. The zero value is not usable;
// construct with New.
type Queue struct {
	mu       sync.Mutex
	cond     *sync.Cond
	items    []signal.Signal
	capacity int
	closed   bool
}

// New returns a Queue that applies backpressure once it holds capacity
// items. capacity <= 0 means unbounded.
func New(capacity int) *Queue {
	q := &Queue{capacity: capacity}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends s to the queue and wakes the dispatcher. If the queue is at
// capacity, Push blocks until space is available or the queue is closed, in
// which it returns false without enqueuing — this is the mechanism by which
// the queue applies backpressure to the producer path.
func (q *Queue) Push(s signal.Signal) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.capacity > 0 && len(q.items) >= q.capacity && !q.closed {
		q.cond.Wait()
	}
	if q.closed {
		return false
	}

	q.items = append(q.items, s)
	q.cond.Signal()
	return true
}

// Drain blocks until the queue is non-empty or closed, then returns and
// clears the entire pending backlog in one atomic step. A closed, empty
// queue returns (nil, false).
func (q *Queue) Drain() ([]signal.Signal, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 && q.closed {
		return nil, false
	}

	batch := q.items
	q.items = nil
	q.cond.Broadcast() // wake any Push blocked on capacity
	return batch, true
}

// Close wakes any blocked Push or Drain callers permanently. Idempotent.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.cond.Broadcast()
}

// Len reports the current backlog size, for metrics.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
