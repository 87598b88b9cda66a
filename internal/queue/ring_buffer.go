// Package queue provides a bounded, thread-safe ring buffer that decouples
// log intake from detection. When the buffer is full new entries are dropped
// and counted rather than blocking the intake path.
package queue

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"livesec/internal/schema"
)

var (
	// ErrQueueFull is returned when pushing to a full queue.
	ErrQueueFull = errors.New("queue is full")
	// ErrQueueEmpty is returned when popping from an empty queue.
	ErrQueueEmpty = errors.New("queue is empty")
	// ErrQueueClosed is returned when using a closed queue.
	ErrQueueClosed = errors.New("queue is closed")
)

// EntryQueue is a circular buffer of log entries.
type EntryQueue struct {
	buffer []*schema.Entry
	size   int
	head   int
	tail   int
	count  int
	closed bool
	mu     sync.Mutex
	cond   *sync.Cond

	pushed  atomic.Uint64
	popped  atomic.Uint64
	dropped atomic.Uint64
}

// New creates an EntryQueue with the given capacity.
func New(size int) *EntryQueue {
	if size <= 0 {
		size = 10000
	}
	q := &EntryQueue{
		buffer: make([]*schema.Entry, size),
		size:   size,
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push adds an entry. Returns ErrQueueFull when at capacity; the caller
// decides whether to retry, shed, or surface the drop.
func (q *EntryQueue) Push(entry *schema.Entry) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	if q.count == q.size {
		q.dropped.Add(1)
		return ErrQueueFull
	}

	q.buffer[q.tail] = entry
	q.tail = (q.tail + 1) % q.size
	q.count++
	q.pushed.Add(1)

	q.cond.Signal()
	return nil
}

// Pop removes the oldest entry without blocking.
func (q *EntryQueue) Pop() (*schema.Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		return nil, ErrQueueEmpty
	}
	return q.popLocked(), nil
}

// PopBlocking removes the oldest entry, waiting until one is available or
// the queue is closed and drained.
func (q *EntryQueue) PopBlocking() (*schema.Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.count == 0 && !q.closed {
		q.cond.Wait()
	}
	if q.count == 0 {
		return nil, ErrQueueClosed
	}
	return q.popLocked(), nil
}

// PopWithTimeout removes the oldest entry, waiting up to timeout. Returns
// ErrQueueEmpty when the deadline passes with nothing to pop.
func (q *EntryQueue) PopWithTimeout(timeout time.Duration) (*schema.Entry, error) {
	deadline := time.Now().Add(timeout)

	q.mu.Lock()
	defer q.mu.Unlock()

	for q.count == 0 && !q.closed {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, ErrQueueEmpty
		}

		// Wake the cond after the remaining time so Wait cannot stall past
		// the deadline.
		timer := time.AfterFunc(remaining, func() {
			q.mu.Lock()
			q.cond.Broadcast()
			q.mu.Unlock()
		})
		q.cond.Wait()
		timer.Stop()
	}

	if q.count == 0 {
		if q.closed {
			return nil, ErrQueueClosed
		}
		return nil, ErrQueueEmpty
	}
	return q.popLocked(), nil
}

// popLocked removes the head entry. Callers must hold q.mu with count > 0.
func (q *EntryQueue) popLocked() *schema.Entry {
	entry := q.buffer[q.head]
	q.buffer[q.head] = nil
	q.head = (q.head + 1) % q.size
	q.count--
	q.popped.Add(1)
	return entry
}

// Len returns the number of queued entries.
func (q *EntryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Cap returns the queue capacity.
func (q *EntryQueue) Cap() int {
	return q.size
}

// Close wakes all blocked consumers. Queued entries may still be drained.
func (q *EntryQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

// Metrics holds queue counters for the metrics endpoint.
type Metrics struct {
	Pushed   uint64 `json:"pushed"`
	Popped   uint64 `json:"popped"`
	Dropped  uint64 `json:"dropped"`
	Depth    int    `json:"depth"`
	Capacity int    `json:"capacity"`
}

func (q *EntryQueue) Metrics() Metrics {
	return Metrics{
		Pushed:   q.pushed.Load(),
		Popped:   q.popped.Load(),
		Dropped:  q.dropped.Load(),
		Depth:    q.Len(),
		Capacity: q.size,
	}
}
