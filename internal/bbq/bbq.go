// Package bbq implements the bounded blocking queue that every pipeline
// stage in this repository is wired through: a fixed-capacity FIFO shared
// by multiple producers and a single (or multiple) consumer, with blocking
// enqueue/dequeue and an explicit disposal hook for whatever is still
// queued when the pipeline tears down.
//
// The shape mirrors an AsyncTx-style funnel and the sync.Cond-gated
// circular buffer used by a jpeg compression pool elsewhere in this
// ecosystem: a mutex, two condition variables (non-empty / non-full) and a
// slice used as a ring. Go's channels could express the non-blocking,
// drop-on-full case but not the "block until a slot is free" semantics this
// pipeline's backpressure depends on, so the primitive is hand-rolled.
package bbq

import (
	"sync"
	"time"

	"github.com/vistream/detectd/internal/metrics"
)

// Queue is a fixed-capacity FIFO of T, safe for concurrent use by any
// number of producers and consumers.
type Queue[T any] struct {
	mu       sync.Mutex
	notEmpty sync.Cond
	notFull  sync.Cond
	items    []T
	head     int
	count    int
	cap      int
	dispose  func(T)
	closed   bool
}

// New creates a Queue of the given capacity. dispose, if non-nil, is
// invoked on every item still queued when Close runs; it may be nil if T
// owns no resources worth releasing.
func New[T any](capacity int, dispose func(T)) *Queue[T] {
	if capacity <= 0 {
		capacity = 1
	}
	q := &Queue[T]{
		items:   make([]T, capacity),
		cap:     capacity,
		dispose: dispose,
	}
	q.notEmpty.L = &q.mu
	q.notFull.L = &q.mu
	return q
}

// Cap returns the queue's fixed capacity.
func (q *Queue[T]) Cap() int { return q.cap }

// Len returns the current occupancy. Intended for metrics sampling; the
// value may be stale by the time the caller observes it.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Enqueue blocks until a slot is free, then appends item at the tail.
// Enqueue on a closed queue is a no-op (the item is handed directly to the
// disposal hook) so a producer racing a shutdown never deadlocks.
func (q *Queue[T]) Enqueue(item T) {
	q.mu.Lock()
	if q.count == q.cap && !q.closed {
		blockStart := time.Now()
		for q.count == q.cap && !q.closed {
			q.notFull.Wait()
		}
		metrics.AddBackpressureBlocked(time.Since(blockStart))
	}
	if q.closed {
		q.mu.Unlock()
		if q.dispose != nil {
			q.dispose(item)
		}
		return
	}
	tail := (q.head + q.count) % q.cap
	q.items[tail] = item
	q.count++
	q.notEmpty.Signal()
	q.mu.Unlock()
}

// Dequeue blocks until an item is available and returns it. ok is false
// only once the queue has been closed and drained.
func (q *Queue[T]) Dequeue() (item T, ok bool) {
	q.mu.Lock()
	for q.count == 0 && !q.closed {
		q.notEmpty.Wait()
	}
	if q.count == 0 {
		q.mu.Unlock()
		return item, false
	}
	item = q.items[q.head]
	var zero T
	q.items[q.head] = zero
	q.head = (q.head + 1) % q.cap
	q.count--
	q.notFull.Signal()
	q.mu.Unlock()
	return item, true
}

// Close marks the queue closed and releases every still-enqueued item
// through the disposal hook. Blocked producers and consumers are woken:
// producers drop their item via dispose (see Enqueue), consumers observe
// ok==false. Close must not be called while a producer or consumer might
// still legitimately add or expect items beyond this point.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	var residue []T
	for q.count > 0 {
		residue = append(residue, q.items[q.head])
		var zero T
		q.items[q.head] = zero
		q.head = (q.head + 1) % q.cap
		q.count--
	}
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
	q.mu.Unlock()
	if q.dispose != nil {
		for _, item := range residue {
			q.dispose(item)
		}
	}
}
