// Package queue provides a fixed-capacity blocking FIFO used to hand accepted
// connections from the acceptor to the worker pool.
//
// BoundedQueue is a ring buffer guarded by one mutex and two condition
// variables: notEmpty wakes consumers, notFull wakes producers. Every wait is a
// loop that re-tests its condition after waking, so spurious wake-ups and
// several waiters racing for one slot never read an empty slot or overwrite an
// unread one.
package queue

import (
	"sync"

	"github.com/jzx17/wserver/pkg/types"
)

// BoundedQueue is a blocking ring buffer of capacity fixed at construction
type BoundedQueue[T any] struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond

	// ring state, guarded by mu
	buf   []T
	head  int
	tail  int
	count int

	closed bool

	// statistics, guarded by mu
	enqueued         uint64
	dequeued         uint64
	waitingProducers int
	waitingConsumers int
}

// New creates a queue holding at most capacity items
func New[T any](capacity int) (*BoundedQueue[T], error) {
	if capacity <= 0 {
		return nil, types.ConfigError("queue capacity must be positive, got %d", capacity)
	}

	q := &BoundedQueue[T]{
		buf: make([]T, capacity),
	}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return q, nil
}

// Enqueue appends item at the tail, blocking while the queue is full.
// It returns ErrQueueClosed if the queue is closed before a slot frees up.
func (q *BoundedQueue[T]) Enqueue(item T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.count == len(q.buf) && !q.closed {
		q.waitingProducers++
		q.notFull.Wait()
		q.waitingProducers--
	}
	if q.closed {
		return types.ErrQueueClosed
	}

	q.buf[q.tail] = item
	q.tail = (q.tail + 1) % len(q.buf)
	q.count++
	q.enqueued++

	// one new item can satisfy at most one consumer
	q.notEmpty.Signal()
	return nil
}

// Dequeue removes the item at the head, blocking while the queue is empty.
// Items still buffered when the queue is closed are handed out first;
// ErrQueueClosed is returned only once the queue is closed and empty.
func (q *BoundedQueue[T]) Dequeue() (T, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.count == 0 && !q.closed {
		q.waitingConsumers++
		q.notEmpty.Wait()
		q.waitingConsumers--
	}
	if q.count == 0 {
		var zero T
		return zero, types.ErrQueueClosed
	}

	var zero T
	item := q.buf[q.head]
	q.buf[q.head] = zero
	q.head = (q.head + 1) % len(q.buf)
	q.count--
	q.dequeued++

	q.notFull.Signal()
	return item, nil
}

// Close stops the queue. Blocked producers return ErrQueueClosed, blocked
// consumers drain the remaining items and then return ErrQueueClosed.
// Calling Close more than once has no further effect.
func (q *BoundedQueue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
}

// IsClosed reports whether Close has been called
func (q *BoundedQueue[T]) IsClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Len returns the number of buffered items
func (q *BoundedQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Cap returns the fixed capacity
func (q *BoundedQueue[T]) Cap() int {
	return len(q.buf)
}

// FreeSlots returns how many more items can be enqueued before the queue is full
func (q *BoundedQueue[T]) FreeSlots() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return uint64(len(q.buf) - q.count)
}

// UsedSlots returns how many items are currently queued
func (q *BoundedQueue[T]) UsedSlots() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return uint64(q.count)
}

// Stats returns a consistent snapshot of the queue state
func (q *BoundedQueue[T]) Stats() types.QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()

	return types.QueueStats{
		Capacity:         len(q.buf),
		Len:              q.count,
		Enqueued:         q.enqueued,
		Dequeued:         q.dequeued,
		WaitingProducers: q.waitingProducers,
		WaitingConsumers: q.waitingConsumers,
		Closed:           q.closed,
	}
}
