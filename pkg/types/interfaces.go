// Package types defines the types shared by the queue, the pool and the acceptor
package types

import (
	"time"
)

// QueueStats is a point-in-time snapshot of a bounded queue
type QueueStats struct {
	// Capacity is the fixed number of slots
	Capacity int

	// Len is the number of occupied slots
	Len int

	// Enqueued is the total number of items ever inserted
	Enqueued uint64

	// Dequeued is the total number of items ever removed
	Dequeued uint64

	// WaitingProducers is the number of callers blocked on a full queue
	WaitingProducers int

	// WaitingConsumers is the number of callers blocked on an empty queue
	WaitingConsumers int

	// Closed reports whether Close has been called
	Closed bool
}

// WorkerPoolStats defines basic statistics for worker pools
type WorkerPoolStats struct {
	// PoolSize is the size of the pool
	PoolSize int

	// ActiveWorkers is the number of workers currently running the handler
	ActiveWorkers int

	// QueueSize is the current number of items in the queue
	QueueSize int

	// QueueCapacity is the capacity of the queue
	QueueCapacity int

	// TotalProcessed is the number of items handled successfully
	TotalProcessed int64

	// TotalFailed is the number of items whose handler failed
	TotalFailed int64
}

// AcceptorStats defines statistics for the accept loop
type AcceptorStats struct {
	// Accepted is the number of connections pushed into the queue
	Accepted int64

	// AcceptErrors is the number of failed accept calls
	AcceptErrors int64

	// LastAccept is the time of the last successful accept
	LastAccept time.Time
}

// ErrorHandler receives every handler failure of the worker pool. A non-nil
// return means the failure was not resolved and is logged as such.
type ErrorHandler func(error) error
