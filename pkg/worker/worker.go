package worker

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"github.com/jzx17/wserver/internal/logging"
	"github.com/jzx17/wserver/pkg/types"
)

// WorkerState defines the state of a Worker
type WorkerState int32

const (
	// WorkerStateIdle represents idle worker state
	WorkerStateIdle WorkerState = iota
	// WorkerStateWorking represents working worker state
	WorkerStateWorking
	// WorkerStateStopped represents stopped worker state
	WorkerStateStopped
)

// String returns the string representation of WorkerState
func (ws WorkerState) String() string {
	switch ws {
	case WorkerStateIdle:
		return "idle"
	case WorkerStateWorking:
		return "working"
	case WorkerStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Handler serves one work item. The item is closed by the worker after the
// handler returns, so handlers must not retain it.
type Handler[T any] func(ctx context.Context, item T) error

// Queue is the consumer side of the hand-off queue
type Queue[T any] interface {
	// Dequeue blocks until an item is available, returning an error once the
	// queue is closed and drained
	Dequeue() (T, error)
	Close()
	Len() int
	Cap() int
}

// Worker repeatedly takes one item from the queue and serves it
type Worker[T io.Closer] struct {
	id      int
	state   int32 // atomic state
	queue   Queue[T]
	handler Handler[T]
	done    chan struct{}

	// statistics
	totalProcessed  int64
	totalFailed     int64
	releaseFailures int64
	lastItemTime    int64 // Unix nanosecond timestamp

	// error handling
	errorHandler types.ErrorHandler

	// pool callback for syncing statistics
	completionCallback func(time.Duration, bool)

	clock  types.Clock
	logger logr.Logger

	mu sync.RWMutex
}

// NewWorker creates a new Worker with default real clock
func NewWorker[T io.Closer](id int, queue Queue[T], handler Handler[T]) *Worker[T] {
	return NewWorkerWithClock(id, queue, handler, types.NewRealClock())
}

// NewWorkerWithClock creates a new Worker with specified clock
func NewWorkerWithClock[T io.Closer](id int, queue Queue[T], handler Handler[T], clock types.Clock) *Worker[T] {
	if clock == nil {
		clock = types.NewRealClock()
	}

	return &Worker[T]{
		id:      id,
		state:   int32(WorkerStateIdle),
		queue:   queue,
		handler: handler,
		done:    make(chan struct{}),
		clock:   clock,
		logger:  logr.Discard(),
	}
}

// ID returns the Worker ID
func (w *Worker[T]) ID() int {
	return w.id
}

// State returns the current Worker state
func (w *Worker[T]) State() WorkerState {
	return WorkerState(atomic.LoadInt32(&w.state))
}

// SetErrorHandler sets the error handler
func (w *Worker[T]) SetErrorHandler(handler types.ErrorHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.errorHandler = handler
}

// SetCompletionCallback sets the item completion callback
func (w *Worker[T]) SetCompletionCallback(callback func(time.Duration, bool)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.completionCallback = callback
}

// SetLogger sets the logger, tagged with the worker id
func (w *Worker[T]) SetLogger(logger logr.Logger) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.logger = logger.WithValues("worker", w.id)
}

// Run serves items until the queue is closed and drained. ctx is passed to
// the handler; cancelling it does not by itself stop the worker.
func (w *Worker[T]) Run(ctx context.Context) {
	defer close(w.done)
	defer atomic.StoreInt32(&w.state, int32(WorkerStateStopped))

	for {
		item, err := w.queue.Dequeue()
		if err != nil {
			w.log().V(logging.DEBUG).Info("Worker exiting", "reason", err.Error())
			return
		}
		w.processItem(ctx, item)
	}
}

// Done is closed once Run has returned
func (w *Worker[T]) Done() <-chan struct{} {
	return w.done
}

func (w *Worker[T]) log() logr.Logger {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.logger
}

// processItem serves and releases a single item
func (w *Worker[T]) processItem(ctx context.Context, item T) {
	atomic.StoreInt32(&w.state, int32(WorkerStateWorking))
	defer atomic.StoreInt32(&w.state, int32(WorkerStateIdle))

	startTime := w.clock.Now()
	atomic.StoreInt64(&w.lastItemTime, startTime.UnixNano())

	err := w.executeHandler(ctx, item)
	executionTime := w.clock.Since(startTime)

	w.release(item)

	failed := err != nil
	if failed {
		atomic.AddInt64(&w.totalFailed, 1)
		w.handleError(err)
	} else {
		atomic.AddInt64(&w.totalProcessed, 1)
	}

	w.mu.RLock()
	callback := w.completionCallback
	w.mu.RUnlock()

	if callback != nil {
		callback(executionTime, failed)
	}
}

// executeHandler runs the handler with panic recovery
func (w *Worker[T]) executeHandler(ctx context.Context, item T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			var buf [4096]byte
			n := runtime.Stack(buf[:], false)

			var cause error
			switch v := r.(type) {
			case error:
				cause = fmt.Errorf("panic: %w", v)
			default:
				cause = fmt.Errorf("panic: %v", v)
			}

			err = types.NewHandlerError(w.id, cause).
				WithContext("stack_trace", string(buf[:n]))
		}
	}()

	if err := w.handler(ctx, item); err != nil {
		return types.NewHandlerError(w.id, err)
	}
	return nil
}

// release closes the item; failures are counted and never stop the worker
func (w *Worker[T]) release(item T) {
	if err := item.Close(); err != nil {
		atomic.AddInt64(&w.releaseFailures, 1)
		w.log().V(logging.DEBUG).Info("Failed to release item", "error", err.Error())
	}
}

func (w *Worker[T]) handleError(err error) {
	logger := w.log()
	panicked := false
	if he, ok := err.(*types.HandlerError); ok {
		if stack, ok := he.Context["stack_trace"]; ok {
			panicked = true
			logger.Error(err, "Handler panicked", "stack", stack)
		}
	}

	w.mu.RLock()
	handler := w.errorHandler
	w.mu.RUnlock()

	if handler == nil {
		if !panicked {
			logger.V(logging.VERBOSE).Info("Handler failed", "error", err.Error())
		}
		return
	}
	if handledErr := handler(err); handledErr != nil {
		logger.Error(handledErr, "Error handler did not resolve handler failure")
	}
}

// Stats gets Worker statistics
func (w *Worker[T]) Stats() WorkerStats {
	var last time.Time
	if ns := atomic.LoadInt64(&w.lastItemTime); ns != 0 {
		last = time.Unix(0, ns)
	}
	return WorkerStats{
		ID:              w.id,
		State:           w.State(),
		TotalProcessed:  atomic.LoadInt64(&w.totalProcessed),
		TotalFailed:     atomic.LoadInt64(&w.totalFailed),
		ReleaseFailures: atomic.LoadInt64(&w.releaseFailures),
		LastItemTime:    last,
	}
}

// WorkerStats defines Worker statistics
type WorkerStats struct {
	ID              int
	State           WorkerState
	TotalProcessed  int64
	TotalFailed     int64
	ReleaseFailures int64
	LastItemTime    time.Time
}

// IsActive checks if Worker is active
func (ws WorkerStats) IsActive() bool {
	return ws.State == WorkerStateWorking
}

// IsIdle checks if Worker is idle
func (ws WorkerStats) IsIdle() bool {
	return ws.State == WorkerStateIdle
}

// GetSuccessRate gets the success rate
func (ws WorkerStats) GetSuccessRate() float64 {
	total := ws.TotalProcessed + ws.TotalFailed
	if total == 0 {
		return 0
	}
	return float64(ws.TotalProcessed) / float64(total)
}
