package worker

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"github.com/jzx17/wserver/pkg/types"
)

// PoolConfig defines configuration for the worker pool
type PoolConfig struct {
	// PoolSize is the number of workers, fixed for the life of the pool
	PoolSize int

	// Clock for time operations (optional, defaults to real clock)
	Clock types.Clock

	// Logger receives worker lifecycle and failure logs (optional)
	Logger logr.Logger

	// ErrorHandler is called with every handler failure (optional)
	ErrorHandler types.ErrorHandler

	// CompletionCallback is called after every item with the handler
	// duration and whether it failed (optional)
	CompletionCallback func(time.Duration, bool)
}

// DefaultPoolConfig returns default configuration
func DefaultPoolConfig() *PoolConfig {
	return &PoolConfig{
		PoolSize: 10,
		Clock:    types.NewRealClock(),
		Logger:   logr.Discard(),
	}
}

const (
	poolStateNew int32 = iota
	poolStateRunning
	poolStateStopped
)

// Pool is a fixed set of workers consuming one queue
type Pool[T io.Closer] struct {
	config  *PoolConfig
	queue   Queue[T]
	workers []*Worker[T]

	state int32
	done  chan struct{}
}

// NewPool creates a pool of config.PoolSize workers serving items from queue
// with handler. The workers are created idle; Start launches them.
func NewPool[T io.Closer](config *PoolConfig, queue Queue[T], handler Handler[T]) (*Pool[T], error) {
	if config == nil {
		config = DefaultPoolConfig()
	}

	if config.PoolSize <= 0 {
		return nil, types.ConfigError("pool size must be positive, got %d", config.PoolSize)
	}
	if queue == nil {
		return nil, types.ConfigError("queue cannot be nil")
	}
	if handler == nil {
		return nil, types.ConfigError("handler cannot be nil")
	}

	if config.Clock == nil {
		config.Clock = types.NewRealClock()
	}
	if config.Logger.GetSink() == nil {
		config.Logger = logr.Discard()
	}

	pool := &Pool[T]{
		config:  config,
		queue:   queue,
		workers: make([]*Worker[T], config.PoolSize),
		done:    make(chan struct{}),
	}

	for i := 0; i < config.PoolSize; i++ {
		worker := NewWorkerWithClock(i, queue, handler, config.Clock)
		worker.SetLogger(config.Logger)
		if config.ErrorHandler != nil {
			worker.SetErrorHandler(config.ErrorHandler)
		}
		if config.CompletionCallback != nil {
			worker.SetCompletionCallback(config.CompletionCallback)
		}
		pool.workers[i] = worker
	}

	return pool, nil
}

// Start launches every worker. When ctx is cancelled the pool closes the
// queue; workers finish what is buffered and exit.
func (p *Pool[T]) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&p.state, poolStateNew, poolStateRunning) {
		if atomic.LoadInt32(&p.state) == poolStateRunning {
			return types.ErrPoolRunning
		}
		return fmt.Errorf("%w: pool cannot be restarted", types.ErrPoolNotRunning)
	}

	var wg sync.WaitGroup
	for _, worker := range p.workers {
		wg.Add(1)
		go func(w *Worker[T]) {
			defer wg.Done()
			w.Run(ctx)
		}(worker)
	}

	go func() {
		wg.Wait()
		atomic.StoreInt32(&p.state, poolStateStopped)
		close(p.done)
	}()

	go func() {
		select {
		case <-ctx.Done():
			p.queue.Close()
		case <-p.done:
		}
	}()

	p.config.Logger.Info("Worker pool started", "workers", len(p.workers), "queueCapacity", p.queue.Cap())
	return nil
}

// Stop closes the queue and waits until every worker has drained it and
// exited, or until ctx is done
func (p *Pool[T]) Stop(ctx context.Context) error {
	if atomic.LoadInt32(&p.state) == poolStateNew {
		return types.ErrPoolNotRunning
	}

	p.queue.Close()

	select {
	case <-p.done:
		p.config.Logger.Info("Worker pool stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for workers to drain: %w", ctx.Err())
	}
}

// Wait blocks until all workers have exited
func (p *Pool[T]) Wait() {
	<-p.done
}

// Done is closed once all workers have exited
func (p *Pool[T]) Done() <-chan struct{} {
	return p.done
}

// Size returns the worker pool size
func (p *Pool[T]) Size() int {
	return p.config.PoolSize
}

// Stats gets basic worker pool statistics
func (p *Pool[T]) Stats() types.WorkerPoolStats {
	stats := types.WorkerPoolStats{
		PoolSize:      p.config.PoolSize,
		QueueSize:     p.queue.Len(),
		QueueCapacity: p.queue.Cap(),
	}

	for _, worker := range p.workers {
		ws := worker.Stats()
		if ws.IsActive() {
			stats.ActiveWorkers++
		}
		stats.TotalProcessed += ws.TotalProcessed
		stats.TotalFailed += ws.TotalFailed
	}

	return stats
}

// ActiveWorkers returns how many workers are running the handler right now
func (p *Pool[T]) ActiveWorkers() int {
	active := 0
	for _, worker := range p.workers {
		if worker.State() == WorkerStateWorking {
			active++
		}
	}
	return active
}

// WorkerStats gets statistics of all Workers
func (p *Pool[T]) WorkerStats() []WorkerStats {
	stats := make([]WorkerStats, len(p.workers))
	for i, worker := range p.workers {
		stats[i] = worker.Stats()
	}
	return stats
}

// IsRunning checks if the worker pool is running
func (p *Pool[T]) IsRunning() bool {
	return atomic.LoadInt32(&p.state) == poolStateRunning
}
