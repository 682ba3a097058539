package retry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/jzx17/wserver/internal/logging"
	"github.com/jzx17/wserver/pkg/types"
)

// RetryExecutor implements retry execution logic
type RetryExecutor struct {
	policy       RetryPolicy
	eventHandler EventHandler
	stats        RetryStats
	clock        types.Clock
}

// ExecuteFunc is the function type to retry
type ExecuteFunc[T any] func(ctx context.Context) (T, error)

// RetryStats contains retry statistics
type RetryStats struct {
	TotalAttempts   int64         // total attempt count
	TotalRetries    int64         // operations that needed more than one attempt
	TotalSuccesses  int64         // total success count
	TotalFailures   int64         // total failure count
	LastRetryTime   time.Time     // last retry time
	TotalRetryDelay time.Duration // total retry delay time
	mu              sync.RWMutex
}

// EventHandler handles retry events
type EventHandler interface {
	OnRetryAttempt(ctx context.Context, name string, attempt int, err error, delay time.Duration)
	OnRetrySuccess(ctx context.Context, name string, attempt int, duration time.Duration)
	OnRetryFailure(ctx context.Context, name string, attempt int, err error)
	OnMaxAttemptsReached(ctx context.Context, name string, attempt int, err error)
}

// NewRetryExecutor creates a retry executor
func NewRetryExecutor(policy RetryPolicy, opts ...ExecutorOption) *RetryExecutor {
	executor := &RetryExecutor{
		policy: policy,
		clock:  types.NewRealClock(),
	}

	for _, opt := range opts {
		opt(executor)
	}

	return executor
}

// ExecuteWithName executes a function with retry logic, name identifies the
// operation in events
func ExecuteWithName[T any](r *RetryExecutor, ctx context.Context, name string, fn ExecuteFunc[T]) (T, error) {
	var zero T
	attempt := 0

	r.policy.Reset()

	for {
		attempt++

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		default:
		}

		r.updateStats(func(stats *RetryStats) {
			stats.TotalAttempts++
		})

		executeStart := r.clock.Now()
		result, err := fn(ctx)
		executeDuration := r.clock.Since(executeStart)

		if err == nil {
			r.updateStats(func(stats *RetryStats) {
				stats.TotalSuccesses++
				if attempt > 1 {
					stats.TotalRetries++
				}
			})

			if r.eventHandler != nil && attempt > 1 {
				r.eventHandler.OnRetrySuccess(ctx, name, attempt, executeDuration)
			}

			return result, nil
		}

		if !r.policy.ShouldRetry(err, attempt) {
			r.updateStats(func(stats *RetryStats) {
				stats.TotalFailures++
				if attempt > 1 {
					stats.TotalRetries++
				}
			})

			if r.eventHandler != nil {
				if attempt >= r.policy.MaxAttempts() {
					r.eventHandler.OnMaxAttemptsReached(ctx, name, attempt, err)
				} else {
					r.eventHandler.OnRetryFailure(ctx, name, attempt, err)
				}
			}

			return zero, fmt.Errorf("%s failed after %d attempt(s): %w", name, attempt, err)
		}

		delay := r.policy.NextDelay(attempt)

		r.updateStats(func(stats *RetryStats) {
			stats.LastRetryTime = r.clock.Now()
			stats.TotalRetryDelay += delay
		})

		if r.eventHandler != nil {
			r.eventHandler.OnRetryAttempt(ctx, name, attempt, err, delay)
		}

		if delay > 0 {
			timer := r.clock.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, ctx.Err()
			case <-timer.C():
			}
		}
	}
}

// GetStats gets retry statistics
func (r *RetryExecutor) GetStats() RetryStats {
	r.stats.mu.RLock()
	defer r.stats.mu.RUnlock()
	return RetryStats{
		TotalAttempts:   r.stats.TotalAttempts,
		TotalRetries:    r.stats.TotalRetries,
		TotalSuccesses:  r.stats.TotalSuccesses,
		TotalFailures:   r.stats.TotalFailures,
		LastRetryTime:   r.stats.LastRetryTime,
		TotalRetryDelay: r.stats.TotalRetryDelay,
	}
}

func (r *RetryExecutor) updateStats(fn func(*RetryStats)) {
	r.stats.mu.Lock()
	defer r.stats.mu.Unlock()
	fn(&r.stats)
}

// ExecutorOption is a configuration option for retry executor
type ExecutorOption func(*RetryExecutor)

// WithEventHandler sets the event handler
func WithEventHandler(handler EventHandler) ExecutorOption {
	return func(r *RetryExecutor) {
		r.eventHandler = handler
	}
}

// WithClock sets the clock for time operations
func WithClock(clock types.Clock) ExecutorOption {
	return func(r *RetryExecutor) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// LogEventHandler writes retry events to a logr.Logger
type LogEventHandler struct {
	logger logr.Logger
}

// NewLogEventHandler creates an event handler logging through logger
func NewLogEventHandler(logger logr.Logger) *LogEventHandler {
	return &LogEventHandler{logger: logger}
}

func (h *LogEventHandler) OnRetryAttempt(ctx context.Context, name string, attempt int, err error, delay time.Duration) {
	h.logger.V(logging.VERBOSE).Info("Retrying", "operation", name, "attempt", attempt, "delay", delay, "error", err.Error())
}

func (h *LogEventHandler) OnRetrySuccess(ctx context.Context, name string, attempt int, duration time.Duration) {
	h.logger.V(logging.VERBOSE).Info("Retry succeeded", "operation", name, "attempt", attempt, "duration", duration)
}

func (h *LogEventHandler) OnRetryFailure(ctx context.Context, name string, attempt int, err error) {
	h.logger.Error(err, "Giving up, error is not retryable", "operation", name, "attempt", attempt)
}

func (h *LogEventHandler) OnMaxAttemptsReached(ctx context.Context, name string, attempt int, err error) {
	h.logger.Error(err, "Max retry attempts reached", "operation", name, "attempts", attempt)
}
