// Package acceptor runs the single producer of the hand-off queue: it accepts
// connections and enqueues them, blocking while the queue is full.
package acceptor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	ierrors "github.com/jzx17/wserver/internal/errors"
	"github.com/jzx17/wserver/internal/logging"
	"github.com/jzx17/wserver/pkg/retry"
	"github.com/jzx17/wserver/pkg/types"
)

// AcceptFunc blocks until a new item is available
type AcceptFunc[T any] func(ctx context.Context) (T, error)

// Queue is the producer side of the hand-off queue
type Queue[T any] interface {
	Enqueue(item T) error
}

// Config defines configuration for the acceptor
type Config struct {
	// Backoff is the pause after consecutive failed accepts
	Backoff retry.BackoffStrategy

	// Clock for time operations (optional, defaults to real clock)
	Clock types.Clock

	// Logger (optional)
	Logger logr.Logger

	// Errors classifies accept errors. A handler returning the error stops
	// the acceptor; one returning nil lets it continue.
	Errors *ierrors.HandlerRegistry

	// OnAccepted is called after each item is enqueued (optional)
	OnAccepted func()

	// OnAcceptError is called with each failed accept (optional)
	OnAcceptError func(error)
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Backoff: retry.DefaultAcceptBackoff(),
		Clock:   types.NewRealClock(),
		Logger:  logr.Discard(),
	}
}

// DefaultErrorRegistry treats a closed listener as fatal and every other
// accept error as transient
func DefaultErrorRegistry(logger logr.Logger) *ierrors.HandlerRegistry {
	registry := ierrors.NewHandlerRegistry(logger)
	_ = registry.Bind(net.ErrClosed, ierrors.FailFastStrategy.String())
	_ = registry.SetDefaultHandler(ierrors.ContinueOnErrorStrategy.String())
	return registry
}

// Acceptor moves accepted items into a queue
type Acceptor[T io.Closer] struct {
	config *Config
	accept AcceptFunc[T]
	queue  Queue[T]

	accepted     atomic.Int64
	acceptErrors atomic.Int64
	lastAccept   atomic.Int64 // Unix nanosecond timestamp
}

// New creates an acceptor feeding queue with items from accept
func New[T io.Closer](config *Config, accept AcceptFunc[T], queue Queue[T]) (*Acceptor[T], error) {
	if config == nil {
		config = DefaultConfig()
	}
	if accept == nil {
		return nil, types.ConfigError("accept function cannot be nil")
	}
	if queue == nil {
		return nil, types.ConfigError("queue cannot be nil")
	}

	if config.Backoff == nil {
		config.Backoff = retry.DefaultAcceptBackoff()
	}
	if config.Clock == nil {
		config.Clock = types.NewRealClock()
	}
	if config.Logger.GetSink() == nil {
		config.Logger = logr.Discard()
	}
	if config.Errors == nil {
		config.Errors = DefaultErrorRegistry(config.Logger)
	}

	return &Acceptor[T]{
		config: config,
		accept: accept,
		queue:  queue,
	}, nil
}

// Run accepts and enqueues until ctx is cancelled or the queue is closed, in
// which case it returns nil, or until an accept error is classified as fatal.
func (a *Acceptor[T]) Run(ctx context.Context) error {
	logger := a.config.Logger
	failures := 0

	for {
		item, err := a.accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			failures++
			a.acceptErrors.Add(1)
			if a.config.OnAcceptError != nil {
				a.config.OnAcceptError(err)
			}

			delay := a.config.Backoff.NextDelay(failures)
			errCtx := ierrors.NewErrorContext(err, "accept").WithMetadata("backoff", delay)
			errCtx.Attempt = failures
			if fatal := a.config.Errors.Handle(ctx, errCtx); fatal != nil {
				return fmt.Errorf("accept: %w", fatal)
			}

			if !a.pause(ctx, delay) {
				return nil
			}
			continue
		}
		failures = 0

		if err := a.queue.Enqueue(item); err != nil {
			if cerr := item.Close(); cerr != nil {
				logger.V(logging.DEBUG).Info("Failed to close item rejected by queue", "error", cerr.Error())
			}
			if errors.Is(err, types.ErrQueueClosed) {
				logger.V(logging.VERBOSE).Info("Queue closed, acceptor stopping")
				return nil
			}
			return fmt.Errorf("enqueue: %w", err)
		}

		a.accepted.Add(1)
		a.lastAccept.Store(a.config.Clock.Now().UnixNano())
		if a.config.OnAccepted != nil {
			a.config.OnAccepted()
		}
	}
}

// pause waits for d and reports false if ctx was cancelled first
func (a *Acceptor[T]) pause(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := a.config.Clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C():
		return true
	}
}

// Stats returns accept counters
func (a *Acceptor[T]) Stats() types.AcceptorStats {
	stats := types.AcceptorStats{
		Accepted:     a.accepted.Load(),
		AcceptErrors: a.acceptErrors.Load(),
	}
	if ns := a.lastAccept.Load(); ns != 0 {
		stats.LastAccept = time.Unix(0, ns)
	}
	return stats
}
