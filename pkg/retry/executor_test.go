package retry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-logr/logr/testr"
)

func retryable(msg string) error {
	return fmt.Errorf("%s: %w", msg, timeoutError{})
}

func TestRetryExecutor_Execute_Success(t *testing.T) {
	executor := NewRetryExecutor(steady(3, 10*time.Millisecond))

	result, err := ExecuteWithName(executor, context.Background(), "op", func(ctx context.Context) (string, error) {
		return "success", nil
	})

	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if result != "success" {
		t.Errorf("Expected 'success', got %v", result)
	}

	stats := executor.GetStats()
	if stats.TotalAttempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", stats.TotalAttempts)
	}
	if stats.TotalSuccesses != 1 {
		t.Errorf("Expected 1 success, got %d", stats.TotalSuccesses)
	}
	if stats.TotalRetries != 0 {
		t.Errorf("Expected 0 retries, got %d", stats.TotalRetries)
	}
}

func TestRetryExecutor_Execute_RetrySuccess(t *testing.T) {
	executor := NewRetryExecutor(steady(3, time.Millisecond))

	var attempts int32
	result, err := ExecuteWithName(executor, context.Background(), "op", func(ctx context.Context) (int, error) {
		attempt := atomic.AddInt32(&attempts, 1)
		if attempt < 3 {
			return 0, retryable("port busy")
		}
		return 42, nil
	})

	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if result != 42 {
		t.Errorf("Expected 42, got %v", result)
	}
	if atomic.LoadInt32(&attempts) != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}

	stats := executor.GetStats()
	if stats.TotalAttempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", stats.TotalAttempts)
	}
	if stats.TotalRetries != 1 {
		t.Errorf("Expected 1 retried operation, got %d", stats.TotalRetries)
	}
	if stats.TotalRetryDelay != 2*time.Millisecond {
		t.Errorf("Expected 2ms total delay, got %v", stats.TotalRetryDelay)
	}
}

func TestRetryExecutor_Execute_MaxAttemptsReached(t *testing.T) {
	executor := NewRetryExecutor(steady(3, time.Millisecond))

	cause := retryable("still busy")
	var attempts int32
	_, err := ExecuteWithName(executor, context.Background(), "listen", func(ctx context.Context) (string, error) {
		atomic.AddInt32(&attempts, 1)
		return "", cause
	})

	if err == nil {
		t.Fatal("Expected error")
	}
	if !errors.Is(err, cause) {
		t.Errorf("Expected wrapped cause, got %v", err)
	}
	if got := err.Error(); got != "listen failed after 3 attempt(s): still busy: i/o timeout" {
		t.Errorf("Unexpected message %q", got)
	}
	if atomic.LoadInt32(&attempts) != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
	if executor.GetStats().TotalFailures != 1 {
		t.Errorf("Expected 1 failure, got %d", executor.GetStats().TotalFailures)
	}
}

func TestRetryExecutor_Execute_NonRetryableError(t *testing.T) {
	executor := NewRetryExecutor(steady(3, time.Millisecond))

	var attempts int32
	_, err := ExecuteWithName(executor, context.Background(), "op", func(ctx context.Context) (string, error) {
		atomic.AddInt32(&attempts, 1)
		return "", errors.New("permission denied")
	})

	if err == nil {
		t.Fatal("Expected error")
	}
	if atomic.LoadInt32(&attempts) != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts)
	}
}

func TestRetryExecutor_Execute_ContextCanceled(t *testing.T) {
	executor := NewRetryExecutor(steady(10, time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	var attempts int32
	go func() {
		_, err := ExecuteWithName(executor, ctx, "op", func(ctx context.Context) (string, error) {
			atomic.AddInt32(&attempts, 1)
			return "", retryable("busy")
		})
		done <- err
	}()

	// wait until the executor is parked on the hour-long delay
	deadline := time.Now().Add(time.Second)
	for executor.GetStats().TotalRetryDelay == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("executor did not stop waiting on cancellation")
	}
	if atomic.LoadInt32(&attempts) != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts)
	}
}

func TestRetryExecutor_Execute_AlreadyCanceled(t *testing.T) {
	executor := NewRetryExecutor(steady(3, time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	_, err := ExecuteWithName(executor, ctx, "op", func(ctx context.Context) (string, error) {
		called = true
		return "", nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if called {
		t.Error("function must not run with a cancelled context")
	}
}

type recordingHandler struct {
	mu       sync.Mutex
	attempts []int
	success  int
	failure  int
	maxed    int
}

func (h *recordingHandler) OnRetryAttempt(ctx context.Context, name string, attempt int, err error, delay time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.attempts = append(h.attempts, attempt)
}

func (h *recordingHandler) OnRetrySuccess(ctx context.Context, name string, attempt int, duration time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.success++
}

func (h *recordingHandler) OnRetryFailure(ctx context.Context, name string, attempt int, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failure++
}

func (h *recordingHandler) OnMaxAttemptsReached(ctx context.Context, name string, attempt int, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.maxed++
}

func TestRetryExecutor_WithEventHandler(t *testing.T) {
	handler := &recordingHandler{}
	executor := NewRetryExecutor(steady(3, time.Millisecond), WithEventHandler(handler))

	var attempts int32
	_, _ = ExecuteWithName(executor, context.Background(), "op", func(ctx context.Context) (string, error) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			return "", retryable("busy")
		}
		return "ok", nil
	})
	_, _ = ExecuteWithName(executor, context.Background(), "op", func(ctx context.Context) (string, error) {
		return "", errors.New("fatal")
	})
	_, _ = ExecuteWithName(executor, context.Background(), "op", func(ctx context.Context) (string, error) {
		return "", retryable("busy")
	})

	handler.mu.Lock()
	defer handler.mu.Unlock()
	if len(handler.attempts) != 4 {
		t.Errorf("Expected 4 retry attempt events, got %v", handler.attempts)
	}
	if handler.success != 1 || handler.failure != 1 || handler.maxed != 1 {
		t.Errorf("Unexpected events: success=%d failure=%d maxed=%d", handler.success, handler.failure, handler.maxed)
	}
}

func TestLogEventHandler(t *testing.T) {
	executor := NewRetryExecutor(steady(2, time.Millisecond),
		WithEventHandler(NewLogEventHandler(testr.New(t))),
		WithClock(nil))

	_, err := ExecuteWithName(executor, context.Background(), "listen", func(ctx context.Context) (string, error) {
		return "", retryable("busy")
	})
	if err == nil {
		t.Fatal("Expected error")
	}
}
