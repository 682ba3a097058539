package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"testing"
	"time"
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

// steady retries with the same delay between every attempt
func steady(maxAttempts int, delay time.Duration, opts ...PolicyOption) *ExponentialBackoffRetry {
	return NewExponentialBackoffRetry(maxAttempts, delay, opts...).WithLimits(1, delay)
}

func TestExponentialBackoffRetry(t *testing.T) {
	policy := NewExponentialBackoffRetry(5, 100*time.Millisecond).WithLimits(2.0, 500*time.Millisecond)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 500 * time.Millisecond},
		{40, 500 * time.Millisecond},
	}

	for _, tt := range tests {
		if got := policy.NextDelay(tt.attempt); got != tt.want {
			t.Errorf("NextDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}

	// invalid limits keep the defaults
	policy = NewExponentialBackoffRetry(5, time.Millisecond).WithLimits(0.5, -1)
	if got := policy.NextDelay(3); got != 4*time.Millisecond {
		t.Errorf("NextDelay(3) = %v, want 4ms", got)
	}

	// a multiplier of one keeps the delay constant
	policy = steady(3, 100*time.Millisecond)
	for attempt := 1; attempt <= 3; attempt++ {
		if got := policy.NextDelay(attempt); got != 100*time.Millisecond {
			t.Errorf("NextDelay(%d) = %v, want 100ms", attempt, got)
		}
	}
}

func TestShouldRetry(t *testing.T) {
	retryable := fmt.Errorf("accept: %w", timeoutError{})
	policy := steady(3, time.Millisecond)

	tests := []struct {
		name    string
		err     error
		attempt int
		want    bool
	}{
		{"retryable first attempt", retryable, 1, true},
		{"retryable below max", retryable, 2, true},
		{"retryable at max", retryable, 3, false},
		{"plain error", errors.New("boom"), 1, false},
		{"nil error", nil, 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := policy.ShouldRetry(tt.err, tt.attempt); got != tt.want {
				t.Errorf("ShouldRetry() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRetryConditions(t *testing.T) {
	addrInUse := &net.OpError{
		Op:  "listen",
		Net: "tcp",
		Err: os.NewSyscallError("bind", syscall.EADDRINUSE),
	}

	tests := []struct {
		name      string
		err       error
		defaultOK bool
		addrOK    bool
	}{
		{"nil", nil, false, false},
		{"plain error", errors.New("x"), false, false},
		{"network timeout", fmt.Errorf("read: %w", timeoutError{}), true, true},
		{"context canceled", context.Canceled, false, false},
		{"deadline exceeded", context.DeadlineExceeded, false, false},
		{"address in use", addrInUse, false, true},
		{"permission denied", os.NewSyscallError("bind", syscall.EACCES), false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DefaultRetryCondition(tt.err); got != tt.defaultOK {
				t.Errorf("DefaultRetryCondition() = %v, want %v", got, tt.defaultOK)
			}
			if got := AddrInUseCondition(tt.err); got != tt.addrOK {
				t.Errorf("AddrInUseCondition() = %v, want %v", got, tt.addrOK)
			}
		})
	}
}

func TestPolicyWithJitter(t *testing.T) {
	policy := steady(3, 100*time.Millisecond, WithJitter(true, 0.2))

	for i := 0; i < 50; i++ {
		got := policy.NextDelay(1)
		if got < 80*time.Millisecond || got > 120*time.Millisecond {
			t.Fatalf("NextDelay() = %v, outside +/-20%%", got)
		}
	}
}

func TestCustomRetryCondition(t *testing.T) {
	sentinel := errors.New("try again")
	policy := steady(5, time.Millisecond,
		WithRetryCondition(func(err error) bool { return errors.Is(err, sentinel) }),
		WithRetryCondition(nil))

	if !policy.ShouldRetry(fmt.Errorf("wrapped: %w", sentinel), 1) {
		t.Error("expected custom condition to allow retry")
	}
	if policy.ShouldRetry(timeoutError{}, 1) {
		t.Error("custom condition should replace the default")
	}
}
