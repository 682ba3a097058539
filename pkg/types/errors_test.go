package types

import (
	"errors"
	"fmt"
	"net"
	"testing"
)

func TestPredefinedErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"ErrInvalidConfig", ErrInvalidConfig},
		{"ErrQueueClosed", ErrQueueClosed},
		{"ErrPoolRunning", ErrPoolRunning},
		{"ErrPoolNotRunning", ErrPoolNotRunning},
		{"ErrBadRequest", ErrBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err == nil {
				t.Errorf("expected error, got nil")
			}
			if tt.err.Error() == "" {
				t.Errorf("expected non-empty error message")
			}
		})
	}
}

func TestConfigError(t *testing.T) {
	err := ConfigError("pool size must be positive, got %d", 0)

	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected error to wrap ErrInvalidConfig")
	}

	expectedMsg := "invalid configuration: pool size must be positive, got 0"
	if err.Error() != expectedMsg {
		t.Errorf("expected message %q, got %q", expectedMsg, err.Error())
	}
}

func TestHandlerError(t *testing.T) {
	originalErr := errors.New("connection reset")
	handlerErr := NewHandlerError(3, originalErr)

	if handlerErr.WorkerID != 3 {
		t.Errorf("expected worker id 3, got %d", handlerErr.WorkerID)
	}

	expectedMsg := "handler error in worker 3: connection reset"
	if handlerErr.Error() != expectedMsg {
		t.Errorf("expected message %q, got %q", expectedMsg, handlerErr.Error())
	}

	if !errors.Is(handlerErr, originalErr) {
		t.Errorf("expected errors.Is to match the cause")
	}

	handlerErr.WithContext("conn_id", "abc")
	if handlerErr.Context["conn_id"] != "abc" {
		t.Errorf("expected context value to be stored")
	}

	var target *HandlerError
	wrapped := fmt.Errorf("serve: %w", handlerErr)
	if !errors.As(wrapped, &target) || target.WorkerID != 3 {
		t.Errorf("expected errors.As to find the handler error")
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestIsTimeout(t *testing.T) {
	if !IsTimeout(fmt.Errorf("read: %w", timeoutErr{})) {
		t.Errorf("expected wrapped timeout to be detected")
	}
	if IsTimeout(errors.New("boom")) {
		t.Errorf("plain error is not a timeout")
	}
}
