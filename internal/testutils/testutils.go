// Package testutils provides fakes and helpers shared by package tests
package testutils

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// FakeConn is a work item that records whether it was released
type FakeConn struct {
	ID int

	closeErr error
	closes   atomic.Int32
}

// NewFakeConn creates a fake item with the given id
func NewFakeConn(id int) *FakeConn {
	return &FakeConn{ID: id}
}

// NewFailingFakeConn creates a fake item whose Close returns err
func NewFailingFakeConn(id int, err error) *FakeConn {
	return &FakeConn{ID: id, closeErr: err}
}

// Close implements io.Closer
func (c *FakeConn) Close() error {
	c.closes.Add(1)
	return c.closeErr
}

// Closed reports whether Close was called at least once
func (c *FakeConn) Closed() bool {
	return c.closes.Load() > 0
}

// CloseCount returns how many times Close was called
func (c *FakeConn) CloseCount() int {
	return int(c.closes.Load())
}

// AcceptResult is one scripted outcome of FakeListener.Accept
type AcceptResult struct {
	Conn *FakeConn
	Err  error
}

// FakeListener hands out scripted accept results. Accept blocks until a
// result is pushed or the listener is closed, in which case it returns
// net.ErrClosed like a real listener.
type FakeListener struct {
	results chan AcceptResult
	done    chan struct{}
	once    sync.Once
	calls   atomic.Int64
}

// NewFakeListener creates a listener buffering up to size scripted results
func NewFakeListener(size int) *FakeListener {
	return &FakeListener{
		results: make(chan AcceptResult, size),
		done:    make(chan struct{}),
	}
}

// Push schedules an accept outcome
func (l *FakeListener) Push(result AcceptResult) {
	l.results <- result
}

// Accept returns the next scripted result
func (l *FakeListener) Accept(ctx context.Context) (*FakeConn, error) {
	l.calls.Add(1)
	select {
	case r := <-l.results:
		return r.Conn, r.Err
	case <-l.done:
		return nil, net.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Calls returns the number of Accept invocations
func (l *FakeListener) Calls() int64 {
	return l.calls.Load()
}

// Close makes pending and future Accept calls fail with net.ErrClosed
func (l *FakeListener) Close() {
	l.once.Do(func() { close(l.done) })
}

// TemporaryError is a net.Error that reports a transient accept failure
type TemporaryError struct {
	Msg string
}

func (e *TemporaryError) Error() string   { return e.Msg }
func (e *TemporaryError) Timeout() bool   { return true }
func (e *TemporaryError) Temporary() bool { return true }

var _ net.Error = (*TemporaryError)(nil)

// ErrInjected is a generic failure used by handlers under test
var ErrInjected = errors.New("injected failure")

// WaitTimeout waits for wg and reports whether it finished in time
func WaitTimeout(wg *sync.WaitGroup, timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
