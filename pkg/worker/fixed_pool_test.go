package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-logr/logr/testr"
	"github.com/jzx17/wserver/internal/testutils"
	"github.com/jzx17/wserver/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPool(t *testing.T) {
	q := newTestQueue(t, 4)

	tests := []struct {
		name        string
		config      *PoolConfig
		queue       Queue[*testutils.FakeConn]
		handler     Handler[*testutils.FakeConn]
		expectError bool
		wantSize    int
	}{
		{
			name:     "nil config should use default",
			queue:    q,
			handler:  noopHandler,
			wantSize: 10,
		},
		{
			name:     "valid config",
			config:   &PoolConfig{PoolSize: 5},
			queue:    q,
			handler:  noopHandler,
			wantSize: 5,
		},
		{
			name:        "zero pool size should error",
			config:      &PoolConfig{PoolSize: 0},
			queue:       q,
			handler:     noopHandler,
			expectError: true,
		},
		{
			name:        "negative pool size should error",
			config:      &PoolConfig{PoolSize: -1},
			queue:       q,
			handler:     noopHandler,
			expectError: true,
		},
		{
			name:        "nil queue should error",
			config:      &PoolConfig{PoolSize: 1},
			handler:     noopHandler,
			expectError: true,
		},
		{
			name:        "nil handler should error",
			config:      &PoolConfig{PoolSize: 1},
			queue:       q,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool, err := NewPool(tt.config, tt.queue, tt.handler)

			if tt.expectError {
				assert.Error(t, err)
				assert.True(t, errors.Is(err, types.ErrInvalidConfig))
				assert.Nil(t, pool)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSize, pool.Size())
			assert.False(t, pool.IsRunning())
			assert.Len(t, pool.WorkerStats(), tt.wantSize)
		})
	}
}

func TestPool_StartStop(t *testing.T) {
	q := newTestQueue(t, 4)
	pool, err := NewPool(&PoolConfig{PoolSize: 3, Logger: testr.New(t)}, q, noopHandler)
	require.NoError(t, err)

	assert.ErrorIs(t, pool.Stop(context.Background()), types.ErrPoolNotRunning)

	require.NoError(t, pool.Start(context.Background()))
	assert.True(t, pool.IsRunning())
	assert.ErrorIs(t, pool.Start(context.Background()), types.ErrPoolRunning)

	require.NoError(t, pool.Stop(context.Background()))
	assert.False(t, pool.IsRunning())
	for _, ws := range pool.WorkerStats() {
		assert.Equal(t, WorkerStateStopped, ws.State)
	}

	err = pool.Start(context.Background())
	assert.ErrorIs(t, err, types.ErrPoolNotRunning)
	assert.True(t, q.IsClosed())
}

func TestPool_ContextCancelClosesQueue(t *testing.T) {
	q := newTestQueue(t, 4)
	pool, err := NewPool(&PoolConfig{PoolSize: 2}, q, noopHandler)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, pool.Start(ctx))

	require.NoError(t, q.Enqueue(testutils.NewFakeConn(1)))
	cancel()

	select {
	case <-pool.Done():
	case <-time.After(time.Second):
		t.Fatal("pool did not stop after context cancellation")
	}
	assert.True(t, q.IsClosed())
	assert.Equal(t, int64(1), pool.Stats().TotalProcessed)
}

func TestPool_StopTimesOut(t *testing.T) {
	q := newTestQueue(t, 1)
	release := make(chan struct{})
	pool, err := NewPool(&PoolConfig{PoolSize: 1}, q, func(ctx context.Context, c *testutils.FakeConn) error {
		<-release
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, pool.Start(context.Background()))
	require.NoError(t, q.Enqueue(testutils.NewFakeConn(1)))

	require.Eventually(t, func() bool { return pool.ActiveWorkers() == 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = pool.Stop(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	pool.Wait()
	assert.Equal(t, int64(1), pool.Stats().TotalProcessed)
}

// N workers all blocked on an empty queue, M items enqueued: every item is
// handled exactly once.
func TestPool_ExactlyOnceWithBlockedWorkers(t *testing.T) {
	const (
		workers = 8
		items   = 500
	)
	q := newTestQueue(t, 16)

	var (
		mu     sync.Mutex
		counts = make(map[int]int, items)
	)
	pool, err := NewPool(&PoolConfig{PoolSize: workers}, q, func(ctx context.Context, c *testutils.FakeConn) error {
		mu.Lock()
		counts[c.ID]++
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, pool.Start(context.Background()))

	require.Eventually(t, func() bool {
		return q.Stats().WaitingConsumers == workers
	}, time.Second, time.Millisecond)

	conns := make([]*testutils.FakeConn, items)
	for i := range conns {
		conns[i] = testutils.NewFakeConn(i)
		require.NoError(t, q.Enqueue(conns[i]))
	}
	require.NoError(t, pool.Stop(context.Background()))

	require.Len(t, counts, items)
	for id, n := range counts {
		assert.Equal(t, 1, n, "item %d", id)
	}
	for _, c := range conns {
		assert.Equal(t, 1, c.CloseCount())
	}

	stats := pool.Stats()
	assert.Equal(t, int64(items), stats.TotalProcessed)
	assert.Equal(t, 0, stats.QueueSize)
	assert.Equal(t, 16, stats.QueueCapacity)
}

func TestPool_HandlerFailureIsolation(t *testing.T) {
	const poolSize = 4
	q := newTestQueue(t, 8)

	var failures atomic.Int64
	var completions atomic.Int64
	pool, err := NewPool(&PoolConfig{
		PoolSize: poolSize,
		Logger:   testr.New(t),
		ErrorHandler: func(err error) error {
			failures.Add(1)
			return nil
		},
		CompletionCallback: func(d time.Duration, failed bool) {
			completions.Add(1)
		},
	}, q, func(ctx context.Context, c *testutils.FakeConn) error {
		switch c.ID % 3 {
		case 0:
			return testutils.ErrInjected
		case 1:
			panic("bad connection")
		}
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, pool.Start(context.Background()))

	const items = 90
	conns := make([]*testutils.FakeConn, items)
	for i := range conns {
		conns[i] = testutils.NewFakeConn(i)
		require.NoError(t, q.Enqueue(conns[i]))
	}
	require.NoError(t, pool.Stop(context.Background()))

	for _, c := range conns {
		assert.True(t, c.Closed(), "conn %d not released", c.ID)
	}

	stats := pool.Stats()
	assert.Equal(t, poolSize, stats.PoolSize)
	assert.Equal(t, int64(30), stats.TotalProcessed)
	assert.Equal(t, int64(60), stats.TotalFailed)
	assert.Equal(t, int64(60), failures.Load())
	assert.Equal(t, int64(items), completions.Load())
}

func TestPool_DrainsBufferedItemsOnStop(t *testing.T) {
	q := newTestQueue(t, 8)
	for i := 0; i < 8; i++ {
		require.NoError(t, q.Enqueue(testutils.NewFakeConn(i)))
	}

	var served atomic.Int64
	pool, err := NewPool(&PoolConfig{PoolSize: 2}, q, func(ctx context.Context, c *testutils.FakeConn) error {
		served.Add(1)
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, pool.Start(context.Background()))
	require.NoError(t, pool.Stop(context.Background()))

	assert.Equal(t, int64(8), served.Load())
}
