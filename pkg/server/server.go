// Package server wires the listener, acceptor, hand-off queue, worker pool and
// file handler into one serving process.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-logr/logr"
	ierrors "github.com/jzx17/wserver/internal/errors"
	"github.com/jzx17/wserver/internal/logging"
	"github.com/jzx17/wserver/pkg/acceptor"
	"github.com/jzx17/wserver/pkg/httpd"
	"github.com/jzx17/wserver/pkg/metrics"
	"github.com/jzx17/wserver/pkg/queue"
	"github.com/jzx17/wserver/pkg/retry"
	"github.com/jzx17/wserver/pkg/types"
	"github.com/jzx17/wserver/pkg/worker"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrNotListening is returned by Serve before Listen succeeded
	ErrNotListening = errors.New("server is not listening")

	// ErrAlreadyListening is returned by a second Listen
	ErrAlreadyListening = errors.New("server is already listening")
)

// maxListenRetryDelay caps the pause between bind attempts
const maxListenRetryDelay = 5 * time.Second

// Stats is a snapshot of every stage of the server
type Stats struct {
	Acceptor types.AcceptorStats
	Queue    types.QueueStats
	Pool     types.WorkerPoolStats
}

// Server accepts connections and serves them from a fixed worker pool
type Server struct {
	config *Config
	logger logr.Logger
	clock  types.Clock

	queue    *queue.BoundedQueue[*Conn]
	handler  *httpd.Handler
	pool     *worker.Pool[*Conn]
	acceptor *acceptor.Acceptor[*Conn]
	metrics  *metrics.Metrics

	mu              sync.Mutex
	listener        net.Listener
	metricsListener net.Listener
}

// New validates config and builds every component. Nothing is bound or
// started until Listen and Serve.
func New(config *Config, logger logr.Logger) (*Server, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger.GetSink() == nil {
		logger = logr.Discard()
	}

	s := &Server{
		config:  config,
		logger:  logger,
		clock:   types.NewRealClock(),
		metrics: metrics.New(true),
	}

	q, err := queue.New[*Conn](config.QueueCapacity)
	if err != nil {
		return nil, err
	}
	s.queue = q

	handlerConfig := httpd.DefaultHandlerConfig()
	handlerConfig.BaseDir = config.BaseDir
	handlerConfig.ReadTimeout = config.ReadTimeout
	handlerConfig.WriteTimeout = config.WriteTimeout
	handlerConfig.CacheEntries = config.CacheEntries
	handlerConfig.AccessLog = config.AccessLog
	handlerConfig.Logger = logger.WithName("httpd")
	if s.handler, err = httpd.NewHandler(handlerConfig); err != nil {
		return nil, err
	}

	poolConfig := worker.DefaultPoolConfig()
	poolConfig.PoolSize = config.PoolSize
	poolConfig.Clock = s.clock
	poolConfig.Logger = logger.WithName("pool")
	poolConfig.CompletionCallback = s.metrics.RecordHandled
	poolConfig.ErrorHandler = newConnErrorHandler(logger.WithName("conn"))
	if s.pool, err = worker.NewPool[*Conn](poolConfig, q, s.serveConn); err != nil {
		return nil, err
	}

	acceptorConfig := acceptor.DefaultConfig()
	acceptorConfig.Clock = s.clock
	acceptorConfig.Logger = logger.WithName("acceptor")
	acceptorConfig.OnAccepted = s.metrics.RecordAccepted
	acceptorConfig.OnAcceptError = s.metrics.RecordAcceptError
	if s.acceptor, err = acceptor.New[*Conn](acceptorConfig, s.accept, q); err != nil {
		return nil, err
	}

	s.metrics.RegisterQueue(q.Stats)
	s.metrics.RegisterWorkers(s.pool.ActiveWorkers)

	return s, nil
}

// Listen binds the serving port, and the metrics port when configured,
// retrying while the address is in use
func (s *Server) Listen(ctx context.Context) error {
	if s.Addr() != nil {
		return ErrAlreadyListening
	}
	closeAll := func(lns ...net.Listener) {
		for _, l := range lns {
			if l != nil {
				l.Close()
			}
		}
	}

	ln, err := s.listen(ctx, "listen", s.config.Port)
	if err != nil {
		return err
	}

	var mln net.Listener
	if s.config.MetricsPort > 0 {
		if mln, err = s.listen(ctx, "listen metrics", s.config.MetricsPort); err != nil {
			closeAll(ln)
			return err
		}
	}

	s.mu.Lock()
	if s.listener != nil {
		s.mu.Unlock()
		closeAll(ln, mln)
		return ErrAlreadyListening
	}
	s.listener = ln
	s.metricsListener = mln
	s.mu.Unlock()

	s.logger.Info("Listening", "addr", ln.Addr().String(), "baseDir", s.handler.BaseDir(),
		"workers", s.config.PoolSize, "queueCapacity", s.config.QueueCapacity)
	if mln != nil {
		s.logger.Info("Serving metrics", "addr", mln.Addr().String())
	}
	return nil
}

func (s *Server) listen(ctx context.Context, name string, port int) (net.Listener, error) {
	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(port))

	policy := retry.NewExponentialBackoffRetry(s.config.ListenRetries+1, s.config.ListenRetryDelay,
		retry.WithRetryCondition(retry.AddrInUseCondition),
		retry.WithJitter(true, 0.1)).WithLimits(2, maxListenRetryDelay)
	executor := retry.NewRetryExecutor(policy,
		retry.WithEventHandler(retry.NewLogEventHandler(s.logger)),
		retry.WithClock(s.clock))

	var lc net.ListenConfig
	ln, err := retry.ExecuteWithName(executor, ctx, name, func(ctx context.Context) (net.Listener, error) {
		return lc.Listen(ctx, "tcp", addr)
	})
	if err != nil {
		return nil, err
	}

	stats := executor.GetStats()
	s.logger.V(logging.VERBOSE).Info("Bound", "operation", name, "addr", ln.Addr().String(),
		"attempts", stats.TotalAttempts, "retryDelay", stats.TotalRetryDelay)
	return ln, nil
}

// Serve runs the acceptor and the worker pool, plus the metrics endpoint if
// bound, until ctx is cancelled or the acceptor hits a fatal error. Before it
// returns the listener is closed and the workers drain the queue, bounded by
// ShutdownTimeout after which in-flight connections are interrupted.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln, mln := s.listener, s.metricsListener
	s.mu.Unlock()
	if ln == nil {
		return ErrNotListening
	}

	// workers outlive ctx so buffered connections are still served
	workCtx, interrupt := context.WithCancel(context.WithoutCancel(ctx))
	defer interrupt()

	if err := s.pool.Start(workCtx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.acceptor.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.logger.V(logging.DEBUG).Info("Failed to close listener", "error", err.Error())
		}
		// releases an acceptor blocked on a full queue, buffered items still drain
		s.queue.Close()
		return nil
	})

	if mln != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", s.metrics.Handler())
		srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		g.Go(func() error {
			if err := srv.Serve(mln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})

		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.ShutdownTimeout)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
			return nil
		})
	}

	err := g.Wait()

	s.logger.Info("Shutting down", "buffered", s.queue.Len())
	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.ShutdownTimeout)
	defer cancel()
	if stopErr := s.pool.Stop(drainCtx); stopErr != nil {
		s.logger.Info("Interrupting in-flight connections", "reason", stopErr.Error())
		interrupt()
		s.pool.Wait()
	}

	stats := s.pool.Stats()
	s.logger.Info("Server stopped", "processed", stats.TotalProcessed, "failed", stats.TotalFailed)
	return err
}

// ListenAndServe binds and serves until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := s.Listen(ctx); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Addr returns the bound serving address, nil before Listen
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// MetricsAddr returns the bound metrics address, nil if metrics are not served
func (s *Server) MetricsAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.metricsListener == nil {
		return nil
	}
	return s.metricsListener.Addr()
}

// Metrics returns the server's collectors
func (s *Server) Metrics() *metrics.Metrics {
	return s.metrics
}

// Stats returns a snapshot of the acceptor, queue and pool
func (s *Server) Stats() Stats {
	return Stats{
		Acceptor: s.acceptor.Stats(),
		Queue:    s.queue.Stats(),
		Pool:     s.pool.Stats(),
	}
}

func (s *Server) accept(ctx context.Context) (*Conn, error) {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()

	c, err := ln.Accept()
	if err != nil {
		return nil, err
	}

	conn := newConn(c, s.clock.Now())
	s.logger.V(logging.TRACE).Info("Accepted connection", "conn", conn.ID, "remote", c.RemoteAddr().String())
	return conn, nil
}

func (s *Server) serveConn(ctx context.Context, c *Conn) error {
	s.logger.V(logging.TRACE).Info("Serving connection", "conn", c.ID, "queued", s.clock.Since(c.Accepted))
	if err := s.handler.ServeConn(ctx, c); err != nil {
		return fmt.Errorf("connection %s: %w", c.ID, err)
	}
	return nil
}

// newConnErrorHandler routes worker failures through a registry: malformed
// requests are logged at VERBOSE and every other connection error at DEBUG.
// A connection failure never stops the pool.
func newConnErrorHandler(logger logr.Logger) types.ErrorHandler {
	registry := ierrors.NewHandlerRegistry(logger)
	// names are distinct from the built-ins, registration and binding cannot fail
	_ = registry.RegisterHandler(ierrors.NewContinueOnErrorHandler(&ierrors.ContinueOnErrorConfig{
		Name: "BadRequest", Logger: logger, Verbosity: logging.VERBOSE,
	}))
	_ = registry.RegisterHandler(ierrors.NewContinueOnErrorHandler(&ierrors.ContinueOnErrorConfig{
		Name: "ConnectionIO", Logger: logger, Verbosity: logging.DEBUG,
	}))
	_ = registry.Bind(types.ErrBadRequest, "BadRequest")
	_ = registry.SetDefaultHandler("ConnectionIO")

	return func(err error) error {
		errCtx := ierrors.NewErrorContext(err, "serve")
		var herr *types.HandlerError
		if errors.As(err, &herr) {
			errCtx.WithMetadata("worker", herr.WorkerID)
		}
		return registry.Handle(context.Background(), errCtx)
	}
}
