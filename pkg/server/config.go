package server

import (
	"io"
	"os"
	"time"

	"github.com/jzx17/wserver/pkg/types"
)

// Config defines configuration for the server
type Config struct {
	// BaseDir is the directory files are served from
	BaseDir string

	// Host is the address to bind, empty means all interfaces
	Host string

	// Port to listen on, 0 picks a free port
	Port int

	// PoolSize is the number of worker goroutines
	PoolSize int

	// QueueCapacity is the number of accepted connections that may wait
	// for a worker
	QueueCapacity int

	// MetricsPort serves /metrics when positive
	MetricsPort int

	// ReadTimeout bounds reading one request
	ReadTimeout time.Duration

	// WriteTimeout bounds writing one response
	WriteTimeout time.Duration

	// ShutdownTimeout bounds draining buffered connections on shutdown
	ShutdownTimeout time.Duration

	// ListenRetries is how many times binding is retried while the address is in use
	ListenRetries int

	// ListenRetryDelay is the first pause between bind attempts, doubled each time
	ListenRetryDelay time.Duration

	// CacheEntries is the file cache size, 0 disables it
	CacheEntries int

	// AccessLog receives one line per request when non-nil
	AccessLog io.Writer
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		BaseDir:          ".",
		Port:             10000,
		PoolSize:         10,
		QueueCapacity:    8192,
		ReadTimeout:      30 * time.Second,
		WriteTimeout:     30 * time.Second,
		ShutdownTimeout:  5 * time.Second,
		ListenRetries:    5,
		ListenRetryDelay: 100 * time.Millisecond,
		CacheEntries:     128,
	}
}

// Validate checks the configuration. Every error wraps types.ErrInvalidConfig.
func (c *Config) Validate() error {
	if c.PoolSize <= 0 {
		return types.ConfigError("pool size must be positive, got %d", c.PoolSize)
	}
	if c.QueueCapacity <= 0 {
		return types.ConfigError("queue capacity must be positive, got %d", c.QueueCapacity)
	}
	if c.Port < 0 || c.Port > 65535 {
		return types.ConfigError("port %d out of range", c.Port)
	}
	if c.MetricsPort < 0 || c.MetricsPort > 65535 {
		return types.ConfigError("metrics port %d out of range", c.MetricsPort)
	}
	if c.MetricsPort > 0 && c.MetricsPort == c.Port {
		return types.ConfigError("metrics port %d is the serving port", c.MetricsPort)
	}
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 || c.ShutdownTimeout < 0 {
		return types.ConfigError("timeouts cannot be negative")
	}
	if c.ListenRetries < 0 {
		return types.ConfigError("listen retries cannot be negative, got %d", c.ListenRetries)
	}
	if c.CacheEntries < 0 {
		return types.ConfigError("cache entries cannot be negative, got %d", c.CacheEntries)
	}

	info, err := os.Stat(c.BaseDir)
	if err != nil {
		return types.ConfigError("base directory %q: %v", c.BaseDir, err)
	}
	if !info.IsDir() {
		return types.ConfigError("base directory %q is not a directory", c.BaseDir)
	}
	return nil
}
