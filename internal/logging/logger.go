// Package logging builds the logr.Logger used across the server
package logging

import (
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	uberzap "go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Verbosity levels passed to logger.V
const (
	DEFAULT = 0
	VERBOSE = 3
	DEBUG   = 4
	TRACE   = 5
)

// Options configures the process logger
type Options struct {
	// Verbosity enables logger.V(n) for every n <= Verbosity
	Verbosity int

	// Development switches to the human readable console encoder
	Development bool
}

// NewLogger creates a zap backed logr.Logger
func NewLogger(opts Options) (logr.Logger, error) {
	var cfg uberzap.Config
	if opts.Development {
		cfg = uberzap.NewDevelopmentConfig()
	} else {
		cfg = uberzap.NewProductionConfig()
		// per-connection logs must not be sampled away under load
		cfg.Sampling = nil
	}
	cfg.Level = uberzap.NewAtomicLevelAt(zapcore.Level(-opts.Verbosity))

	zapLog, err := cfg.Build(uberzap.AddCaller())
	if err != nil {
		return logr.Discard(), err
	}
	return zapr.NewLogger(zapLog), nil
}

// NewTestLogger creates a new Zap logger using the dev mode with every level enabled.
func NewTestLogger() logr.Logger {
	logger, err := NewLogger(Options{Verbosity: TRACE, Development: true})
	if err != nil {
		return logr.Discard()
	}
	return logger
}

// Fatal calls logger.Error followed by os.Exit(1).
//
// This is meant for process bootstrap only.
func Fatal(logger logr.Logger, err error, msg string, keysAndValues ...interface{}) {
	logger.Error(err, msg, keysAndValues...)
	os.Exit(1)
}
