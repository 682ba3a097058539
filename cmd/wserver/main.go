// Command wserver serves static files from a directory through a fixed pool
// of workers fed by a bounded connection queue.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jzx17/wserver/internal/logging"
	"github.com/jzx17/wserver/pkg/server"
)

func main() {
	config := server.DefaultConfig()

	flag.StringVar(&config.BaseDir, "d", config.BaseDir, "Base directory to serve files from")
	flag.IntVar(&config.Port, "p", config.Port, "Port to listen on")
	flag.IntVar(&config.PoolSize, "t", config.PoolSize, "Number of worker threads")
	flag.IntVar(&config.QueueCapacity, "b", config.QueueCapacity, "Number of connection buffers")
	flag.StringVar(&config.Host, "host", config.Host, "Address to bind, empty for all interfaces")
	flag.IntVar(&config.MetricsPort, "metrics-port", config.MetricsPort, "Serve Prometheus metrics on this port, 0 disables")
	flag.IntVar(&config.CacheEntries, "cache", config.CacheEntries, "Number of files kept in memory, 0 disables the cache")
	flag.DurationVar(&config.ShutdownTimeout, "shutdown-timeout", config.ShutdownTimeout, "Time allowed to drain queued connections on shutdown")
	accessLog := flag.Bool("access-log", false, "Write one line per request to stdout")
	verbosity := flag.Int("v", logging.DEFAULT, "Log verbosity (0, 3 verbose, 4 debug, 5 trace)")
	development := flag.Bool("dev", false, "Human readable console logs")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-d basedir] [-p port] [-t threads] [-b buffers]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	logger, err := logging.NewLogger(logging.Options{Verbosity: *verbosity, Development: *development})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}

	if *accessLog {
		config.AccessLog = os.Stdout
	}

	logSystemInfo(logger)

	srv, err := server.New(config, logger)
	if err != nil {
		logging.Fatal(logger, err, "Invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.ListenAndServe(ctx); err != nil {
		stop()
		logging.Fatal(logger, err, "Server failed")
	}
}
