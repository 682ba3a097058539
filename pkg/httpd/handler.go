// Package httpd serves static files from a base directory, one request per
// connection.
package httpd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/jzx17/wserver/internal/logging"
	"github.com/jzx17/wserver/pkg/types"
)

const serverName = "wserver"

// HandlerConfig defines configuration for the static-file handler
type HandlerConfig struct {
	// BaseDir is the directory files are served from
	BaseDir string

	// ReadTimeout bounds reading the request, 0 means no limit
	ReadTimeout time.Duration

	// WriteTimeout bounds writing the response, 0 means no limit
	WriteTimeout time.Duration

	// MaxHeaderBytes caps the request line plus headers
	MaxHeaderBytes int

	// CacheEntries is the number of file bodies kept in memory, 0 disables caching
	CacheEntries int

	// MaxCachedFileSize is the largest file that is cached
	MaxCachedFileSize int64

	// AccessLog receives one line per request when non-nil
	AccessLog io.Writer

	// Logger (optional)
	Logger logr.Logger
}

// DefaultHandlerConfig returns default configuration serving the current directory
func DefaultHandlerConfig() *HandlerConfig {
	return &HandlerConfig{
		BaseDir:           ".",
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		MaxHeaderBytes:    8 << 10,
		CacheEntries:      128,
		MaxCachedFileSize: 1 << 20,
		Logger:            logr.Discard(),
	}
}

// Handler serves GET and HEAD requests for files under BaseDir
type Handler struct {
	config  *HandlerConfig
	baseDir string
	cache   *fileCache
	access  *accessLog
	logger  logr.Logger
}

// NewHandler creates a handler; BaseDir must be an existing directory
func NewHandler(config *HandlerConfig) (*Handler, error) {
	if config == nil {
		config = DefaultHandlerConfig()
	}
	if config.MaxHeaderBytes <= 0 {
		return nil, types.ConfigError("max header bytes must be positive, got %d", config.MaxHeaderBytes)
	}
	if config.CacheEntries < 0 {
		return nil, types.ConfigError("cache entries cannot be negative, got %d", config.CacheEntries)
	}

	baseDir, err := filepath.Abs(config.BaseDir)
	if err != nil {
		return nil, types.ConfigError("base directory %q: %v", config.BaseDir, err)
	}
	if baseDir, err = filepath.EvalSymlinks(baseDir); err != nil {
		return nil, types.ConfigError("base directory %q: %v", config.BaseDir, err)
	}
	info, err := os.Stat(baseDir)
	if err != nil {
		return nil, types.ConfigError("base directory %q: %v", config.BaseDir, err)
	}
	if !info.IsDir() {
		return nil, types.ConfigError("base directory %q is not a directory", config.BaseDir)
	}

	cache, err := newFileCache(config.CacheEntries, config.MaxCachedFileSize)
	if err != nil {
		return nil, types.ConfigError("file cache: %v", err)
	}

	logger := config.Logger
	if logger.GetSink() == nil {
		logger = logr.Discard()
	}

	return &Handler{
		config:  config,
		baseDir: baseDir,
		cache:   cache,
		access:  newAccessLog(config.AccessLog),
		logger:  logger,
	}, nil
}

// BaseDir returns the absolute directory files are served from
func (h *Handler) BaseDir() string {
	return h.baseDir
}

// ServeConn reads one request from conn and writes the response. It does not
// close conn. Cancelling ctx interrupts blocked reads and writes.
//
// Rejections written to the client (403, 404, 501) are not errors. A
// malformed request or target is answered with 400 and reported as an error
// wrapping types.ErrBadRequest; read and write failures are returned as is.
func (h *Handler) ServeConn(ctx context.Context, conn net.Conn) error {
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	start := time.Now()
	if h.config.ReadTimeout > 0 {
		_ = conn.SetReadDeadline(start.Add(h.config.ReadTimeout))
	}

	req, err := readRequest(bufio.NewReaderSize(conn, 4096), h.config.MaxHeaderBytes)
	if err != nil {
		if errors.Is(err, errNoRequest) {
			h.logger.V(logging.TRACE).Info("Connection closed without a request", "remote", remoteAddr(conn))
			return nil
		}
		if !errors.Is(err, types.ErrBadRequest) {
			return fmt.Errorf("read request: %w", err)
		}
		h.setWriteDeadline(conn)
		n, werr := writeError(conn, http.StatusBadRequest, false)
		h.access.log(time.Now(), remoteAddr(conn), "-", "-", http.StatusBadRequest, n, time.Since(start))
		if werr != nil {
			return fmt.Errorf("write response: %w", werr)
		}
		return err
	}

	h.setWriteDeadline(conn)
	status, n, err := h.respond(conn, req)
	h.access.log(time.Now(), remoteAddr(conn), req.Method, req.Target, status, n, time.Since(start))
	h.logger.V(logging.TRACE).Info("Served request", "method", req.Method, "target", req.Target, "status", status, "bytes", n)
	if err != nil {
		if errors.Is(err, types.ErrBadRequest) {
			return err
		}
		return fmt.Errorf("write response: %w", err)
	}
	return nil
}

func (h *Handler) setWriteDeadline(conn net.Conn) {
	if h.config.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
	}
}

// respond writes the response to req and returns the status sent and the
// number of body bytes written. After a 400 the error is the bad request
// unless the write itself failed.
func (h *Handler) respond(w io.Writer, req *Request) (int, int64, error) {
	head := req.Method == http.MethodHead
	if req.Method != http.MethodGet && !head {
		n, err := writeError(w, http.StatusNotImplemented, false)
		return http.StatusNotImplemented, n, err
	}

	rel, err := cleanTarget(req.Target)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errForbiddenPath) {
			status = http.StatusForbidden
		}
		n, werr := writeError(w, status, head)
		if werr == nil && status == http.StatusBadRequest {
			werr = err
		}
		return status, n, werr
	}

	filePath, info, status := h.resolve(rel)
	if status != http.StatusOK {
		n, err := writeError(w, status, head)
		return status, n, err
	}

	return h.serveFile(w, filePath, info, head)
}

// resolve maps a cleaned relative path to a regular file under baseDir.
// Symlinks are followed only while their target stays inside baseDir.
func (h *Handler) resolve(rel string) (string, os.FileInfo, int) {
	filePath := filepath.Join(h.baseDir, filepath.FromSlash(rel))

	info, err := os.Stat(filePath)
	if err != nil {
		return "", nil, statusForError(err)
	}

	if info.IsDir() {
		filePath = filepath.Join(filePath, "index.html")
		info, err = os.Stat(filePath)
		if err != nil {
			return "", nil, statusForError(err)
		}
	}

	if !info.Mode().IsRegular() {
		return "", nil, http.StatusForbidden
	}

	real, err := filepath.EvalSymlinks(filePath)
	if err != nil {
		return "", nil, statusForError(err)
	}
	if !h.contains(real) {
		h.logger.V(logging.VERBOSE).Info("Symlink leaves base directory", "path", filePath, "target", real)
		return "", nil, http.StatusForbidden
	}
	return filePath, info, http.StatusOK
}

// contains reports whether the resolved path p lies under baseDir
func (h *Handler) contains(p string) bool {
	return p == h.baseDir || strings.HasPrefix(p, h.baseDir+string(filepath.Separator))
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, fs.ErrPermission):
		return http.StatusForbidden
	default:
		return http.StatusNotFound
	}
}

// serveFile writes filePath, falling back to an error status if it can no
// longer be read
func (h *Handler) serveFile(w io.Writer, filePath string, info os.FileInfo, head bool) (int, int64, error) {
	ct := contentType(filePath)

	if body, ok := h.cache.get(filePath, info); ok {
		if err := writeHeader(w, http.StatusOK, ct, int64(len(body))); err != nil || head {
			return http.StatusOK, 0, err
		}
		n, err := w.Write(body)
		return http.StatusOK, int64(n), err
	}

	if h.cache.cacheable(info) && !head {
		body, err := os.ReadFile(filePath)
		if err != nil {
			status := statusForError(err)
			n, werr := writeError(w, status, head)
			return status, n, werr
		}
		h.cache.put(filePath, info, body)
		if err := writeHeader(w, http.StatusOK, ct, int64(len(body))); err != nil {
			return http.StatusOK, 0, err
		}
		n, err := w.Write(body)
		return http.StatusOK, int64(n), err
	}

	f, err := os.Open(filePath)
	if err != nil {
		status := statusForError(err)
		n, werr := writeError(w, status, head)
		return status, n, werr
	}
	defer f.Close()

	if err := writeHeader(w, http.StatusOK, ct, info.Size()); err != nil || head {
		return http.StatusOK, 0, err
	}
	n, err := io.CopyN(w, f, info.Size())
	return http.StatusOK, n, err
}

// CachedFiles returns the number of file bodies currently cached
func (h *Handler) CachedFiles() int {
	return h.cache.Len()
}

func remoteAddr(conn net.Conn) string {
	if addr := conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return "-"
}
