package httpd

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fatih/color"
)

// accessLog writes one line per request, colored by status class
type accessLog struct {
	mu sync.Mutex
	w  io.Writer
}

func newAccessLog(w io.Writer) *accessLog {
	if w == nil {
		return nil
	}
	return &accessLog{w: w}
}

func (l *accessLog) log(now time.Time, remote, method, target string, status int, bytes int64, elapsed time.Duration) {
	if l == nil {
		return
	}

	line := fmt.Sprintf("%s %s \"%s %s\" %d %d %s",
		now.Format("2006/01/02 15:04:05"), remote, method, target, status, bytes, elapsed.Round(time.Microsecond))

	switch {
	case status >= 200 && status < 300:
		line = color.GreenString("%s", line)
	case status >= 400:
		line = color.RedString("%s", line)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.w, line)
}
