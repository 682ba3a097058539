package httpd

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/jzx17/wserver/pkg/types"
)

// Request is the part of an HTTP request the static handler looks at
type Request struct {
	Method  string
	Target  string
	Proto   string
	Headers map[string]string
}

// errNoRequest means the peer closed the connection before sending anything
var errNoRequest = errors.New("connection closed before request")

func badRequest(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", types.ErrBadRequest, fmt.Sprintf(format, args...))
}

// readRequest reads the request line and headers. The header section,
// request line included, may not exceed maxBytes. A request body, if any, is
// left unread.
func readRequest(r *bufio.Reader, maxBytes int) (*Request, error) {
	var req *Request
	read := 0

	for {
		line, err := r.ReadSlice('\n')
		read += len(line)
		if read > maxBytes {
			return nil, badRequest("header section exceeds %d bytes", maxBytes)
		}
		if err != nil {
			if errors.Is(err, bufio.ErrBufferFull) {
				return nil, badRequest("header line too long")
			}
			if errors.Is(err, io.EOF) {
				if read == 0 {
					return nil, errNoRequest
				}
				return nil, badRequest("unexpected end of request")
			}
			return nil, err
		}

		line = bytes.TrimRight(line, "\r\n")

		if req == nil {
			req, err = parseRequestLine(line)
			if err != nil {
				return nil, err
			}
			continue
		}

		if len(line) == 0 {
			return req, nil
		}

		parts := bytes.SplitN(line, []byte(":"), 2)
		if len(parts) != 2 {
			return nil, badRequest("malformed header %q", line)
		}
		key := strings.ToLower(string(bytes.TrimSpace(parts[0])))
		req.Headers[key] = string(bytes.TrimSpace(parts[1]))
	}
}

// parseRequestLine splits "METHOD target HTTP/x.y"
func parseRequestLine(line []byte) (*Request, error) {
	parts := strings.Fields(string(line))
	if len(parts) != 3 {
		return nil, badRequest("invalid request line %q", line)
	}
	if !strings.HasPrefix(parts[2], "HTTP/") {
		return nil, badRequest("invalid protocol %q", parts[2])
	}
	return &Request{
		Method:  parts[0],
		Target:  parts[1],
		Proto:   parts[2],
		Headers: make(map[string]string),
	}, nil
}

// errForbiddenPath marks targets that try to leave the base directory
var errForbiddenPath = errors.New("path escapes base directory")

// cleanTarget turns a request target into a slash-separated path relative to
// the base directory
func cleanTarget(target string) (string, error) {
	if i := strings.IndexAny(target, "?#"); i >= 0 {
		target = target[:i]
	}
	if !strings.HasPrefix(target, "/") {
		return "", badRequest("target %q is not an absolute path", target)
	}

	decoded, err := url.PathUnescape(target)
	if err != nil {
		return "", badRequest("target %q: %v", target, err)
	}
	if strings.Contains(decoded, "..") || strings.ContainsRune(decoded, 0) {
		return "", errForbiddenPath
	}

	return strings.TrimPrefix(path.Clean(decoded), "/"), nil
}
