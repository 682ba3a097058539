package httpd

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
)

// writeHeader writes an HTTP/1.0 status line and headers. Every response
// closes the connection.
func writeHeader(w io.Writer, status int, contentType string, contentLength int64) error {
	var buf bytes.Buffer

	buf.WriteString("HTTP/1.0 ")
	buf.WriteString(strconv.Itoa(status))
	buf.WriteString(" ")
	buf.WriteString(http.StatusText(status))
	buf.WriteString("\r\nServer: ")
	buf.WriteString(serverName)
	buf.WriteString("\r\nContent-Type: ")
	buf.WriteString(contentType)
	buf.WriteString("\r\nContent-Length: ")
	buf.WriteString(strconv.FormatInt(contentLength, 10))
	buf.WriteString("\r\nConnection: close\r\n\r\n")

	_, err := w.Write(buf.Bytes())
	return err
}

// errorBody is the small HTML page sent with error statuses
func errorBody(status int) []byte {
	text := fmt.Sprintf("%d %s", status, http.StatusText(status))
	return []byte("<html><head><title>" + text + "</title></head><body><h1>" + text + "</h1></body></html>\n")
}

// writeError writes an error status with its page; HEAD gets headers only
func writeError(w io.Writer, status int, head bool) (int64, error) {
	body := errorBody(status)
	if err := writeHeader(w, status, "text/html", int64(len(body))); err != nil {
		return 0, err
	}
	if head {
		return 0, nil
	}
	n, err := w.Write(body)
	return int64(n), err
}
