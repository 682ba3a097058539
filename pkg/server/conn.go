package server

import (
	"net"
	"time"

	"github.com/google/uuid"
)

// Conn is the work item handed from the acceptor to the workers
type Conn struct {
	net.Conn

	// ID correlates log lines of one connection
	ID string

	// Accepted is when the acceptor took the connection
	Accepted time.Time
}

func newConn(c net.Conn, now time.Time) *Conn {
	return &Conn{
		Conn:     c,
		ID:       uuid.NewString(),
		Accepted: now,
	}
}
