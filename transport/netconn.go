// File: transport/netconn.go
// Package transport adapts a net.Conn into the api.Stream the protocol
// core consumes: byte-exact ReadExact/WriteAll, with any failure to fill
// the read buffer (a clean close included) surfaced as a RecvShort error
// whose Context["cause"] holds the underlying I/O error.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

import (
	"context"
	"io"
	"net"
	"time"

	"github.com/momentics/wscore/api"
)

// Conn wraps a net.Conn as an api.Stream.
type Conn struct {
	conn net.Conn
}

// NewConn wraps conn as an api.Stream.
func NewConn(conn net.Conn) *Conn {
	return &Conn{conn: conn}
}

// Unwrap returns the underlying net.Conn, for callers that need to set
// deadlines or query local/remote addresses outside the api.Stream
// contract.
func (c *Conn) Unwrap() net.Conn { return c.conn }

// ReadExact reads exactly len(buf) bytes. If ctx has a deadline it is
// applied as the connection's read deadline for this call (net.Conn has
// no native context-aware read); cancelling a ctx that has no deadline
// does not interrupt a blocked read.
func (c *Conn) ReadExact(ctx context.Context, buf []byte) error {
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetReadDeadline(deadline)
		defer c.conn.SetReadDeadline(time.Time{})
	}
	if _, err := io.ReadFull(c.conn, buf); err != nil {
		return api.NewRecvShort("short read from transport").WithContext("cause", err)
	}
	return nil
}

// WriteAll writes all of buf, honoring ctx's deadline the same way
// ReadExact does.
func (c *Conn) WriteAll(ctx context.Context, buf []byte) error {
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(deadline)
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	if _, err := c.conn.Write(buf); err != nil {
		return api.NewSendFailed("short write to transport").WithContext("cause", err)
	}
	return nil
}

// Close closes the underlying net.Conn.
func (c *Conn) Close() error {
	return c.conn.Close()
}

var _ api.Stream = (*Conn)(nil)
