// Package tcp adapts length-prefixed TCP connections to world.Conn.
package tcp

import (
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/omochice/toy-state-sync/internal/world"
	"github.com/omochice/toy-state-sync/pkg/transport"
)

// Conn adapts net.Conn to world.Conn. Each message travels as one frame.
type Conn struct {
	conn   net.Conn
	reader io.Reader
	once   sync.Once
	err    error
}

var _ world.Conn = (*Conn)(nil)

// NewConn wraps a net.Conn.
func NewConn(conn net.Conn) *Conn {
	return &Conn{conn: conn, reader: conn}
}

// NewConnWithReader wraps a net.Conn whose first bytes were already buffered
// by reader while detecting the protocol.
func NewConnWithReader(conn net.Conn, reader io.Reader) *Conn {
	return &Conn{conn: conn, reader: reader}
}

// Read implements world.Conn. A deadline on ctx bounds the read; cancellation
// without a deadline is left to Close.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := c.conn.SetReadDeadline(deadline(ctx)); err != nil {
		return nil, errors.Wrap(err, "failed to set read deadline")
	}
	return transport.ReadFrame(c.reader)
}

// Write implements world.Conn.
func (c *Conn) Write(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.conn.SetWriteDeadline(deadline(ctx)); err != nil {
		return errors.Wrap(err, "failed to set write deadline")
	}
	return transport.WriteFrame(c.conn, data)
}

// Close implements world.Conn.
func (c *Conn) Close() error {
	c.once.Do(func() {
		c.err = c.conn.Close()
	})
	return c.err
}

// RemoteAddr implements world.Conn.
func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

func deadline(ctx context.Context) time.Time {
	d, _ := ctx.Deadline()
	return d
}
