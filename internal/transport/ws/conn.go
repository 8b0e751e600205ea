// Package ws adapts nhooyr.io/websocket connections to world.Conn and accepts
// them over HTTP.
package ws

import (
	"context"
	"io"
	"sync"

	"github.com/pkg/errors"
	"nhooyr.io/websocket"

	"github.com/omochice/toy-state-sync/internal/world"
)

// Conn adapts nhooyr.io/websocket to world.Conn interface.
type Conn struct {
	conn       *websocket.Conn
	remoteAddr string
	once       sync.Once
	err        error
}

var _ world.Conn = (*Conn)(nil)

// NewConn wraps a websocket.Conn with empty remote address.
func NewConn(conn *websocket.Conn) *Conn {
	return &Conn{conn: conn}
}

// NewConnWithAddr wraps a websocket.Conn with the specified remote address.
func NewConnWithAddr(conn *websocket.Conn, addr string) *Conn {
	return &Conn{conn: conn, remoteAddr: addr}
}

// Read implements world.Conn.
// Returns the next binary message; text messages are skipped. A normal
// close by the peer is reported as io.EOF.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	for {
		typ, data, err := c.conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return nil, io.EOF
			}
			return nil, err
		}
		if typ == websocket.MessageBinary {
			return data, nil
		}
	}
}

// Write implements world.Conn.
// Writes a binary message to the WebSocket connection.
func (c *Conn) Write(ctx context.Context, data []byte) error {
	return c.conn.Write(ctx, websocket.MessageBinary, data)
}

// Close implements world.Conn.
func (c *Conn) Close() error {
	c.once.Do(func() {
		err := c.conn.Close(websocket.StatusNormalClosure, "")
		if err != nil && websocket.CloseStatus(err) == -1 {
			c.err = errors.Wrap(err, "failed to close websocket")
		}
	})
	return c.err
}

// RemoteAddr implements world.Conn.
func (c *Conn) RemoteAddr() string {
	return c.remoteAddr
}
