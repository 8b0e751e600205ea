//go:build !js

package native

import (
	"bufio"
	"context"
	"net"
	"sync"

	"github.com/omochice/toy-state-sync/pkg/transport"
)

// tcpStream carries length-prefixed frames over a TCP connection.
type tcpStream struct {
	conn   net.Conn
	reader *bufio.Reader

	closeOnce sync.Once
	closeErr  error
}

func newTCPStream(conn net.Conn) *tcpStream {
	return &tcpStream{
		conn:   conn,
		reader: bufio.NewReader(conn),
	}
}

// ReadMessage reads one frame.
func (s *tcpStream) ReadMessage(ctx context.Context) ([]byte, error) {
	defer bindDeadline(ctx, s.conn.SetReadDeadline)()
	return transport.ReadFrame(s.reader)
}

// WriteMessage writes data as one frame.
func (s *tcpStream) WriteMessage(ctx context.Context, data []byte) error {
	defer bindDeadline(ctx, s.conn.SetWriteDeadline)()
	return transport.WriteFrame(s.conn, data)
}

// Close closes the connection.
func (s *tcpStream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}
