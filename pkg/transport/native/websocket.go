//go:build !js

package native

import (
	"bufio"
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/pkg/errors"
)

// closeFrameTimeout bounds the courtesy close frame sent by Close.
const closeFrameTimeout = time.Second

// wsStream is the client side of a WebSocket connection. Reads and writes may
// run concurrently; every frame is written under wmu so control replies
// issued by the reader never interleave with a data message.
type wsStream struct {
	conn   net.Conn
	reader wsutil.Reader

	wmu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

func newWSStream(conn net.Conn, br *bufio.Reader, maxMessageSize int) *wsStream {
	s := &wsStream{conn: conn}
	s.reader = wsutil.Reader{
		Source:       newReader(conn, br),
		State:        ws.StateClientSide,
		CheckUTF8:    true,
		MaxFrameSize: int64(maxMessageSize),
	}
	s.reader.OnIntermediate = s.handleControl
	return s
}

// ReadMessage returns the payload of the next binary message. Text messages
// are skipped; control frames are answered on the way.
func (s *wsStream) ReadMessage(ctx context.Context) ([]byte, error) {
	defer bindDeadline(ctx, s.conn.SetReadDeadline)()

	for {
		hdr, err := s.reader.NextFrame()
		if err != nil {
			return nil, err
		}
		if hdr.OpCode.IsControl() {
			if err := s.handleControl(hdr, &s.reader); err != nil {
				return nil, err
			}
			continue
		}
		if hdr.OpCode != ws.OpBinary {
			if err := s.reader.Discard(); err != nil {
				return nil, err
			}
			continue
		}
		return io.ReadAll(&s.reader)
	}
}

// WriteMessage sends data as one binary message.
func (s *wsStream) WriteMessage(ctx context.Context, data []byte) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	defer bindDeadline(ctx, s.conn.SetWriteDeadline)()

	return wsutil.WriteClientBinary(s.conn, data)
}

// Close sends a normal closure frame, unless a write is stuck holding the
// connection, and closes the socket.
func (s *wsStream) Close() error {
	s.closeOnce.Do(func() {
		if s.wmu.TryLock() {
			_ = s.conn.SetWriteDeadline(time.Now().Add(closeFrameTimeout))
			_ = wsutil.WriteClientMessage(s.conn, ws.OpClose, ws.NewCloseFrameBody(ws.StatusNormalClosure, ""))
			s.wmu.Unlock()
		}
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

func (s *wsStream) handleControl(hdr ws.Header, r io.Reader) error {
	payload, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	switch hdr.OpCode {
	case ws.OpPing:
		return s.writeFrame(ws.OpPong, payload)
	case ws.OpClose:
		code, reason := ws.ParseCloseFrameData(payload)
		_ = s.writeFrame(ws.OpClose, ws.NewCloseFrameBody(ws.StatusNormalClosure, ""))
		return errors.WithStack(wsutil.ClosedError{Code: code, Reason: reason})
	default:
		return nil
	}
}

func (s *wsStream) writeFrame(op ws.OpCode, payload []byte) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return wsutil.WriteClientMessage(s.conn, op, payload)
}
