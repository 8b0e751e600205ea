package transport

import (
	"io"

	"github.com/pkg/errors"
)

// Framing used on plain byte streams such as TCP: a 2-byte big-endian
// payload length followed by the payload.
const (
	FrameHeaderSize = 2
	MaxFrameSize    = 65535
)

// ErrFrameTooLarge is returned when a payload does not fit a frame.
var ErrFrameTooLarge = errors.New("transport: frame payload too large")

// WriteFrame writes payload as one frame with a single Write call.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return errors.Wrapf(ErrFrameTooLarge, "%d bytes", len(payload))
	}
	buf := make([]byte, FrameHeaderSize+len(payload))
	buf[0] = byte(len(payload) >> 8)
	buf[1] = byte(len(payload))
	copy(buf[FrameHeaderSize:], payload)
	_, err := w.Write(buf)
	return err
}

// ReadFrame reads one complete frame and returns its payload.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [FrameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	length := int(header[0])<<8 | int(header[1])

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return payload, nil
}
