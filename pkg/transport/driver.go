// Package transport moves world-state messages between the application and a
// socket backend.
//
// The application opens connections on a Set and exchanges whole messages
// through each Conn's single-slot pipes. A Pump, ticked once per frame,
// drives a Driver that knows one concrete socket engine. Protocol code only
// ever sees pipes, so the same code runs over every Driver.
package transport

import (
	"context"
	"net/url"

	"github.com/pkg/errors"
)

// ErrUnsupportedScheme is returned by drivers for URL schemes they can not dial.
var ErrUnsupportedScheme = errors.New("transport: unsupported url scheme")

// Driver dials transports for one socket engine.
type Driver interface {
	// Dial resolves u, connects and completes any handshake.
	Dial(ctx context.Context, u *url.URL) (Stream, error)
}

// Stream is an established, message-oriented transport.
//
// The pump issues at most one ReadMessage and one WriteMessage at a time,
// possibly concurrently with each other. Close may be called while a read
// is blocked and must make it return.
type Stream interface {
	ReadMessage(ctx context.Context) ([]byte, error)
	WriteMessage(ctx context.Context, data []byte) error
	Close() error
}
