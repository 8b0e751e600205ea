// Package world keeps the shared state of every connected user and relays it
// back to all of them, independent of the transport a user came in on.
package world

import "context"

// Conn abstracts a bidirectional message connection for both TCP and WebSocket.
type Conn interface {
	// Read returns the next complete message.
	// Returns io.EOF when the peer closed the connection.
	Read(ctx context.Context) ([]byte, error)

	// Write sends one complete message.
	Write(ctx context.Context, data []byte) error

	// Close closes the connection. Calling it again is harmless.
	Close() error

	// RemoteAddr returns the remote address for logging.
	RemoteAddr() string
}
