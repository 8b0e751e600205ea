// Package backend selects the transport driver for the platform the program
// is built for.
package backend

import "github.com/omochice/toy-state-sync/pkg/transport"

// Default returns the driver of the current build: the host WebSocket when
// compiled for js/wasm, native sockets otherwise.
func Default() transport.Driver {
	return defaultDriver()
}
