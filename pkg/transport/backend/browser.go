//go:build js && wasm

package backend

import (
	"github.com/omochice/toy-state-sync/pkg/transport"
	"github.com/omochice/toy-state-sync/pkg/transport/browser"
)

func defaultDriver() transport.Driver {
	return browser.New()
}
