//go:build !js

package backend

import (
	"github.com/omochice/toy-state-sync/pkg/transport"
	"github.com/omochice/toy-state-sync/pkg/transport/native"
)

func defaultDriver() transport.Driver {
	return native.New()
}
