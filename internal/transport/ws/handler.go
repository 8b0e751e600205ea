package ws

import (
	"context"
	"net/http"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"nhooyr.io/websocket"

	"github.com/omochice/toy-state-sync/internal/world"
)

// ServeFunc runs one accepted connection until it ends.
type ServeFunc func(ctx context.Context, conn world.Conn) error

// Handler upgrades requests to WebSocket connections and hands them to serve.
type Handler struct {
	serve          ServeFunc
	logger         log.Logger
	readLimit      int64
	originPatterns []string
}

// NewHandler creates a Handler. Incoming messages larger than readLimit bytes
// close the connection. Browsers may connect from the server's own origin or
// from a host matching one of originPatterns.
func NewHandler(serve ServeFunc, readLimit int64, originPatterns []string, logger log.Logger) *Handler {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Handler{serve: serve, logger: logger, readLimit: readLimit, originPatterns: originPatterns}
}

// ServeHTTP implements http.Handler. It returns when the connection ends.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  h.originPatterns,
		CompressionMode: websocket.CompressionDisabled,
	})
	if err != nil {
		level.Warn(h.logger).Log("event", "websocket accept failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	wsConn.SetReadLimit(h.readLimit)

	conn := NewConnWithAddr(wsConn, r.RemoteAddr)
	defer conn.Close()

	if err := h.serve(r.Context(), conn); err != nil {
		level.Debug(h.logger).Log("event", "websocket client ended", "remote", r.RemoteAddr, "err", err)
	}
}
