// Package server implements the relay: clients report their own state over
// TCP or WebSocket on a single port, and every tick the server sends the
// combined world back to all of them.
package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/omochice/toy-state-sync/internal/config"
	"github.com/omochice/toy-state-sync/internal/transport/tcp"
	"github.com/omochice/toy-state-sync/internal/transport/ws"
	"github.com/omochice/toy-state-sync/internal/world"
	"github.com/omochice/toy-state-sync/pkg/transport"
)

const (
	sniffTimeout    = 5 * time.Second
	shutdownTimeout = 5 * time.Second
)

// Server accepts TCP and WebSocket clients on one port and relays the world
// state between them.
type Server struct {
	cfg      config.Server
	logger   log.Logger
	registry *prometheus.Registry
	metrics  *metrics
	hub      *world.Hub

	listener net.Listener
}

// New creates a Server. Call Listen, then Serve.
func New(cfg config.Server, opts ...Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.NewNopLogger()
	}
	if o.registry == nil {
		o.registry = prometheus.NewRegistry()
		o.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	hub, err := world.NewHub(cfg.MaxClients,
		world.WithLogger(o.logger),
		world.WithMetrics(world.NewMetrics(o.registry, namespace)),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create hub")
	}

	return &Server{
		cfg:      cfg,
		logger:   o.logger,
		registry: o.registry,
		metrics:  newMetrics(o.registry),
		hub:      hub,
	}, nil
}

// Listen binds the configured address.
func (s *Server) Listen() error {
	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return errors.Wrap(err, "failed to start server")
	}
	s.listener = listener
	return nil
}

// Addr returns the listening address, or "" before Listen.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	return s.hub.ClientCount()
}

// Run listens and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Serve accepts clients and broadcasts the world every tick until ctx is
// done. It returns nil after a clean shutdown.
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		return errors.New("server is not listening")
	}
	level.Info(s.logger).Log("event", "server started", "addr", s.Addr(), "path", s.cfg.Path, "max_clients", s.cfg.MaxClients)

	g, gctx := errgroup.WithContext(ctx)
	httpConns := newConnListener(s.listener.Addr())
	httpServer := &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: sniffTimeout,
		BaseContext:       func(net.Listener) context.Context { return gctx },
	}

	g.Go(func() error {
		if err := httpServer.Serve(httpConns); err != nil && err != http.ErrServerClosed {
			return errors.Wrap(err, "http server failed")
		}
		return nil
	})
	g.Go(func() error {
		return s.acceptLoop(gctx, g, httpConns)
	})
	g.Go(func() error {
		return s.broadcastLoop(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		_ = s.listener.Close()
		_ = httpConns.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return errors.Wrap(httpServer.Shutdown(shutdownCtx), "failed to shut down http server")
	})

	err := g.Wait()
	level.Info(s.logger).Log("event", "server stopped", "err", err)
	return err
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(s.cfg.Path, ws.NewHandler(s.hub.Serve, transport.MaxFrameSize, s.cfg.OriginPatterns, s.logger))
	if s.cfg.MetricsPath != "" {
		mux.Handle(s.cfg.MetricsPath, promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}
	return mux
}

func (s *Server) acceptLoop(ctx context.Context, g *errgroup.Group, httpConns *connListener) error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "failed to accept connection")
		}
		g.Go(func() error {
			s.handleConnection(ctx, conn, httpConns)
			return nil
		})
	}
}

// handleConnection determines whether the connection is HTTP (WebSocket) or TCP.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn, httpConns *connListener) {
	logger := log.With(s.logger, "remote", conn.RemoteAddr())

	_ = conn.SetReadDeadline(time.Now().Add(sniffTimeout))
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	proto, reader, err := detectProtocol(conn)
	if !stop() {
		return
	}
	if err != nil {
		level.Debug(logger).Log("event", "protocol detection failed", "err", err)
		_ = conn.Close()
		return
	}
	_ = conn.SetReadDeadline(time.Time{})
	s.metrics.accepted.WithLabelValues(proto.String()).Inc()

	if proto == protocolHTTP {
		if !httpConns.push(&bufferedConn{Conn: conn, reader: reader}) {
			_ = conn.Close()
		}
		return
	}

	if err := s.hub.Serve(ctx, tcp.NewConnWithReader(conn, reader)); err != nil {
		level.Debug(logger).Log("event", "tcp client ended", "err", err)
	}
}

func (s *Server) broadcastLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			sent, dropped, err := s.hub.Broadcast()
			if err != nil {
				return err
			}
			if dropped > 0 {
				level.Debug(s.logger).Log("event", "world update skipped busy clients", "sent", sent, "dropped", dropped)
			}
		}
	}
}
