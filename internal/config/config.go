// Package config holds the settings of the relay server and the bot client.
package config

import (
	"net"
	"net/url"
	"path"
	"time"

	"github.com/pkg/errors"

	"github.com/omochice/toy-state-sync/pkg/protocol"
	"github.com/omochice/toy-state-sync/pkg/transport"
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid configuration")

// Server configures the relay server.
type Server struct {
	// Addr is the single listen address for TCP and WebSocket clients.
	Addr string
	// Path is the HTTP path WebSocket clients connect to.
	Path string
	// MaxClients bounds the number of users in a world update.
	MaxClients int
	// TickInterval is the period of world broadcasts.
	TickInterval time.Duration
	// MetricsPath serves Prometheus metrics on the same port when set.
	MetricsPath string
	// OriginPatterns lists the cross-origin hosts WebSocket clients may
	// connect from, as path.Match patterns. Same-origin is always allowed.
	OriginPatterns []string
	// LogLevel is one of debug, info, warn, error.
	LogLevel string
}

// DefaultServer returns the settings cmd/server starts with.
func DefaultServer() Server {
	return Server{
		Addr:         ":8080",
		Path:         "/world",
		MaxClients:   64,
		TickInterval: 50 * time.Millisecond,
		MetricsPath:  "/metrics",
		LogLevel:     "info",
	}
}

// Validate reports the first invalid setting.
func (c Server) Validate() error {
	switch {
	case c.Addr == "":
		return errors.Wrap(ErrInvalid, "server address is empty")
	case c.Path == "" || c.Path[0] != '/':
		return errors.Wrapf(ErrInvalid, "websocket path %q must start with /", c.Path)
	case c.MetricsPath != "" && c.MetricsPath[0] != '/':
		return errors.Wrapf(ErrInvalid, "metrics path %q must start with /", c.MetricsPath)
	case c.MetricsPath == c.Path:
		return errors.Wrapf(ErrInvalid, "metrics path and websocket path are both %q", c.Path)
	case c.MaxClients < 1 || c.MaxClients > protocol.MaxCapacity:
		return errors.Wrapf(ErrInvalid, "max clients %d not in [1, %d]", c.MaxClients, protocol.MaxCapacity)
	case protocol.MaxEncodedSize(c.MaxClients) > transport.MaxFrameSize:
		return errors.Wrapf(ErrInvalid, "a world of %d clients does not fit in one frame", c.MaxClients)
	case c.TickInterval <= 0:
		return errors.Wrapf(ErrInvalid, "tick interval %s must be positive", c.TickInterval)
	}
	for _, p := range c.OriginPatterns {
		if _, err := path.Match(p, ""); p == "" || err != nil {
			return errors.Wrapf(ErrInvalid, "origin pattern %q is malformed", p)
		}
	}
	return validateLevel(c.LogLevel)
}

// Client configures the bot client.
type Client struct {
	// URL of the server: ws://, wss:// or tcp://.
	URL string
	// TickInterval is the period of the client frame loop.
	TickInterval time.Duration
	// DialTimeout aborts connection attempts; zero waits indefinitely.
	DialTimeout time.Duration
	// Capacity is the largest world update the client accepts.
	Capacity int
	// Radius of the circle the bot walks, in world units.
	Radius float32
	// Duration stops the bot after this long; zero runs until disconnected.
	Duration time.Duration
	// MetricsAddr serves Prometheus metrics of the pump when set.
	MetricsAddr string
	// LogLevel is one of debug, info, warn, error.
	LogLevel string
}

// DefaultClient returns the settings cmd/client starts with.
func DefaultClient() Client {
	return Client{
		URL:          "ws://localhost:8080/world",
		TickInterval: 50 * time.Millisecond,
		DialTimeout:  5 * time.Second,
		Capacity:     64,
		Radius:       5,
		LogLevel:     "info",
	}
}

// Validate reports the first invalid setting.
func (c Client) Validate() error {
	_, hi := protocol.PositionFormat().Range()
	u, err := url.Parse(c.URL)
	if err != nil {
		return errors.Wrapf(ErrInvalid, "server url: %v", err)
	}
	switch {
	case u.Scheme != "ws" && u.Scheme != "wss" && u.Scheme != "tcp":
		return errors.Wrapf(ErrInvalid, "server url scheme %q is not ws, wss or tcp", u.Scheme)
	case u.Hostname() == "":
		return errors.Wrapf(ErrInvalid, "server url %q has no host", c.URL)
	case c.TickInterval <= 0:
		return errors.Wrapf(ErrInvalid, "tick interval %s must be positive", c.TickInterval)
	case c.DialTimeout < 0:
		return errors.Wrapf(ErrInvalid, "dial timeout %s is negative", c.DialTimeout)
	case c.Duration < 0:
		return errors.Wrapf(ErrInvalid, "duration %s is negative", c.Duration)
	case c.Capacity < 1 || c.Capacity > protocol.MaxCapacity:
		return errors.Wrapf(ErrInvalid, "capacity %d not in [1, %d]", c.Capacity, protocol.MaxCapacity)
	case c.Radius < 0 || float64(c.Radius) > hi:
		return errors.Wrapf(ErrInvalid, "radius %v outside the position range", c.Radius)
	}
	if c.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(c.MetricsAddr); err != nil {
			return errors.Wrapf(ErrInvalid, "metrics address: %v", err)
		}
	}
	return validateLevel(c.LogLevel)
}

func validateLevel(name string) error {
	switch name {
	case "debug", "info", "warn", "error":
		return nil
	}
	return errors.Wrapf(ErrInvalid, "unknown log level %q", name)
}
