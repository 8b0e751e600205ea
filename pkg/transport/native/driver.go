//go:build !js

// Package native implements transport.Driver on top of OS sockets.
//
// ws:// and wss:// URLs are dialed with github.com/gobwas/ws and carry one
// message per binary WebSocket message. tcp:// URLs carry length-prefixed
// frames as written by transport.WriteFrame.
package native

import (
	"bufio"
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"net/url"

	"github.com/gobwas/ws"
	"github.com/pkg/errors"

	"github.com/omochice/toy-state-sync/pkg/transport"
)

// Default configuration values.
const (
	// defaultMaxMessageSize matches the largest TCP frame.
	defaultMaxMessageSize = transport.MaxFrameSize
)

// options holds the configuration for a Driver.
type options struct {
	tlsConfig      *tls.Config
	header         http.Header
	maxMessageSize int
}

// Option is a function that configures a Driver.
type Option func(*options)

// TLSConfigOption sets the TLS configuration used for wss:// URLs.
func TLSConfigOption(cfg *tls.Config) Option {
	return func(o *options) {
		o.tlsConfig = cfg
	}
}

// HeaderOption sets extra HTTP headers sent with the WebSocket handshake.
func HeaderOption(h http.Header) Option {
	return func(o *options) {
		o.header = h
	}
}

// MaxMessageSizeOption bounds the size of a received message.
func MaxMessageSizeOption(n int) Option {
	return func(o *options) {
		o.maxMessageSize = n
	}
}

// Driver dials native sockets.
type Driver struct {
	opts options
}

var _ transport.Driver = (*Driver)(nil)

// New creates a Driver.
func New(opt ...Option) *Driver {
	var opts options
	for _, o := range opt {
		o(&opts)
	}
	if opts.maxMessageSize <= 0 {
		opts.maxMessageSize = defaultMaxMessageSize
	}
	return &Driver{opts: opts}
}

// Dial implements transport.Driver.
func (d *Driver) Dial(ctx context.Context, u *url.URL) (transport.Stream, error) {
	switch u.Scheme {
	case "ws", "wss":
		return d.dialWebSocket(ctx, u)
	case "tcp":
		return d.dialTCP(ctx, u)
	default:
		return nil, errors.Wrapf(transport.ErrUnsupportedScheme, "native driver: %q", u.Scheme)
	}
}

func (d *Driver) dialWebSocket(ctx context.Context, u *url.URL) (transport.Stream, error) {
	dialer := ws.Dialer{
		TLSConfig: d.opts.tlsConfig,
	}
	if d.opts.header != nil {
		dialer.Header = ws.HandshakeHeaderHTTP(d.opts.header)
	}

	conn, br, _, err := dialer.Dial(ctx, u.String())
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to %s", u.Redacted())
	}
	return newWSStream(conn, br, d.opts.maxMessageSize), nil
}

func (d *Driver) dialTCP(ctx context.Context, u *url.URL) (transport.Stream, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", u.Host)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to %s", u.Host)
	}
	return newTCPStream(conn), nil
}

// newReader returns br if the handshake left buffered data in it, else a
// fresh reader over conn.
func newReader(conn net.Conn, br *bufio.Reader) *bufio.Reader {
	if br != nil {
		return br
	}
	return bufio.NewReader(conn)
}
