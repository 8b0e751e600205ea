package transport

import (
	"time"

	"github.com/go-kit/kit/log"
)

// options holds the configuration for a Pump.
type options struct {
	logger      log.Logger
	metrics     *Metrics
	dialTimeout time.Duration // zero leaves timeouts to the transport
}

// Option is a function that configures a Pump.
type Option func(*options)

// WithLogger sets the logger transport failures are reported to.
func WithLogger(logger log.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics sets the metrics the pump records into.
func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithDialTimeout bounds connect and handshake. The protocol itself has no
// timeouts, so the default is to wait for the transport to give up.
func WithDialTimeout(d time.Duration) Option {
	return func(o *options) {
		o.dialTimeout = d
	}
}

func newOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.NewNopLogger()
	}
	return o
}
