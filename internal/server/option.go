package server

import (
	"github.com/go-kit/kit/log"
	"github.com/prometheus/client_golang/prometheus"
)

type options struct {
	logger   log.Logger
	registry *prometheus.Registry
}

// Option configures a Server.
type Option func(*options)

// WithLogger sets the server logger.
func WithLogger(logger log.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithRegistry sets the registry metrics are recorded into and served from.
// By default the server creates its own.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) {
		o.registry = reg
	}
}
