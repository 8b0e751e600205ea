package world

import "github.com/go-kit/kit/log"

type options struct {
	logger  log.Logger
	metrics *Metrics
}

// Option configures a Hub.
type Option func(*options)

// WithLogger sets the logger client activity is reported to.
func WithLogger(logger log.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics sets the metrics the hub records into.
func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}
