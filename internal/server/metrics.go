package server

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "statesync"

type metrics struct {
	accepted *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		accepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "connections_accepted_total",
			Help:      "Accepted connections, by detected protocol.",
		}, []string{"protocol"}),
	}
	reg.MustRegister(m.accepted)
	return m
}
