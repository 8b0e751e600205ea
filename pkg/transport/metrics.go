package transport

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts pump activity. A nil *Metrics records nothing.
type Metrics struct {
	messagesSent     prometheus.Counter
	messagesReceived prometheus.Counter
	bytesSent        prometheus.Counter
	bytesReceived    prometheus.Counter
	failures         *prometheus.CounterVec
	connections      *prometheus.CounterVec
}

// NewMetrics creates the pump metrics under namespace and registers them
// with reg.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	m := &Metrics{
		messagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "messages_sent_total",
			Help:      "Messages written to a transport.",
		}),
		messagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "messages_received_total",
			Help:      "Messages read from a transport.",
		}),
		bytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "bytes_sent_total",
			Help:      "Payload bytes written to a transport.",
		}),
		bytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "bytes_received_total",
			Help:      "Payload bytes read from a transport.",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "failures_total",
			Help:      "Transport operations that failed, by operation.",
		}, []string{"op"}),
		connections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "connection_transitions_total",
			Help:      "Connection state transitions, by target state.",
		}, []string{"state"}),
	}
	reg.MustRegister(m.messagesSent, m.messagesReceived, m.bytesSent, m.bytesReceived, m.failures, m.connections)
	return m
}

func (m *Metrics) sent(n int) {
	if m == nil {
		return
	}
	m.messagesSent.Inc()
	m.bytesSent.Add(float64(n))
}

func (m *Metrics) received(n int) {
	if m == nil {
		return
	}
	m.messagesReceived.Inc()
	m.bytesReceived.Add(float64(n))
}

func (m *Metrics) failed(op string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(op).Inc()
}

func (m *Metrics) entered(s State) {
	if m == nil {
		return
	}
	m.connections.WithLabelValues(s.String()).Inc()
}

// MessagesSent returns the counter of messages written.
func (m *Metrics) MessagesSent() prometheus.Counter {
	return m.messagesSent
}

// MessagesReceived returns the counter of messages read.
func (m *Metrics) MessagesReceived() prometheus.Counter {
	return m.messagesReceived
}

// Failures returns the failure counter of one operation: dial, read, write or close.
func (m *Metrics) Failures(op string) prometheus.Counter {
	return m.failures.WithLabelValues(op)
}
