package world

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts hub activity. A nil *Metrics records nothing.
type Metrics struct {
	clients    prometheus.Gauge
	updates    *prometheus.CounterVec
	broadcasts prometheus.Counter
	deliveries *prometheus.CounterVec
}

// NewMetrics creates the hub metrics under namespace and registers them with reg.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	m := &Metrics{
		clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "world",
			Name:      "clients",
			Help:      "Connected clients.",
		}),
		updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "world",
			Name:      "updates_total",
			Help:      "State updates received from clients, by result.",
		}, []string{"result"}),
		broadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "world",
			Name:      "broadcasts_total",
			Help:      "World updates assembled.",
		}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "world",
			Name:      "deliveries_total",
			Help:      "World updates handed to clients, by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.clients, m.updates, m.broadcasts, m.deliveries)
	return m
}

func (m *Metrics) setClients(n int) {
	if m == nil {
		return
	}
	m.clients.Set(float64(n))
}

func (m *Metrics) update(result string) {
	if m == nil {
		return
	}
	m.updates.WithLabelValues(result).Inc()
}

func (m *Metrics) broadcast(sent, dropped int) {
	if m == nil {
		return
	}
	m.broadcasts.Inc()
	m.deliveries.WithLabelValues("sent").Add(float64(sent))
	m.deliveries.WithLabelValues("dropped").Add(float64(dropped))
}

// Updates returns the counter of client updates with the given result:
// accepted or rejected.
func (m *Metrics) Updates(result string) prometheus.Counter {
	return m.updates.WithLabelValues(result)
}

// Deliveries returns the counter of world updates with the given result:
// sent or dropped.
func (m *Metrics) Deliveries(result string) prometheus.Counter {
	return m.deliveries.WithLabelValues(result)
}

// Clients returns the connected clients gauge.
func (m *Metrics) Clients() prometheus.Gauge {
	return m.clients
}
