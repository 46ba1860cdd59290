package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the server's Prometheus collectors on a private registry
// so tests can run multiple servers without collector name collisions.
type Metrics struct {
	registry *prometheus.Registry

	TickDuration     prometheus.Histogram
	TicksTotal       prometheus.Counter
	MessagesReceived *prometheus.CounterVec
	SnapshotsSent    *prometheus.CounterVec
	InputsDropped    prometheus.Counter
	Sessions         prometheus.Gauge
	EntitiesAlive    prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "voltgrid_tick_duration_seconds",
			Help:    "Wall time spent computing each simulation tick.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
		}),
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "voltgrid_ticks_total",
			Help: "Simulation ticks completed.",
		}),
		MessagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voltgrid_messages_received_total",
			Help: "Inbound messages processed, by message type.",
		}, []string{"type"}),
		SnapshotsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voltgrid_snapshots_sent_total",
			Help: "Snapshots sent to sessions, by kind.",
		}, []string{"kind"}),
		InputsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "voltgrid_inputs_dropped_total",
			Help: "Input commands dropped for arriving too late.",
		}),
		Sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "voltgrid_sessions",
			Help: "Currently connected sessions.",
		}),
		EntitiesAlive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "voltgrid_entities_alive",
			Help: "Cycles currently alive in the arena.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		m.TickDuration,
		m.TicksTotal,
		m.MessagesReceived,
		m.SnapshotsSent,
		m.InputsDropped,
		m.Sessions,
		m.EntitiesAlive,
	)
	return m
}

// Handler serves this registry's metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
