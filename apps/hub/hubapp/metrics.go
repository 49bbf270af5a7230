package hubapp

import (
	"github.com/prometheus/client_golang/prometheus"
)

// metrics holds the Hub's Prometheus instrumentation. Kept on its own
// registry rather than the global default so multiple Services in the same
// process (tests) don't collide on metric registration.
type metrics struct {
	registry         *prometheus.Registry
	connectedAgents  prometheus.Gauge
	uploadsStarted   prometheus.Counter
	uploadsFailed    prometheus.Counter
	uploadsCompleted prometheus.Counter
	bytesUploaded    prometheus.Counter
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()

	m := &metrics{
		registry: registry,
		connectedAgents: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "capydeploy_hub",
			Name:      "connected_agents",
			Help:      "Number of Agents currently connected to this Hub.",
		}),
		uploadsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "capydeploy_hub",
			Name:      "uploads_started_total",
			Help:      "Total number of game uploads started.",
		}),
		uploadsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "capydeploy_hub",
			Name:      "uploads_failed_total",
			Help:      "Total number of game uploads that failed.",
		}),
		uploadsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "capydeploy_hub",
			Name:      "uploads_completed_total",
			Help:      "Total number of game uploads completed successfully.",
		}),
		bytesUploaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "capydeploy_hub",
			Name:      "uploaded_bytes_total",
			Help:      "Total bytes transferred to Agents across all uploads.",
		}),
	}

	registry.MustRegister(
		m.connectedAgents,
		m.uploadsStarted,
		m.uploadsFailed,
		m.uploadsCompleted,
		m.bytesUploaded,
	)
	return m
}

func (m *metrics) setConnectedAgents(n int) {
	m.connectedAgents.Set(float64(n))
}
