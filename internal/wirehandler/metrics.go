package wirehandler

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the wire handler's per-tick counters and gauges,
// registered on an isolated prometheus.Registry so a node's metrics never
// collide with the process default registry -- the same shape as
// pkg/p2pnet's NewMetrics constructor.
type Metrics struct {
	Registry *prometheus.Registry

	OpenChannels      prometheus.Gauge
	WorkerQueueLength prometheus.Gauge
	BytesSent         *prometheus.CounterVec
	BytesReceived     *prometheus.CounterVec
	HandshakeFailures prometheus.Counter
	ConflictDisconnects prometheus.Counter
	BuildInfo         *prometheus.GaugeVec
}

// NewMetrics builds a fresh Metrics instance for one node process.
func NewMetrics(version, goVersion string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,
		OpenChannels: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "radnode_open_channels",
			Help: "Open Git worker channels summed across all connected peers.",
		}),
		WorkerQueueLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "radnode_worker_queue_length",
			Help: "Approximate depth of the worker pool's task queue.",
		}),
		BytesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "radnode_bytes_sent_total",
			Help: "Bytes sent per peer.",
		}, []string{"peer"}),
		BytesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "radnode_bytes_received_total",
			Help: "Bytes received per peer.",
		}, []string{"peer"}),
		HandshakeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "radnode_handshake_failures_total",
			Help: "Noise handshakes that failed or were abandoned.",
		}),
		ConflictDisconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "radnode_conflict_disconnects_total",
			Help: "Sessions closed by duplicate-NodeId conflict resolution.",
		}),
		BuildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "radnode_build_info",
			Help: "Build metadata, value is always 1.",
		}, []string{"version", "go_version"}),
	}
	reg.MustRegister(
		m.OpenChannels, m.WorkerQueueLength, m.BytesSent, m.BytesReceived,
		m.HandshakeFailures, m.ConflictDisconnects, m.BuildInfo,
	)
	m.BuildInfo.WithLabelValues(version, goVersion).Set(1)
	return m
}
