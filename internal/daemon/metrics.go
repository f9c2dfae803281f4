package daemon

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the control socket's request counters, registered on an
// isolated prometheus.Registry -- the same shape as wirehandler.NewMetrics,
// kept as its own small registry since the control socket and the wire
// handler are instrumented independently.
type Metrics struct {
	Registry *prometheus.Registry

	RequestsTotal          *prometheus.CounterVec
	RequestDurationSeconds *prometheus.HistogramVec
}

// NewMetrics builds a fresh Metrics instance for one daemon process.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "radnode_daemon_requests_total",
			Help: "Control socket requests by method, path, and status.",
		}, []string{"method", "path", "status"}),
		RequestDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "radnode_daemon_request_duration_seconds",
			Help: "Control socket request latency.",
		}, []string{"method", "path", "status"}),
	}
	reg.MustRegister(m.RequestsTotal, m.RequestDurationSeconds)
	return m
}
