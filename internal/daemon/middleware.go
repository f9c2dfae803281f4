package daemon

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// InstrumentHandler wraps an HTTP handler with Prometheus metrics and audit
// logging. If both metrics and audit are nil, the handler is returned
// unchanged.
func InstrumentHandler(next http.Handler, metrics *Metrics, audit *AuditLogger) http.Handler {
	if metrics == nil && audit == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestId := uuid.NewString()
		w.Header().Set("X-Request-Id", requestId)

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		duration := time.Since(start).Seconds()
		path := sanitizePath(r.URL.Path)
		status := strconv.Itoa(rec.status)

		if metrics != nil {
			metrics.RequestsTotal.WithLabelValues(r.Method, path, status).Inc()
			metrics.RequestDurationSeconds.WithLabelValues(r.Method, path, status).Observe(duration)
		}
		if audit != nil {
			audit.APIAccess(requestId, r.Method, path, rec.status)
		}
	})
}

// sanitizePath normalizes a request path for use as a metric label. None
// of the current routes carry a path parameter, but this stays distinct
// from raw r.URL.Path so a later parameterized route (e.g. a per-repo
// announce status) doesn't blow up cardinality by surprise.
func sanitizePath(path string) string {
	return strings.TrimRight(path, "/")
}
