package daemon

import "log/slog"

// AuditLogger writes structured audit events for control-socket activity.
// All methods are nil-safe so callers can skip nil checks at every call
// site.
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates an AuditLogger that writes to the given handler.
// Events are written under the "audit" group for easy filtering.
func NewAuditLogger(handler slog.Handler) *AuditLogger {
	return &AuditLogger{logger: slog.New(handler).WithGroup("audit")}
}

// APIAccess logs a control socket request, tagged with the per-request
// correlation id set by InstrumentHandler.
func (a *AuditLogger) APIAccess(requestId, method, path string, status int) {
	if a == nil {
		return
	}
	a.logger.Info("api_access", "request_id", requestId, "method", method, "path", path, "status", status)
}

// AnnounceRequested logs an announce command being accepted for a repo.
func (a *AuditLogger) AnnounceRequested(repoId string) {
	if a == nil {
		return
	}
	a.logger.Info("announce_requested", "repo_id", repoId)
}

// ShutdownRequested logs a shutdown command arriving over the socket.
func (a *AuditLogger) ShutdownRequested() {
	if a == nil {
		return
	}
	a.logger.Info("shutdown_requested")
}
