// Package daemon implements the control socket (C12): a local
// Unix-domain HTTP API that translates JSON requests into reactor
// Controller commands and announce.Run invocations, and reactor/Controller
// state into JSON status responses.
package daemon

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/shurlinet/radnode/internal/announce"
	"github.com/shurlinet/radnode/internal/gitstore"
	"github.com/shurlinet/radnode/internal/nodeid"
	"github.com/shurlinet/radnode/internal/reactor"
)

// RuntimeInfo decouples this package from cmd/radnode's wiring: the
// command binary implements it over its reactor.Controller and
// wirehandler.Handler instance.
type RuntimeInfo interface {
	NodeId() nodeid.NodeId
	Version() string
	StartTime() time.Time
	ListenAddress() string
	ConnectedPeers() []nodeid.NodeId
	Controller() reactor.Controller
	Announce(ctx context.Context, repo gitstore.Oid, factor announce.ReplicationFactor, preferred, synced, unsynced []nodeid.NodeId) (announce.Outcome, error)
}

// Server is the daemon's Unix socket HTTP API server.
type Server struct {
	runtime    RuntimeInfo
	httpServer *http.Server
	listener   net.Listener
	socketPath string
	cookiePath string
	authToken  string
	shutdownCh chan struct{} // closed to signal shutdown to the daemon main loop

	metrics *Metrics
	audit   *AuditLogger
}

// NewServer creates a new daemon API server.
func NewServer(runtime RuntimeInfo, socketPath, cookiePath string) *Server {
	return &Server{
		runtime:    runtime,
		socketPath: socketPath,
		cookiePath: cookiePath,
		shutdownCh: make(chan struct{}),
	}
}

// SetInstrumentation configures optional metrics and audit logging. Must
// be called before Start(). Both parameters are nil-safe.
func (s *Server) SetInstrumentation(metrics *Metrics, audit *AuditLogger) {
	s.metrics = metrics
	s.audit = audit
}

// ShutdownCh returns a channel that is closed when a shutdown is
// requested via the API (POST /v1/shutdown).
func (s *Server) ShutdownCh() <-chan struct{} {
	return s.shutdownCh
}

// Start creates the Unix socket, writes the cookie file, and starts
// serving. It returns immediately; the server runs in a background
// goroutine.
func (s *Server) Start() error {
	token, err := generateCookie()
	if err != nil {
		return fmt.Errorf("failed to generate auth cookie: %w", err)
	}
	s.authToken = token

	if err := s.checkStaleSocket(); err != nil {
		return err
	}

	// Bind with a restrictive umask to avoid a TOCTOU window between
	// Listen and a later Chmod.
	oldUmask := syscall.Umask(0077)
	listener, err := net.Listen("unix", s.socketPath)
	syscall.Umask(oldUmask)
	if err != nil {
		return fmt.Errorf("failed to listen on socket: %w", err)
	}

	if err := os.WriteFile(s.cookiePath, []byte(token), 0600); err != nil {
		listener.Close()
		os.Remove(s.socketPath)
		return fmt.Errorf("failed to write cookie file: %w", err)
	}
	slog.Info("daemon cookie written", "path", s.cookiePath)

	s.listener = listener

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	s.httpServer = &http.Server{
		Handler:      InstrumentHandler(s.authMiddleware(mux), s.metrics, s.audit),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			slog.Error("daemon server error", "error", err)
		}
	}()

	slog.Info("daemon API listening", "socket", s.socketPath)
	return nil
}

// Stop gracefully shuts down the HTTP server and cleans up the socket and
// cookie files.
func (s *Server) Stop() {
	slog.Info("daemon server shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	s.httpServer.Shutdown(ctx)

	os.Remove(s.socketPath)
	os.Remove(s.cookiePath)
	slog.Info("daemon server stopped")
}

func (s *Server) checkStaleSocket() error {
	if _, err := os.Stat(s.socketPath); os.IsNotExist(err) {
		return nil
	}

	conn, err := net.DialTimeout("unix", s.socketPath, 2*time.Second)
	if err != nil {
		slog.Info("removing stale daemon socket", "path", s.socketPath)
		os.Remove(s.socketPath)
		return nil
	}
	conn.Close()
	return fmt.Errorf("%w: socket %s is already in use", ErrDaemonAlreadyRunning, s.socketPath)
}

func generateCookie() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// authMiddleware checks the Authorization: Bearer <token> header on every
// request.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+s.authToken {
			respondError(w, http.StatusUnauthorized, "unauthorized: invalid or missing auth token")
			return
		}
		next.ServeHTTP(w, r)
	})
}
