package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	goruntime "runtime"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/shurlinet/radnode/internal/config"
	"github.com/shurlinet/radnode/internal/daemon"
	"github.com/shurlinet/radnode/internal/gitstore"
	"github.com/shurlinet/radnode/internal/keystore"
	"github.com/shurlinet/radnode/internal/reactor"
	"github.com/shurlinet/radnode/internal/watchdog"
	"github.com/shurlinet/radnode/internal/wirehandler"
	"github.com/shurlinet/radnode/internal/workerpool"
)

// Tuning constants for a solo node process, not a server fleet -- see
// keystore's Argon2id parameter comment for the same calibration.
const (
	workerPoolSize        = 4
	workerQueueDepth      = 16
	streamChannelCapacity = 64
)

// deferredSink lets the worker pool be constructed before the reactor
// Controller exists: Handler.New requires a *workerpool.Pool up front,
// and the Controller is only available after reactor.Spawn(handler). bind
// closes that loop once both sides exist; every Deliver before bind would
// be a bug; none occur because nothing can submit a task before the
// reactor loop starts running.
type deferredSink struct {
	mu   sync.Mutex
	ctrl reactor.Controller
	set  bool
}

func (d *deferredSink) bind(c reactor.Controller) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ctrl, d.set = c, true
}

func (d *deferredSink) Deliver(cmd any) {
	d.mu.Lock()
	ctrl, ok := d.ctrl, d.set
	d.mu.Unlock()
	if !ok {
		slog.Error("workerpool result delivered before reactor controller was bound")
		return
	}
	ctrl.Deliver(cmd)
}

// Node wires together one radnode process: the reactor loop, the worker
// pool, the control socket, and the node's metrics/watchdog surface.
type Node struct {
	cfg   *config.NodeConfig
	ks    *keystore.Keystore
	store *gitstore.Store
	svc   *nodeService

	pool    *workerpool.Pool
	handler *wirehandler.Handler
	loop    *reactor.Loop
	ctrl    reactor.Controller

	wireMetrics *wirehandler.Metrics
	runtime     *daemonRuntime
	daemon      *daemon.Server

	metricsSrv *http.Server
}

func newNode(cfg *config.NodeConfig, ks *keystore.Keystore) (*Node, error) {
	if err := os.MkdirAll(cfg.Storage.Path, 0700); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	store := gitstore.NewStore(cfg.Storage.Path)

	svc := newNodeService()
	for _, seed := range cfg.Peers.Seeds {
		nid, addr, err := parseSeed(seed)
		if err != nil {
			return nil, fmt.Errorf("invalid peers.seeds entry %q: %w", seed, err)
		}
		svc.seed(nid, addr)
	}

	wireMetrics := wirehandler.NewMetrics(version, goruntime.Version())

	dialOpts := wirehandler.DialOptions{
		ProxyAddr:     cfg.Proxy.Address,
		OnionStrategy: cfg.Proxy.Strategy,
	}

	sink := &deferredSink{}
	pool := workerpool.New(store, sink, workerPoolSize, workerQueueDepth)
	if rps := cfg.Replication.MaxFetchesPerSecond; rps > 0 {
		pool.SetRateLimiter(rate.NewLimiter(rate.Limit(rps), 1))
	}
	handler := wirehandler.New(ks, ks.NoiseKeypair(), svc, pool, dialOpts, streamChannelCapacity, wireMetrics)

	loop, ctrl := reactor.Spawn(handler)
	handler.SetController(ctrl)
	sink.bind(ctrl)

	ln, err := wirehandler.Listen(cfg.Network.ListenAddress)
	if err != nil {
		pool.Shutdown()
		return nil, fmt.Errorf("failed to listen on %s: %w", cfg.Network.ListenAddress, err)
	}
	handler.Listen(ln)

	rt := &daemonRuntime{
		nodeId:     ks.NodeId(),
		version:    version,
		startTime:  time.Now(),
		listenAddr: cfg.Network.ListenAddress,
		ctrl:       ctrl,
		svc:        svc,
	}

	socketPath := cfg.Control.SocketPath
	if socketPath == "" {
		socketPath = filepath.Join(cfg.Storage.Path, "radnode.sock")
	}
	cookiePath := cfg.Control.CookiePath
	if cookiePath == "" {
		cookiePath = filepath.Join(cfg.Storage.Path, "radnode.cookie")
	}
	daemonServer := daemon.NewServer(rt, socketPath, cookiePath)

	if cfg.Telemetry.Audit.Enabled || cfg.Telemetry.Metrics.Enabled {
		var audit *daemon.AuditLogger
		if cfg.Telemetry.Audit.Enabled {
			audit = daemon.NewAuditLogger(slog.Default().Handler())
		}
		var daemonMetrics *daemon.Metrics
		if cfg.Telemetry.Metrics.Enabled {
			daemonMetrics = daemon.NewMetrics()
		}
		daemonServer.SetInstrumentation(daemonMetrics, audit)
	}

	n := &Node{
		cfg:         cfg,
		ks:          ks,
		store:       store,
		svc:         svc,
		pool:        pool,
		handler:     handler,
		loop:        loop,
		ctrl:        ctrl,
		wireMetrics: wireMetrics,
		runtime:     rt,
		daemon:      daemonServer,
	}

	return n, nil
}

// Run starts the node and blocks until shutdown is requested by a
// signal, the control socket's /v1/shutdown, or ctx being cancelled.
func (n *Node) Run(ctx context.Context) error {
	go n.loop.Run()

	if err := n.daemon.Start(); err != nil {
		n.pool.Shutdown()
		return err
	}

	if n.cfg.Telemetry.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(n.wireMetrics.Registry, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: n.cfg.Telemetry.Metrics.ListenAddress, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("metrics server error", "error", err)
			}
		}()
		n.metricsSrv = srv
	}

	watchdogCtx, cancelWatchdog := context.WithCancel(ctx)
	defer cancelWatchdog()
	go watchdog.Run(watchdogCtx, watchdog.Config{}, n.healthChecks())
	_ = watchdog.Ready()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	slog.Info("radnode serving", "node_id", n.runtime.NodeId(), "listen", n.cfg.Network.ListenAddress)

	select {
	case <-ctx.Done():
	case <-sigCh:
		slog.Info("received shutdown signal")
	case <-n.daemon.ShutdownCh():
		slog.Info("shutdown requested via control socket")
	}

	_ = watchdog.Stopping()
	n.ctrl.Shutdown()
	n.daemon.Stop()
	if n.metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = n.metricsSrv.Shutdown(shutdownCtx)
	}
	n.pool.Shutdown()
	return nil
}

func (n *Node) healthChecks() []watchdog.HealthCheck {
	return []watchdog.HealthCheck{
		{
			Name: "storage",
			Check: func() error {
				_, err := os.Stat(n.cfg.Storage.Path)
				return err
			},
		},
	}
}
