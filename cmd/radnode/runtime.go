package main

import (
	"context"
	"fmt"
	"time"

	"github.com/shurlinet/radnode/internal/announce"
	"github.com/shurlinet/radnode/internal/gitstore"
	"github.com/shurlinet/radnode/internal/nodeid"
	"github.com/shurlinet/radnode/internal/reactor"
	"github.com/shurlinet/radnode/internal/wirehandler"
)

// connectPollInterval/connectTimeout bound how long Announce's dialer
// waits for a Connect command to land before giving up on one node and
// letting announce.Run move on to the next candidate.
const (
	connectPollInterval = 50 * time.Millisecond
	connectTimeout      = 15 * time.Second
)

// daemonRuntime implements daemon.RuntimeInfo over a running node's
// reactor Controller and nodeService.
type daemonRuntime struct {
	nodeId     nodeid.NodeId
	version    string
	startTime  time.Time
	listenAddr string
	ctrl       reactor.Controller
	svc        *nodeService
}

func (r *daemonRuntime) NodeId() nodeid.NodeId           { return r.nodeId }
func (r *daemonRuntime) Version() string                 { return r.version }
func (r *daemonRuntime) StartTime() time.Time            { return r.startTime }
func (r *daemonRuntime) ListenAddress() string           { return r.listenAddr }
func (r *daemonRuntime) ConnectedPeers() []nodeid.NodeId { return r.svc.ConnectedPeers() }
func (r *daemonRuntime) Controller() reactor.Controller  { return r.ctrl }

// Announce builds an Announcer from the request and drives it with a
// Dialer that issues a Connect command and polls nodeService's
// thread-safe connected-peer snapshot for completion. This stands in for
// a full sync-then-report round trip: the control socket's announce
// contract only specifies the higher-level outcome, and a fuller
// implementation would extend Fetch to report per-remote sync completion
// back through a dedicated command rather than Connect alone.
func (r *daemonRuntime) Announce(ctx context.Context, repo gitstore.Oid, factor announce.ReplicationFactor, preferred, synced, unsynced []nodeid.NodeId) (announce.Outcome, error) {
	a, err := announce.New(r.nodeId, factor, preferred, synced, unsynced)
	if err != nil {
		return nil, err
	}
	return announce.Run(ctx, a, r.dial)
}

func (r *daemonRuntime) dial(ctx context.Context, node nodeid.NodeId) (time.Duration, error) {
	addr, ok := r.svc.AddressFor(node)
	if !ok {
		return 0, fmt.Errorf("no known address for %s", node)
	}

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	start := time.Now()
	if !r.svc.IsConnected(node) {
		r.ctrl.Deliver(wirehandler.Connect{Nid: node, Addr: addr})
	}

	ticker := time.NewTicker(connectPollInterval)
	defer ticker.Stop()
	for {
		if r.svc.IsConnected(node) {
			return time.Since(start), nil
		}
		select {
		case <-ctx.Done():
			return 0, fmt.Errorf("connecting to %s: %w", node, ctx.Err())
		case <-ticker.C:
		}
	}
}
