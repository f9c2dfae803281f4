package daemon

import (
	"context"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/shurlinet/radnode/internal/announce"
	"github.com/shurlinet/radnode/internal/gitstore"
	"github.com/shurlinet/radnode/internal/nodeid"
	"github.com/shurlinet/radnode/internal/reactor"
)

// noopHandler implements reactor.ReactionHandler doing nothing; it exists
// only so tests can obtain a real reactor.Controller to hand a fake
// RuntimeInfo, since Controller has no exported constructor of its own.
type noopHandler struct{}

func (noopHandler) Tick(time.Time)                                     {}
func (noopHandler) TimerReacted()                                      {}
func (noopHandler) ListenerReacted(reactor.Token, reactor.Transport)   {}
func (noopHandler) TransportReacted(reactor.Token, []byte)             {}
func (noopHandler) ListenerRegistered(reactor.Token)                   {}
func (noopHandler) TransportRegistered(reactor.Token)                  {}
func (noopHandler) HandoverListener(reactor.Token, reactor.Listener)   {}
func (noopHandler) HandoverTransport(reactor.Token, reactor.Transport) {}
func (noopHandler) HandleCommand(any)                                  {}
func (noopHandler) HandleError(reactor.Failure)                        {}
func (noopHandler) Next() (reactor.Action, bool)                       { return nil, false }

type fakeRuntime struct {
	nodeId      nodeid.NodeId
	startTime   time.Time
	peers       []nodeid.NodeId
	ctrl        reactor.Controller
	outcome     announce.Outcome
	announceErr error
}

func (f *fakeRuntime) NodeId() nodeid.NodeId           { return f.nodeId }
func (f *fakeRuntime) Version() string                 { return "test" }
func (f *fakeRuntime) StartTime() time.Time            { return f.startTime }
func (f *fakeRuntime) ListenAddress() string           { return "127.0.0.1:9000" }
func (f *fakeRuntime) ConnectedPeers() []nodeid.NodeId { return f.peers }
func (f *fakeRuntime) Controller() reactor.Controller  { return f.ctrl }
func (f *fakeRuntime) Announce(ctx context.Context, repo gitstore.Oid, factor announce.ReplicationFactor, preferred, synced, unsynced []nodeid.NodeId) (announce.Outcome, error) {
	return f.outcome, f.announceErr
}

func newTestServer(t *testing.T, rt *fakeRuntime) (*Server, *Client) {
	t.Helper()
	dir := t.TempDir()
	srv := NewServer(rt, filepath.Join(dir, "daemon.sock"), filepath.Join(dir, "cookie"))
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(srv.Stop)

	client, err := NewClient(filepath.Join(dir, "daemon.sock"), filepath.Join(dir, "cookie"))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return srv, client
}

func newFakeRuntime() *fakeRuntime {
	loop, ctrl := reactor.Spawn(noopHandler{})
	go loop.Run()
	return &fakeRuntime{
		nodeId:    nodeid.NodeId{0x01, 0x02},
		startTime: time.Now().Add(-5 * time.Second),
		peers:     []nodeid.NodeId{{0x03}, {0x04}},
		ctrl:      ctrl,
	}
}

func TestStatus(t *testing.T) {
	rt := newFakeRuntime()
	_, client := newTestServer(t, rt)

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.NodeId != rt.nodeId.String() {
		t.Errorf("NodeId = %q, want %q", status.NodeId, rt.nodeId.String())
	}
	if status.ConnectedPeers != 2 {
		t.Errorf("ConnectedPeers = %d, want 2", status.ConnectedPeers)
	}
	if status.UptimeSeconds < 1 {
		t.Errorf("UptimeSeconds = %d, want >= 1", status.UptimeSeconds)
	}
}

func TestPeers(t *testing.T) {
	rt := newFakeRuntime()
	_, client := newTestServer(t, rt)

	peers, err := client.Peers()
	if err != nil {
		t.Fatalf("Peers: %v", err)
	}
	if len(peers) != 2 {
		t.Fatalf("got %d peers, want 2", len(peers))
	}
}

func TestAnnounceSuccess(t *testing.T) {
	rt := newFakeRuntime()
	rt.outcome = announce.MinReplicationFactor{Preferred: 0, Synced: 3}
	_, client := newTestServer(t, rt)

	resp, err := client.Announce(AnnounceRequest{
		RepoId:   "0000000000000000000000000000000000000000",
		Factor:   ReplicationFactorRequest{Kind: "must_reach", Min: 3},
		Unsynced: []string{},
	})
	if err != nil {
		t.Fatalf("Announce: %v", err)
	}
	if resp.Kind != "min_replication_factor" || resp.Synced != 3 {
		t.Errorf("got %+v, want Kind=min_replication_factor Synced=3", resp)
	}
}

func TestAnnounceInvalidFactorKind(t *testing.T) {
	rt := newFakeRuntime()
	_, client := newTestServer(t, rt)

	_, err := client.Announce(AnnounceRequest{
		RepoId:   "0000000000000000000000000000000000000000",
		Factor:   ReplicationFactorRequest{Kind: "bogus"},
		Unsynced: []string{},
	})
	if err == nil {
		t.Fatalf("expected error for invalid factor kind")
	}
}

func TestAnnounceInvalidRepoId(t *testing.T) {
	rt := newFakeRuntime()
	_, client := newTestServer(t, rt)

	_, err := client.Announce(AnnounceRequest{
		RepoId:   "not-hex",
		Factor:   ReplicationFactorRequest{Kind: "must_reach", Min: 1},
		Unsynced: []string{},
	})
	if err == nil {
		t.Fatalf("expected error for invalid repo id")
	}
}

func TestShutdownClosesChannel(t *testing.T) {
	rt := newFakeRuntime()
	srv, client := newTestServer(t, rt)

	if err := client.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	select {
	case <-srv.ShutdownCh():
	case <-time.After(time.Second):
		t.Fatalf("ShutdownCh did not close")
	}
}

func TestUnauthorizedWithWrongCookie(t *testing.T) {
	rt := newFakeRuntime()
	dir := t.TempDir()
	srv := NewServer(rt, filepath.Join(dir, "daemon.sock"), filepath.Join(dir, "cookie"))
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(srv.Stop)

	socketPath := filepath.Join(dir, "daemon.sock")
	client := &Client{
		authToken: "wrong-token",
		httpClient: &http.Client{
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, "unix", socketPath)
				},
			},
		},
	}
	if _, err := client.Status(); err == nil {
		t.Fatalf("expected unauthorized error with wrong token")
	}
}
