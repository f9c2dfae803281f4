package main

import (
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/shurlinet/radnode/internal/gitstore"
	"github.com/shurlinet/radnode/internal/nodeid"
	"github.com/shurlinet/radnode/internal/wire"
	"github.com/shurlinet/radnode/internal/wirehandler"
	"github.com/shurlinet/radnode/internal/workerpool"
)

// nodeService implements wirehandler.Service. Its Connected/Disconnected
// callbacks run on the reactor goroutine (see internal/wirehandler's
// package doc on Handler), so they're the only place this struct's state
// is written; everything else -- the daemon's HTTP handlers, the announce
// dialer -- only ever reads it, through the methods below, which take
// their own lock rather than reach into Handler's own peer tables (those
// have no exported accessor, by design).
type nodeService struct {
	mu        sync.RWMutex
	connected map[nodeid.NodeId]string // nid -> remote addr
	addresses map[nodeid.NodeId]string // nid -> last known dialable addr
}

func newNodeService() *nodeService {
	return &nodeService{
		connected: make(map[nodeid.NodeId]string),
		addresses: make(map[nodeid.NodeId]string),
	}
}

// seed records a bootstrap address from configuration, before any
// connection has been made.
func (s *nodeService) seed(nid nodeid.NodeId, addr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addresses[nid] = addr
}

// Accepted allows every inbound connection through to the Noise
// handshake; admission is the handshake itself; there is no separate
// allowlist.
func (s *nodeService) Accepted(ip net.IP) bool { return true }

func (s *nodeService) Connected(nid nodeid.NodeId, addr string, link wire.Link) {
	s.mu.Lock()
	s.connected[nid] = addr
	if addr != "" {
		s.addresses[nid] = addr
	}
	s.mu.Unlock()
	slog.Info("peer connected", "node_id", nid, "addr", addr, "link", linkString(link))
}

func (s *nodeService) Disconnected(nid nodeid.NodeId, link wire.Link, reason wirehandler.DisconnectReason) {
	s.mu.Lock()
	delete(s.connected, nid)
	s.mu.Unlock()
	slog.Info("peer disconnected", "node_id", nid, "link", linkString(link), "reason", reason.String())
}

func (s *nodeService) ReceivedMessage(nid nodeid.NodeId, msg wire.GossipMessage) {
	slog.Debug("gossip message received", "node_id", nid, "type", fmt.Sprintf("%T", msg))
}

func (s *nodeService) Fetched(rid gitstore.Oid, remote nodeid.NodeId, result workerpool.FetchResult) {
	if result.Err != nil {
		slog.Warn("fetch failed", "repo", rid, "remote", remote, "error", result.Err)
		return
	}
	slog.Info("fetch complete", "repo", rid, "remote", remote, "refs_updated", len(result.Updated))
}

func (s *nodeService) Tick(elapsed time.Duration, metrics *wirehandler.Metrics) {}

// ConnectedPeers returns a snapshot of currently connected NodeIds, safe
// to call from any goroutine.
func (s *nodeService) ConnectedPeers() []nodeid.NodeId {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]nodeid.NodeId, 0, len(s.connected))
	for nid := range s.connected {
		out = append(out, nid)
	}
	return out
}

// IsConnected reports whether nid currently has an established session.
func (s *nodeService) IsConnected(nid nodeid.NodeId) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.connected[nid]
	return ok
}

// AddressFor returns the best known dialable address for nid, from a
// prior connection or a configured seed.
func (s *nodeService) AddressFor(nid nodeid.NodeId) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	addr, ok := s.addresses[nid]
	return addr, ok
}

func linkString(l wire.Link) string {
	if l == wire.LinkInbound {
		return "inbound"
	}
	return "outbound"
}

// parseSeed splits a "nodeid@host:port" bootstrap entry.
func parseSeed(s string) (nodeid.NodeId, string, error) {
	at := strings.IndexByte(s, '@')
	if at < 0 {
		return nodeid.NodeId{}, "", fmt.Errorf("want \"nodeid@host:port\", got %q", s)
	}
	nid, err := nodeid.ParseHex(s[:at])
	if err != nil {
		return nodeid.NodeId{}, "", err
	}
	addr := s[at+1:]
	if addr == "" {
		return nodeid.NodeId{}, "", fmt.Errorf("missing address in %q", s)
	}
	return nid, addr, nil
}
