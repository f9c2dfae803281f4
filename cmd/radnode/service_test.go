package main

import (
	"crypto/rand"
	"sync"
	"testing"

	"github.com/shurlinet/radnode/internal/nodeid"
	"github.com/shurlinet/radnode/internal/wire"
	"github.com/shurlinet/radnode/internal/wirehandler"
)

func randomNodeId(t *testing.T) nodeid.NodeId {
	t.Helper()
	var pub [32]byte
	if _, err := rand.Read(pub[:]); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	return nodeid.NodeId(pub)
}

func TestNodeService_ConnectDisconnect(t *testing.T) {
	svc := newNodeService()
	nid := randomNodeId(t)

	if svc.IsConnected(nid) {
		t.Fatal("fresh service should report no connections")
	}

	svc.Connected(nid, "10.0.0.1:9000", wire.LinkOutbound)
	if !svc.IsConnected(nid) {
		t.Fatal("want connected after Connected callback")
	}
	addr, ok := svc.AddressFor(nid)
	if !ok || addr != "10.0.0.1:9000" {
		t.Fatalf("want address 10.0.0.1:9000, got %q ok=%v", addr, ok)
	}
	peers := svc.ConnectedPeers()
	if len(peers) != 1 || peers[0] != nid {
		t.Fatalf("want [%s], got %v", nid, peers)
	}

	svc.Disconnected(nid, wire.LinkOutbound, wirehandler.DisconnectReason{})
	if svc.IsConnected(nid) {
		t.Fatal("want disconnected after Disconnected callback")
	}
	// address survives disconnect, for reconnection attempts.
	if _, ok := svc.AddressFor(nid); !ok {
		t.Fatal("want address retained after disconnect")
	}
}

func TestNodeService_Seed(t *testing.T) {
	svc := newNodeService()
	nid := randomNodeId(t)
	svc.seed(nid, "example.org:9000")

	addr, ok := svc.AddressFor(nid)
	if !ok || addr != "example.org:9000" {
		t.Fatalf("want seeded address, got %q ok=%v", addr, ok)
	}
	if svc.IsConnected(nid) {
		t.Fatal("seeding must not mark a peer connected")
	}
}

func TestNodeService_ConcurrentAccess(t *testing.T) {
	svc := newNodeService()
	nids := make([]nodeid.NodeId, 16)
	for i := range nids {
		nids[i] = randomNodeId(t)
	}

	var wg sync.WaitGroup
	for _, nid := range nids {
		wg.Add(2)
		go func(nid nodeid.NodeId) {
			defer wg.Done()
			svc.Connected(nid, "addr", wire.LinkInbound)
		}(nid)
		go func(nid nodeid.NodeId) {
			defer wg.Done()
			_ = svc.IsConnected(nid)
			_ = svc.ConnectedPeers()
			_, _ = svc.AddressFor(nid)
		}(nid)
	}
	wg.Wait()
}

func TestParseSeed(t *testing.T) {
	nid := randomNodeId(t)
	valid := nid.String() + "@198.51.100.7:9000"

	gotNid, gotAddr, err := parseSeed(valid)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotNid != nid || gotAddr != "198.51.100.7:9000" {
		t.Fatalf("got (%s, %s), want (%s, 198.51.100.7:9000)", gotNid, gotAddr, nid)
	}

	cases := []string{
		"no-at-sign",
		"deadbeef@",
		"not-hex@host:9000",
	}
	for _, c := range cases {
		if _, _, err := parseSeed(c); err == nil {
			t.Fatalf("parseSeed(%q): want error", c)
		}
	}
}
