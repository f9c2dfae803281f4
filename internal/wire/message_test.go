package wire

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/shurlinet/radnode/internal/gitstore"
	"github.com/shurlinet/radnode/internal/nodeid"
)

func TestMessage_RoundtripAllTypes(t *testing.T) {
	addr, err := AddressFromHostPort("192.168.1.1", 8776)
	if err != nil {
		t.Fatal(err)
	}
	onion, err := AddressFromHostPort("expyuzz4wqqyqhjn.onion", 8776)
	if err != nil {
		t.Fatal(err)
	}
	var oid gitstore.Oid
	oid[0] = 0xAA

	msgs := []GossipMessage{
		NodeAnnouncement{Timestamp: 1700000000, Addresses: []Address{addr, onion}},
		InventoryAnnouncement{Timestamp: 1700000001, Repos: []gitstore.Oid{oid}},
		RefsAnnouncement{RepoId: oid, Ref: RefUpdate{Name: "refs/heads/main", Oid: oid}},
		Subscribe{RepoId: oid, Since: 42},
		Ping{Nonce: 7, Zeroes: []byte{0, 0, 0}},
		Pong{Nonce: 7},
		Info{Type: InfoText, Text: "hello"},
	}
	for _, m := range msgs {
		enc := EncodeMessage(m)
		got, err := DecodeMessage(enc)
		if err != nil {
			t.Fatalf("DecodeMessage(%T) error = %v", m, err)
		}
		if got.Tag() != m.Tag() {
			t.Fatalf("Tag() = %d, want %d", got.Tag(), m.Tag())
		}
	}
}

func TestMessage_PingZeroesExceedsBound(t *testing.T) {
	enc := EncodeMessage(Ping{Nonce: 1, Zeroes: make([]byte, PingZeroesBound+1)})
	if _, err := DecodeMessage(enc); err == nil {
		t.Fatal("DecodeMessage() error = nil, want bound violation")
	}
}

func TestSignedAnnouncement_RoundtripAndVerifies(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	nid, err := nodeid.Parse(pub)
	if err != nil {
		t.Fatal(err)
	}
	msg := Pong{Nonce: 99}
	encodedMsg := EncodeMessage(msg)
	sig, err := nodeid.ParseSignature(ed25519.Sign(priv, encodedMsg))
	if err != nil {
		t.Fatal(err)
	}

	env := SignedAnnouncement{Node: nid, Signature: sig, Message: msg}
	wire := EncodeSignedAnnouncement(env)
	got, err := DecodeSignedAnnouncement(wire)
	if err != nil {
		t.Fatalf("DecodeSignedAnnouncement() error = %v", err)
	}
	if got.Node != nid {
		t.Fatal("node mismatch")
	}
}

func TestSignedAnnouncement_RejectsBadSignature(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	nid, err := nodeid.Parse(pub)
	if err != nil {
		t.Fatal(err)
	}
	var sig nodeid.Signature // all-zero, invalid
	env := SignedAnnouncement{Node: nid, Signature: sig, Message: Pong{Nonce: 1}}
	if _, err := DecodeSignedAnnouncement(EncodeSignedAnnouncement(env)); err == nil {
		t.Fatal("DecodeSignedAnnouncement() error = nil, want signature failure")
	}
}
