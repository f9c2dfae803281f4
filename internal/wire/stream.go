// Package wire implements the framing and session layer above the reactor
// (C3): StreamId derivation, frame encode/decode, and message wire tags.
package wire

import "fmt"

// Kind distinguishes the three families of logical stream multiplexed over
// one encrypted connection.
type Kind uint8

const (
	KindControl Kind = 0
	KindGossip  Kind = 1
	KindGit     Kind = 2
)

func (k Kind) String() string {
	switch k {
	case KindControl:
		return "control"
	case KindGossip:
		return "gossip"
	case KindGit:
		return "git"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Link is the direction in which a session was established.
type Link uint8

const (
	LinkOutbound Link = 0
	LinkInbound  Link = 1
)

func (l Link) String() string {
	if l == LinkInbound {
		return "inbound"
	}
	return "outbound"
}

// StreamId is a per-session stream identifier. The low bit is the
// initiator (0 outbound, 1 inbound); the next two bits are the stream kind;
// higher bits distinguish multiple streams of the same kind within a
// session. StreamIds are never reused within a session.
type StreamId uint64

// Reserved control/gossip stream ids: bits = 000/001 (control) and
// 010/011 (gossip). These streams are always open and never appear in a
// peer's open-streams map.
const (
	ControlOutbound StreamId = StreamId(KindControl)<<1 | StreamId(LinkOutbound)
	ControlInbound  StreamId = StreamId(KindControl)<<1 | StreamId(LinkInbound)
	GossipOutbound  StreamId = StreamId(KindGossip)<<1 | StreamId(LinkOutbound)
	GossipInbound   StreamId = StreamId(KindGossip)<<1 | StreamId(LinkInbound)
)

// Initiator reports the low bit: 0 for the side that dialed the TCP
// connection, 1 for the side that accepted it.
func (s StreamId) Initiator() Link { return Link(s & 1) }

// Kind reports the stream's kind from bits 1-2.
func (s StreamId) Kind() Kind { return Kind((s >> 1) & 0b11) }

// Seq reports the high bits distinguishing multiple streams of the same
// kind within a session.
func (s StreamId) Seq() uint64 { return uint64(s >> 3) }

// BaseId returns the reserved low bits for (kind, link) with a zero
// sequence number — the starting point stream derivation adds sequence
// numbers to.
func BaseId(kind Kind, link Link) StreamId {
	return StreamId(kind)<<1 | StreamId(link)
}

// DeriveGitStreamId computes the StreamId for the seq'th Git stream opened
// in direction link: base(Git,link) + (seq << 3).
func DeriveGitStreamId(link Link, seq uint64) StreamId {
	return BaseId(KindGit, link) | StreamId(seq<<3)
}

func (s StreamId) String() string {
	return fmt.Sprintf("%s/%s/%d", s.Kind(), s.Initiator(), s.Seq())
}
