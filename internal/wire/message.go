package wire

import (
	"fmt"

	"github.com/shurlinet/radnode/internal/codec"
	"github.com/shurlinet/radnode/internal/gitstore"
	"github.com/shurlinet/radnode/internal/nodeid"
)

// MessageTag is the 16-bit big-endian tag that opens every gossip body.
type MessageTag uint16

const (
	TagNodeAnnouncement      MessageTag = 2
	TagInventoryAnnouncement MessageTag = 4
	TagRefsAnnouncement      MessageTag = 6
	TagSubscribe             MessageTag = 8
	TagPing                  MessageTag = 10
	TagPong                  MessageTag = 12
	TagInfo                  MessageTag = 14
)

// MaxAnnouncementAddrs bounds the address vector carried in a
// NodeAnnouncement.
const MaxAnnouncementAddrs = 32

// MaxInventory bounds the RepoId vector carried in an
// InventoryAnnouncement.
const MaxInventory = 1 << 16 >> 1

// MaxRefs bounds the refname->Oid map carried in a RefsAnnouncement.
const MaxRefs = 1 << 16 >> 1

// PingZeroesBound is the protocol-violation limit on Ping padding.
const PingZeroesBound = 512

// GossipMessage is any message that can appear inside a GossipBody.
type GossipMessage interface {
	Tag() MessageTag
	encode(w *codec.Writer)
}

// NodeAnnouncement advertises a node's reachable addresses.
type NodeAnnouncement struct {
	Timestamp uint64
	Addresses []Address
}

func (NodeAnnouncement) Tag() MessageTag { return TagNodeAnnouncement }
func (m NodeAnnouncement) encode(w *codec.Writer) {
	w.WriteUint64(m.Timestamp)
	_ = codec.WriteVector(w, m.Addresses, func(w *codec.Writer, a Address) { a.encode(w) })
}

// InventoryAnnouncement advertises the set of repositories a node holds.
type InventoryAnnouncement struct {
	Timestamp uint64
	Repos     []gitstore.Oid // RepoId shares Oid's wire shape
}

func (InventoryAnnouncement) Tag() MessageTag { return TagInventoryAnnouncement }
func (m InventoryAnnouncement) encode(w *codec.Writer) {
	w.WriteUint64(m.Timestamp)
	_ = codec.WriteVector(w, m.Repos, func(w *codec.Writer, o gitstore.Oid) { gitstore.WriteOid(w, o) })
}

// RefsAnnouncement advertises a signed-refs update for one repo.
type RefsAnnouncement struct {
	RepoId gitstore.Oid
	Ref    RefUpdate
}

// RefUpdate is one refname -> Oid pair inside a RefsAnnouncement.
type RefUpdate struct {
	Name string
	Oid  gitstore.Oid
}

func (RefsAnnouncement) Tag() MessageTag { return TagRefsAnnouncement }
func (m RefsAnnouncement) encode(w *codec.Writer) {
	gitstore.WriteOid(w, m.RepoId)
	_ = w.WriteString(m.Ref.Name)
	gitstore.WriteOid(w, m.Ref.Oid)
}

// Subscribe asks the remote to forward gossip concerning repo.
type Subscribe struct {
	RepoId gitstore.Oid
	Since  uint64
}

func (Subscribe) Tag() MessageTag { return TagSubscribe }
func (m Subscribe) encode(w *codec.Writer) {
	gitstore.WriteOid(w, m.RepoId)
	w.WriteUint64(m.Since)
}

// Ping carries a nonce and padding; Pong echoes only the nonce.
type Ping struct {
	Nonce  uint16
	Zeroes []byte
}

func (Ping) Tag() MessageTag { return TagPing }
func (m Ping) encode(w *codec.Writer) {
	w.WriteUint16(m.Nonce)
	w.WriteBytes(m.Zeroes)
}

// Pong echoes a Ping's nonce.
type Pong struct {
	Nonce uint16
}

func (Pong) Tag() MessageTag { return TagPong }
func (m Pong) encode(w *codec.Writer) { w.WriteUint16(m.Nonce) }

// InfoType distinguishes Info sub-messages; only a generic text message is
// specified for this engine (richer Info payloads belong to the upper
// gossip service, out of scope).
type InfoType uint8

const InfoText InfoType = 0

// Info carries free-form operator-visible text (log lines, version
// strings) unrelated to replication state.
type Info struct {
	Type InfoType
	Text string
}

func (Info) Tag() MessageTag { return TagInfo }
func (m Info) encode(w *codec.Writer) {
	w.WriteUint8(uint8(m.Type))
	_ = w.WriteString(m.Text)
}

// EncodeMessage serializes m with its tag prefix, suitable for embedding
// directly as a GossipBody.Encoded payload.
func EncodeMessage(m GossipMessage) []byte {
	w := codec.NewWriter()
	w.WriteUint16(uint16(m.Tag()))
	m.encode(w)
	return w.Bytes()
}

// DecodeMessage decodes a tagged gossip message. Any bytes in b beyond
// what the matched message type consumes are forward-compatibility
// padding and are ignored.
func DecodeMessage(b []byte) (GossipMessage, error) {
	r := codec.NewReader(b)
	tagRaw, err := r.ReadUint16()
	if err != nil {
		return nil, err
	}
	switch MessageTag(tagRaw) {
	case TagNodeAnnouncement:
		ts, err := r.ReadUint64()
		if err != nil {
			return nil, err
		}
		addrs, err := codec.BoundedVector(r, MaxAnnouncementAddrs, decodeAddress)
		if err != nil {
			return nil, err
		}
		return NodeAnnouncement{Timestamp: ts, Addresses: addrs}, nil
	case TagInventoryAnnouncement:
		ts, err := r.ReadUint64()
		if err != nil {
			return nil, err
		}
		repos, err := codec.BoundedVector(r, MaxInventory, func(r *codec.Reader) (gitstore.Oid, error) { return gitstore.ReadOid(r) })
		if err != nil {
			return nil, err
		}
		return InventoryAnnouncement{Timestamp: ts, Repos: repos}, nil
	case TagRefsAnnouncement:
		rid, err := gitstore.ReadOid(r)
		if err != nil {
			return nil, err
		}
		name, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		oid, err := gitstore.ReadOid(r)
		if err != nil {
			return nil, err
		}
		return RefsAnnouncement{RepoId: rid, Ref: RefUpdate{Name: name, Oid: oid}}, nil
	case TagSubscribe:
		rid, err := gitstore.ReadOid(r)
		if err != nil {
			return nil, err
		}
		since, err := r.ReadUint64()
		if err != nil {
			return nil, err
		}
		return Subscribe{RepoId: rid, Since: since}, nil
	case TagPing:
		nonce, err := r.ReadUint16()
		if err != nil {
			return nil, err
		}
		zeroes, err := r.ReadBytes()
		if err != nil {
			return nil, err
		}
		if len(zeroes) > PingZeroesBound {
			return nil, fmt.Errorf("wire: ping zeroes %d exceed bound %d", len(zeroes), PingZeroesBound)
		}
		return Ping{Nonce: nonce, Zeroes: zeroes}, nil
	case TagPong:
		nonce, err := r.ReadUint16()
		if err != nil {
			return nil, err
		}
		return Pong{Nonce: nonce}, nil
	case TagInfo:
		typ, err := r.ReadUint8()
		if err != nil {
			return nil, err
		}
		text, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		return Info{Type: InfoType(typ), Text: text}, nil
	default:
		return nil, fmt.Errorf("wire: unknown message tag %d", tagRaw)
	}
}

// SignedAnnouncement carries (NodeId, Signature, message): the signature
// covers EncodeMessage(Message).
type SignedAnnouncement struct {
	Node      nodeid.NodeId
	Signature nodeid.Signature
	Message   GossipMessage
}

// EncodeSignedAnnouncement serializes the envelope for transmission as a
// GossipBody.
func EncodeSignedAnnouncement(a SignedAnnouncement) []byte {
	w := codec.NewWriter()
	w.WriteRawBytes(a.Node[:])
	w.WriteRawBytes(a.Signature[:])
	w.WriteRawBytes(EncodeMessage(a.Message))
	return w.Bytes()
}

// DecodeSignedAnnouncement parses the envelope and verifies the signature
// against the encoded message bytes.
func DecodeSignedAnnouncement(b []byte) (SignedAnnouncement, error) {
	if len(b) < nodeid.Size+nodeid.SignatureSize {
		return SignedAnnouncement{}, errShortRead
	}
	nid, err := nodeid.Parse(b[:nodeid.Size])
	if err != nil {
		return SignedAnnouncement{}, err
	}
	sig, err := nodeid.ParseSignature(b[nodeid.Size : nodeid.Size+nodeid.SignatureSize])
	if err != nil {
		return SignedAnnouncement{}, err
	}
	rest := b[nodeid.Size+nodeid.SignatureSize:]
	msg, err := DecodeMessage(rest)
	if err != nil {
		return SignedAnnouncement{}, err
	}
	if !nodeid.Verify(nid, rest, sig) {
		return SignedAnnouncement{}, fmt.Errorf("wire: signature verification failed for %s", nid)
	}
	return SignedAnnouncement{Node: nid, Signature: sig, Message: msg}, nil
}
