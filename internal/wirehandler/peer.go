package wirehandler

import (
	"time"

	"github.com/shurlinet/radnode/internal/gitstore"
	"github.com/shurlinet/radnode/internal/nodeid"
	"github.com/shurlinet/radnode/internal/noise"
	"github.com/shurlinet/radnode/internal/reactor"
	"github.com/shurlinet/radnode/internal/wire"
	"github.com/shurlinet/radnode/internal/workerpool"
)

// pendingOutbound is a dialed, not-yet-established session.
type pendingOutbound struct {
	nid     nodeid.NodeId
	addr    string
	session *noise.Session
	records recordDecoder
}

// pendingInbound is an accepted, not-yet-established session. step tracks
// which Noise XK message is expected next: 0 awaits the initiator's first
// message, 1 awaits its third (StepWrite already produced the responder's
// only outbound message after step 0).
type pendingInbound struct {
	addr    string
	session *noise.Session
	records recordDecoder
	step    int
}

// stream is one open Git stream's worker channel pair.
type stream struct {
	channels workerpool.Channels
	rid      gitstore.Oid
}

// peer is an established session.
type peer struct {
	token   reactor.Token
	nid     nodeid.NodeId
	addr    string
	link    wire.Link
	session *noise.Session
	records recordDecoder
	frames  wire.Decoder

	streams map[wire.StreamId]*stream
	seq     uint64 // bumped for every Initiator stream this peer opens

	// lastGossip holds a content digest per message tag, so re-announcing
	// unchanged state (the upper service re-broadcasts its own inventory
	// on a timer) doesn't cost a wire round trip to a peer that already
	// has it.
	lastGossip map[wire.MessageTag][32]byte

	disconnecting bool
	reason        DisconnectReason

	pingNonce    uint16
	pingArmed    bool
	pingDeadline time.Time
	nextPingDue  time.Time
}

// precedence reports whether self wins a NodeId conflict against other.
type precedence uint8

const (
	precedenceOurs precedence = iota
	precedenceTheirs
)

func resolvePrecedence(self, other nodeid.NodeId) precedence {
	if other.Less(self) {
		return precedenceOurs
	}
	return precedenceTheirs
}

// closeNew reports whether the newly-completed session should be the one
// closed, given its link, the conflicting link, and precedence.
// Same-direction conflicts are resolved by token (handled by the caller,
// since this function has no token to compare).
func closeNew(newLink, conflictLink wire.Link, p precedence) (closeTheNewOne bool, sameDirection bool) {
	if newLink == conflictLink {
		return false, true
	}
	switch {
	case newLink == wire.LinkInbound && conflictLink == wire.LinkOutbound && p == precedenceOurs:
		return true, false
	case newLink == wire.LinkInbound && conflictLink == wire.LinkOutbound && p == precedenceTheirs:
		return false, false
	case newLink == wire.LinkOutbound && conflictLink == wire.LinkInbound && p == precedenceOurs:
		return false, false
	case newLink == wire.LinkOutbound && conflictLink == wire.LinkInbound && p == precedenceTheirs:
		return true, false
	default:
		return false, false
	}
}
