package wirehandler

import (
	"time"

	"github.com/shurlinet/radnode/internal/gitstore"
	"github.com/shurlinet/radnode/internal/nodeid"
	"github.com/shurlinet/radnode/internal/wire"
)

// Connect asks the handler to dial nid at addr.
type Connect struct {
	Nid  nodeid.NodeId
	Addr string
}

// Write asks the handler to serialize msgs as gossip frames to nid, if
// connected.
type Write struct {
	Nid      nodeid.NodeId
	Messages []wire.GossipMessage
}

// Fetch asks the handler to open a Git stream to remote and drive an
// Initiator worker task over it.
type Fetch struct {
	Rid         gitstore.Oid
	Remote      nodeid.NodeId
	Timeout     time.Duration
	ReaderLimit int
	RefsAt      map[string]gitstore.Oid
}

// Disconnect asks the handler to tear down nid's session with reason.
type Disconnect struct {
	Nid    nodeid.NodeId
	Reason DisconnectReason
}

// Wakeup asks the reactor to schedule a timer after duration.
type Wakeup struct {
	Duration time.Duration
}

// workerpool.TaskResult itself arrives as a Control::Worker command;
// HandleCommand type-switches on it directly rather than wrapping it in a
// local type.

// Progress carries one operator-visible line from a Responder fetch's
// Emitter callback, which runs on a worker goroutine and so must cross
// back into the handler through the Controller rather than touching
// Handler state directly.
type Progress struct {
	Stream uint64
	Line   string
}
