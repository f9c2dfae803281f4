package wirehandler

import (
	"net"
	"time"

	"github.com/shurlinet/radnode/internal/gitstore"
	"github.com/shurlinet/radnode/internal/nodeid"
	"github.com/shurlinet/radnode/internal/wire"
	"github.com/shurlinet/radnode/internal/workerpool"
)

// Service is the upper layer the wire handler reports to and takes
// direction from. It is out of scope to implement in full (the
// gossip/replication policy above the wire), but its shape is part of C7's
// contract.
type Service interface {
	// Accepted decides whether an inbound connection from ip is allowed
	// through to the Noise handshake.
	Accepted(ip net.IP) bool
	Connected(nid nodeid.NodeId, addr string, link wire.Link)
	Disconnected(nid nodeid.NodeId, link wire.Link, reason DisconnectReason)
	ReceivedMessage(nid nodeid.NodeId, msg wire.GossipMessage)
	Fetched(rid gitstore.Oid, remote nodeid.NodeId, result workerpool.FetchResult)
	Tick(elapsed time.Duration, metrics *Metrics)
}
