package wirehandler

import (
	"time"

	"github.com/shurlinet/radnode/internal/reactor"
	"github.com/shurlinet/radnode/internal/wire"
)

// pingInterval/pongTimeout implement the application-level keepalive
// layered on top of gossip messages: idle sessions are proven alive by a
// round trip rather than relying on TCP keepalive alone,
// since a half-open connection behind NAT can pass TCP-level probes for a
// long time after the peer process is actually gone. The cadence mirrors
// the TCP keepalive tuning in transport.go (idle period, probe timeout)
// rather than introducing a second unrelated set of constants.
const (
	pingInterval = keepaliveIdle
	pongTimeout  = keepaliveInterval * keepaliveCount
)

// tickPing sends a ping once pingInterval has passed since the session's
// first tick or the last matching pong (inbound traffic does not reset
// it), and disconnects on timeout. It is driven from Tick, not a reactor timer,
// since Tick already runs on every loop iteration.
func (h *Handler) tickPing(token reactor.Token, p *peer, now time.Time) {
	if p.disconnecting {
		return
	}
	if p.pingArmed {
		if now.After(p.pingDeadline) {
			h.closeToken(token, connectionError("ping timeout"))
		}
		return
	}
	if p.nextPingDue.IsZero() {
		p.nextPingDue = now.Add(pingInterval)
		return
	}
	if now.Before(p.nextPingDue) {
		return
	}
	p.pingNonce++
	if err := h.sendGossip(token, p, wire.Ping{Nonce: p.pingNonce}); err != nil {
		h.closeToken(token, connectionError(err.Error()))
		return
	}
	p.pingArmed = true
	p.pingDeadline = now.Add(pongTimeout)
}

// handlePong clears the outstanding ping if nonce matches; a late or
// mismatched Pong is ignored rather than treated as misbehavior, since a
// stray duplicate doesn't indicate a hostile peer.
func (h *Handler) handlePong(p *peer, nonce uint16) {
	if p.pingArmed && nonce == p.pingNonce {
		p.pingArmed = false
		p.nextPingDue = time.Time{}
	}
}
