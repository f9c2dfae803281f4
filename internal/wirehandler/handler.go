package wirehandler

import (
	"log/slog"
	"net"
	"time"

	"github.com/zeebo/blake3"

	"github.com/shurlinet/radnode/internal/gitstore"
	"github.com/shurlinet/radnode/internal/nodeid"
	"github.com/shurlinet/radnode/internal/noise"
	"github.com/shurlinet/radnode/internal/reactor"
	"github.com/shurlinet/radnode/internal/wire"
	"github.com/shurlinet/radnode/internal/workerpool"
)

// maxInboxBytes bounds the undecoded plaintext a peer may have buffered
// before the handler treats it as misbehavior and disconnects.
const maxInboxBytes = 2 << 20

// flushPollInterval is how often Tick re-arms itself while any peer has an
// open Git stream, so bytes a worker produces reach the wire even when no
// other reactor event happens to wake the loop.
const flushPollInterval = 20 * time.Millisecond

// Handler implements reactor.ReactionHandler (C7): it owns every peer
// session, drives the Noise XK handshake for both dialed and accepted
// connections, multiplexes gossip and Git frames over them, and feeds Git
// streams to the worker pool. Every method here runs exclusively on the
// reactor's own goroutine (see internal/reactor's package doc); the one
// exception is the worker pool's progress Emitter, which crosses back in
// through HandleCommand via the Controller rather than touching this
// struct directly.
type Handler struct {
	signer   nodeid.Signer
	keypair  noise.Keypair
	svc      Service
	pool     *workerpool.Pool
	dialOpts DialOptions

	chanCapacity int
	metrics      *Metrics

	controller reactor.Controller
	hasCtrl    bool

	nextToken reactor.Token

	pendingOutbound map[reactor.Token]*pendingOutbound
	pendingInbound  map[reactor.Token]*pendingInbound
	peers           map[reactor.Token]*peer
	byNid           map[nodeid.NodeId]reactor.Token

	closingReasons map[reactor.Token]DisconnectReason

	actions []reactor.Action

	lastTick time.Time
}

// New constructs a Handler. chanCapacity bounds each Git stream's worker
// channel pair.
func New(signer nodeid.Signer, keypair noise.Keypair, svc Service, pool *workerpool.Pool, dialOpts DialOptions, chanCapacity int, metrics *Metrics) *Handler {
	return &Handler{
		signer:          signer,
		keypair:         keypair,
		svc:             svc,
		pool:            pool,
		dialOpts:        dialOpts,
		chanCapacity:    chanCapacity,
		metrics:         metrics,
		pendingOutbound: make(map[reactor.Token]*pendingOutbound),
		pendingInbound:  make(map[reactor.Token]*pendingInbound),
		peers:           make(map[reactor.Token]*peer),
		byNid:           make(map[nodeid.NodeId]reactor.Token),
		closingReasons:  make(map[reactor.Token]DisconnectReason),
	}
}

// SetController gives the handler a handle back into its own reactor loop,
// used to route the worker pool's progress callback (which runs on a
// worker goroutine, not the loop's) back through HandleCommand. Call it
// once, right after reactor.Spawn.
func (h *Handler) SetController(c reactor.Controller) {
	h.controller = c
	h.hasCtrl = true
}

// Listen queues ln for registration with the reactor and returns the token
// it will be known by.
func (h *Handler) Listen(ln *netListener) reactor.Token {
	token := h.allocToken()
	h.queue(reactor.RegisterListener{Token: token, Listener: ln})
	return token
}

func (h *Handler) allocToken() reactor.Token {
	h.nextToken++
	return h.nextToken
}

func (h *Handler) queue(a reactor.Action) { h.actions = append(h.actions, a) }

// Next implements reactor.ReactionHandler.
func (h *Handler) Next() (reactor.Action, bool) {
	if len(h.actions) == 0 {
		return nil, false
	}
	a := h.actions[0]
	h.actions = h.actions[1:]
	return a, true
}

// ListenerRegistered, TransportRegistered and HandoverListener carry no
// extra bookkeeping for this handler: the listener is fire-and-forget, and
// a registered transport's real state lives in the pending/peer maps,
// populated when the corresponding action was queued.
func (h *Handler) ListenerRegistered(reactor.Token)    {}
func (h *Handler) TransportRegistered(reactor.Token)   {}
func (h *Handler) HandoverListener(reactor.Token, reactor.Listener) {}

// TimerReacted is a no-op: Tick already runs on every loop iteration,
// so periodic bookkeeping lives there rather than behind a distinct
// per-timer identity the reactor doesn't track.
func (h *Handler) TimerReacted() {}

// Tick runs the handler's periodic work: draining worker channels onto the
// wire, the ping/pong keepalive, and the Service's own tick hook.
func (h *Handler) Tick(now time.Time) {
	var elapsed time.Duration
	if !h.lastTick.IsZero() {
		elapsed = now.Sub(h.lastTick)
	}
	h.lastTick = now

	openStreams := 0
	for token, p := range h.peers {
		h.flushStreams(token, p)
		if _, stillConnected := h.peers[token]; !stillConnected {
			continue
		}
		h.tickPing(token, p, now)
		if _, stillConnected := h.peers[token]; stillConnected {
			openStreams += len(p.streams)
		}
	}
	if h.metrics != nil {
		h.metrics.OpenChannels.Set(float64(openStreams))
	}
	if openStreams > 0 {
		h.queue(reactor.SetTimer{Duration: flushPollInterval})
	}
	if h.svc != nil {
		h.svc.Tick(elapsed, h.metrics)
	}
}

// ListenerReacted accepts one inbound connection: evaluate the Service's
// admission policy, then start a responder handshake.
func (h *Handler) ListenerReacted(_ reactor.Token, accepted reactor.Transport) {
	if !h.accept(accepted) {
		_ = accepted.Close()
		return
	}
	session, err := noise.NewResponder(h.keypair)
	if err != nil {
		if h.metrics != nil {
			h.metrics.HandshakeFailures.Inc()
		}
		_ = accepted.Close()
		return
	}
	var addr string
	if ra, ok := accepted.(*netTransport); ok {
		addr = ra.RemoteAddr().String()
	}
	token := h.allocToken()
	h.pendingInbound[token] = &pendingInbound{addr: addr, session: session}
	h.queue(reactor.RegisterTransport{Token: token, Transport: accepted})
}

// accept evaluates Service.Accepted against the accepted transport's
// remote IP, when both a Service and a net.Addr are available.
func (h *Handler) accept(t reactor.Transport) bool {
	if h.svc == nil {
		return true
	}
	ra, ok := t.(*netTransport)
	if !ok {
		return true
	}
	tcpAddr, ok := ra.RemoteAddr().(*net.TCPAddr)
	if !ok {
		return true
	}
	return h.svc.Accepted(tcpAddr.IP)
}

// HandleCommand dispatches a command delivered through the Controller.
func (h *Handler) HandleCommand(cmd any) {
	switch c := cmd.(type) {
	case Connect:
		h.handleConnect(c)
	case Write:
		h.handleWrite(c)
	case Fetch:
		h.handleFetch(c)
	case Disconnect:
		h.handleDisconnect(c)
	case Wakeup:
		h.queue(reactor.SetTimer{Duration: c.Duration})
	case workerpool.TaskResult:
		h.handleTaskResult(c)
	case Progress:
		slog.Info("wirehandler: fetch progress", "stream", c.Stream, "line", c.Line)
	}
}

func (h *Handler) handleConnect(c Connect) {
	if c.Nid == h.signer.NodeId() {
		if h.svc != nil {
			h.svc.Disconnected(c.Nid, wire.LinkOutbound, selfConnection())
		}
		return
	}
	if _, ok := h.byNid[c.Nid]; ok {
		return
	}
	for _, p := range h.pendingOutbound {
		if p.nid == c.Nid {
			return
		}
	}

	conn, err := dialTCP(c.Addr, h.dialOpts)
	if err != nil {
		if h.svc != nil {
			h.svc.Disconnected(c.Nid, wire.LinkOutbound, connectionError(err.Error()))
		}
		return
	}
	session, err := noise.NewInitiator(h.keypair, c.Nid.Bytes())
	if err != nil {
		_ = conn.Close()
		if h.svc != nil {
			h.svc.Disconnected(c.Nid, wire.LinkOutbound, connectionError(err.Error()))
		}
		return
	}
	first, err := session.Start()
	if err != nil {
		_ = conn.Close()
		if h.metrics != nil {
			h.metrics.HandshakeFailures.Inc()
		}
		return
	}

	token := h.allocToken()
	h.pendingOutbound[token] = &pendingOutbound{nid: c.Nid, addr: c.Addr, session: session}
	h.queue(reactor.RegisterTransport{Token: token, Transport: &netTransport{conn: conn}})
	h.queue(reactor.Send{Token: token, Bytes: encodeRecord(first)})
}

func (h *Handler) handleWrite(c Write) {
	token, ok := h.byNid[c.Nid]
	if !ok {
		return
	}
	p := h.peers[token]
	for _, m := range c.Messages {
		if err := h.sendGossip(token, p, m); err != nil {
			h.closeToken(token, connectionError(err.Error()))
			return
		}
	}
}

func (h *Handler) handleFetch(c Fetch) {
	token, ok := h.byNid[c.Remote]
	if !ok {
		return
	}
	p := h.peers[token]
	sid := wire.DeriveGitStreamId(p.link, p.seq)
	p.seq++
	ch := workerpool.NewChannels(h.chanCapacity)
	p.streams[sid] = &stream{channels: ch, rid: c.Rid}
	h.pool.Submit(workerpool.Task{
		Request:  workerpool.Initiator{Rid: c.Rid, Remote: c.Remote, RefsAt: c.RefsAt},
		Stream:   uint64(sid),
		Channels: ch,
	})

	var rid [wire.RidSize]byte
	copy(rid[:], c.Rid[:])
	if err := h.sendFrame(token, p, wire.Frame{Stream: sid, Body: wire.ControlBody{Type: wire.ControlOpen, Of: sid, Rid: rid}}); err != nil {
		h.closeToken(token, connectionError(err.Error()))
	}
}

func (h *Handler) handleDisconnect(c Disconnect) {
	if token, ok := h.byNid[c.Nid]; ok {
		h.closeToken(token, c.Reason)
	}
}

func (h *Handler) handleTaskResult(r workerpool.TaskResult) {
	if r.Kind == workerpool.ResultInitiator && h.svc != nil {
		h.svc.Fetched(r.Rid, r.Remote, r.Fetch)
	}
	token, ok := h.byNid[r.Remote]
	if !ok {
		return
	}
	p, ok := h.peers[token]
	if !ok {
		return
	}
	sid := wire.StreamId(r.Stream)
	if _, open := p.streams[sid]; open {
		h.flushOneStream(token, p, sid, p.streams[sid])
	}
}

// TransportReacted dispatches raw bytes from one connection, routed to
// whichever of pending-outbound, pending-inbound, or established handling
// applies to token.
func (h *Handler) TransportReacted(token reactor.Token, data []byte) {
	if po, ok := h.pendingOutbound[token]; ok {
		h.feedOutboundHandshake(token, po, data)
		return
	}
	if pi, ok := h.pendingInbound[token]; ok {
		h.feedInboundHandshake(token, pi, data)
		return
	}
	if p, ok := h.peers[token]; ok {
		h.feedPeer(token, p, data)
	}
}

func (h *Handler) feedOutboundHandshake(token reactor.Token, p *pendingOutbound, data []byte) {
	p.records.Push(data)
	for {
		rec, ok, err := p.records.Next()
		if err != nil {
			h.abortPending(token, err)
			return
		}
		if !ok {
			return
		}
		out, done, err := p.session.Step(rec)
		if err != nil {
			if h.metrics != nil {
				h.metrics.HandshakeFailures.Inc()
			}
			h.abortPending(token, err)
			return
		}
		if out != nil {
			h.queue(reactor.Send{Token: token, Bytes: encodeRecord(out)})
		}
		if done {
			delete(h.pendingOutbound, token)
			h.completeHandshake(token, p.nid, p.addr, wire.LinkOutbound, p.session)
			return
		}
	}
}

func (h *Handler) feedInboundHandshake(token reactor.Token, p *pendingInbound, data []byte) {
	p.records.Push(data)
	for {
		rec, ok, err := p.records.Next()
		if err != nil {
			h.abortPending(token, err)
			return
		}
		if !ok {
			return
		}
		switch p.step {
		case 0:
			if _, _, err := p.session.Step(rec); err != nil {
				if h.metrics != nil {
					h.metrics.HandshakeFailures.Inc()
				}
				h.abortPending(token, err)
				return
			}
			out, err := p.session.StepWrite()
			if err != nil {
				if h.metrics != nil {
					h.metrics.HandshakeFailures.Inc()
				}
				h.abortPending(token, err)
				return
			}
			h.queue(reactor.Send{Token: token, Bytes: encodeRecord(out)})
			p.step = 1
		case 1:
			if err := p.session.FinishResponder(rec); err != nil {
				if h.metrics != nil {
					h.metrics.HandshakeFailures.Inc()
				}
				h.abortPending(token, err)
				return
			}
			nid, err := p.session.RemoteNodeID()
			if err != nil {
				h.abortPending(token, err)
				return
			}
			delete(h.pendingInbound, token)
			h.completeHandshake(token, nid, p.addr, wire.LinkInbound, p.session)
			return
		}
	}
}

// completeHandshake finishes registering a newly-established session:
// reject self-connections outright, resolve NodeId conflicts against any
// existing session per the precedence table, then register the peer and
// notify the Service.
func (h *Handler) completeHandshake(token reactor.Token, nid nodeid.NodeId, addr string, link wire.Link, session *noise.Session) {
	if nid == h.signer.NodeId() {
		h.closeToken(token, selfConnection())
		return
	}
	if existingToken, ok := h.byNid[nid]; ok {
		if existing, ok := h.peers[existingToken]; ok {
			p := resolvePrecedence(h.signer.NodeId(), nid)
			closeTheNewOne, sameDirection := closeNew(link, existing.link, p)
			switch {
			case sameDirection:
				if token < existingToken {
					h.closeToken(existingToken, conflict())
				} else {
					h.closeToken(token, conflict())
					return
				}
			case closeTheNewOne:
				h.closeToken(token, conflict())
				return
			default:
				h.closeToken(existingToken, conflict())
			}
			if h.metrics != nil {
				h.metrics.ConflictDisconnects.Inc()
			}
		}
	}

	pr := &peer{
		token:      token,
		nid:        nid,
		addr:       addr,
		link:       link,
		session:    session,
		streams:    make(map[wire.StreamId]*stream),
		lastGossip: make(map[wire.MessageTag][32]byte),
	}
	h.peers[token] = pr
	h.byNid[nid] = token
	if h.svc != nil {
		h.svc.Connected(nid, addr, link)
	}
}

func (h *Handler) feedPeer(token reactor.Token, p *peer, data []byte) {
	p.records.Push(data)
	for {
		rec, ok, err := p.records.Next()
		if err != nil {
			h.closeToken(token, misbehavior())
			return
		}
		if !ok {
			return
		}
		pt, err := p.session.Decrypt(rec)
		if err != nil {
			h.closeToken(token, misbehavior())
			return
		}
		if h.metrics != nil {
			h.metrics.BytesReceived.WithLabelValues(p.nid.String()).Add(float64(len(rec)))
		}
		p.frames.Push(pt)
		if p.frames.Buffered() > maxInboxBytes {
			h.closeToken(token, misbehavior())
			return
		}
		for {
			f, ok, err := p.frames.Next()
			if err != nil {
				h.closeToken(token, misbehavior())
				return
			}
			if !ok {
				break
			}
			h.dispatchFrame(token, p, f)
			if p.disconnecting {
				return
			}
		}
	}
}

func (h *Handler) dispatchFrame(token reactor.Token, p *peer, f wire.Frame) {
	switch body := f.Body.(type) {
	case wire.ControlBody:
		h.handleControl(token, p, body)
	case wire.GossipBody:
		h.handleGossip(token, p, body)
	case wire.GitBody:
		h.handleGit(token, p, f.Stream, body)
	}
}

func (h *Handler) handleControl(token reactor.Token, p *peer, body wire.ControlBody) {
	switch body.Type {
	case wire.ControlOpen:
		if body.Of.Kind() != wire.KindGit {
			return
		}
		if _, exists := p.streams[body.Of]; exists {
			return
		}
		var rid gitstore.Oid
		copy(rid[:], body.Rid[:])
		ch := workerpool.NewChannels(h.chanCapacity)
		p.streams[body.Of] = &stream{channels: ch, rid: rid}

		remote := p.nid
		sid := uint64(body.Of)
		h.pool.Submit(workerpool.Task{
			Request: workerpool.Responder{
				Remote: remote,
				Rid:    rid,
				Emitter: func(line string) {
					if h.hasCtrl {
						h.controller.Deliver(Progress{Stream: sid, Line: line})
					}
				},
			},
			Stream:   sid,
			Channels: ch,
		})
	case wire.ControlEof:
		if st, ok := p.streams[body.Of]; ok {
			select {
			case st.channels.Recv <- workerpool.ChannelEvent{Kind: workerpool.EventEof}:
			default:
			}
		}
	case wire.ControlClose:
		if st, ok := p.streams[body.Of]; ok {
			select {
			case st.channels.Recv <- workerpool.ChannelEvent{Kind: workerpool.EventClose}:
			default:
			}
			close(st.channels.Recv)
			delete(p.streams, body.Of)
		}
	}
}

// handleGit forwards an inbound Git frame to its stream's worker. The send
// is non-blocking: the worker channel capacity is the flow-control budget,
// and a remote that outruns it despite that is treated as a protocol
// violation rather than stalling the reactor goroutine for every other
// peer.
func (h *Handler) handleGit(token reactor.Token, p *peer, sid wire.StreamId, body wire.GitBody) {
	st, ok := p.streams[sid]
	if !ok {
		return
	}
	select {
	case st.channels.Recv <- workerpool.ChannelEvent{Kind: workerpool.EventData, Data: body.Data}:
	default:
		h.closeToken(token, misbehavior())
	}
}

func (h *Handler) handleGossip(token reactor.Token, p *peer, body wire.GossipBody) {
	ann, err := wire.DecodeSignedAnnouncement(body.Encoded)
	if err != nil || ann.Node != p.nid {
		h.closeToken(token, misbehavior())
		return
	}
	switch m := ann.Message.(type) {
	case wire.Ping:
		if err := h.sendGossip(token, p, wire.Pong{Nonce: m.Nonce}); err != nil {
			h.closeToken(token, connectionError(err.Error()))
		}
	case wire.Pong:
		h.handlePong(p, m.Nonce)
	default:
		if h.svc != nil {
			h.svc.ReceivedMessage(p.nid, m)
		}
	}
}

func (h *Handler) sendFrame(token reactor.Token, p *peer, f wire.Frame) error {
	plain, err := wire.EncodeFrame(f)
	if err != nil {
		return err
	}
	rec, err := encryptRecord(p.session, plain)
	if err != nil {
		return err
	}
	if h.metrics != nil {
		h.metrics.BytesSent.WithLabelValues(p.nid.String()).Add(float64(len(rec)))
	}
	h.queue(reactor.Send{Token: token, Bytes: rec})
	return nil
}

func (h *Handler) sendGossip(token reactor.Token, p *peer, m wire.GossipMessage) error {
	encoded := wire.EncodeMessage(m)

	digest := blake3.Sum256(encoded)
	if prev, ok := p.lastGossip[m.Tag()]; ok && prev == digest {
		return nil
	}
	p.lastGossip[m.Tag()] = digest

	sid := wire.GossipOutbound
	if p.link == wire.LinkInbound {
		sid = wire.GossipInbound
	}
	ann := wire.SignedAnnouncement{Node: h.signer.NodeId(), Signature: h.signer.Sign(encoded), Message: m}
	return h.sendFrame(token, p, wire.Frame{Stream: sid, Body: wire.GossipBody{Encoded: wire.EncodeSignedAnnouncement(ann)}})
}

func (h *Handler) flushStreams(token reactor.Token, p *peer) {
	for sid, st := range p.streams {
		h.flushOneStream(token, p, sid, st)
		if p.disconnecting {
			return
		}
	}
}

func (h *Handler) flushOneStream(token reactor.Token, p *peer, sid wire.StreamId, st *stream) {
	for {
		select {
		case ev, ok := <-st.channels.Send:
			if !ok {
				h.closeStream(token, p, sid)
				return
			}
			switch ev.Kind {
			case workerpool.EventData:
				if err := h.sendFrame(token, p, wire.Frame{Stream: sid, Body: wire.GitBody{Data: ev.Data}}); err != nil {
					h.closeToken(token, connectionError(err.Error()))
					return
				}
			case workerpool.EventEof:
				if err := h.sendFrame(token, p, wire.Frame{Stream: sid, Body: wire.ControlBody{Type: wire.ControlEof, Of: sid}}); err != nil {
					h.closeToken(token, connectionError(err.Error()))
					return
				}
			case workerpool.EventClose:
				h.closeStream(token, p, sid)
				return
			}
		default:
			return
		}
	}
}

func (h *Handler) closeStream(token reactor.Token, p *peer, sid wire.StreamId) {
	if _, ok := p.streams[sid]; !ok {
		return
	}
	delete(p.streams, sid)
	if err := h.sendFrame(token, p, wire.Frame{Stream: sid, Body: wire.ControlBody{Type: wire.ControlClose, Of: sid}}); err != nil {
		h.closeToken(token, connectionError(err.Error()))
	}
}

// closeToken schedules token for a graceful teardown: the reason is
// recorded so HandoverTransport (called once the reactor actually closes
// the resource) can hand it to the Service.
func (h *Handler) closeToken(token reactor.Token, reason DisconnectReason) {
	if p, ok := h.peers[token]; ok {
		p.disconnecting = true
		p.reason = reason
	}
	h.closingReasons[token] = reason
	h.queue(reactor.UnregisterTransport{Token: token})
}

func (h *Handler) abortPending(token reactor.Token, err error) {
	h.closeToken(token, connectionError(err.Error()))
}

// HandoverTransport implements reactor.ReactionHandler: it is the last
// callback for a token whose teardown was requested via closeToken. A
// transport the reactor drops on an I/O failure gets no handover; that
// path ends in HandleError instead.
func (h *Handler) HandoverTransport(token reactor.Token, _ reactor.Transport) {
	reason, ok := h.closingReasons[token]
	delete(h.closingReasons, token)
	if !ok {
		reason = connectionError("transport closed")
	}
	h.teardown(token, reason)
}

// HandleError implements reactor.ReactionHandler: a transport-level
// I/O failure the loop could not recover from.
func (h *Handler) HandleError(f reactor.Failure) {
	if f.Kind != reactor.ErrTransportDisconnect {
		return
	}
	detail := "connection error"
	if f.Err != nil {
		detail = f.Err.Error()
	}
	h.teardown(f.Token, connectionError(detail))
}

func (h *Handler) teardown(token reactor.Token, reason DisconnectReason) {
	if p, ok := h.peers[token]; ok {
		delete(h.peers, token)
		if h.byNid[p.nid] == token {
			delete(h.byNid, p.nid)
		}
		for _, st := range p.streams {
			close(st.channels.Recv)
		}
		if h.svc != nil {
			h.svc.Disconnected(p.nid, p.link, reason)
		}
		return
	}
	if po, ok := h.pendingOutbound[token]; ok {
		delete(h.pendingOutbound, token)
		if h.svc != nil {
			h.svc.Disconnected(po.nid, wire.LinkOutbound, reason)
		}
		return
	}
	delete(h.pendingInbound, token)
}
