// Package workerpool implements the off-loop bounded thread pool (C6):
// Git pack-protocol exchanges run here, away from the reactor goroutine,
// communicating with the wire handler through bounded channels.
package workerpool

import (
	"github.com/shurlinet/radnode/internal/gitstore"
	"github.com/shurlinet/radnode/internal/nodeid"
)

// EventKind distinguishes the three things that can arrive on a stream's
// channel.
type EventKind uint8

const (
	EventData EventKind = iota
	EventEof
	EventClose
)

// ChannelEvent is one unit exchanged between a worker and the wire
// handler over a stream's bounded channel.
type ChannelEvent struct {
	Kind EventKind
	Data []byte
}

// Channels is the bidirectional, bounded pair a worker shares with the
// wire handler for one Git stream. Send carries bytes the worker wants
// written to the peer; Recv carries bytes (and Eof/Close) the wire
// handler read off the peer.
type Channels struct {
	Send chan ChannelEvent
	Recv chan ChannelEvent
}

// NewChannels allocates a pair of channels, each buffering at most
// capacity events before the other side must drain it. The bound counts
// events, not bytes; an event's Data may be of any length.
func NewChannels(capacity int) Channels {
	return Channels{
		Send: make(chan ChannelEvent, capacity),
		Recv: make(chan ChannelEvent, capacity),
	}
}

// Request is the union of the two fetch_request shapes.
type Request interface{ isRequest() }

// Initiator drives an outbound Git fetch: the local node asks remote for
// the objects of rid's refs. RefsAt maps each refname to the Oid wanted;
// the local head of that ref, when present, is sent as the "have".
type Initiator struct {
	Rid    gitstore.Oid
	Remote nodeid.NodeId
	RefsAt map[string]gitstore.Oid
}

// Responder serves an inbound Git fetch: remote opened a stream and will
// send a want/have fetch request; Emitter is how the worker reports
// progress lines back without going through the Send channel (kept
// separate so progress text never competes with pack bytes for channel
// capacity). Rid scopes the fetch to a repository: the wire handler
// already knows which repo a Git stream belongs to from the Open frame's
// context, so it's threaded through here rather than re-derived from the
// want/have request the remote sends.
type Responder struct {
	Remote  nodeid.NodeId
	Rid     gitstore.Oid
	Emitter func(line string)
}

func (Initiator) isRequest() {}
func (Responder) isRequest() {}

// FetchResult is the outcome of an Initiator task: which refs actually
// advanced, or an error.
type FetchResult struct {
	Updated map[string]gitstore.Oid
	Err     error
}

// ResultKind distinguishes which Request shape a Task completed.
type ResultKind uint8

const (
	ResultInitiator ResultKind = iota
	ResultResponder
)

// TaskResult is what a worker enqueues on the controller's command
// channel when it finishes; the wire handler receives it as is, through
// HandleCommand.
type TaskResult struct {
	Remote nodeid.NodeId
	Stream uint64 // wire.StreamId, kept as the raw integer to avoid an import cycle
	Kind   ResultKind
	Rid    gitstore.Oid // set only for ResultInitiator
	Fetch  FetchResult  // set only for ResultInitiator
	Err    error        // set only for ResultResponder
}

// Task is one unit of work submitted to the pool: a request, the stream
// it's bound to, and the channel pair it speaks the pack protocol
// through.
type Task struct {
	Request  Request
	Stream   uint64
	Channels Channels
}
