package reactor

type eventKind int

const (
	evListenerReady eventKind = iota
	evListenerError
	evTransportData
	evTransportError
	evCommand
	evShutdown
)

type event struct {
	kind     eventKind
	token    Token
	accepted Transport
	data     []byte
	err      error
	cmd      any
}

// Controller delivers commands into the loop and can wake it. It is a
// thin wrapper over a channel, so it is cheap to copy and safe to share
// across goroutines.
type Controller struct {
	events chan event
}

// Clone returns an independent handle to the same loop. Since Controller
// only ever holds a channel reference, Clone is just a copy.
func (c Controller) Clone() Controller { return c }

// Deliver enqueues a command for handler.HandleCommand, waking the loop.
func (c Controller) Deliver(cmd any) {
	c.events <- event{kind: evCommand, cmd: cmd}
}

// Shutdown asks the loop to exit after delivering any commands already
// queued ahead of it.
func (c Controller) Shutdown() {
	c.events <- event{kind: evShutdown}
}
