package reactor

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"
)

// fakeTransport is an in-memory Transport driven entirely by test code:
// Read blocks on a channel fed by the test, WriteAtomic records what was
// sent (optionally failing), Close unblocks any pending Read.
type fakeTransport struct {
	mu       sync.Mutex
	incoming chan []byte
	closed   bool
	written  [][]byte
	failNext bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{incoming: make(chan []byte, 8)}
}

func (t *fakeTransport) Read(p []byte) (int, error) {
	b, ok := <-t.incoming
	if !ok {
		return 0, io.EOF
	}
	n := copy(p, b)
	return n, nil
}

func (t *fakeTransport) IsReadyToWrite() bool { return true }

func (t *fakeTransport) WriteAtomic(p []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failNext {
		return errors.New("simulated write failure")
	}
	t.written = append(t.written, append([]byte{}, p...))
	return nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.closed = true
		close(t.incoming)
	}
	return nil
}

// scriptedHandler replays a fixed action queue and records every callback
// it receives, guarded by a mutex since the loop drives it from its own
// goroutine while the test reads the log from another.
type scriptedHandler struct {
	mu      sync.Mutex
	pending []Action
	log     []string
}

func (h *scriptedHandler) push(a Action) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pending = append(h.pending, a)
}

func (h *scriptedHandler) record(s string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.log = append(h.log, s)
}

func (h *scriptedHandler) has(s string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, l := range h.log {
		if l == s {
			return true
		}
	}
	return false
}

func (h *scriptedHandler) Tick(time.Time)     {}
func (h *scriptedHandler) TimerReacted()      { h.record("timer") }
func (h *scriptedHandler) ListenerReacted(Token, Transport) {}
func (h *scriptedHandler) TransportReacted(token Token, data []byte) {
	h.record("data:" + string(data))
}
func (h *scriptedHandler) ListenerRegistered(Token)          {}
func (h *scriptedHandler) TransportRegistered(token Token)   { h.record("registered") }
func (h *scriptedHandler) HandoverListener(Token, Listener)  { h.record("handover-listener") }
func (h *scriptedHandler) HandoverTransport(Token, Transport) { h.record("handover-transport") }
func (h *scriptedHandler) HandleCommand(cmd any)             { h.record("command:" + cmd.(string)) }
func (h *scriptedHandler) HandleError(f Failure)             { h.record("error:" + f.Kind.String()) }

func (h *scriptedHandler) Next() (Action, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.pending) == 0 {
		return nil, false
	}
	a := h.pending[0]
	h.pending = h.pending[1:]
	return a, true
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestLoop_TransportDataDelivery(t *testing.T) {
	h := &scriptedHandler{}
	l, ctrl := Spawn(h)
	go l.Run()

	tr := newFakeTransport()
	h.push(RegisterTransport{Token: 1, Transport: tr})
	ctrl.Deliver("register") // wakes the loop to drain the pending action

	waitFor(t, func() bool { return h.has("registered") })

	tr.incoming <- []byte("hello")
	waitFor(t, func() bool { return h.has("data:hello") })

	tr.Close()
	ctrl.Shutdown()
}

func TestLoop_SendFailureDisconnects(t *testing.T) {
	h := &scriptedHandler{}
	l, ctrl := Spawn(h)
	go l.Run()

	tr := newFakeTransport()
	tr.failNext = true
	h.push(RegisterTransport{Token: 2, Transport: tr})
	ctrl.Deliver("register")
	waitFor(t, func() bool { return h.has("registered") })

	h.push(Send{Token: 2, Bytes: []byte("x")})
	ctrl.Deliver("send")
	waitFor(t, func() bool { return h.has("error:transport-disconnect") })

	ctrl.Shutdown()
}

func TestLoop_UnregisterHandsBackResource(t *testing.T) {
	h := &scriptedHandler{}
	l, ctrl := Spawn(h)
	go l.Run()

	tr := newFakeTransport()
	h.push(RegisterTransport{Token: 3, Transport: tr})
	ctrl.Deliver("register")
	waitFor(t, func() bool { return h.has("registered") })

	h.push(UnregisterTransport{Token: 3})
	ctrl.Deliver("unregister")
	waitFor(t, func() bool { return h.has("handover-transport") })

	ctrl.Shutdown()
}

func TestController_Clone(t *testing.T) {
	h := &scriptedHandler{}
	l, ctrl := Spawn(h)
	go l.Run()

	clone := ctrl.Clone()
	clone.Deliver("from-clone")
	waitFor(t, func() bool { return h.has("command:from-clone") })

	ctrl.Shutdown()
}
