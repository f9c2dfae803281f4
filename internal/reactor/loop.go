package reactor

import (
	"sync"
	"time"

	"github.com/shurlinet/radnode/internal/timer"
)

// Loop is the reactor's single-threaded event loop. Construct with Spawn;
// Run blocks the calling goroutine until Shutdown is delivered.
type Loop struct {
	handler ReactionHandler
	timers  *timer.Wheel
	events  chan event

	listeners  map[Token]Listener
	transports map[Token]Transport

	mu      sync.Mutex // guards listeners/transports against Unregister races with in-flight reader goroutines
	closing map[Token]struct{}
}

// Spawn constructs a Loop bound to handler and returns it along with a
// Controller for delivering commands and waking it. The loop does not
// start running until Run is called.
func Spawn(handler ReactionHandler) (*Loop, Controller) {
	events := make(chan event, 64)
	l := &Loop{
		handler:    handler,
		timers:     timer.New(),
		events:     events,
		listeners:  make(map[Token]Listener),
		transports: make(map[Token]Transport),
		closing:    make(map[Token]struct{}),
	}
	return l, Controller{events: events}
}

// Run executes the event loop until a Shutdown command is delivered via
// the Controller. It is intended to run on its own goroutine or as the
// entry point's main goroutine.
func (l *Loop) Run() {
	for {
		now := time.Now()
		d, ok := l.timers.NextExpiringFrom(now)
		if !ok || d > WaitTimeout {
			d = WaitTimeout
		}

		var ev event
		var gotEvent bool
		select {
		case ev = <-l.events:
			gotEvent = true
		case <-time.After(d):
		}

		now = time.Now()
		l.handler.Tick(now)
		if fired := l.timers.RemoveExpiredBy(now); fired > 0 {
			l.handler.TimerReacted()
		}

		if gotEvent {
			if l.dispatch(ev) {
				l.drainActions()
				return
			}
		}
		l.drainActions()
	}
}

// dispatch handles one event; it returns true if the loop should exit.
func (l *Loop) dispatch(ev event) bool {
	l.mu.Lock()
	_, removed := l.closing[ev.token]
	l.mu.Unlock()
	if removed && ev.kind != evCommand && ev.kind != evShutdown {
		return false // late event for an already-unregistered resource
	}

	switch ev.kind {
	case evListenerReady:
		if _, ok := l.listeners[ev.token]; ok {
			l.handler.ListenerReacted(ev.token, ev.accepted)
		}
	case evListenerError:
		if _, ok := l.listeners[ev.token]; ok {
			delete(l.listeners, ev.token)
			l.handler.HandleError(Failure{Token: ev.token, Kind: ErrListenerDisconnect, Err: ev.err})
		}
	case evTransportData:
		if _, ok := l.transports[ev.token]; ok {
			l.handler.TransportReacted(ev.token, ev.data)
		}
	case evTransportError:
		if _, ok := l.transports[ev.token]; ok {
			delete(l.transports, ev.token)
			l.handler.HandleError(Failure{Token: ev.token, Kind: ErrTransportDisconnect, Err: ev.err})
		}
	case evCommand:
		l.handler.HandleCommand(ev.cmd)
	case evShutdown:
		return true
	}
	return false
}

func (l *Loop) drainActions() {
	for {
		action, ok := l.handler.Next()
		if !ok {
			return
		}
		l.apply(action)
	}
}

func (l *Loop) apply(action Action) {
	switch a := action.(type) {
	case RegisterListener:
		l.listeners[a.Token] = a.Listener
		l.mu.Lock()
		delete(l.closing, a.Token)
		l.mu.Unlock()
		go l.runListener(a.Token, a.Listener)
		l.handler.ListenerRegistered(a.Token)

	case RegisterTransport:
		l.transports[a.Token] = a.Transport
		l.mu.Lock()
		delete(l.closing, a.Token)
		l.mu.Unlock()
		go l.runTransport(a.Token, a.Transport)
		l.handler.TransportRegistered(a.Token)

	case UnregisterListener:
		if lst, ok := l.listeners[a.Token]; ok {
			delete(l.listeners, a.Token)
			l.markClosing(a.Token)
			_ = lst.Close()
			l.handler.HandoverListener(a.Token, lst)
		}

	case UnregisterTransport:
		if t, ok := l.transports[a.Token]; ok {
			delete(l.transports, a.Token)
			l.markClosing(a.Token)
			_ = t.Close()
			l.handler.HandoverTransport(a.Token, t)
		}

	case Send:
		t, ok := l.transports[a.Token]
		if !ok {
			return
		}
		if err := t.WriteAtomic(a.Bytes); err != nil {
			delete(l.transports, a.Token)
			l.markClosing(a.Token)
			_ = t.Close()
			l.handler.HandleError(Failure{Token: a.Token, Kind: ErrTransportDisconnect, Err: err})
		}

	case SetTimer:
		l.timers.SetTimeout(a.Duration, time.Now())
	}
}

func (l *Loop) markClosing(token Token) {
	l.mu.Lock()
	l.closing[token] = struct{}{}
	l.mu.Unlock()
}

func (l *Loop) runListener(token Token, lst Listener) {
	for {
		t, err := lst.Accept()
		if err != nil {
			l.events <- event{kind: evListenerError, token: token, err: err}
			return
		}
		l.events <- event{kind: evListenerReady, token: token, accepted: t}
	}
}

func (l *Loop) runTransport(token Token, t Transport) {
	buf := make([]byte, 64*1024)
	for {
		n, err := t.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			l.events <- event{kind: evTransportData, token: token, data: data}
		}
		if err != nil {
			l.events <- event{kind: evTransportError, token: token, err: err}
			return
		}
	}
}
