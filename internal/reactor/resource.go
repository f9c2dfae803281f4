// Package reactor implements the single-threaded cooperative event loop
// (C5). All ReactionHandler calls execute on the loop's own goroutine;
// resource I/O happens on per-resource goroutines that only ever produce
// events onto a shared channel, never touch handler state directly. This
// is the idiomatic-Go reading of the mio-style poller the design calls
// for: channel select takes the place of epoll registration, and a
// channel send IS the wake -- there is no separate waker token to track.
package reactor

import "time"

// Token identifies a registered resource. Allocation is the caller's
// responsibility (the wire handler owns a monotonic token source); the
// reactor only ever consumes tokens handed to it.
type Token uint64

// Listener is a read-only resource that produces new Transports.
type Listener interface {
	// Accept blocks until a new connection arrives or the listener is
	// closed, in which case it returns a non-nil error.
	Accept() (Transport, error)
	Close() error
}

// Transport is a readable, writable resource subject to WriteAtomic's
// never-partial contract.
type Transport interface {
	// Read blocks until data arrives or the transport is closed.
	Read(p []byte) (int, error)
	IsReadyToWrite() bool
	WriteAtomic(p []byte) error
	Close() error
}

// WaitTimeout bounds how long a loop iteration blocks with no pending
// timer.
const WaitTimeout = time.Hour
