package daemon

import (
	"errors"
	"fmt"
)

func errInvalidFactorKind(kind string) error {
	return fmt.Errorf("invalid replication factor kind %q: want \"must_reach\" or \"range\"", kind)
}

var (
	// ErrDaemonAlreadyRunning is returned when trying to start a daemon
	// while another instance is already running on the same socket.
	ErrDaemonAlreadyRunning = errors.New("daemon already running")

	// ErrDaemonNotRunning is returned when trying to connect to a daemon
	// that is not running (socket file does not exist).
	ErrDaemonNotRunning = errors.New("daemon not running")

	// ErrUnauthorized is returned when a request lacks valid authentication.
	ErrUnauthorized = errors.New("unauthorized")
)
