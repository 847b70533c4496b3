package client

import "errors"

var (
	// ErrDaemonNotRunning is returned when nothing listens on the daemon socket
	ErrDaemonNotRunning = errors.New("daemon not running")

	// ErrPermissionDenied is returned when the socket exists but the user may not connect to it
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotFound is returned when the daemon has no such endpoint
	ErrNotFound = errors.New("404 not found")
)
