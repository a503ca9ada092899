package server

import "errors"

var (
	// ErrAuth indicates a login attempt with the wrong password or a
	// malformed login message.
	ErrAuth = errors.New("server: authentication failed")

	// ErrQueueFull indicates a session's outbound queue overflowed.
	ErrQueueFull = errors.New("server: outbound queue full")
)
