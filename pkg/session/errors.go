package session

import "errors"

// Session package errors.
var (
	// ErrRegistryFull is returned when creating a session past the
	// connection capacity bound. The caller must reject the connection
	// at the transport level.
	ErrRegistryFull = errors.New("session: registry full")

	// ErrDuplicateSession is returned when a session already exists for
	// the connection handle.
	ErrDuplicateSession = errors.New("session: duplicate session for connection")

	// ErrSessionNotFound is returned when no session exists for the
	// connection handle.
	ErrSessionNotFound = errors.New("session: session not found")

	// ErrChannelMismatch is returned when recording a grant bound to a
	// channel that is not the session's current established context.
	ErrChannelMismatch = errors.New("session: grant not bound to current channel")

	// ErrNotEstablished is returned when recording a grant on a session
	// without an established channel.
	ErrNotEstablished = errors.New("session: no established channel")
)
