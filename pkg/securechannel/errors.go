package securechannel

import "errors"

// Secure channel package errors.
var (
	// ErrMalformedMessage is returned for handshake payloads that fail
	// basic structure checks. The handshake resets to idle.
	ErrMalformedMessage = errors.New("securechannel: malformed handshake message")

	// ErrUnexpectedMessage is returned for a message that does not match
	// the handshake's current state. The handshake resets to idle.
	ErrUnexpectedMessage = errors.New("securechannel: unexpected handshake message")

	// ErrHandshakeFailed wraps engine verification failures. The
	// handshake resets to idle.
	ErrHandshakeFailed = errors.New("securechannel: handshake failed")

	// ErrNoSession is returned when a handshake message arrives for a
	// connection without a session.
	ErrNoSession = errors.New("securechannel: no session for connection")

	// ErrChannelIDExhausted is returned when no channel ID can be
	// allocated.
	ErrChannelIDExhausted = errors.New("securechannel: channel ID space exhausted")

	// ErrReplayDetected is returned when an inbound payload counter was
	// already accepted.
	ErrReplayDetected = errors.New("securechannel: replay detected")

	// ErrContextInvalidated is returned when using a channel context
	// after invalidation.
	ErrContextInvalidated = errors.New("securechannel: channel context invalidated")
)
