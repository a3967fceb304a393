package transport

import "errors"

// Transport package errors.
var (
	// ErrWouldBlock is returned by Receive when no message is pending.
	ErrWouldBlock = errors.New("transport: no message pending")

	// ErrClosed is returned when using an adapter after connection loss.
	ErrClosed = errors.New("transport: connection closed")

	// ErrFrameTooLarge is returned when a frame exceeds the maximum
	// message size. Connection-fatal.
	ErrFrameTooLarge = errors.New("transport: frame exceeds maximum message size")

	// ErrShortFrame is returned when a frame ends before its declared
	// length. Connection-fatal.
	ErrShortFrame = errors.New("transport: short frame")

	// ErrNoHandler is returned when a Listener is created without a
	// connection handler.
	ErrNoHandler = errors.New("transport: no connection handler configured")

	// ErrPipelined is returned when a peer sends a request before reading
	// the previous response. The characteristic protocol allows one
	// request in flight per connection.
	ErrPipelined = errors.New("transport: request pipelining not supported")
)
