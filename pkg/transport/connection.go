// Package transport bridges byte messages from the characteristic layer
// to the request/response model in pkg/coap.
//
// One Adapter exists per live peer connection. The Listener simulates the
// wireless peripheral over TCP (one TCP connection per peer, one
// length-prefixed frame per characteristic write); the Pipe provides an
// in-memory equivalent for deterministic tests.
package transport

import "github.com/google/uuid"

// ConnectionID is the opaque handle identifying one live peer connection.
// It is assigned by the transport on link establishment and never reused.
type ConnectionID uuid.UUID

// NilConnectionID is the zero connection handle.
var NilConnectionID ConnectionID

// NewConnectionID allocates a fresh connection handle.
func NewConnectionID() ConnectionID {
	return ConnectionID(uuid.New())
}

// String returns the canonical textual form of the handle.
func (id ConnectionID) String() string {
	return uuid.UUID(id).String()
}
