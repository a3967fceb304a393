// Package session implements per-connection session state management.
//
// This package owns the coupling between a session's security state and
// its authorization grant: any security-state change that does not keep
// the same established channel context clears the grant in the same
// critical section, so a grant bound to superseded key material is never
// observable.
//
// The Registry bounds the number of concurrent sessions to the link
// layer's connection capacity and keys them by the opaque connection
// handle supplied by the transport.
package session

// SecurityPhase is the coarse state of a session's secure channel.
type SecurityPhase int

const (
	// PhaseUnauthenticated is the initial state: no handshake started,
	// no channel context.
	PhaseUnauthenticated SecurityPhase = iota

	// PhaseHandshake means a key-establishment handshake is in flight.
	PhaseHandshake

	// PhaseEstablished means a channel context is active.
	PhaseEstablished
)

// String returns a human-readable name for the phase.
func (p SecurityPhase) String() string {
	switch p {
	case PhaseUnauthenticated:
		return "Unauthenticated"
	case PhaseHandshake:
		return "HandshakeInProgress"
	case PhaseEstablished:
		return "Established"
	default:
		return "Unknown"
	}
}

// ChannelID identifies one secure-channel context. The zero value means
// no channel; valid IDs start at 1.
type ChannelID uint16

// NilChannel is the absent channel context.
const NilChannel ChannelID = 0

// Scope is a named permission unit granted by an authorization token.
type Scope string

// Scopes used by the device's resource table.
const (
	// ScopeNone marks an unprotected operation.
	ScopeNone Scope = ""

	// ScopeRead permits reading sensor state.
	ScopeRead Scope = "read"

	// ScopeControl permits actuating the device.
	ScopeControl Scope = "control"
)
