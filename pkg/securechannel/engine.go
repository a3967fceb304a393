// Package securechannel drives the key-establishment handshake for each
// session and owns the resulting channel contexts.
//
// The Coordinator is a per-session state machine over a fixed
// three-message, peer-driven exchange. Cryptographic computation is
// delegated to an Engine; the coordinator only sequences messages,
// installs the channel context into the session registry on success
// (which clears any prior grant there), and resets to idle on any
// failure so a half-completed handshake never leaves a reachable
// channel context behind.
package securechannel

// Keys is the key material an Engine exports on handshake completion.
// The coordinator folds it into a Context and discards it.
type Keys struct {
	// SealKey protects device-to-peer payloads (32 bytes).
	SealKey []byte

	// OpenKey protects peer-to-device payloads (32 bytes).
	OpenKey []byte

	// BindingID is the public channel-binding value derived from the
	// handshake transcript. Authorization tokens reference it to prove
	// they were issued for this channel.
	BindingID []byte
}

// Engine performs the responder side of one handshake attempt. A fresh
// Engine is created per attempt and discarded afterwards.
//
// Engine calls are the coordinator's awaited crypto steps: the session
// owns no other work while one is in flight.
type Engine interface {
	// ProcessMessage1 consumes the initiator's opening message and
	// returns the responder's reply (message 2).
	ProcessMessage1(message []byte) ([]byte, error)

	// ProcessMessage3 verifies the initiator's key-confirmation message
	// and returns the established channel keys.
	ProcessMessage3(message []byte) (*Keys, error)

	// Abort discards in-progress handshake state. Called when the
	// attempt is superseded, times out, or the connection drops.
	Abort()
}

// EngineFactory creates one Engine per handshake attempt.
type EngineFactory func() (Engine, error)
