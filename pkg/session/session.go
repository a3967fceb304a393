package session

import (
	"sync"
	"time"

	"github.com/coap-ace/acegatt/pkg/transport"
)

// Authorization is a session's recorded grant. The zero value means no
// grant.
type Authorization struct {
	// Granted is true once a token has been accepted.
	Granted bool

	// Scopes is the granted scope set.
	Scopes []Scope

	// Expiry is the grant's expiry time.
	Expiry time.Time

	// BoundChannel is the channel context the grant is bound to. The
	// grant is only meaningful while this equals the session's current
	// established channel.
	BoundChannel ChannelID
}

// HasScope reports membership in the granted scope set.
func (a Authorization) HasScope(s Scope) bool {
	for _, have := range a.Scopes {
		if have == s {
			return true
		}
	}
	return false
}

// Session is the per-connection record: security state plus
// authorization grant. It is created empty on connection establishment
// and destroyed with the connection.
//
// All mutation goes through the methods below; each holds the session
// lock for the whole update, so the grant-clearing invariant is never
// observable mid-violation.
type Session struct {
	conn transport.ConnectionID

	mu      sync.RWMutex
	phase   SecurityPhase
	channel ChannelID
	authz   Authorization
}

func newSession(conn transport.ConnectionID) *Session {
	return &Session{
		conn:  conn,
		phase: PhaseUnauthenticated,
	}
}

// Connection returns the connection handle this session belongs to.
func (s *Session) Connection() transport.ConnectionID {
	return s.conn
}

// Phase returns the current security phase.
func (s *Session) Phase() SecurityPhase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// Channel returns the established channel context ID.
// ok is false unless the session is in PhaseEstablished.
func (s *Session) Channel() (ChannelID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.phase != PhaseEstablished {
		return NilChannel, false
	}
	return s.channel, true
}

// Authorization returns a copy of the current grant state.
func (s *Session) Authorization() Authorization {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authz
}

// SetHandshakeInProgress moves the session into PhaseHandshake.
// Any grant is cleared: it was bound to key material that is now being
// superseded.
func (s *Session) SetHandshakeInProgress() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = PhaseHandshake
	s.channel = NilChannel
	s.authz = Authorization{}
}

// SetEstablished records a completed handshake. The grant is cleared
// unless the channel is unchanged from the previous established state.
func (s *Session) SetEstablished(ch ChannelID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sameChannel := s.phase == PhaseEstablished && s.channel == ch
	s.phase = PhaseEstablished
	s.channel = ch
	if !sameChannel {
		s.authz = Authorization{}
	}
}

// SetUnauthenticated drops the channel context and, with it, any grant.
func (s *Session) SetUnauthenticated() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = PhaseUnauthenticated
	s.channel = NilChannel
	s.authz = Authorization{}
}

// SetGrant records a validated grant bound to the given channel.
// The channel must be the session's current established context;
// otherwise the prior grant state is left untouched. The latest valid
// grant replaces any previous one.
func (s *Session) SetGrant(scopes []Scope, expiry time.Time, bound ChannelID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseEstablished {
		return ErrNotEstablished
	}
	if s.channel != bound {
		return ErrChannelMismatch
	}

	s.authz = Authorization{
		Granted:      true,
		Scopes:       append([]Scope(nil), scopes...),
		Expiry:       expiry,
		BoundChannel: bound,
	}
	return nil
}
