package session

import (
	"sync"

	"github.com/coap-ace/acegatt/pkg/transport"
	"github.com/pion/logging"
)

// DefaultMaxSessions matches the number of simultaneous peer links the
// simulated radio supports.
const DefaultMaxSessions = 4

// RegistryConfig configures the session registry.
type RegistryConfig struct {
	// MaxSessions limits concurrent sessions
	// (default: DefaultMaxSessions).
	MaxSessions int

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Registry owns one Session per live connection, keyed by the opaque
// connection handle, with a fixed capacity bound.
type Registry struct {
	sessions    map[transport.ConnectionID]*Session
	maxSessions int
	log         logging.LeveledLogger

	mu sync.RWMutex
}

// NewRegistry creates a session registry.
func NewRegistry(config RegistryConfig) *Registry {
	if config.MaxSessions <= 0 {
		config.MaxSessions = DefaultMaxSessions
	}

	r := &Registry{
		sessions:    make(map[transport.ConnectionID]*Session),
		maxSessions: config.MaxSessions,
	}
	if config.LoggerFactory != nil {
		r.log = config.LoggerFactory.NewLogger("session")
	}
	return r
}

// Create allocates the session for a newly established connection.
// Returns ErrRegistryFull past capacity; the caller must then reject
// the connection at the transport level.
func (r *Registry) Create(conn transport.ConnectionID) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[conn]; exists {
		return nil, ErrDuplicateSession
	}
	if len(r.sessions) >= r.maxSessions {
		if r.log != nil {
			r.log.Warnf("rejecting connection %s: registry full (%d)", conn, r.maxSessions)
		}
		return nil, ErrRegistryFull
	}

	s := newSession(conn)
	r.sessions[conn] = s

	if r.log != nil {
		r.log.Debugf("session created for connection %s (%d/%d)", conn, len(r.sessions), r.maxSessions)
	}
	return s, nil
}

// Get returns the session for a connection handle.
func (r *Registry) Get(conn transport.ConnectionID) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[conn]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Destroy removes the session for a connection. All session state is
// volatile, so removal is the entire teardown. No error if absent.
func (r *Registry) Destroy(conn transport.ConnectionID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[conn]; !ok {
		return
	}
	delete(r.sessions, conn)

	if r.log != nil {
		r.log.Debugf("session destroyed for connection %s (%d/%d)", conn, len(r.sessions), r.maxSessions)
	}
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// IsFull returns true if no more sessions can be created.
func (r *Registry) IsFull() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions) >= r.maxSessions
}

// MaxSessions returns the capacity bound.
func (r *Registry) MaxSessions() int {
	return r.maxSessions
}

// ForEach calls fn for each live session until it returns false.
// The callback must not create or destroy sessions.
func (r *Registry) ForEach(fn func(*Session) bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.sessions {
		if !fn(s) {
			return
		}
	}
}
