package session

import (
	"errors"
	"testing"
	"time"

	"github.com/coap-ace/acegatt/pkg/transport"
)

func grantSession(t *testing.T, ch ChannelID, scopes ...Scope) *Session {
	t.Helper()
	s := newSession(transport.NewConnectionID())
	s.SetEstablished(ch)
	if err := s.SetGrant(scopes, time.Now().Add(time.Hour), ch); err != nil {
		t.Fatalf("SetGrant() error = %v", err)
	}
	return s
}

func TestSession_InitialState(t *testing.T) {
	s := newSession(transport.NewConnectionID())

	if s.Phase() != PhaseUnauthenticated {
		t.Errorf("Phase() = %v, want Unauthenticated", s.Phase())
	}
	if _, ok := s.Channel(); ok {
		t.Error("Channel() ok = true for unauthenticated session")
	}
	if s.Authorization().Granted {
		t.Error("new session has a grant")
	}
}

func TestSession_SetGrant(t *testing.T) {
	t.Run("requires established channel", func(t *testing.T) {
		s := newSession(transport.NewConnectionID())
		err := s.SetGrant([]Scope{ScopeRead}, time.Now().Add(time.Hour), 1)
		if !errors.Is(err, ErrNotEstablished) {
			t.Errorf("SetGrant() error = %v, want ErrNotEstablished", err)
		}
	})

	t.Run("rejects stale channel binding", func(t *testing.T) {
		s := newSession(transport.NewConnectionID())
		s.SetEstablished(2)
		err := s.SetGrant([]Scope{ScopeRead}, time.Now().Add(time.Hour), 1)
		if !errors.Is(err, ErrChannelMismatch) {
			t.Errorf("SetGrant() error = %v, want ErrChannelMismatch", err)
		}
		if s.Authorization().Granted {
			t.Error("failed SetGrant mutated authorization")
		}
	})

	t.Run("records grant", func(t *testing.T) {
		s := grantSession(t, 1, ScopeRead, ScopeControl)
		auth := s.Authorization()
		if !auth.Granted {
			t.Fatal("grant not recorded")
		}
		if !auth.HasScope(ScopeRead) || !auth.HasScope(ScopeControl) {
			t.Error("scope set incomplete")
		}
		if auth.HasScope(Scope("admin")) {
			t.Error("HasScope() matched an ungranted scope")
		}
		if auth.BoundChannel != 1 {
			t.Errorf("BoundChannel = %d, want 1", auth.BoundChannel)
		}
	})

	t.Run("latest grant replaces prior", func(t *testing.T) {
		s := grantSession(t, 1, ScopeRead, ScopeControl)
		if err := s.SetGrant([]Scope{ScopeRead}, time.Now().Add(time.Minute), 1); err != nil {
			t.Fatalf("SetGrant() error = %v", err)
		}
		auth := s.Authorization()
		if auth.HasScope(ScopeControl) {
			t.Error("replaced grant still carries old scope")
		}
	})
}

func TestSession_ClearingInvariant(t *testing.T) {
	t.Run("handshake restart clears grant", func(t *testing.T) {
		s := grantSession(t, 1, ScopeControl)
		s.SetHandshakeInProgress()
		if s.Authorization().Granted {
			t.Error("grant survived re-entering handshake")
		}
		if _, ok := s.Channel(); ok {
			t.Error("channel still reported during handshake")
		}
	})

	t.Run("new channel clears grant", func(t *testing.T) {
		s := grantSession(t, 1, ScopeControl)
		s.SetEstablished(2)
		if s.Authorization().Granted {
			t.Error("grant survived channel re-key")
		}
		if ch, _ := s.Channel(); ch != 2 {
			t.Errorf("Channel() = %d, want 2", ch)
		}
	})

	t.Run("same channel keeps grant", func(t *testing.T) {
		s := grantSession(t, 1, ScopeControl)
		s.SetEstablished(1)
		if !s.Authorization().Granted {
			t.Error("grant cleared although channel unchanged")
		}
	})

	t.Run("reset to unauthenticated clears grant", func(t *testing.T) {
		s := grantSession(t, 1, ScopeControl)
		s.SetUnauthenticated()
		if s.Authorization().Granted {
			t.Error("grant survived reset")
		}
	})
}

func TestRegistry_Lifecycle(t *testing.T) {
	r := NewRegistry(RegistryConfig{MaxSessions: 2})
	conn := transport.NewConnectionID()

	s, err := r.Create(conn)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if s.Connection() != conn {
		t.Error("session bound to wrong connection")
	}

	got, err := r.Get(conn)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != s {
		t.Error("Get() returned a different session")
	}

	r.Destroy(conn)
	if _, err := r.Get(conn); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Get() after destroy error = %v, want ErrSessionNotFound", err)
	}

	// Destroying again is a no-op.
	r.Destroy(conn)
}

func TestRegistry_CapacityBound(t *testing.T) {
	r := NewRegistry(RegistryConfig{MaxSessions: 2})

	for i := 0; i < 2; i++ {
		if _, err := r.Create(transport.NewConnectionID()); err != nil {
			t.Fatalf("Create() #%d error = %v", i, err)
		}
	}
	if !r.IsFull() {
		t.Error("IsFull() = false at capacity")
	}

	if _, err := r.Create(transport.NewConnectionID()); !errors.Is(err, ErrRegistryFull) {
		t.Errorf("Create() past capacity error = %v, want ErrRegistryFull", err)
	}

	// Freeing a slot allows a new session.
	var victim transport.ConnectionID
	r.ForEach(func(s *Session) bool {
		victim = s.Connection()
		return false
	})
	r.Destroy(victim)

	if _, err := r.Create(transport.NewConnectionID()); err != nil {
		t.Errorf("Create() after free error = %v", err)
	}
}

func TestRegistry_DuplicateConnection(t *testing.T) {
	r := NewRegistry(RegistryConfig{})
	conn := transport.NewConnectionID()

	if _, err := r.Create(conn); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Create(conn); !errors.Is(err, ErrDuplicateSession) {
		t.Errorf("Create() duplicate error = %v, want ErrDuplicateSession", err)
	}
}

func TestRegistry_Defaults(t *testing.T) {
	r := NewRegistry(RegistryConfig{})
	if r.MaxSessions() != DefaultMaxSessions {
		t.Errorf("MaxSessions() = %d, want %d", r.MaxSessions(), DefaultMaxSessions)
	}
	if r.Count() != 0 {
		t.Errorf("Count() = %d, want 0", r.Count())
	}
}
