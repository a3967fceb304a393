package securechannel

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/coap-ace/acegatt/pkg/session"
	"github.com/coap-ace/acegatt/pkg/transport"
)

// fakeEngine is a scripted Engine for coordinator tests.
type fakeEngine struct {
	serial   int
	failMsg1 bool
	failMsg3 bool
	aborted  bool
}

func (f *fakeEngine) ProcessMessage1(message []byte) ([]byte, error) {
	if f.failMsg1 {
		return nil, errors.New("scripted message 1 failure")
	}
	return []byte("message2"), nil
}

func (f *fakeEngine) ProcessMessage3(message []byte) (*Keys, error) {
	if f.failMsg3 {
		return nil, errors.New("scripted message 3 failure")
	}
	seal := make([]byte, 32)
	open := make([]byte, 32)
	seal[0] = byte(f.serial)
	open[0] = byte(f.serial) + 1
	return &Keys{
		SealKey:   seal,
		OpenKey:   open,
		BindingID: []byte(fmt.Sprintf("bind-%d", f.serial)),
	}, nil
}

func (f *fakeEngine) Abort() { f.aborted = true }

// testHarness wires a coordinator with scripted engines.
type testHarness struct {
	registry    *session.Registry
	coordinator *Coordinator
	engines     []*fakeEngine
	nextFail1   bool
	nextFail3   bool
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()
	h := &testHarness{
		registry: session.NewRegistry(session.RegistryConfig{}),
	}

	coordinator, err := NewCoordinator(CoordinatorConfig{
		Registry: h.registry,
		NewEngine: func() (Engine, error) {
			e := &fakeEngine{
				serial:   len(h.engines),
				failMsg1: h.nextFail1,
				failMsg3: h.nextFail3,
			}
			h.engines = append(h.engines, e)
			return e, nil
		},
	})
	if err != nil {
		t.Fatalf("NewCoordinator() error = %v", err)
	}
	h.coordinator = coordinator
	return h
}

func (h *testHarness) connect(t *testing.T) (transport.ConnectionID, *session.Session) {
	t.Helper()
	conn := transport.NewConnectionID()
	sess, err := h.registry.Create(conn)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return conn, sess
}

// establish runs a full scripted handshake.
func (h *testHarness) establish(t *testing.T, conn transport.ConnectionID) session.ChannelID {
	t.Helper()

	if _, err := h.coordinator.HandleMessage(conn, []byte{LabelMessage1, 0xAA}); err != nil {
		t.Fatalf("message 1: %v", err)
	}
	if _, err := h.coordinator.HandleMessage(conn, []byte{LabelMessage3, 0xBB}); err != nil {
		t.Fatalf("message 3: %v", err)
	}

	sess, err := h.registry.Get(conn)
	if err != nil {
		t.Fatal(err)
	}
	ch, ok := sess.Channel()
	if !ok {
		t.Fatal("no channel after handshake")
	}
	return ch
}

func TestCoordinator_FullHandshake(t *testing.T) {
	h := newTestHarness(t)
	conn, sess := h.connect(t)

	resp, err := h.coordinator.HandleMessage(conn, []byte{LabelMessage1, 0xAA})
	if err != nil {
		t.Fatalf("message 1: %v", err)
	}
	if string(resp) != "message2" {
		t.Errorf("message 2 = %q", resp)
	}
	if got := h.coordinator.State(conn); got != StateMessage2Sent {
		t.Errorf("State() = %v, want Message2Sent", got)
	}
	if sess.Phase() != session.PhaseHandshake {
		t.Errorf("session phase = %v, want HandshakeInProgress", sess.Phase())
	}

	if _, err := h.coordinator.HandleMessage(conn, []byte{LabelMessage3, 0xBB}); err != nil {
		t.Fatalf("message 3: %v", err)
	}
	if got := h.coordinator.State(conn); got != StateEstablished {
		t.Errorf("State() = %v, want Established", got)
	}

	ch, ok := sess.Channel()
	if !ok {
		t.Fatal("session has no established channel")
	}
	ctx, ok := h.coordinator.Context(ch)
	if !ok {
		t.Fatal("no context for established channel")
	}
	if ctx.Connection() != conn {
		t.Error("context bound to wrong connection")
	}
	if binding, ok := h.coordinator.BindingID(ch); !ok || len(binding) == 0 {
		t.Error("no binding ID for established channel")
	}
}

func TestCoordinator_RekeyClearsGrantAndOldContext(t *testing.T) {
	h := newTestHarness(t)
	conn, sess := h.connect(t)

	c1 := h.establish(t, conn)
	if err := sess.SetGrant([]session.Scope{session.ScopeControl}, time.Now().Add(time.Hour), c1); err != nil {
		t.Fatalf("SetGrant() error = %v", err)
	}
	oldCtx, _ := h.coordinator.Context(c1)

	c2 := h.establish(t, conn)
	if c2 == c1 {
		t.Fatal("re-key produced the same channel ID")
	}
	if sess.Authorization().Granted {
		t.Error("grant survived re-key")
	}
	if _, ok := h.coordinator.Context(c1); ok {
		t.Error("old channel context still reachable")
	}
	if _, _, err := oldCtx.Seal([]byte("x"), nil); !errors.Is(err, ErrContextInvalidated) {
		t.Errorf("old context Seal() error = %v, want ErrContextInvalidated", err)
	}
}

func TestCoordinator_Message3WithoutHandshake(t *testing.T) {
	h := newTestHarness(t)
	conn, sess := h.connect(t)

	_, err := h.coordinator.HandleMessage(conn, []byte{LabelMessage3, 0xBB})
	if !errors.Is(err, ErrUnexpectedMessage) {
		t.Errorf("error = %v, want ErrUnexpectedMessage", err)
	}
	if sess.Phase() != session.PhaseUnauthenticated {
		t.Errorf("session phase = %v, want Unauthenticated", sess.Phase())
	}
}

func TestCoordinator_EngineFailureResetsToIdle(t *testing.T) {
	h := newTestHarness(t)
	conn, sess := h.connect(t)

	h.nextFail3 = true
	if _, err := h.coordinator.HandleMessage(conn, []byte{LabelMessage1, 0xAA}); err != nil {
		t.Fatal(err)
	}
	_, err := h.coordinator.HandleMessage(conn, []byte{LabelMessage3, 0xBB})
	if !errors.Is(err, ErrHandshakeFailed) {
		t.Errorf("error = %v, want ErrHandshakeFailed", err)
	}

	if got := h.coordinator.State(conn); got != StateIdle {
		t.Errorf("State() = %v, want Idle", got)
	}
	if sess.Phase() != session.PhaseUnauthenticated {
		t.Errorf("session phase = %v, want Unauthenticated", sess.Phase())
	}
	if _, ok := sess.Channel(); ok {
		t.Error("failed handshake left a channel reachable")
	}
}

func TestCoordinator_RestartAbortsInFlightAttempt(t *testing.T) {
	h := newTestHarness(t)
	conn, _ := h.connect(t)

	if _, err := h.coordinator.HandleMessage(conn, []byte{LabelMessage1, 0xAA}); err != nil {
		t.Fatal(err)
	}
	first := h.engines[0]

	// A second message 1 supersedes the attempt.
	if _, err := h.coordinator.HandleMessage(conn, []byte{LabelMessage1, 0xCC}); err != nil {
		t.Fatal(err)
	}
	if !first.aborted {
		t.Error("first attempt's engine was not aborted")
	}

	// The new attempt completes normally.
	if _, err := h.coordinator.HandleMessage(conn, []byte{LabelMessage3, 0xBB}); err != nil {
		t.Fatalf("message 3 on restarted attempt: %v", err)
	}
}

func TestCoordinator_CancelConnection(t *testing.T) {
	h := newTestHarness(t)
	conn, _ := h.connect(t)

	ch := h.establish(t, conn)
	h.coordinator.CancelConnection(conn)

	if _, ok := h.coordinator.Context(ch); ok {
		t.Error("channel context survived connection loss")
	}
	if got := h.coordinator.State(conn); got != StateIdle {
		t.Errorf("State() = %v, want Idle", got)
	}
}

func TestCoordinator_ExpireStale(t *testing.T) {
	h := newTestHarness(t)
	conn, sess := h.connect(t)

	if _, err := h.coordinator.HandleMessage(conn, []byte{LabelMessage1, 0xAA}); err != nil {
		t.Fatal(err)
	}

	if n := h.coordinator.ExpireStale(time.Now()); n != 0 {
		t.Errorf("ExpireStale(now) = %d, want 0", n)
	}
	if n := h.coordinator.ExpireStale(time.Now().Add(2 * DefaultHandshakeTimeout)); n != 1 {
		t.Errorf("ExpireStale(later) = %d, want 1", n)
	}
	if !h.engines[0].aborted {
		t.Error("expired attempt's engine was not aborted")
	}
	if sess.Phase() != session.PhaseUnauthenticated {
		t.Errorf("session phase = %v, want Unauthenticated", sess.Phase())
	}
}

func TestCoordinator_InputValidation(t *testing.T) {
	h := newTestHarness(t)

	t.Run("unknown connection", func(t *testing.T) {
		_, err := h.coordinator.HandleMessage(transport.NewConnectionID(), []byte{LabelMessage1})
		if !errors.Is(err, ErrNoSession) {
			t.Errorf("error = %v, want ErrNoSession", err)
		}
	})

	t.Run("empty payload", func(t *testing.T) {
		conn, _ := h.connect(t)
		if _, err := h.coordinator.HandleMessage(conn, nil); !errors.Is(err, ErrMalformedMessage) {
			t.Errorf("error = %v, want ErrMalformedMessage", err)
		}
	})

	t.Run("unknown label", func(t *testing.T) {
		conn, _ := h.connect(t)
		if _, err := h.coordinator.HandleMessage(conn, []byte{0x7F}); !errors.Is(err, ErrMalformedMessage) {
			t.Errorf("error = %v, want ErrMalformedMessage", err)
		}
	})
}
