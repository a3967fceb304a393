package securechannel

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coap-ace/acegatt/pkg/session"
	"github.com/coap-ace/acegatt/pkg/transport"
	"github.com/pion/logging"
)

// DefaultHandshakeTimeout bounds how long a handshake may stay in
// flight before it is swept back to idle.
const DefaultHandshakeTimeout = 60 * time.Second

// Handshake message labels. The first payload byte on the handshake
// resource sequences the exchange; everything after it is opaque to the
// coordinator.
const (
	LabelMessage1 byte = 0x01
	LabelMessage3 byte = 0x03
)

// HandshakeState is the coordinator's per-session state.
type HandshakeState int

const (
	// StateIdle: no handshake in flight, no pending attempt.
	StateIdle HandshakeState = iota

	// StateMessage1Received: message 1 accepted, awaiting the engine's
	// message 2 computation.
	StateMessage1Received

	// StateMessage2Sent: message 2 returned to the peer, awaiting
	// message 3.
	StateMessage2Sent

	// StateEstablished: the session holds an active channel context.
	StateEstablished
)

// String returns a human-readable state name.
func (s HandshakeState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateMessage1Received:
		return "Message1Received"
	case StateMessage2Sent:
		return "Message2Sent"
	case StateEstablished:
		return "Established"
	default:
		return "Unknown"
	}
}

// Callbacks provides coordinator event hooks.
type Callbacks struct {
	// OnEstablished is called after a handshake completes and the
	// channel context is installed.
	OnEstablished func(conn transport.ConnectionID, ctx *Context)

	// OnHandshakeError is called when an attempt fails and resets.
	OnHandshakeError func(conn transport.ConnectionID, err error)
}

// CoordinatorConfig configures the handshake coordinator.
type CoordinatorConfig struct {
	// Registry is the session registry. Required.
	Registry *session.Registry

	// NewEngine creates the crypto engine for each attempt. Required.
	NewEngine EngineFactory

	// Timeout bounds in-flight handshakes
	// (default: DefaultHandshakeTimeout).
	Timeout time.Duration

	// Callbacks for coordinator events.
	Callbacks Callbacks

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// handshake tracks one in-flight attempt.
type handshake struct {
	engine  Engine
	state   HandshakeState
	started time.Time
}

// Coordinator drives the handshake state machine for every session and
// owns the established channel contexts.
type Coordinator struct {
	config CoordinatorConfig
	log    logging.LeveledLogger

	mu          sync.Mutex
	handshakes  map[transport.ConnectionID]*handshake
	contexts    map[session.ChannelID]*Context
	byConn      map[transport.ConnectionID]session.ChannelID
	nextChannel session.ChannelID
}

// NewCoordinator creates a handshake coordinator.
func NewCoordinator(config CoordinatorConfig) (*Coordinator, error) {
	if config.Registry == nil {
		return nil, errors.New("securechannel: registry is required")
	}
	if config.NewEngine == nil {
		return nil, errors.New("securechannel: engine factory is required")
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultHandshakeTimeout
	}

	c := &Coordinator{
		config:      config,
		handshakes:  make(map[transport.ConnectionID]*handshake),
		contexts:    make(map[session.ChannelID]*Context),
		byConn:      make(map[transport.ConnectionID]session.ChannelID),
		nextChannel: 1,
	}
	if config.LoggerFactory != nil {
		c.log = config.LoggerFactory.NewLogger("securechannel")
	}
	return c, nil
}

// HandleMessage processes one payload from the handshake resource and
// returns the response payload (empty on final-message success).
//
// Every failure path resets the session's handshake to idle and leaves
// no partially initialized channel context reachable.
func (c *Coordinator) HandleMessage(conn transport.ConnectionID, payload []byte) ([]byte, error) {
	sess, err := c.config.Registry.Get(conn)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNoSession, conn)
	}

	resp, ctx, err := c.handleLocked(conn, sess, payload)

	// Callbacks run outside the lock.
	if err != nil && c.config.Callbacks.OnHandshakeError != nil {
		c.config.Callbacks.OnHandshakeError(conn, err)
	}
	if ctx != nil && c.config.Callbacks.OnEstablished != nil {
		c.config.Callbacks.OnEstablished(conn, ctx)
	}

	return resp, err
}

func (c *Coordinator) handleLocked(conn transport.ConnectionID, sess *session.Session, payload []byte) ([]byte, *Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(payload) < 1 {
		c.resetLocked(conn, sess)
		return nil, nil, ErrMalformedMessage
	}

	label, body := payload[0], payload[1:]

	switch label {
	case LabelMessage1:
		return c.handleMessage1Locked(conn, sess, body)
	case LabelMessage3:
		return c.handleMessage3Locked(conn, sess, body)
	default:
		c.resetLocked(conn, sess)
		return nil, nil, fmt.Errorf("%w: label %#x", ErrMalformedMessage, label)
	}
}

// handleMessage1Locked starts a handshake attempt. A message 1 always
// wins: it aborts any in-flight attempt and supersedes any active
// channel for the connection.
func (c *Coordinator) handleMessage1Locked(conn transport.ConnectionID, sess *session.Session, body []byte) ([]byte, *Context, error) {
	if hs, ok := c.handshakes[conn]; ok {
		hs.engine.Abort()
		delete(c.handshakes, conn)
		if c.log != nil {
			c.log.Infof("connection %s: handshake restart aborts in-flight attempt", conn)
		}
	}
	c.invalidateChannelLocked(conn)

	engine, err := c.config.NewEngine()
	if err != nil {
		c.resetLocked(conn, sess)
		return nil, nil, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}

	hs := &handshake{
		engine:  engine,
		state:   StateMessage1Received,
		started: time.Now(),
	}
	c.handshakes[conn] = hs
	sess.SetHandshakeInProgress()

	resp, err := engine.ProcessMessage1(body)
	if err != nil {
		c.resetLocked(conn, sess)
		return nil, nil, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}

	hs.state = StateMessage2Sent
	return resp, nil, nil
}

// handleMessage3Locked completes the handshake and installs the new
// channel context.
func (c *Coordinator) handleMessage3Locked(conn transport.ConnectionID, sess *session.Session, body []byte) ([]byte, *Context, error) {
	hs, ok := c.handshakes[conn]
	if !ok || hs.state != StateMessage2Sent {
		c.resetLocked(conn, sess)
		return nil, nil, ErrUnexpectedMessage
	}

	keys, err := hs.engine.ProcessMessage3(body)
	if err != nil {
		c.resetLocked(conn, sess)
		return nil, nil, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}

	ch, err := c.allocateChannelLocked()
	if err != nil {
		c.resetLocked(conn, sess)
		return nil, nil, err
	}

	ctx, err := newContext(ch, conn, keys)
	if err != nil {
		c.resetLocked(conn, sess)
		return nil, nil, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}

	c.contexts[ch] = ctx
	c.byConn[conn] = ch
	delete(c.handshakes, conn)
	sess.SetEstablished(ch)

	if c.log != nil {
		c.log.Infof("connection %s: channel %d established", conn, ch)
	}
	return []byte{}, ctx, nil
}

// Context returns the context for an active channel ID.
func (c *Coordinator) Context(ch session.ChannelID) (*Context, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ctx, ok := c.contexts[ch]
	return ctx, ok
}

// BindingID returns the binding value for an active channel ID. This is
// the lookup the grant processor uses to tie tokens to channels.
func (c *Coordinator) BindingID(ch session.ChannelID) ([]byte, bool) {
	ctx, ok := c.Context(ch)
	if !ok {
		return nil, false
	}
	return ctx.BindingID(), true
}

// State returns the handshake state for a connection.
func (c *Coordinator) State(conn transport.ConnectionID) HandshakeState {
	c.mu.Lock()
	defer c.mu.Unlock()

	if hs, ok := c.handshakes[conn]; ok {
		return hs.state
	}
	if _, ok := c.byConn[conn]; ok {
		return StateEstablished
	}
	return StateIdle
}

// CancelConnection aborts any in-flight handshake and invalidates the
// channel context for a lost connection. The session itself is
// destroyed by the caller.
func (c *Coordinator) CancelConnection(conn transport.ConnectionID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if hs, ok := c.handshakes[conn]; ok {
		hs.engine.Abort()
		delete(c.handshakes, conn)
	}
	c.invalidateChannelLocked(conn)
}

// ExpireStale resets handshakes older than the timeout. Returns the
// number of attempts expired. Called periodically by the device loop.
func (c *Coordinator) ExpireStale(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	expired := 0
	for conn, hs := range c.handshakes {
		if now.Sub(hs.started) < c.config.Timeout {
			continue
		}
		hs.engine.Abort()
		delete(c.handshakes, conn)
		if sess, err := c.config.Registry.Get(conn); err == nil {
			sess.SetUnauthenticated()
		}
		expired++
		if c.log != nil {
			c.log.Infof("connection %s: handshake timed out", conn)
		}
	}
	return expired
}

// resetLocked returns a session's handshake to idle: the attempt is
// aborted, its channel (if any) invalidated, and the session state
// cleared.
func (c *Coordinator) resetLocked(conn transport.ConnectionID, sess *session.Session) {
	if hs, ok := c.handshakes[conn]; ok {
		hs.engine.Abort()
		delete(c.handshakes, conn)
	}
	c.invalidateChannelLocked(conn)
	sess.SetUnauthenticated()
}

// invalidateChannelLocked drops the connection's active channel context.
func (c *Coordinator) invalidateChannelLocked(conn transport.ConnectionID) {
	ch, ok := c.byConn[conn]
	if !ok {
		return
	}
	if ctx, ok := c.contexts[ch]; ok {
		ctx.invalidate()
		delete(c.contexts, ch)
	}
	delete(c.byConn, conn)
}

// allocateChannelLocked returns the next unused channel ID.
func (c *Coordinator) allocateChannelLocked() (session.ChannelID, error) {
	start := c.nextChannel
	for {
		id := c.nextChannel

		c.nextChannel++
		if c.nextChannel == session.NilChannel {
			c.nextChannel = 1
		}

		if _, used := c.contexts[id]; !used {
			return id, nil
		}
		if c.nextChannel == start {
			return session.NilChannel, ErrChannelIDExhausted
		}
	}
}
