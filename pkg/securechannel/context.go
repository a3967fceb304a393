package securechannel

import (
	"crypto/cipher"
	"encoding/binary"
	"sync"

	"github.com/coap-ace/acegatt/pkg/session"
	"github.com/coap-ace/acegatt/pkg/transport"
	"golang.org/x/crypto/chacha20poly1305"
)

// Context is one established secure channel. The core holds the channel
// ID, the public binding value, and the freshness window; the AEAD
// transform itself is applied by the link layer through Seal/Open.
type Context struct {
	id        session.ChannelID
	conn      transport.ConnectionID
	bindingID []byte

	mu          sync.Mutex
	sealKey     []byte
	openKey     []byte
	sealer      cipher.AEAD
	opener      cipher.AEAD
	sendCounter uint64
	replay      *ReplayWindow
	invalidated bool
}

func newContext(id session.ChannelID, conn transport.ConnectionID, keys *Keys) (*Context, error) {
	sealer, err := chacha20poly1305.New(keys.SealKey)
	if err != nil {
		return nil, err
	}
	opener, err := chacha20poly1305.New(keys.OpenKey)
	if err != nil {
		return nil, err
	}

	return &Context{
		id:        id,
		conn:      conn,
		bindingID: append([]byte(nil), keys.BindingID...),
		sealKey:   append([]byte(nil), keys.SealKey...),
		openKey:   append([]byte(nil), keys.OpenKey...),
		sealer:    sealer,
		opener:    opener,
		replay:    NewReplayWindow(),
	}, nil
}

// ID returns the channel context identifier.
func (c *Context) ID() session.ChannelID {
	return c.id
}

// Connection returns the connection this channel belongs to.
func (c *Context) Connection() transport.ConnectionID {
	return c.conn
}

// BindingID returns a copy of the public channel-binding value.
func (c *Context) BindingID() []byte {
	return append([]byte(nil), c.bindingID...)
}

// Seal protects an outbound payload. Returns the payload counter used
// for the nonce and the ciphertext.
func (c *Context) Seal(plaintext, aad []byte) (uint64, []byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.invalidated {
		return 0, nil, ErrContextInvalidated
	}

	c.sendCounter++
	counter := c.sendCounter
	ct := c.sealer.Seal(nil, counterNonce(counter), plaintext, aad)
	return counter, ct, nil
}

// Open verifies and decrypts an inbound payload, then advances the
// replay window. A counter already seen yields ErrReplayDetected.
func (c *Context) Open(counter uint64, ciphertext, aad []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.invalidated {
		return nil, ErrContextInvalidated
	}

	pt, err := c.opener.Open(nil, counterNonce(counter), ciphertext, aad)
	if err != nil {
		return nil, err
	}
	if !c.replay.Observe(counter) {
		return nil, ErrReplayDetected
	}
	return pt, nil
}

// Replay returns the channel's freshness window.
func (c *Context) Replay() *ReplayWindow {
	return c.replay
}

// invalidate zeroizes the key material and marks the context unusable.
func (c *Context) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.sealKey {
		c.sealKey[i] = 0
	}
	for i := range c.openKey {
		c.openKey[i] = 0
	}
	c.sealer = nil
	c.opener = nil
	c.invalidated = true
}

func counterNonce(counter uint64) []byte {
	nonce := make([]byte, chacha20poly1305.NonceSize)
	binary.BigEndian.PutUint64(nonce[4:], counter)
	return nonce
}

// ReplayWindow is a sliding acceptance window over payload counters.
type ReplayWindow struct {
	mu      sync.Mutex
	highest uint64
	mask    uint64 // bit i set: counter highest-i seen
	primed  bool
}

// WindowSize is the number of out-of-order counters tolerated.
const WindowSize = 64

// NewReplayWindow creates an empty window.
func NewReplayWindow() *ReplayWindow {
	return &ReplayWindow{}
}

// Fresh reports whether a counter would be accepted, without mutating
// the window.
func (w *ReplayWindow) Fresh(counter uint64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.freshLocked(counter)
}

// Observe records a counter. Returns false for replays and counters
// older than the window.
func (w *ReplayWindow) Observe(counter uint64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.freshLocked(counter) {
		return false
	}

	if !w.primed || counter > w.highest {
		shift := counter - w.highest
		if w.primed && shift < WindowSize {
			w.mask = w.mask<<shift | 1
		} else {
			w.mask = 1
		}
		w.highest = counter
		w.primed = true
		return true
	}

	w.mask |= 1 << (w.highest - counter)
	return true
}

func (w *ReplayWindow) freshLocked(counter uint64) bool {
	if !w.primed {
		return true
	}
	if counter > w.highest {
		return true
	}
	offset := w.highest - counter
	if offset >= WindowSize {
		return false
	}
	return w.mask&(1<<offset) == 0
}
