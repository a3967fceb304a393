// Package edhoc implements the three-message key-establishment exchange
// behind the securechannel.Engine interface.
//
// The exchange is an ephemeral-static Diffie-Hellman handshake over
// X25519 with an HKDF-SHA256 key schedule: the initiator opens with its
// ephemeral public key, the responder authenticates message 2 with a
// MAC keyed through its static key, and message 3 confirms the
// initiator holds the session keys. An exporter over the final
// transcript yields the channel keys and the public binding value that
// authorization tokens reference.
//
//	Initiator                        Responder
//	---------                        ---------
//	G_X                 ------>
//	                    <------      G_Y, MAC_2
//	MAC_3               ------>
//	established                      established
package edhoc

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"

	"github.com/coap-ace/acegatt/pkg/securechannel"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

// Sizes of the protocol's fixed-length fields.
const (
	// KeySize is the X25519 scalar/point size.
	KeySize = 32

	// MACSize is the truncated transcript MAC size.
	MACSize = 16

	// SessionKeySize is the exported channel key size
	// (ChaCha20-Poly1305).
	SessionKeySize = 32

	// BindingIDSize is the exported channel-binding value size.
	BindingIDSize = 8
)

// Errors.
var (
	ErrInvalidState       = errors.New("edhoc: invalid protocol state")
	ErrInvalidMessage     = errors.New("edhoc: invalid message")
	ErrInvalidKey         = errors.New("edhoc: invalid key length")
	ErrConfirmationFailed = errors.New("edhoc: key confirmation failed")
	ErrResponderMismatch  = errors.New("edhoc: responder authentication failed")
)

// Exporter labels.
const (
	labelMAC2      = "mac2"
	labelMAC3      = "mac3"
	labelKeyI2R    = "key i2r"
	labelKeyR2I    = "key r2i"
	labelBindingID = "binding id"
)

// GenerateKeyPair creates a fresh X25519 key pair.
func GenerateKeyPair(rand io.Reader) (private, public []byte, err error) {
	private = make([]byte, KeySize)
	if _, err := io.ReadFull(rand, private); err != nil {
		return nil, nil, err
	}
	public, err = curve25519.X25519(private, curve25519.Basepoint)
	if err != nil {
		return nil, nil, err
	}
	return private, public, nil
}

// expand derives length bytes from the handshake secret, bound to the
// label and transcript hash.
func expand(prk []byte, label string, transcript []byte, length int) []byte {
	info := make([]byte, 0, len(label)+len(transcript))
	info = append(info, label...)
	info = append(info, transcript...)

	out := make([]byte, length)
	if _, err := io.ReadFull(hkdf.Expand(sha256.New, prk, info), out); err != nil {
		// Expand only fails past 255 blocks; lengths here are fixed
		// and tiny.
		panic(err)
	}
	return out
}

// deriveSecret computes the handshake secret from both DH results and
// the message-2 transcript.
func deriveSecret(gXY, gRX, th2 []byte) []byte {
	ikm := make([]byte, 0, len(gXY)+len(gRX))
	ikm = append(ikm, gXY...)
	ikm = append(ikm, gRX...)
	return hkdf.Extract(sha256.New, ikm, th2)
}

// exportKeys derives the channel keys and binding value for the
// responder role.
func exportKeys(prk, th3 []byte, responder bool) *securechannel.Keys {
	i2r := expand(prk, labelKeyI2R, th3, SessionKeySize)
	r2i := expand(prk, labelKeyR2I, th3, SessionKeySize)
	binding := expand(prk, labelBindingID, th3, BindingIDSize)

	keys := &securechannel.Keys{BindingID: binding}
	if responder {
		keys.SealKey, keys.OpenKey = r2i, i2r
	} else {
		keys.SealKey, keys.OpenKey = i2r, r2i
	}
	return keys
}

// Responder is the device side of the exchange. It implements
// securechannel.Engine; one instance serves one handshake attempt.
type Responder struct {
	staticKey []byte
	rand      io.Reader

	// Set after message 1.
	prk []byte
	th3 []byte

	state int // 0: awaiting msg1, 1: awaiting msg3, 2: done/aborted
}

// NewResponder creates a responder engine around the device's static
// X25519 key.
func NewResponder(staticKey []byte, rand io.Reader) (*Responder, error) {
	if len(staticKey) != KeySize {
		return nil, ErrInvalidKey
	}
	return &Responder{
		staticKey: append([]byte(nil), staticKey...),
		rand:      rand,
	}, nil
}

// NewEngineFactory returns a securechannel.EngineFactory producing a
// fresh Responder per handshake attempt.
func NewEngineFactory(staticKey []byte, rand io.Reader) securechannel.EngineFactory {
	return func() (securechannel.Engine, error) {
		return NewResponder(staticKey, rand)
	}
}

// ProcessMessage1 consumes G_X and returns G_Y || MAC_2.
func (r *Responder) ProcessMessage1(message []byte) ([]byte, error) {
	if r.state != 0 {
		return nil, ErrInvalidState
	}
	if len(message) != KeySize {
		return nil, fmt.Errorf("%w: message 1 length %d", ErrInvalidMessage, len(message))
	}
	gX := message

	ephemeral, gY, err := GenerateKeyPair(r.rand)
	if err != nil {
		return nil, err
	}

	gXY, err := curve25519.X25519(ephemeral, gX)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	gRX, err := curve25519.X25519(r.staticKey, gX)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	th2 := transcript2(gX, gY)
	r.prk = deriveSecret(gXY, gRX, th2)

	mac2 := expand(r.prk, labelMAC2, th2, MACSize)
	r.th3 = transcript3(th2, mac2)
	r.state = 1

	out := make([]byte, 0, KeySize+MACSize)
	out = append(out, gY...)
	out = append(out, mac2...)
	return out, nil
}

// ProcessMessage3 verifies MAC_3 and exports the channel keys.
func (r *Responder) ProcessMessage3(message []byte) (*securechannel.Keys, error) {
	if r.state != 1 {
		return nil, ErrInvalidState
	}
	if len(message) != MACSize {
		return nil, fmt.Errorf("%w: message 3 length %d", ErrInvalidMessage, len(message))
	}

	expected := expand(r.prk, labelMAC3, r.th3, MACSize)
	if subtle.ConstantTimeCompare(message, expected) != 1 {
		r.Abort()
		return nil, ErrConfirmationFailed
	}

	keys := exportKeys(r.prk, r.th3, true)
	r.zeroize()
	r.state = 2
	return keys, nil
}

// Abort discards handshake state.
func (r *Responder) Abort() {
	r.zeroize()
	r.state = 2
}

func (r *Responder) zeroize() {
	for i := range r.prk {
		r.prk[i] = 0
	}
	r.prk = nil
}

func transcript2(gX, gY []byte) []byte {
	h := sha256.New()
	h.Write(gX)
	h.Write(gY)
	return h.Sum(nil)
}

func transcript3(th2, mac2 []byte) []byte {
	h := sha256.New()
	h.Write(th2)
	h.Write(mac2)
	return h.Sum(nil)
}
