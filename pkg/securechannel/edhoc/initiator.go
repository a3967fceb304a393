package edhoc

import (
	"crypto/subtle"
	"fmt"
	"io"

	"github.com/coap-ace/acegatt/pkg/securechannel"
	"golang.org/x/crypto/curve25519"
)

// Initiator is the peer side of the exchange, used by tests and client
// tooling to complete real handshakes against the device.
//
// Message1 returns a payload ready for the handshake resource (label
// included); the device's responses come back unlabeled.
type Initiator struct {
	responderPublic []byte
	rand            io.Reader

	ephemeral []byte
	gX        []byte
	prk       []byte
	th3       []byte
	keys      *securechannel.Keys

	state int // 0: before msg1, 1: awaiting msg2, 2: msg3 ready, 3: done
}

// NewInitiator creates an initiator that authenticates the responder by
// its static X25519 public key.
func NewInitiator(responderPublic []byte, rand io.Reader) (*Initiator, error) {
	if len(responderPublic) != KeySize {
		return nil, ErrInvalidKey
	}
	return &Initiator{
		responderPublic: append([]byte(nil), responderPublic...),
		rand:            rand,
	}, nil
}

// Message1 generates the opening payload (labeled).
func (i *Initiator) Message1() ([]byte, error) {
	if i.state != 0 {
		return nil, ErrInvalidState
	}

	ephemeral, gX, err := GenerateKeyPair(i.rand)
	if err != nil {
		return nil, err
	}
	i.ephemeral = ephemeral
	i.gX = gX
	i.state = 1

	out := make([]byte, 0, 1+KeySize)
	out = append(out, securechannel.LabelMessage1)
	out = append(out, gX...)
	return out, nil
}

// ProcessMessage2 verifies the responder's reply and returns the
// message 3 payload (labeled).
func (i *Initiator) ProcessMessage2(message []byte) ([]byte, error) {
	if i.state != 1 {
		return nil, ErrInvalidState
	}
	if len(message) != KeySize+MACSize {
		return nil, fmt.Errorf("%w: message 2 length %d", ErrInvalidMessage, len(message))
	}
	gY, mac2 := message[:KeySize], message[KeySize:]

	gXY, err := curve25519.X25519(i.ephemeral, gY)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	gRX, err := curve25519.X25519(i.ephemeral, i.responderPublic)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	th2 := transcript2(i.gX, gY)
	prk := deriveSecret(gXY, gRX, th2)

	expected := expand(prk, labelMAC2, th2, MACSize)
	if subtle.ConstantTimeCompare(mac2, expected) != 1 {
		i.state = 3
		return nil, ErrResponderMismatch
	}

	i.prk = prk
	i.th3 = transcript3(th2, mac2)
	i.state = 2

	mac3 := expand(i.prk, labelMAC3, i.th3, MACSize)
	out := make([]byte, 0, 1+MACSize)
	out = append(out, securechannel.LabelMessage3)
	out = append(out, mac3...)
	return out, nil
}

// Complete exports the channel keys after message 3 was sent.
// SealKey protects initiator-to-device payloads, mirroring the
// responder's OpenKey.
func (i *Initiator) Complete() (*securechannel.Keys, error) {
	if i.state != 2 {
		return nil, ErrInvalidState
	}

	i.keys = exportKeys(i.prk, i.th3, false)
	i.state = 3
	return i.keys, nil
}
