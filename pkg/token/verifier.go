package token

import (
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// Verifier checks the protection on a raw token and returns its claims.
type Verifier interface {
	Verify(raw []byte) (*Claims, error)
}

// SymmetricVerifier accepts tokens sealed with a key shared between the
// device and its authorization server. The wire form is nonce followed
// by AEAD ciphertext.
type SymmetricVerifier struct {
	aead cipher.AEAD
}

// NewSymmetricVerifier builds a verifier over a 32-byte shared key.
func NewSymmetricVerifier(key []byte) (*SymmetricVerifier, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("token: bad verification key: %w", err)
	}
	return &SymmetricVerifier{aead: aead}, nil
}

// Verify decrypts and decodes a raw token. Any structural or
// cryptographic defect fails the whole token.
func (v *SymmetricVerifier) Verify(raw []byte) (*Claims, error) {
	if len(raw) < chacha20poly1305.NonceSize+v.aead.Overhead() {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformed, len(raw))
	}

	nonce := raw[:chacha20poly1305.NonceSize]
	pt, err := v.aead.Open(nil, nonce, raw[chacha20poly1305.NonceSize:], nil)
	if err != nil {
		return nil, ErrVerificationFailed
	}

	var claims Claims
	if err := decMode.Unmarshal(pt, &claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &claims, nil
}

// Issuer seals claim sets into tokens. The device side only ever
// verifies; this is the authorization-server half, used by tests and by
// tooling that provisions demo credentials.
type Issuer struct {
	aead cipher.AEAD
	rand io.Reader
}

// NewIssuer builds an issuer over the same 32-byte shared key the
// device verifies with.
func NewIssuer(key []byte) (*Issuer, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("token: bad issuing key: %w", err)
	}
	return &Issuer{aead: aead, rand: rand.Reader}, nil
}

// Issue encodes and seals a claim set.
func (i *Issuer) Issue(claims *Claims) ([]byte, error) {
	pt, err := encMode.Marshal(claims)
	if err != nil {
		return nil, fmt.Errorf("token: encode claims: %w", err)
	}

	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := io.ReadFull(i.rand, nonce); err != nil {
		return nil, fmt.Errorf("token: nonce: %w", err)
	}
	return i.aead.Seal(nonce, nonce, pt, nil), nil
}
