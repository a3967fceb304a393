// Package token validates access tokens and turns them into session
// grants. Tokens are CWT-style CBOR claim sets protected with a
// symmetric AEAD shared between the device and its authorization
// server, and each token is confirmed against the binding value of the
// secure channel it arrives on.
package token

import (
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/coap-ace/acegatt/pkg/session"
)

// Claims is the decoded claim set of an access token. Claim keys follow
// the CWT integer registry; scope is a space-separated list.
type Claims struct {
	Issuer       string       `cbor:"1,keyasint,omitempty"`
	Audience     string       `cbor:"3,keyasint,omitempty"`
	Expiry       int64        `cbor:"4,keyasint,omitempty"`
	IssuedAt     int64        `cbor:"6,keyasint,omitempty"`
	TokenID      []byte       `cbor:"7,keyasint,omitempty"`
	Confirmation Confirmation `cbor:"8,keyasint,omitempty"`
	Scope        string       `cbor:"9,keyasint,omitempty"`
}

// Confirmation carries the proof-of-possession binding. KeyID holds the
// exporter-derived binding value of the secure channel the token is
// good for.
type Confirmation struct {
	KeyID []byte `cbor:"3,keyasint,omitempty"`
}

// ExpiresAt returns the expiry as a time. The zero time means the token
// carries no expiry claim.
func (c *Claims) ExpiresAt() time.Time {
	if c.Expiry == 0 {
		return time.Time{}
	}
	return time.Unix(c.Expiry, 0)
}

// ScopeList splits the scope claim into individual scopes.
func (c *Claims) ScopeList() []session.Scope {
	fields := strings.Fields(c.Scope)
	if len(fields) == 0 {
		return nil
	}
	scopes := make([]session.Scope, 0, len(fields))
	for _, f := range fields {
		scopes = append(scopes, session.Scope(f))
	}
	return scopes
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{DupMapKey: cbor.DupMapKeyEnforcedAPF}.DecMode()
	if err != nil {
		panic(err)
	}
}
