package authz

import (
	"errors"
	"time"

	"github.com/coap-ace/acegatt/pkg/coap"
	"github.com/coap-ace/acegatt/pkg/session"
)

// Clock is the device's time reference. The second return is false
// while no trusted time is available; grants cannot be validated then
// and every scoped request is denied.
type Clock interface {
	Now() (time.Time, bool)
}

// Reason explains a decision.
type Reason int

const (
	// ReasonAllowed: the request is permitted.
	ReasonAllowed Reason = iota

	// ReasonNotFound: no resource at the requested path.
	ReasonNotFound

	// ReasonMethodNotAllowed: the resource does not support the method.
	ReasonMethodNotAllowed

	// ReasonNoGrant: the session holds no authorization grant.
	ReasonNoGrant

	// ReasonChannelMismatch: the grant is bound to a channel the
	// session no longer has.
	ReasonChannelMismatch

	// ReasonExpired: the grant's expiry has passed, or the device has
	// no time reference to check it against.
	ReasonExpired

	// ReasonInsufficientScope: the grant lacks the required scope.
	ReasonInsufficientScope
)

// String returns a human-readable reason name.
func (r Reason) String() string {
	switch r {
	case ReasonAllowed:
		return "Allowed"
	case ReasonNotFound:
		return "NotFound"
	case ReasonMethodNotAllowed:
		return "MethodNotAllowed"
	case ReasonNoGrant:
		return "NoGrant"
	case ReasonChannelMismatch:
		return "ChannelMismatch"
	case ReasonExpired:
		return "Expired"
	case ReasonInsufficientScope:
		return "InsufficientScope"
	default:
		return "Unknown"
	}
}

// Decision is the outcome of one authorization check.
type Decision struct {
	Allow  bool
	Reason Reason

	// Required is the scope the method demands (ScopeNone for open
	// methods and for decisions that never reached scope evaluation).
	Required session.Scope
}

func allow(required session.Scope) Decision {
	return Decision{Allow: true, Reason: ReasonAllowed, Required: required}
}

func deny(reason Reason, required session.Scope) Decision {
	return Decision{Reason: reason, Required: required}
}

// Checker evaluates requests against the resource table. Every check
// re-reads the session's grant; nothing is cached between requests.
type Checker struct {
	table *Table
	clock Clock
}

// NewChecker creates a checker over a table and a time reference.
func NewChecker(table *Table, clock Clock) (*Checker, error) {
	if table == nil {
		return nil, errors.New("authz: table is required")
	}
	if clock == nil {
		return nil, errors.New("authz: clock is required")
	}
	return &Checker{table: table, clock: clock}, nil
}

// Table returns the checker's resource table.
func (c *Checker) Table() *Table {
	return c.table
}

// Check decides whether a session may invoke a method on a path. The
// decision is made fresh from the session's current grant and the
// current time; it never mutates the session.
func (c *Checker) Check(sess *session.Session, path string, method coap.Code) Decision {
	desc, ok := c.table.Lookup(path)
	if !ok {
		return deny(ReasonNotFound, session.ScopeNone)
	}

	required, ok := desc.Methods[method]
	if !ok {
		return deny(ReasonMethodNotAllowed, session.ScopeNone)
	}
	if required == session.ScopeNone {
		return allow(required)
	}

	authz := sess.Authorization()
	if !authz.Granted {
		return deny(ReasonNoGrant, required)
	}

	ch, ok := sess.Channel()
	if !ok || authz.BoundChannel != ch {
		return deny(ReasonChannelMismatch, required)
	}

	now, set := c.clock.Now()
	if !set || !now.Before(authz.Expiry) {
		return deny(ReasonExpired, required)
	}

	if !authz.HasScope(required) {
		return deny(ReasonInsufficientScope, required)
	}

	return allow(required)
}
