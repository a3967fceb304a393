package token

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/pion/logging"

	"github.com/coap-ace/acegatt/pkg/session"
)

// Clock is the device's time reference. The second return is false
// while the device has no trusted time, in which case expiry cannot be
// validated and token processing fails closed.
type Clock interface {
	Now() (time.Time, bool)
}

// BindingResolver looks up the binding value of an active secure
// channel. The handshake coordinator satisfies this.
type BindingResolver interface {
	BindingID(ch session.ChannelID) ([]byte, bool)
}

// ProcessorConfig configures a Processor.
type ProcessorConfig struct {
	// Verifier checks token protection. Required.
	Verifier Verifier

	// Bindings resolves channel binding values. Required.
	Bindings BindingResolver

	// Clock is the device time reference. Required.
	Clock Clock

	// Audience, when non-empty, is the device identity tokens must name.
	Audience string

	// LoggerFactory customizes logging (default: pion defaults).
	LoggerFactory logging.LoggerFactory
}

// Processor turns submitted tokens into session grants. Every check
// must pass before the session is touched; a failing token leaves the
// session's existing grant exactly as it was.
type Processor struct {
	config ProcessorConfig
	log    logging.LeveledLogger
}

// NewProcessor creates a token processor.
func NewProcessor(config ProcessorConfig) (*Processor, error) {
	if config.Verifier == nil {
		return nil, errors.New("token: Verifier is required")
	}
	if config.Bindings == nil {
		return nil, errors.New("token: Bindings is required")
	}
	if config.Clock == nil {
		return nil, errors.New("token: Clock is required")
	}
	if config.LoggerFactory == nil {
		config.LoggerFactory = logging.NewDefaultLoggerFactory()
	}

	return &Processor{
		config: config,
		log:    config.LoggerFactory.NewLogger("token"),
	}, nil
}

// Submit validates a raw token against the session's secure channel and
// installs the resulting grant. A token that passes replaces any prior
// grant on the session; a token that fails changes nothing.
func (p *Processor) Submit(sess *session.Session, raw []byte) (*Claims, error) {
	ch, ok := sess.Channel()
	if !ok {
		return nil, ErrNoChannel
	}

	claims, err := p.config.Verifier.Verify(raw)
	if err != nil {
		p.log.Infof("token rejected: %v", err)
		return nil, err
	}

	if p.config.Audience != "" && claims.Audience != p.config.Audience {
		return nil, fmt.Errorf("%w: %q", ErrWrongAudience, claims.Audience)
	}

	if claims.Expiry == 0 {
		return nil, fmt.Errorf("%w: missing expiry claim", ErrMalformed)
	}
	now, set := p.config.Clock.Now()
	if !set {
		return nil, ErrClockUnset
	}
	expiry := claims.ExpiresAt()
	if !now.Before(expiry) {
		return nil, ErrExpired
	}

	scopes := claims.ScopeList()
	if len(scopes) == 0 {
		return nil, fmt.Errorf("%w: empty scope claim", ErrMalformed)
	}

	binding, ok := p.config.Bindings.BindingID(ch)
	if !ok {
		return nil, ErrNoChannel
	}
	if len(claims.Confirmation.KeyID) == 0 ||
		subtle.ConstantTimeCompare(claims.Confirmation.KeyID, binding) != 1 {
		return nil, ErrBindingMismatch
	}

	if err := sess.SetGrant(scopes, expiry, ch); err != nil {
		return nil, err
	}

	p.log.Infof("grant installed on channel %d: scope %q until %s", ch, claims.Scope, expiry.Format(time.RFC3339))
	return claims, nil
}
