package token

import "errors"

var (
	// ErrMalformed indicates the token could not be decoded or is
	// missing a required claim.
	ErrMalformed = errors.New("token: malformed")

	// ErrVerificationFailed indicates the cryptographic protection on
	// the token did not check out.
	ErrVerificationFailed = errors.New("token: verification failed")

	// ErrWrongAudience indicates the token was issued for a different
	// device.
	ErrWrongAudience = errors.New("token: wrong audience")

	// ErrExpired indicates the token's expiry lies at or before the
	// current time.
	ErrExpired = errors.New("token: expired")

	// ErrClockUnset indicates the device has no time reference, so the
	// expiry could not be validated.
	ErrClockUnset = errors.New("token: device clock not set")

	// ErrNoChannel indicates the submitting session has no established
	// secure channel to bind the token to.
	ErrNoChannel = errors.New("token: no established channel")

	// ErrBindingMismatch indicates the token's confirmation value does
	// not match the session's channel binding.
	ErrBindingMismatch = errors.New("token: channel binding mismatch")
)
