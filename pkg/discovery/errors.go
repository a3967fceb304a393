package discovery

import "errors"

var (
	// ErrClosed is returned when an operation is attempted on a closed component.
	ErrClosed = errors.New("discovery: closed")

	// ErrAlreadyStarted is returned when starting an already-started service.
	ErrAlreadyStarted = errors.New("discovery: already started")

	// ErrNotStarted is returned when stopping a service that was not started.
	ErrNotStarted = errors.New("discovery: not started")

	// ErrInvalidDeviceName is returned when the device name exceeds the maximum length.
	// Maximum length: 32 characters.
	ErrInvalidDeviceName = errors.New("discovery: invalid device name (max 32 characters)")
)
