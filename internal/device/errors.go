package device

import "errors"

var (
	// ErrInvalidBackend is returned when a backend name is not recognised.
	ErrInvalidBackend = errors.New("device: invalid backend")

	// ErrInvalidDevice is returned when a persisted row cannot be decoded.
	ErrInvalidDevice = errors.New("device: invalid")

	// ErrNoRepository is returned by Restore and Persist on a registry
	// constructed without storage.
	ErrNoRepository = errors.New("device: no repository configured")
)
