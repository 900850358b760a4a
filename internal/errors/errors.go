package errors

import "errors"

var (
	// ErrNoDestination means no notification destination is configured. Callers treat
	// it as a no-op delivery, not a failure.
	ErrNoDestination = errors.New("no notification destination configured")

	// ErrUnsupportedDestination means the destination identifier names no known transport.
	ErrUnsupportedDestination = errors.New("unsupported notification destination")

	// ErrInvalidEnvelope means the inbound document is not a JSON object.
	ErrInvalidEnvelope = errors.New("invalid event envelope")
)
