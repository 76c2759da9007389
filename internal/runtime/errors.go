package runtime

import "errors"

// Domain errors for the runtime package.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrStateNotFound is returned when no runtime state row exists for a device.
	ErrStateNotFound = errors.New("runtime: state not found")

	// ErrDuplicateSession is returned when inserting a session that already
	// exists for the same (device_id, started_at). Callers treat it as a
	// no-op; the insert-once contract has already been satisfied.
	ErrDuplicateSession = errors.New("runtime: duplicate session")

	// ErrDeliveryFailed wraps event sink failures. State transitions are
	// never rolled back because of it; the caller retries the event.
	ErrDeliveryFailed = errors.New("runtime: event delivery failed")
)
