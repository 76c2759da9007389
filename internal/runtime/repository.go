package runtime

import (
	"context"
	"time"
)

// SampleSource fetches one raw sample for one device from the provider.
// Failures bubble to the caller's retry policy; the engine never retries.
type SampleSource interface {
	FetchSample(ctx context.Context, deviceID string) (*Sample, error)
}

// StateUpdate is a partial-field update for a DeviceRuntimeState row.
// Nil pointer fields are left untouched; Clear flags null out nullable
// columns. Every applied update bumps the row's updated_at.
type StateUpdate struct {
	IsRunning           *bool
	SessionStartedAt    *time.Time
	ClearSessionStarted bool
	LastTickAt          *time.Time
	ClearLastTick       bool
	SessionSeconds      *int64
	LastMode            *Mode
	LastEquipmentState  *string
	LastSeenAt          *time.Time
	LastRevision        *string
	TempSum             *float64
	HumiditySum         *float64
	SampleCount         *int64
}

// StateRepository persists DeviceRuntimeState rows.
type StateRepository interface {
	// LoadState returns the state row for a device.
	// Returns ErrStateNotFound if no row exists.
	LoadState(ctx context.Context, deviceID string) (*DeviceRuntimeState, error)

	// SaveState applies a partial-field update to the state row and
	// bumps updated_at. Returns ErrStateNotFound if no row exists.
	SaveState(ctx context.Context, deviceID string, update StateUpdate) error

	// SetReachable atomically flips is_reachable to the given value only
	// if it currently holds the opposite value, and reports whether this
	// caller performed the flip. The poll path and the staleness sweep
	// race on this column; rows-affected decides who emits the
	// connectivity event.
	SetReachable(ctx context.Context, deviceID string, reachable bool) (bool, error)

	// EnsureState creates the default state row for a device if none
	// exists (not running, reachable, zero seconds). Idempotent.
	EnsureState(ctx context.Context, deviceID string) error

	// ListStaleDevices returns IDs of devices still marked reachable
	// whose last_seen_at is older than the cutoff. Input to the
	// staleness sweep.
	ListStaleDevices(ctx context.Context, olderThan time.Time) ([]string, error)
}

// SessionRepository persists completed sessions, append-only.
type SessionRepository interface {
	// InsertSession writes one completed session. A duplicate insert for
	// the same (device_id, started_at) returns ErrDuplicateSession so
	// callers can distinguish it from success without duplicating rows.
	InsertSession(ctx context.Context, session *Session) error
}

// FingerprintRepository persists the last-emitted payload fingerprint
// per device.
type FingerprintRepository interface {
	// LoadFingerprint returns the stored fingerprint for a device, or
	// nil (no error) when none has been recorded yet.
	LoadFingerprint(ctx context.Context, deviceID string) (*EmittedFingerprint, error)

	// SaveFingerprint upserts the fingerprint row for a device.
	SaveFingerprint(ctx context.Context, fp *EmittedFingerprint) error
}

// EventSink delivers one event downstream. At-least-once; the engine
// must not assume ordering across separate calls.
type EventSink interface {
	DeliverEvent(ctx context.Context, event *Event) error
}
