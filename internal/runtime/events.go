package runtime

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// EventType identifies what an emitted event reports.
type EventType string

// Event types. SessionTick exists for completeness of the taxonomy but
// is internal-only: ticks accumulate locally and are never emitted, so
// event volume scales with state changes rather than poll frequency.
const (
	EventSessionStart       EventType = "SESSION_START"
	EventSessionTick        EventType = "SESSION_TICK"
	EventSessionEnd         EventType = "SESSION_END"
	EventConnectivityChange EventType = "CONNECTIVITY_CHANGE"
	EventStateUpdate        EventType = "STATE_UPDATE"
)

// Event is the outbound payload contract. RuntimeSeconds is populated
// only on SESSION_END; nil everywhere else, since a partial total is
// meaningless before completion.
type Event struct {
	DeviceID       string    `json:"device_id"`
	UserID         string    `json:"user_id"`
	Type           EventType `json:"event_type"`
	EquipmentState string    `json:"equipment_state"`
	PreviousState  string    `json:"previous_state,omitempty"`
	IsActive       bool      `json:"is_active"`
	IsReachable    bool      `json:"is_reachable"`
	Mode           Mode      `json:"mode,omitempty"`
	RuntimeSeconds *int64    `json:"runtime_seconds,omitempty"`
	Telemetry      Telemetry `json:"telemetry"`
	ObservedAt     time.Time `json:"observed_at"`
	EventID        string    `json:"event_id"`
}

// GenerateEventID returns a unique identifier for one emitted event.
// Consumers treat duplicate IDs as safe to ignore, which makes
// at-least-once delivery idempotent downstream.
func GenerateEventID() string {
	return uuid.New().String()
}

// Fingerprint hashes the non-volatile fields of an event payload.
// Runtime seconds, timestamps, telemetry readings and the event ID are
// excluded: they change on nearly every poll and would defeat dedup.
func Fingerprint(e *Event) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%t|%t",
		e.DeviceID,
		e.EquipmentState,
		e.Mode,
		e.IsActive,
		e.IsReachable,
	)
	return hex.EncodeToString(h.Sum(nil))
}

// EventDecider decides whether a steady-state sample warrants a
// STATE_UPDATE emission. Connectivity and session transitions bypass it:
// those always emit.
type EventDecider struct {
	// heartbeat is the maximum time between emissions for an otherwise
	// unchanged device. Guards downstream consumers against silent
	// staleness.
	heartbeat time.Duration

	// tempTolerance is the temperature movement that counts as a
	// significant change on its own.
	tempTolerance float64
}

// NewEventDecider creates a decider with the given heartbeat interval
// and temperature tolerance.
func NewEventDecider(heartbeat time.Duration, tempTolerance float64) *EventDecider {
	return &EventDecider{
		heartbeat:     heartbeat,
		tempTolerance: tempTolerance,
	}
}

// ShouldEmitStateUpdate reports whether a non-transition sample must be
// emitted. True when:
//   - no fingerprint has ever been recorded for the device, or
//   - the payload fingerprint changed, or
//   - the heartbeat interval elapsed since the last emission, or
//   - temperature moved by at least the tolerance since the last emission.
func (d *EventDecider) ShouldEmitStateUpdate(last *EmittedFingerprint, candidate string, temperature *float64, now time.Time) bool {
	if last == nil {
		return true
	}
	if candidate != last.Fingerprint {
		return true
	}
	if now.Sub(last.EmittedAt) >= d.heartbeat {
		return true
	}
	if temperature != nil && last.LastTemperature != nil &&
		math.Abs(*temperature-*last.LastTemperature) >= d.tempTolerance {
		return true
	}
	return false
}
