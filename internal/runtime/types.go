package runtime

import "time"

// Mode identifies which equipment category an active session belongs to.
type Mode string

// Mode constants, in classification priority order.
const (
	ModeAuxHeat Mode = "auxheat"
	ModeCooling Mode = "cooling"
	ModeHeating Mode = "heating"
	ModeFanOnly Mode = "fanonly"
)

// ClassifiedStatus is the classifier's view of one raw equipment-status
// string. Pure data, computed and discarded per call.
type ClassifiedStatus struct {
	// Active reports whether any equipment is running.
	Active bool

	// Mode is the dominant equipment category. Empty when idle.
	Mode Mode

	// State is the standardized state label, e.g. "cooling_with_fan".
	State string
}

// Telemetry carries the optional ambient readings attached to a sample.
type Telemetry struct {
	Temperature        *float64 `json:"temperature,omitempty"`
	Humidity           *float64 `json:"humidity,omitempty"`
	HeatSetpoint       *float64 `json:"heat_setpoint,omitempty"`
	CoolSetpoint       *float64 `json:"cool_setpoint,omitempty"`
	OutdoorTemperature *float64 `json:"outdoor_temperature,omitempty"`
}

// Sample is one raw poll observation for one device. Ephemeral; only
// derived fields are ever persisted.
type Sample struct {
	DeviceID        string
	EquipmentStatus string
	Reachable       bool
	Telemetry       Telemetry

	// Revision is an opaque change token from the provider. When it
	// matches the persisted token the provider-side state is unchanged.
	Revision string

	// ObservedAt is when the provider reports the sample was taken.
	ObservedAt time.Time
}

// DeviceRuntimeState is the per-device state row owned exclusively by
// the engine. One row per device, mutated only through StateRepository.
//
// Invariant: IsRunning == true iff SessionStartedAt != nil.
// SessionSeconds is monotonically non-decreasing within a session and
// reset to 0 exactly at session start.
type DeviceRuntimeState struct {
	DeviceID           string
	IsRunning          bool
	SessionStartedAt   *time.Time
	LastTickAt         *time.Time
	SessionSeconds     int64
	LastMode           Mode // empty when never run
	LastEquipmentState string
	IsReachable        bool
	LastSeenAt         *time.Time
	LastRevision       string

	// Telemetry accumulators for the current session, used to compute
	// the session's average readings at end.
	TempSum     float64
	HumiditySum float64
	SampleCount int64

	UpdatedAt time.Time
}

// Session is one completed runtime interval. Append-only: written
// exactly once at session end, never mutated afterward.
type Session struct {
	DeviceID       string    `json:"device_id"`
	UserID         string    `json:"user_id"`
	StartedAt      time.Time `json:"started_at"`
	EndedAt        time.Time `json:"ended_at"`
	RuntimeSeconds int64     `json:"runtime_seconds"`
	Mode           Mode      `json:"mode"`
	EquipmentType  string    `json:"equipment_type"`
	AvgTemperature *float64  `json:"avg_temperature,omitempty"`
	AvgHumidity    *float64  `json:"avg_humidity,omitempty"`
}

// EmittedFingerprint records the content hash of the last emitted event
// payload per device, with the volatile fields excluded, plus the
// temperature carried by that emission. Drives steady-state dedup.
type EmittedFingerprint struct {
	DeviceID        string
	Fingerprint     string
	EmittedAt       time.Time
	LastTemperature *float64
}

// DeviceInfo is the slice of device identity the engine needs to build
// sessions and event payloads. Callers map their device records onto it.
type DeviceInfo struct {
	ID            string
	UserID        string
	EquipmentType string
}
