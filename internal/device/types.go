package device

import "time"

// Device represents a registered climate-control device whose runtime
// the engine tracks. This matches the devices table in the initial schema
// migration.
type Device struct {
	// Identity
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	Name   string `json:"name"`

	// Classification
	EquipmentType EquipmentType `json:"equipment_type"`

	// Enabled controls whether the poller samples this device.
	// Disabled devices keep their state and session history.
	Enabled bool `json:"enabled"`

	// Timestamps
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Copy returns an independent copy of the Device.
// Devices contain only value fields, so a shallow copy is complete.
// Kept as a method so cache isolation reads the same at call sites
// regardless of future field additions.
func (d *Device) Copy() *Device {
	if d == nil {
		return nil
	}
	cpy := *d
	return &cpy
}

// EquipmentType represents the kind of climate equipment behind a device.
type EquipmentType string

// EquipmentType constants.
const (
	EquipmentFurnace  EquipmentType = "furnace"
	EquipmentHeatPump EquipmentType = "heat_pump"
	EquipmentAC       EquipmentType = "ac"
	EquipmentBoiler   EquipmentType = "boiler"
)

// AllEquipmentTypes returns all valid equipment type values.
func AllEquipmentTypes() []EquipmentType {
	return []EquipmentType{
		EquipmentFurnace, EquipmentHeatPump, EquipmentAC, EquipmentBoiler,
	}
}
