package device

import (
	"fmt"

	"github.com/google/uuid"
)

// Validation constants.
const (
	maxNameLength = 100
)

// validEquipmentTypes is a pre-computed set for O(1) lookups.
var validEquipmentTypes map[EquipmentType]struct{}

func init() {
	validEquipmentTypes = make(map[EquipmentType]struct{}, len(AllEquipmentTypes()))
	for _, t := range AllEquipmentTypes() {
		validEquipmentTypes[t] = struct{}{}
	}
}

// ValidateDevice performs comprehensive validation on a device.
// Returns an error describing the first validation failure found.
func ValidateDevice(d *Device) error {
	if d == nil {
		return ErrInvalidDevice
	}

	if err := ValidateName(d.Name); err != nil {
		return err
	}

	if d.UserID == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidUserID)
	}

	if err := ValidateEquipmentType(d.EquipmentType); err != nil {
		return err
	}

	return nil
}

// ValidateName checks that a device name is present and within length limits.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidName)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

// ValidateEquipmentType checks that an equipment type is one of the known values.
func ValidateEquipmentType(t EquipmentType) error {
	if _, ok := validEquipmentTypes[t]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidEquipmentType, t)
	}
	return nil
}

// GenerateID returns a new unique device identifier.
func GenerateID() string {
	return uuid.New().String()
}
