package mqtt

import "fmt"

// Topic prefixes for the Runtrack MQTT hierarchy.
//
// Downstream consumers subscribe to runtrack/events/... for the engine's
// runtime, connectivity and state-update events. System topics carry the
// service's own online/offline status.
const (
	// TopicPrefixEvents is the base for all engine-emitted events.
	TopicPrefixEvents = "runtrack/events"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "runtrack/system"
)

// Topics provides builders for Runtrack MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	topic := topics.DeviceEvent("therm-8821", "session_end")
//	// Returns: "runtrack/events/therm-8821/session_end"
type Topics struct{}

// DeviceEvent returns the topic for a single engine event.
// The event type segment is the lowercased event type label
// (session_start, session_end, connectivity_change, state_update).
//
// Example: runtrack/events/therm-8821/session_end
func (Topics) DeviceEvent(deviceID, eventType string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefixEvents, deviceID, eventType)
}

// DeviceEvents returns a pattern matching every event for one device.
//
// Pattern: runtrack/events/therm-8821/+
func (Topics) DeviceEvents(deviceID string) string {
	return fmt.Sprintf("%s/%s/+", TopicPrefixEvents, deviceID)
}

// AllEvents returns a pattern matching every emitted event.
//
// Pattern: runtrack/events/+/+
func (Topics) AllEvents() string {
	return fmt.Sprintf("%s/+/+", TopicPrefixEvents)
}

// SystemStatus returns the system status topic.
//
// Example: runtrack/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}
