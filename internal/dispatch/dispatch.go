package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmcalloway/runtrack-core/internal/infrastructure/mqtt"
	"github.com/jmcalloway/runtrack-core/internal/runtime"
)

// Logger defines the logging interface used by the Dispatcher.
type Logger interface {
	Debug(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Error(string, ...any) {}

// Publisher pushes one payload to the message bus. Implemented by the
// MQTT client.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Broadcaster fans a payload out to live WebSocket subscribers.
// Implemented by the API hub.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// TelemetryWriter records event-derived points in the time-series
// store. Implemented by the InfluxDB client; all writes are
// non-blocking.
type TelemetryWriter interface {
	WriteSampleTelemetry(deviceID, mode, equipmentState string, temperature, humidity float64, sampledAt time.Time)
	WriteSessionRuntime(deviceID, mode string, runtimeSeconds int64, avgTemperature float64, endedAt time.Time)
	WriteConnectivityChange(deviceID string, reachable bool, at time.Time)
}

// Dispatcher implements runtime.EventSink by fanning each engine event
// out to MQTT, the WebSocket hub and InfluxDB.
//
// MQTT is the delivery contract: a publish failure fails DeliverEvent
// so the engine can report it. The hub and the time-series writes are
// best-effort extras; a missing or failing one never blocks delivery.
type Dispatcher struct {
	publisher   Publisher
	broadcaster Broadcaster
	telemetry   TelemetryWriter

	topics mqtt.Topics
	qos    byte
	logger Logger
}

// New creates a dispatcher. broadcaster and telemetry may be nil.
func New(publisher Publisher, broadcaster Broadcaster, telemetry TelemetryWriter, qos byte) *Dispatcher {
	return &Dispatcher{
		publisher:   publisher,
		broadcaster: broadcaster,
		telemetry:   telemetry,
		qos:         qos,
		logger:      noopLogger{},
	}
}

// SetLogger sets the logger for the dispatcher.
func (d *Dispatcher) SetLogger(logger Logger) {
	d.logger = logger
}

// DeliverEvent publishes one engine event.
func (d *Dispatcher) DeliverEvent(_ context.Context, event *runtime.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding event %s: %w", event.EventID, err)
	}

	topic := d.topics.DeviceEvent(event.DeviceID, strings.ToLower(string(event.Type)))
	if err := d.publisher.Publish(topic, payload, d.qos, false); err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}

	d.logger.Debug("event dispatched",
		"device_id", event.DeviceID,
		"event_type", string(event.Type),
		"topic", topic,
	)

	if d.broadcaster != nil {
		d.broadcaster.Broadcast("events", event)
	}
	if d.telemetry != nil {
		d.writeTelemetry(event)
	}

	return nil
}

// writeTelemetry maps one event onto time-series points.
func (d *Dispatcher) writeTelemetry(event *runtime.Event) {
	switch event.Type {
	case runtime.EventSessionEnd:
		if event.RuntimeSeconds == nil {
			return
		}
		avgTemp := 0.0
		if event.Telemetry.Temperature != nil {
			avgTemp = *event.Telemetry.Temperature
		}
		d.telemetry.WriteSessionRuntime(event.DeviceID, string(event.Mode),
			*event.RuntimeSeconds, avgTemp, event.ObservedAt)

	case runtime.EventConnectivityChange:
		d.telemetry.WriteConnectivityChange(event.DeviceID, event.IsReachable, event.ObservedAt)

	default:
		if event.Telemetry.Temperature == nil {
			return
		}
		humidity := 0.0
		if event.Telemetry.Humidity != nil {
			humidity = *event.Telemetry.Humidity
		}
		d.telemetry.WriteSampleTelemetry(event.DeviceID, string(event.Mode),
			event.EquipmentState, *event.Telemetry.Temperature, humidity, event.ObservedAt)
	}
}
