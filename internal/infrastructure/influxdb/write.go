package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteSampleTelemetry writes one polled device sample to InfluxDB.
//
// This is the primary telemetry path: the poller records every sample it
// pulls from the provider so dashboards can chart ambient conditions
// alongside the engine's session history. The write is non-blocking; data
// is batched and sent asynchronously.
//
// Parameters:
//   - deviceID: Device identifier (e.g., "therm-8821")
//   - mode: Thermostat mode at sample time (heat, cool, auto, off)
//   - equipmentState: Raw equipment state token from the provider
//   - temperature: Ambient temperature reading
//   - humidity: Relative humidity reading (percent)
//   - sampledAt: Provider-reported sample timestamp
func (c *Client) WriteSampleTelemetry(deviceID, mode, equipmentState string, temperature, humidity float64, sampledAt time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"device_samples",
		map[string]string{
			"device_id": deviceID,
			"mode":      mode,
			"state":     equipmentState,
		},
		map[string]interface{}{
			"temperature": temperature,
			"humidity":    humidity,
		},
		sampledAt,
	)

	c.writeAPI.WritePoint(point)
}

// WriteSessionRuntime writes a completed runtime session to InfluxDB.
//
// One point per finished session, stamped at the session end time. The
// runtime seconds field feeds daily/weekly runtime rollups; average
// ambient readings give context for efficiency analysis.
//
// Parameters:
//   - deviceID: Device identifier
//   - mode: Operating mode of the session (heating, cooling, fan)
//   - runtimeSeconds: Total accumulated runtime for the session
//   - avgTemperature: Mean temperature across the session's ticks
//   - endedAt: When the session ended
func (c *Client) WriteSessionRuntime(deviceID, mode string, runtimeSeconds int64, avgTemperature float64, endedAt time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"runtime_sessions",
		map[string]string{
			"device_id": deviceID,
			"mode":      mode,
		},
		map[string]interface{}{
			"runtime_seconds": runtimeSeconds,
			"avg_temperature": avgTemperature,
		},
		endedAt,
	)

	c.writeAPI.WritePoint(point)
}

// WriteConnectivityChange writes a reachability transition to InfluxDB.
//
// Recorded as 1 (came online) or 0 (went offline) so availability can be
// graphed as a step function per device.
func (c *Client) WriteConnectivityChange(deviceID string, reachable bool, at time.Time) {
	if !c.IsConnected() {
		return
	}

	value := 0
	if reachable {
		value = 1
	}

	point := write.NewPoint(
		"connectivity",
		map[string]string{
			"device_id": deviceID,
		},
		map[string]interface{}{
			"reachable": value,
		},
		at,
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//
// Example:
//
//	client.WritePoint("system_stats",
//	    map[string]string{"host": "core-01"},
//	    map[string]interface{}{"cpu_percent": 45.2, "memory_mb": 512})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
