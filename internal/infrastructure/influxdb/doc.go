// Package influxdb provides InfluxDB connectivity for Runtrack Core.
//
// It wraps the official influxdb-client-go v2 library with Runtrack-specific
// patterns for connection management, telemetry writing, and health monitoring.
//
// # Purpose
//
// This package handles time-series data storage for:
//   - Polled device samples (temperature, humidity, equipment state)
//   - Completed runtime sessions (runtime seconds per mode)
//   - Connectivity transitions (reachable/unreachable step series)
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    URL:    "http://localhost:8086",
//	    Token:  "your-token",
//	    Org:    "runtrack",
//	    Bucket: "telemetry",
//	}
//
//	client, err := influxdb.Connect(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteSampleTelemetry("therm-8821", "heat", "heat1", 20.5, 41.0, time.Now())
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are logged via a callback.
// Connection and health check errors are returned directly.
//
// # Performance
//
// Writes are batched according to config.yaml settings (batch_size, flush_interval).
// This reduces network overhead for high-frequency telemetry data.
package influxdb
