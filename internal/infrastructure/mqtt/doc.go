// Package mqtt provides MQTT client connectivity for Runtrack Core.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Event publishing with QoS guarantees
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// Runtrack publishes engine events (session starts and ends, connectivity
// changes, state updates) to the broker for downstream consumers such as
// notification services and dashboards. The engine never consumes inbound
// MQTT traffic; device samples arrive over the provider HTTP API.
//
//	Runtrack Core → MQTT Broker → Downstream consumers
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Performance Characteristics
//
//   - Connection: <1 second to local broker
//   - Publish latency: <10ms for QoS 1 to local broker
//   - Reconnect: Exponential backoff 1s-60s with jitter
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	topic := mqtt.Topics{}.DeviceEvent("therm-8821", "session_end")
//	client.Publish(topic, payload, 1, false)
package mqtt
