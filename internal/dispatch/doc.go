// Package dispatch fans runtime engine events out to their consumers:
// the MQTT bus, the live WebSocket feed and the InfluxDB time-series
// store.
//
// Only MQTT participates in the delivery contract. The engine treats a
// failed DeliverEvent as a delivery failure; WebSocket and InfluxDB are
// best-effort observers that never block or fail it.
package dispatch
