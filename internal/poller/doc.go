// Package poller schedules runtime engine polls across the device
// fleet.
//
// Two loops run under one Run call:
//
//   - The scheduler loop wakes on a fixed tick, finds devices whose
//     next-due time has arrived, and polls them through a bounded
//     errgroup worker pool. Each poll returns an adaptive delay hint
//     that becomes the device's next-due time, so busy devices are
//     polled often and idle ones rarely.
//   - The staleness sweep flags devices that have not produced a sample
//     within the configured threshold, force-ending any session the
//     engine still has open for them.
//
// The sweep and the scheduler may race on one device; the engine's
// atomic reachability flip guarantees the offline transition is
// reported exactly once.
package poller
