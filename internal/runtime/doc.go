// Package runtime implements the per-device runtime and connectivity
// state engine for RunTrack Core.
//
// Each poll cycle takes one raw provider sample and derives three kinds
// of durable facts from it: the device's classified equipment state,
// its accumulated runtime session, and its reachability. Events are
// emitted only when something meaningful changed.
//
// Architecture:
//
//	┌────────────────────────────────────────────────────────┐
//	│                  Engine (engine.go)                     │
//	│  One Poll() per device per cycle                        │
//	│                                                         │
//	│  Sample ──▶ Classifier ──▶ Decide() ──▶ action          │
//	│   (raw)    (classifier.go) (accumulator.go)             │
//	│                                                         │
//	│  ┌─────────────────┐  ┌──────────────────┐             │
//	│  │ Connectivity    │  │ EventDecider     │             │
//	│  │ Tracker (CAS)   │  │ (fingerprint +   │             │
//	│  │ connectivity.go │  │  heartbeat)      │             │
//	│  └─────────────────┘  └──────────────────┘             │
//	│         │                      │                        │
//	│         ▼                      ▼                        │
//	│  StateRepository        EventSink + Fingerprint         │
//	│  SessionRepository      repository (SQLite)             │
//	└────────────────────────────────────────────────────────┘
//
// # Key Types
//
//   - Engine: per-poll orchestrator; returns an adaptive next-poll hint
//   - Classifier: raw equipment-status tokens → standardized state labels
//   - ConnectivityTracker: at-most-once reachability flips via atomic CAS
//   - EventDecider: steady-state dedup (fingerprint, heartbeat, temp tolerance)
//   - Session: append-only completed runtime interval with average telemetry
//
// # Accounting Rules
//
// Sessions accumulate clamped per-tick deltas: any single gap between
// ticks contributes at most MaxAccumulate seconds, so missed polls and
// process downtime cannot inflate totals. Mode changes mid-session end
// the current accounting window and start a new one. A device that goes
// unreachable mid-session has its session force-ended using time up to
// the last observed tick.
//
// # Thread Safety
//
// Engine holds no cross-device mutable state; polls for different
// devices may run concurrently. The staleness sweep and the poll path
// may race on one device's reachability; the repository's atomic flip
// guarantees exactly one of them reports the transition.
//
// # Usage
//
//	states := runtime.NewSQLiteStateRepository(db)
//	sessions := runtime.NewSQLiteSessionRepository(db)
//	fingerprints := runtime.NewSQLiteFingerprintRepository(db)
//
//	engine := runtime.NewEngine(source, states, sessions, fingerprints, sink, cfg)
//	engine.SetLogger(log)
//
//	delay, err := engine.Poll(ctx, dev)
package runtime
