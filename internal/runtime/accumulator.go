package runtime

import "time"

// Action is the session transition the accumulator decides for one sample.
type Action int

// Accumulator actions.
const (
	// ActionNone: idle before, idle now. Nothing to account.
	ActionNone Action = iota

	// ActionStart: equipment became active. seconds=0, started_at=now.
	ActionStart

	// ActionTick: still active in the same mode. Accumulate the clamped
	// delta since the last tick. Ticks never emit events.
	ActionTick

	// ActionModeSwitch: still active but the mode changed. The current
	// accounting window ends with its accumulated seconds and a new one
	// starts immediately for the new mode.
	ActionModeSwitch

	// ActionEnd: equipment went inactive. Accumulate the final delta,
	// persist the session, reset state.
	ActionEnd
)

// String returns a label for logging.
func (a Action) String() string {
	switch a {
	case ActionStart:
		return "start"
	case ActionTick:
		return "tick"
	case ActionModeSwitch:
		return "mode_switch"
	case ActionEnd:
		return "end"
	default:
		return "none"
	}
}

// Decide is the pure decision table over (wasRunning, activeNow,
// modeChanged). modeChanged is only meaningful when both running flags
// are true.
func Decide(wasRunning, activeNow, modeChanged bool) Action {
	switch {
	case !wasRunning && !activeNow:
		return ActionNone
	case !wasRunning && activeNow:
		return ActionStart
	case wasRunning && activeNow && !modeChanged:
		return ActionTick
	case wasRunning && activeNow && modeChanged:
		return ActionModeSwitch
	default: // wasRunning && !activeNow
		return ActionEnd
	}
}

// TickDelta computes the seconds contributed by one tick, clamped to
// [0, maxAccumulate]. The clamp bounds the contribution of any single
// gap (missed polls, process downtime); it does not bound total session
// length. A nil lastTick means the row never ticked, so the delta is 0
// rather than an error.
func TickDelta(now time.Time, lastTick *time.Time, maxAccumulate time.Duration) int64 {
	if lastTick == nil {
		return 0
	}

	delta := now.Sub(*lastTick)
	if delta < 0 {
		return 0
	}
	if delta > maxAccumulate {
		delta = maxAccumulate
	}
	return int64(delta.Seconds())
}
