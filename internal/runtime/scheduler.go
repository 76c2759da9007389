package runtime

import "time"

// SchedulerConfig bounds the adaptive poll hint.
type SchedulerConfig struct {
	// Min and Max clamp every hint.
	Min time.Duration
	Max time.Duration

	// LongSessionThreshold is the continuous-session duration above
	// which polling urgency drops to medium.
	LongSessionThreshold time.Duration
}

// freshChangeWindow is how recently the device's state must have
// changed to count as freshly changed.
const freshChangeWindow = 5 * time.Minute

// NextPollDelay recommends how long the caller should wait before
// polling this device again. Pure and advisory: no side effects.
//
// Policy, most to least urgent:
//   - suspected mode transition (bare fan mid-session): shortest
//   - freshly changed state: short
//   - long-running continuous session: medium
//   - active session: short
//   - idle: long
//   - unreachable: longest
func NextPollDelay(st *DeviceRuntimeState, sinceLastChange time.Duration, suspectedTransition bool, cfg SchedulerConfig) time.Duration {
	span := cfg.Max - cfg.Min

	var delay time.Duration
	switch {
	case suspectedTransition:
		delay = cfg.Min
	case !st.IsReachable:
		delay = cfg.Max
	case sinceLastChange >= 0 && sinceLastChange < freshChangeWindow:
		delay = cfg.Min + span/8
	case st.IsRunning && cfg.LongSessionThreshold > 0 &&
		time.Duration(st.SessionSeconds)*time.Second >= cfg.LongSessionThreshold:
		delay = cfg.Min + span/2
	case st.IsRunning:
		delay = cfg.Min + span/8
	default:
		delay = cfg.Min + span*3/4
	}

	return clampDelay(delay, cfg.Min, cfg.Max)
}

func clampDelay(d, minD, maxD time.Duration) time.Duration {
	if d < minD {
		return minD
	}
	if d > maxD {
		return maxD
	}
	return d
}
