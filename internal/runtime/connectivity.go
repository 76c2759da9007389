package runtime

import (
	"context"
	"fmt"
)

// ConnectivityTracker decides reachability transitions. The flip itself
// is delegated to the state repository's atomic check-and-set so that
// the poll path and the staleness sweep, which race on the same row,
// report each actual transition at most once: only the caller whose
// UPDATE matched proceeds to emit the connectivity event.
type ConnectivityTracker struct {
	states StateRepository
}

// NewConnectivityTracker creates a tracker over the given state repository.
func NewConnectivityTracker(states StateRepository) *ConnectivityTracker {
	return &ConnectivityTracker{states: states}
}

// MarkReachable records that a sample explicitly reported the device
// reachable. Returns true only when this call performed the
// unreachable → reachable flip.
func (t *ConnectivityTracker) MarkReachable(ctx context.Context, deviceID string) (bool, error) {
	flipped, err := t.states.SetReachable(ctx, deviceID, true)
	if err != nil {
		return false, fmt.Errorf("marking reachable: %w", err)
	}
	return flipped, nil
}

// MarkUnreachable records that the device is unreachable, either from a
// sample explicitly reporting it or from the staleness sweep. Returns
// true only when this call performed the reachable → unreachable flip.
//
// Repeated unreachable samples while already marked unreachable return
// false: the transition has already been reported.
func (t *ConnectivityTracker) MarkUnreachable(ctx context.Context, deviceID string) (bool, error) {
	flipped, err := t.states.SetReachable(ctx, deviceID, false)
	if err != nil {
		return false, fmt.Errorf("marking unreachable: %w", err)
	}
	return flipped, nil
}
