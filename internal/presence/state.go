// Package presence implements the reconciliation engine that merges manual
// check-ins, geofence transitions, timer expiries and remote deliveries into
// a consistent per-group presence state.
package presence

import "time"

// UpdateThrottle is the minimum spacing between automatic presence writes
// for the same group. Manual writes bypass it.
const UpdateThrottle = 30 * time.Second

// State is the reconciliation state of one group for the local user.
type State int

const (
	// StateUnknown means no signal has been processed for the group yet.
	StateUnknown State = iota
	// StateOut means the user is checked out.
	StateOut
	// StateInAuto means geofencing checked the user in.
	StateInAuto
	// StateInManual means the user checked in manually; an auto-checkout
	// timer is pending.
	StateInManual
)

// String returns a short name for logging.
func (s State) String() string {
	switch s {
	case StateOut:
		return "out"
	case StateInAuto:
		return "in_auto"
	case StateInManual:
		return "in_manual"
	default:
		return "unknown"
	}
}

// Present reports whether the state counts as checked in.
func (s State) Present() bool {
	return s == StateInAuto || s == StateInManual
}
