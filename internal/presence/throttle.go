package presence

import (
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/google/uuid"
)

// Throttle rate-limits automatic presence writes per group. Manual and
// forced writes bypass the check but still record, so the window restarts
// from the most recent write of any kind.
type Throttle struct {
	clock quartz.Clock

	mu        sync.Mutex
	lastWrite map[uuid.UUID]time.Time
}

// NewThrottle creates a throttle driven by the given clock.
func NewThrottle(clock quartz.Clock) *Throttle {
	return &Throttle{
		clock:     clock,
		lastWrite: make(map[uuid.UUID]time.Time),
	}
}

// Allow reports whether an automatic write for the group may proceed and,
// when it may, records it. Writes are allowed once the full throttle window
// has elapsed since the last recorded write.
func (t *Throttle) Allow(groupID uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	if last, ok := t.lastWrite[groupID]; ok && now.Sub(last) < UpdateThrottle {
		return false
	}

	t.lastWrite[groupID] = now
	return true
}

// Record marks a write that bypassed the throttle so subsequent automatic
// writes measure their window from it.
func (t *Throttle) Record(groupID uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.lastWrite[groupID] = t.clock.Now()
}

// Forget drops the group's throttle state.
func (t *Throttle) Forget(groupID uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.lastWrite, groupID)
}
