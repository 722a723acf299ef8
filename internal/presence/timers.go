package presence

import (
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TimerManager schedules at most one auto-checkout timer per group.
// Starting a timer replaces any pending one, cancels are idempotent, and a
// firing that raced a cancel or replacement is defused by checking that its
// registration is still the current one.
type TimerManager struct {
	clock  quartz.Clock
	logger *zap.Logger

	mu     sync.Mutex
	gen    uint64
	timers map[uuid.UUID]*groupTimer
}

type groupTimer struct {
	timer    *quartz.Timer
	gen      uint64
	deadline time.Time
}

// NewTimerManager creates a timer manager driven by the given clock.
func NewTimerManager(clock quartz.Clock, logger *zap.Logger) *TimerManager {
	return &TimerManager{
		clock:  clock,
		logger: logger.Named("timers"),
		timers: make(map[uuid.UUID]*groupTimer),
	}
}

// Start schedules fire to run after d, replacing any pending timer for the
// group. fire runs on the clock's goroutine only if the registration is
// still current when the timer fires.
func (tm *TimerManager) Start(groupID uuid.UUID, d time.Duration, fire func()) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if existing, ok := tm.timers[groupID]; ok {
		existing.timer.Stop()
	}

	tm.gen++
	gen := tm.gen

	entry := &groupTimer{gen: gen, deadline: tm.clock.Now().Add(d)}
	entry.timer = tm.clock.AfterFunc(d, func() {
		// A cancel or replacement that raced this firing wins
		tm.mu.Lock()
		current, ok := tm.timers[groupID]
		if !ok || current.gen != gen {
			tm.mu.Unlock()
			return
		}
		delete(tm.timers, groupID)
		tm.mu.Unlock()

		fire()
	})
	tm.timers[groupID] = entry

	tm.logger.Debug("Started auto-checkout timer",
		zap.String("groupId", groupID.String()),
		zap.Duration("duration", d))
}

// Cancel stops the group's pending timer. Canceling a group without one is
// a no-op.
func (tm *TimerManager) Cancel(groupID uuid.UUID) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	entry, ok := tm.timers[groupID]
	if !ok {
		return
	}

	entry.timer.Stop()
	delete(tm.timers, groupID)

	tm.logger.Debug("Cancelled auto-checkout timer", zap.String("groupId", groupID.String()))
}

// Pending reports whether the group has a timer scheduled.
func (tm *TimerManager) Pending(groupID uuid.UUID) bool {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	_, ok := tm.timers[groupID]
	return ok
}

// Remaining reports the time left until the group's timer fires. The second
// return is false when no timer is scheduled.
func (tm *TimerManager) Remaining(groupID uuid.UUID) (time.Duration, bool) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	entry, ok := tm.timers[groupID]
	if !ok {
		return 0, false
	}

	remaining := entry.deadline.Sub(tm.clock.Now())
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true
}

// CancelAll stops every pending timer.
func (tm *TimerManager) CancelAll() {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	for groupID, entry := range tm.timers {
		entry.timer.Stop()
		delete(tm.timers, groupID)
	}
}
