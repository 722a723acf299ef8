package presence

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/google/uuid"
	"github.com/roostlabs/roost/internal/database/types"
	"github.com/roostlabs/roost/internal/geofence"
	"go.uber.org/zap"
)

// ErrGroupNotRegistered indicates an operation referenced a group the engine
// is not tracking.
var ErrGroupNotRegistered = errors.New("group not registered with engine")

// Synchronizer persists presence writes for the local user and propagates
// them to other members.
type Synchronizer interface {
	Write(ctx context.Context, groupID uuid.UUID, isPresent bool, isManual bool) error
}

// Engine reconciles geofence events, manual actions, and timer expiries into
// presence writes for the local user. Manual actions set a per-group override
// that region events must respect until the matching boundary crossing
// clears it.
type Engine struct {
	userID      string
	displayName string

	remote   Synchronizer
	store    *Store
	timers   *TimerManager
	throttle *Throttle
	clock    quartz.Clock
	logger   *zap.Logger

	// baseCtx bounds writes triggered by timer expiry, which have no caller
	baseCtx context.Context

	mu     sync.RWMutex
	groups map[uuid.UUID]*types.Group
	states map[uuid.UUID]*groupState
}

// groupState carries the reconciliation state for one group. Its mutex
// serializes transitions, including the remote write each one performs.
type groupState struct {
	mu       sync.Mutex
	state    State
	override *bool
}

// NewEngine creates a reconciliation engine for the given user.
func NewEngine(
	ctx context.Context, userID string, displayName string,
	remote Synchronizer, store *Store, clock quartz.Clock, logger *zap.Logger,
) *Engine {
	log := logger.Named("presence_engine")
	return &Engine{
		userID:      userID,
		displayName: displayName,
		remote:      remote,
		store:       store,
		timers:      NewTimerManager(clock, log),
		throttle:    NewThrottle(clock),
		clock:       clock,
		logger:      log,
		baseCtx:     ctx,
		groups:      make(map[uuid.UUID]*types.Group),
		states:      make(map[uuid.UUID]*groupState),
	}
}

// RegisterGroup starts tracking a group. Re-registering replaces the stored
// group definition but preserves any reconciliation state.
func (e *Engine) RegisterGroup(group *types.Group) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.groups[group.ID] = group
	if _, ok := e.states[group.ID]; !ok {
		e.states[group.ID] = &groupState{state: StateUnknown}
	}
}

// UnregisterGroup stops tracking a group, cancelling any pending
// auto-checkout timer and dropping cached state.
func (e *Engine) UnregisterGroup(groupID uuid.UUID) {
	e.mu.Lock()
	delete(e.groups, groupID)
	delete(e.states, groupID)
	e.mu.Unlock()

	e.timers.Cancel(groupID)
	e.throttle.Forget(groupID)
	e.store.Remove(groupID)
}

// Group returns the stored definition for a tracked group.
func (e *Engine) Group(groupID uuid.UUID) (*types.Group, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	group, ok := e.groups[groupID]
	return group, ok
}

// RegisteredGroups returns the groups the engine is tracking.
func (e *Engine) RegisteredGroups() []*types.Group {
	e.mu.RLock()
	defer e.mu.RUnlock()

	groups := make([]*types.Group, 0, len(e.groups))
	for _, group := range e.groups {
		groups = append(groups, group)
	}
	return groups
}

// ManualCheckIn checks the user into a group by explicit action. It sets the
// manual override, writes immediately, and starts the auto-checkout timer,
// replacing any pending one.
func (e *Engine) ManualCheckIn(ctx context.Context, groupID uuid.UUID) error {
	state, group, ok := e.lookup(groupID)
	if !ok {
		return ErrGroupNotRegistered
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	state.override = boolPtr(true)
	state.state = StateInManual

	e.timers.Start(groupID, group.AutoCheckoutDuration(), func() {
		e.handleTimerExpiry(groupID)
	})

	if err := e.remote.Write(ctx, groupID, true, true); err != nil {
		return err
	}
	e.throttle.Record(groupID)

	e.logger.Info("Manual check-in",
		zap.String("groupId", groupID.String()),
		zap.Duration("autoCheckout", group.AutoCheckoutDuration()))
	return nil
}

// ManualCheckOut checks the user out of a group by explicit action. It sets
// the override to suppress re-entry, cancels the auto-checkout timer, and
// writes immediately.
func (e *Engine) ManualCheckOut(ctx context.Context, groupID uuid.UUID) error {
	state, _, ok := e.lookup(groupID)
	if !ok {
		return ErrGroupNotRegistered
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	state.override = boolPtr(false)
	state.state = StateOut

	e.timers.Cancel(groupID)

	if err := e.remote.Write(ctx, groupID, false, true); err != nil {
		return err
	}
	e.throttle.Record(groupID)

	e.logger.Info("Manual check-out", zap.String("groupId", groupID.String()))
	return nil
}

// HandleRegionEvent reconciles a geofence boundary crossing. Events for
// groups the engine is not tracking are dropped.
func (e *Engine) HandleRegionEvent(ctx context.Context, event geofence.Event) {
	switch event.Kind {
	case geofence.RegionEntered:
		e.handleRegionEntered(ctx, event.GroupID)
	case geofence.RegionExited:
		e.handleRegionExited(ctx, event.GroupID)
	default:
		e.logger.Warn("Unknown region event kind",
			zap.String("groupId", event.GroupID.String()),
			zap.Int("kind", int(event.Kind)))
	}
}

// ConsumeEvents reconciles region events from the channel until it closes or
// the context is cancelled.
func (e *Engine) ConsumeEvents(ctx context.Context, events <-chan geofence.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			e.HandleRegionEvent(ctx, event)
		}
	}
}

func (e *Engine) handleRegionEntered(ctx context.Context, groupID uuid.UUID) {
	state, _, ok := e.lookup(groupID)
	if !ok {
		e.logger.Debug("Region entry for untracked group", zap.String("groupId", groupID.String()))
		return
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	switch {
	case state.override != nil && *state.override:
		// Physical entry confirms the manual check-in, so automatic
		// tracking takes over and the timer is no longer needed
		e.timers.Cancel(groupID)
		state.override = nil
		state.state = StateInAuto

		if err := e.remote.Write(ctx, groupID, true, false); err != nil {
			e.logger.Error("Failed to write automatic check-in",
				zap.Error(err),
				zap.String("groupId", groupID.String()))
			return
		}
		e.throttle.Record(groupID)

		e.logger.Info("Region entry absorbed manual check-in", zap.String("groupId", groupID.String()))

	case state.override != nil && !*state.override:
		// Manually checked out, entry alone must not undo it
		e.logger.Debug("Region entry suppressed by manual check-out",
			zap.String("groupId", groupID.String()))

	default:
		state.state = StateInAuto

		if !e.throttle.Allow(groupID) {
			e.logger.Debug("Region entry write throttled", zap.String("groupId", groupID.String()))
			return
		}
		if err := e.remote.Write(ctx, groupID, true, false); err != nil {
			e.logger.Error("Failed to write automatic check-in",
				zap.Error(err),
				zap.String("groupId", groupID.String()))
			return
		}

		e.logger.Info("Automatic check-in", zap.String("groupId", groupID.String()))
	}
}

func (e *Engine) handleRegionExited(ctx context.Context, groupID uuid.UUID) {
	state, _, ok := e.lookup(groupID)
	if !ok {
		e.logger.Debug("Region exit for untracked group", zap.String("groupId", groupID.String()))
		return
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	if state.override != nil && *state.override {
		// Manually checked in, only the timer or another manual action
		// ends the visit
		e.logger.Debug("Region exit suppressed by manual check-in",
			zap.String("groupId", groupID.String()))
		return
	}

	// Leaving the boundary completes a manual check-out, after which
	// automatic tracking resumes
	state.override = nil
	state.state = StateOut

	if !e.throttle.Allow(groupID) {
		e.logger.Debug("Region exit write throttled", zap.String("groupId", groupID.String()))
		return
	}
	if err := e.remote.Write(ctx, groupID, false, false); err != nil {
		e.logger.Error("Failed to write automatic check-out",
			zap.Error(err),
			zap.String("groupId", groupID.String()))
		return
	}

	e.logger.Info("Automatic check-out", zap.String("groupId", groupID.String()))
}

// handleTimerExpiry runs when a group's auto-checkout timer fires. The timer
// manager already dropped the registration, so a concurrent manual action is
// the only race left and the state check settles it.
func (e *Engine) handleTimerExpiry(groupID uuid.UUID) {
	state, _, ok := e.lookup(groupID)
	if !ok {
		return
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	if state.state != StateInManual {
		e.logger.Debug("Timer expiry after state change", zap.String("groupId", groupID.String()))
		return
	}

	state.override = nil
	state.state = StateOut

	if err := e.remote.Write(e.baseCtx, groupID, false, false); err != nil {
		e.logger.Error("Failed to write timed check-out",
			zap.Error(err),
			zap.String("groupId", groupID.String()))
		return
	}
	e.throttle.Record(groupID)

	e.logger.Info("Auto-checkout timer expired", zap.String("groupId", groupID.String()))
}

// ForceCheckout checks the user out unconditionally. Stale record detection
// uses it when the user's own presence has exceeded the maximum duration.
func (e *Engine) ForceCheckout(ctx context.Context, groupID uuid.UUID) error {
	state, _, ok := e.lookup(groupID)
	if !ok {
		return ErrGroupNotRegistered
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	e.timers.Cancel(groupID)
	state.override = nil
	state.state = StateOut

	if err := e.remote.Write(ctx, groupID, false, false); err != nil {
		return err
	}
	e.throttle.Record(groupID)

	e.logger.Info("Forced check-out", zap.String("groupId", groupID.String()))
	return nil
}

// ApplyRemoteUpdate replaces the cached member list for a group with the
// given records, filtering out stale entries. Finding the user's own record
// stale forces a checkout so the write path clears it remotely too.
func (e *Engine) ApplyRemoteUpdate(ctx context.Context, groupID uuid.UUID, records []*types.PresenceRecord) {
	now := e.clock.Now()
	fresh, stale := SplitStale(records, now, types.MaxPresenceDuration)

	members := make([]Member, 0, len(fresh))
	for _, record := range fresh {
		if !record.IsPresent || record.UserID == "" {
			continue
		}
		members = append(members, Member{
			UserID:      record.UserID,
			DisplayName: record.DisplayName,
			LastUpdated: record.LastUpdated,
		})
	}
	e.store.SetSummary(groupID, members)

	for _, record := range stale {
		if record.UserID != e.userID {
			continue
		}
		e.logger.Warn("Own presence record went stale, forcing check-out",
			zap.String("groupId", groupID.String()),
			zap.Time("lastUpdated", record.LastUpdated))
		if err := e.ForceCheckout(ctx, groupID); err != nil && !errors.Is(err, ErrGroupNotRegistered) {
			e.logger.Error("Failed to force check-out for stale record",
				zap.Error(err),
				zap.String("groupId", groupID.String()))
		}
	}
}

// PresenceSummary returns the cached member list for a group.
func (e *Engine) PresenceSummary(groupID uuid.UUID) (Summary, bool) {
	return e.store.Summary(groupID)
}

// IsUserPresent reports whether the cached summary lists the user as present
// in the group.
func (e *Engine) IsUserPresent(groupID uuid.UUID, userID string) bool {
	return e.store.IsPresent(groupID, userID)
}

// RemainingAutoCheckout reports the time left on the group's auto-checkout
// timer, if one is pending.
func (e *Engine) RemainingAutoCheckout(groupID uuid.UUID) (time.Duration, bool) {
	return e.timers.Remaining(groupID)
}

// GroupState returns the reconciliation state for a group.
func (e *Engine) GroupState(groupID uuid.UUID) State {
	state, _, ok := e.lookup(groupID)
	if !ok {
		return StateUnknown
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	return state.state
}

// Stop cancels all pending timers.
func (e *Engine) Stop() {
	e.timers.CancelAll()
}

func (e *Engine) lookup(groupID uuid.UUID) (*groupState, *types.Group, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	state, ok := e.states[groupID]
	if !ok {
		return nil, nil, false
	}
	return state, e.groups[groupID], true
}

func boolPtr(v bool) *bool {
	return &v
}
