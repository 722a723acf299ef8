package geofence

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/roostlabs/roost/internal/geo"
	"go.uber.org/zap"
)

// eventBuffer bounds the pending event queue. Events beyond it are dropped;
// reconciliation absorbs missed deliveries.
const eventBuffer = 64

// PositionWatcher is a software Watcher fed with position fixes. It decides
// enter and exit by testing each fix against the region's boundary polygon,
// falling back to the registered circle when the boundary is degenerate.
//
// Inside/outside state is remembered per group across re-registrations so
// that refreshing the watch set does not replay transition events.
type PositionWatcher struct {
	granted Authorization
	logger  *zap.Logger
	events  chan Event

	mu      sync.Mutex
	regions map[uuid.UUID]Region
	inside  map[uuid.UUID]bool
	lastFix *geo.Point
}

// NewPositionWatcher creates a watcher whose permission level mirrors what
// the deployment granted.
func NewPositionWatcher(granted Authorization, logger *zap.Logger) *PositionWatcher {
	return &PositionWatcher{
		granted: granted,
		logger:  logger.Named("position_watcher"),
		events:  make(chan Event, eventBuffer),
		regions: make(map[uuid.UUID]Region),
		inside:  make(map[uuid.UUID]bool),
	}
}

// CurrentAuthorization returns the granted permission level.
func (w *PositionWatcher) CurrentAuthorization() Authorization {
	return w.granted
}

// RequestAlwaysAuthorization reports the deployment's granted level. There
// is no interactive prompt to escalate it.
func (w *PositionWatcher) RequestAlwaysAuthorization(_ context.Context) (Authorization, error) {
	return w.granted, nil
}

// WatchRegion registers a region. When a fix is already known, the region's
// state is determined immediately: a first determination inside the region
// emits an entry event, mirroring how platforms deliver initial region state.
func (w *PositionWatcher) WatchRegion(region Region) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.regions[region.GroupID] = region

	if w.lastFix == nil {
		return nil
	}

	in := regionContains(region, *w.lastFix)
	prev, seen := w.inside[region.GroupID]
	w.inside[region.GroupID] = in

	switch {
	case !seen && in:
		w.emit(Event{GroupID: region.GroupID, Kind: RegionEntered})
	case seen && prev != in:
		kind := RegionExited
		if in {
			kind = RegionEntered
		}
		w.emit(Event{GroupID: region.GroupID, Kind: kind})
	}

	return nil
}

// UnwatchRegion stops monitoring one region.
func (w *PositionWatcher) UnwatchRegion(groupID uuid.UUID) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.regions[groupID]; !ok {
		return ErrRegionNotWatched
	}
	delete(w.regions, groupID)

	return nil
}

// UnwatchAll stops monitoring every region.
func (w *PositionWatcher) UnwatchAll() {
	w.mu.Lock()
	defer w.mu.Unlock()

	clear(w.regions)
}

// Events returns the stream of region transitions.
func (w *PositionWatcher) Events() <-chan Event {
	return w.events
}

// ReportPosition evaluates all watched regions against a new fix and emits
// transition events for every boundary crossing.
func (w *PositionWatcher) ReportPosition(p geo.Point) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.lastFix = &p

	for groupID, region := range w.regions {
		in := regionContains(region, p)
		prev, seen := w.inside[groupID]
		w.inside[groupID] = in

		switch {
		case !seen && in:
			w.emit(Event{GroupID: groupID, Kind: RegionEntered})
		case seen && prev != in:
			kind := RegionExited
			if in {
				kind = RegionEntered
			}
			w.emit(Event{GroupID: groupID, Kind: kind})
		}
	}
}

// emit delivers an event without blocking the caller.
func (w *PositionWatcher) emit(ev Event) {
	select {
	case w.events <- ev:
	default:
		w.logger.Warn("Dropped region event, consumer too slow",
			zap.String("groupId", ev.GroupID.String()),
			zap.String("kind", ev.Kind.String()))
	}
}

// regionContains tests a fix against a region, preferring the boundary
// polygon over the registered circle.
func regionContains(region Region, p geo.Point) bool {
	if len(region.Boundary) >= 3 {
		return geo.Contains(region.Boundary, p)
	}
	return geo.Distance(region.Center, p) <= region.Radius
}
