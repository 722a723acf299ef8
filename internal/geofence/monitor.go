package geofence

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/roostlabs/roost/internal/database/types"
	"github.com/roostlabs/roost/internal/geo"
	"go.uber.org/zap"
)

// MaxWatchedRegions caps how many regions are registered at once. Platforms
// limit concurrent geofences, so the monitor watches only the nearest groups.
const MaxWatchedRegions = 20

// Monitor owns the watch set: it selects which group regions to register
// based on the current position and re-registers them as groups or position
// change. Without background location permission it runs degraded and
// registers nothing, leaving manual presence fully functional.
type Monitor struct {
	watcher       Watcher
	hostMaxRadius float64
	logger        *zap.Logger

	mu           sync.Mutex
	groups       []*types.Group
	lastPosition *geo.Point
	degraded     bool
	started      bool
}

// NewMonitor creates a monitor wrapping the given watcher. hostMaxRadius
// caps region radii; zero means the host imposes no limit.
func NewMonitor(watcher Watcher, hostMaxRadius float64, logger *zap.Logger) *Monitor {
	return &Monitor{
		watcher:       watcher,
		hostMaxRadius: hostMaxRadius,
		logger:        logger.Named("geofence_monitor"),
	}
}

// Start requests background location permission and enters degraded mode
// when it is not granted. It never fails: presence continues manual-only.
func (m *Monitor) Start(ctx context.Context) {
	auth, err := m.watcher.RequestAlwaysAuthorization(ctx)
	if err != nil {
		m.logger.Warn("Authorization request failed, running manual-only", zap.Error(err))
		auth = m.watcher.CurrentAuthorization()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.started = true
	m.degraded = auth != AuthorizationAlways

	if m.degraded {
		m.logger.Warn("Background location not granted, geofencing disabled",
			zap.String("authorization", auth.String()))
		return
	}

	m.refreshLocked()
}

// Degraded reports whether the monitor is running without geofencing.
func (m *Monitor) Degraded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.degraded
}

// SetGroups replaces the group set and re-registers the watch set.
func (m *Monitor) SetGroups(groups []*types.Group) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.groups = groups
	m.refreshLocked()
}

// ReportPosition records a new position fix, re-selects the nearest regions
// and forwards the fix to position-fed watchers.
func (m *Monitor) ReportPosition(p geo.Point) {
	m.mu.Lock()
	m.lastPosition = &p
	m.refreshLocked()
	reporter, ok := m.watcher.(PositionReporter)
	m.mu.Unlock()

	// Forward outside the lock: the watcher emits events synchronously
	if ok {
		reporter.ReportPosition(p)
	}
}

// Refresh re-runs region selection against the current groups and position.
func (m *Monitor) Refresh() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshLocked()
}

// Stop removes every registered region.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watcher.UnwatchAll()
}

// refreshLocked re-registers the watch set: all regions are stopped, then
// the selected ones started. Partial updates are never attempted.
func (m *Monitor) refreshLocked() {
	if !m.started || m.degraded {
		return
	}

	selected := m.selectRegionsLocked()

	m.watcher.UnwatchAll()
	for _, region := range selected {
		if err := m.watcher.WatchRegion(region); err != nil {
			m.logger.Error("Failed to watch region",
				zap.String("groupId", region.GroupID.String()),
				zap.Error(err))
		}
	}

	m.logger.Debug("Re-registered watch set",
		zap.Int("groups", len(m.groups)),
		zap.Int("watched", len(selected)))
}

// selectRegionsLocked builds regions for the nearest groups, at most
// MaxWatchedRegions of them. Without a position fix the group order is kept.
func (m *Monitor) selectRegionsLocked() []Region {
	regions := make([]Region, 0, len(m.groups))
	for _, group := range m.groups {
		regions = append(regions, Region{
			GroupID:  group.ID,
			Center:   group.Center(),
			Radius:   group.MonitoringRadius(m.hostMaxRadius),
			Boundary: group.Boundary,
		})
	}

	if m.lastPosition != nil {
		pos := *m.lastPosition
		sort.SliceStable(regions, func(i, j int) bool {
			return geo.Distance(regions[i].Center, pos) < geo.Distance(regions[j].Center, pos)
		})
	}

	if len(regions) > MaxWatchedRegions {
		regions = regions[:MaxWatchedRegions]
	}
	return regions
}

// WatchedGroupIDs returns the IDs of the currently selected regions, in
// selection order. Mostly useful for diagnostics.
func (m *Monitor) WatchedGroupIDs() []uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()

	selected := m.selectRegionsLocked()
	ids := make([]uuid.UUID, len(selected))
	for i, region := range selected {
		ids[i] = region.GroupID
	}
	return ids
}
