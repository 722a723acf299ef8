package geofence_test

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/roostlabs/roost/internal/database/types"
	"github.com/roostlabs/roost/internal/geo"
	"github.com/roostlabs/roost/internal/geofence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeWatcher records watch set changes without any platform behind it.
type fakeWatcher struct {
	granted geofence.Authorization
	authErr error
	events  chan geofence.Event

	mu      sync.Mutex
	watched map[uuid.UUID]geofence.Region
}

func newFakeWatcher(granted geofence.Authorization) *fakeWatcher {
	return &fakeWatcher{
		granted: granted,
		events:  make(chan geofence.Event, 1),
		watched: make(map[uuid.UUID]geofence.Region),
	}
}

func (w *fakeWatcher) CurrentAuthorization() geofence.Authorization {
	return w.granted
}

func (w *fakeWatcher) RequestAlwaysAuthorization(context.Context) (geofence.Authorization, error) {
	if w.authErr != nil {
		return geofence.AuthorizationNone, w.authErr
	}
	return w.granted, nil
}

func (w *fakeWatcher) WatchRegion(region geofence.Region) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.watched[region.GroupID] = region
	return nil
}

func (w *fakeWatcher) UnwatchRegion(groupID uuid.UUID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.watched, groupID)
	return nil
}

func (w *fakeWatcher) UnwatchAll() {
	w.mu.Lock()
	defer w.mu.Unlock()
	clear(w.watched)
}

func (w *fakeWatcher) Events() <-chan geofence.Event {
	return w.events
}

func (w *fakeWatcher) region(groupID uuid.UUID) (geofence.Region, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	region, ok := w.watched[groupID]
	return region, ok
}

func (w *fakeWatcher) watchedCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.watched)
}

// testGroup builds a group with a small triangular boundary around the
// given coordinate.
func testGroup(name string, lat, lng float64) *types.Group {
	return &types.Group{
		ID:   uuid.New(),
		Name: name,
		Boundary: []geo.Point{
			{Lat: lat - 0.001, Lng: lng - 0.001},
			{Lat: lat + 0.001, Lng: lng - 0.001},
			{Lat: lat, Lng: lng + 0.001},
		},
		DisplayMode:         types.DisplayModeNames,
		AutoCheckoutMinutes: 60,
	}
}

func TestMonitorWatchesGroups(t *testing.T) {
	t.Parallel()

	watcher := newFakeWatcher(geofence.AuthorizationAlways)
	monitor := geofence.NewMonitor(watcher, 0, zap.NewNop())
	monitor.Start(t.Context())
	require.False(t, monitor.Degraded())

	groups := []*types.Group{
		testGroup("a", 37.775, -122.419),
		testGroup("b", 37.780, -122.419),
		testGroup("c", 37.785, -122.419),
	}
	monitor.SetGroups(groups)
	assert.Equal(t, 3, watcher.watchedCount())

	// Regions carry the derived geometry, not the raw group
	region, ok := watcher.region(groups[0].ID)
	require.True(t, ok)
	assert.Equal(t, groups[0].Center(), region.Center)
	assert.InDelta(t, groups[0].MonitoringRadius(0), region.Radius, 0.001)
	assert.Equal(t, groups[0].Boundary, region.Boundary)

	// Dropping groups shrinks the watch set
	monitor.SetGroups(groups[:1])
	assert.Equal(t, 1, watcher.watchedCount())
}

func TestMonitorDegradedWithoutBackgroundAuth(t *testing.T) {
	t.Parallel()

	watcher := newFakeWatcher(geofence.AuthorizationWhileInUse)
	monitor := geofence.NewMonitor(watcher, 0, zap.NewNop())
	monitor.Start(t.Context())

	assert.True(t, monitor.Degraded())

	monitor.SetGroups([]*types.Group{testGroup("a", 37.775, -122.419)})
	assert.Zero(t, watcher.watchedCount(), "degraded mode registers nothing")
}

func TestMonitorAuthRequestFailure(t *testing.T) {
	t.Parallel()

	watcher := newFakeWatcher(geofence.AuthorizationNone)
	watcher.authErr = assert.AnError
	monitor := geofence.NewMonitor(watcher, 0, zap.NewNop())
	monitor.Start(t.Context())

	assert.True(t, monitor.Degraded())
}

func TestMonitorCapsWatchedRegions(t *testing.T) {
	t.Parallel()

	watcher := newFakeWatcher(geofence.AuthorizationAlways)
	monitor := geofence.NewMonitor(watcher, 0, zap.NewNop())
	monitor.Start(t.Context())

	// Groups laid out in a line heading north, nearest first
	groups := make([]*types.Group, 0, geofence.MaxWatchedRegions+5)
	for i := range geofence.MaxWatchedRegions + 5 {
		groups = append(groups, testGroup("g", 37.775+float64(i)*0.01, -122.419))
	}
	monitor.SetGroups(groups)
	monitor.ReportPosition(geo.Point{Lat: 37.775, Lng: -122.419})

	assert.Equal(t, geofence.MaxWatchedRegions, watcher.watchedCount())

	// The five farthest groups lost out
	for _, group := range groups[geofence.MaxWatchedRegions:] {
		_, ok := watcher.region(group.ID)
		assert.False(t, ok)
	}

	ids := monitor.WatchedGroupIDs()
	require.Len(t, ids, geofence.MaxWatchedRegions)
	assert.Equal(t, groups[0].ID, ids[0], "selection is ordered nearest first")
}

func TestMonitorPositionReordersSelection(t *testing.T) {
	t.Parallel()

	watcher := newFakeWatcher(geofence.AuthorizationAlways)
	monitor := geofence.NewMonitor(watcher, 0, zap.NewNop())
	monitor.Start(t.Context())

	north := testGroup("north", 37.900, -122.419)
	south := testGroup("south", 37.700, -122.419)
	monitor.SetGroups([]*types.Group{north, south})

	monitor.ReportPosition(geo.Point{Lat: 37.701, Lng: -122.419})
	assert.Equal(t, south.ID, monitor.WatchedGroupIDs()[0])

	monitor.ReportPosition(geo.Point{Lat: 37.899, Lng: -122.419})
	assert.Equal(t, north.ID, monitor.WatchedGroupIDs()[0])
}

func TestMonitorHostMaxRadiusCap(t *testing.T) {
	t.Parallel()

	watcher := newFakeWatcher(geofence.AuthorizationAlways)
	monitor := geofence.NewMonitor(watcher, 200, zap.NewNop())
	monitor.Start(t.Context())

	// Boundary around two kilometers across, well past the host cap
	group := &types.Group{
		ID:   uuid.New(),
		Name: "big",
		Boundary: []geo.Point{
			{Lat: 37.765, Lng: -122.429},
			{Lat: 37.785, Lng: -122.429},
			{Lat: 37.775, Lng: -122.409},
		},
	}
	monitor.SetGroups([]*types.Group{group})

	region, ok := watcher.region(group.ID)
	require.True(t, ok)
	assert.InDelta(t, 200, region.Radius, 0.001)
}

func TestMonitorStop(t *testing.T) {
	t.Parallel()

	watcher := newFakeWatcher(geofence.AuthorizationAlways)
	monitor := geofence.NewMonitor(watcher, 0, zap.NewNop())
	monitor.Start(t.Context())
	monitor.SetGroups([]*types.Group{testGroup("a", 37.775, -122.419)})
	require.Equal(t, 1, watcher.watchedCount())

	monitor.Stop()
	assert.Zero(t, watcher.watchedCount())
}

func TestMonitorForwardsPositionToWatcher(t *testing.T) {
	t.Parallel()

	// A position-fed watcher behind the monitor turns fixes into events
	watcher := geofence.NewPositionWatcher(geofence.AuthorizationAlways, zap.NewNop())
	monitor := geofence.NewMonitor(watcher, 0, zap.NewNop())
	monitor.Start(t.Context())

	group := testGroup("home", 37.775, -122.419)
	monitor.SetGroups([]*types.Group{group})

	monitor.ReportPosition(geo.Point{Lat: 37.775, Lng: -122.4195})
	ev := nextEvent(t, watcher)
	assert.Equal(t, group.ID, ev.GroupID)
	assert.Equal(t, geofence.RegionEntered, ev.Kind)
}
