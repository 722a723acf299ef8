// Package geofence monitors group boundaries and emits region transition
// events that drive automatic presence.
package geofence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/roostlabs/roost/internal/geo"
)

var ErrRegionNotWatched = errors.New("region is not being watched")

// Authorization represents the location permission granted to a watcher.
type Authorization int

const (
	// AuthorizationNone means no location access at all.
	AuthorizationNone Authorization = iota
	// AuthorizationWhileInUse allows location only in the foreground, which
	// is not enough for region monitoring.
	AuthorizationWhileInUse
	// AuthorizationAlways allows background region monitoring.
	AuthorizationAlways
)

// String returns the config spelling of the authorization level.
func (a Authorization) String() string {
	switch a {
	case AuthorizationAlways:
		return "always"
	case AuthorizationWhileInUse:
		return "while_in_use"
	default:
		return "none"
	}
}

// ParseAuthorization converts a config string to an Authorization level.
// Unknown values map to AuthorizationNone.
func ParseAuthorization(s string) Authorization {
	switch s {
	case "always":
		return AuthorizationAlways
	case "while_in_use":
		return AuthorizationWhileInUse
	default:
		return AuthorizationNone
	}
}

// EventKind distinguishes region entries from exits.
type EventKind int

const (
	RegionEntered EventKind = iota
	RegionExited
)

// String returns a short name for logging.
func (k EventKind) String() string {
	if k == RegionEntered {
		return "entered"
	}
	return "exited"
}

// Event is an asynchronous region transition notification.
type Event struct {
	GroupID uuid.UUID
	Kind    EventKind
}

// Region describes one monitored area. The circle (center plus radius) is
// what gets registered with the platform; the boundary, when it has enough
// points, refines enter/exit decisions to the actual polygon.
type Region struct {
	GroupID  uuid.UUID
	Center   geo.Point
	Radius   float64
	Boundary []geo.Point
}

// Watcher is the platform geofencing capability. Implementations deliver
// transition events asynchronously on the Events channel.
type Watcher interface {
	// CurrentAuthorization returns the permission level granted right now.
	CurrentAuthorization() Authorization
	// RequestAlwaysAuthorization asks the platform for background location
	// permission and returns the resulting level.
	RequestAlwaysAuthorization(ctx context.Context) (Authorization, error)
	// WatchRegion registers a region for enter/exit monitoring.
	WatchRegion(region Region) error
	// UnwatchRegion stops monitoring one region.
	UnwatchRegion(groupID uuid.UUID) error
	// UnwatchAll stops monitoring every region.
	UnwatchAll()
	// Events returns the stream of region transitions.
	Events() <-chan Event
}

// PositionReporter is implemented by watchers that evaluate regions from
// externally supplied position fixes.
type PositionReporter interface {
	ReportPosition(p geo.Point)
}
