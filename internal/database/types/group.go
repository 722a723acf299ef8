package types

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/roostlabs/roost/internal/geo"
)

var (
	ErrGroupNotFound  = errors.New("group not found")
	ErrNotGroupOwner  = errors.New("user is not the group owner")
	ErrMemberNotFound = errors.New("member not found in group")
)

// DefaultAutoCheckoutMinutes is the auto-checkout duration applied to
// groups that have not configured their own.
const DefaultAutoCheckoutMinutes = 60

// DisplayMode controls how a group's presence is shown to its members.
type DisplayMode string

const (
	// DisplayModeCount shows only how many members are present.
	DisplayModeCount DisplayMode = "count"
	// DisplayModeNames shows which members are present.
	DisplayModeNames DisplayMode = "names"
)

// Group represents a shared place whose boundary drives automatic presence.
type Group struct {
	ID                  uuid.UUID   `bun:",pk,type:uuid"                  json:"id"`
	Name                string      `bun:",notnull"                       json:"name"`
	OwnerID             string      `bun:",notnull"                       json:"ownerId"`
	Boundary            []geo.Point `bun:"type:jsonb,notnull"             json:"boundary"`
	DisplayMode         DisplayMode `bun:",notnull,default:'names'"       json:"displayMode"`
	AutoCheckoutMinutes int         `bun:",notnull,default:60"            json:"autoCheckoutMinutes"`
	CreatedAt           time.Time   `bun:",notnull,default:current_timestamp" json:"createdAt"`
	UpdatedAt           time.Time   `bun:",notnull,default:current_timestamp" json:"updatedAt"`
}

// Center calculates the boundary centroid.
func (g *Group) Center() geo.Point {
	return geo.Center(g.Boundary)
}

// MonitoringRadius calculates the geofence radius for the group's boundary,
// capped at hostMax.
func (g *Group) MonitoringRadius(hostMax float64) float64 {
	return geo.MonitoringRadius(g.Boundary, hostMax)
}

// AutoCheckoutDuration returns the group's auto-checkout timer duration,
// falling back to the default when unconfigured.
func (g *Group) AutoCheckoutDuration() time.Duration {
	minutes := g.AutoCheckoutMinutes
	if minutes <= 0 {
		minutes = DefaultAutoCheckoutMinutes
	}
	return time.Duration(minutes) * time.Minute
}

// GroupMember represents one user's membership in a group.
type GroupMember struct {
	GroupID     uuid.UUID `bun:",pk,type:uuid" json:"groupId"`
	UserID      string    `bun:",pk"           json:"userId"`
	DisplayName string    `bun:",notnull"      json:"displayName"`
	JoinedAt    time.Time `bun:",notnull,default:current_timestamp" json:"joinedAt"`
}
