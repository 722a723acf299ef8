package types

import (
	"time"

	"github.com/google/uuid"
	"github.com/roostlabs/roost/internal/geo"
)

// Member is one present member of a group.
type Member struct {
	UserID      string    `json:"userId"`
	DisplayName string    `json:"displayName"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// GetPresenceResponse reports who is present in a group. Members is omitted
// for groups in count display mode.
type GetPresenceResponse struct {
	GroupID     uuid.UUID `json:"groupId"`
	Count       int       `json:"count"`
	DisplayMode string    `json:"displayMode"`
	Members     []Member  `json:"members,omitempty"`
}

// CheckActionResponse reports the reconciliation state after a manual
// check-in or check-out.
type CheckActionResponse struct {
	GroupID                 uuid.UUID `json:"groupId"`
	State                   string    `json:"state"`
	AutoCheckoutRemainingMs int64     `json:"autoCheckoutRemainingMs,omitempty"`
}

// GetTimerResponse reports the pending auto-checkout timer for a group.
type GetTimerResponse struct {
	GroupID     uuid.UUID `json:"groupId"`
	Pending     bool      `json:"pending"`
	RemainingMs int64     `json:"remainingMs"`
}

// MemberPresenceResponse answers whether one member is currently present.
type MemberPresenceResponse struct {
	GroupID   uuid.UUID `json:"groupId"`
	UserID    string    `json:"userId"`
	IsPresent bool      `json:"isPresent"`
}

// Group describes a tracked group.
type Group struct {
	ID                  uuid.UUID `json:"id"`
	Name                string    `json:"name"`
	DisplayMode         string    `json:"displayMode"`
	AutoCheckoutMinutes int       `json:"autoCheckoutMinutes"`
	Center              geo.Point `json:"center"`
	MonitoringRadius    float64   `json:"monitoringRadius"`
}

// GetGroupsResponse lists the groups the agent is tracking.
type GetGroupsResponse struct {
	Groups []Group `json:"groups"`
}

// LocationRequest carries a position fix into the geofence monitor.
type LocationRequest struct {
	Position geo.Point `json:"position"`
}

// MonitorResponse reports the geofence monitor's state after a position fix
// or a manual refresh.
type MonitorResponse struct {
	WatchedGroups []uuid.UUID `json:"watchedGroups"`
	Degraded      bool        `json:"degraded"`
}
