// Package convert maps internal types onto REST API response types.
package convert

import (
	dbTypes "github.com/roostlabs/roost/internal/database/types"
	restTypes "github.com/roostlabs/roost/internal/rest/types"
)

// Group converts a tracked group to its REST representation.
func Group(group *dbTypes.Group, hostMaxRadius float64) restTypes.Group {
	return restTypes.Group{
		ID:                  group.ID,
		Name:                group.Name,
		DisplayMode:         string(group.DisplayMode),
		AutoCheckoutMinutes: group.AutoCheckoutMinutes,
		Center:              group.Center(),
		MonitoringRadius:    group.MonitoringRadius(hostMaxRadius),
	}
}
