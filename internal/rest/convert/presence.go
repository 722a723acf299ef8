package convert

import (
	dbTypes "github.com/roostlabs/roost/internal/database/types"
	"github.com/roostlabs/roost/internal/presence"
	restTypes "github.com/roostlabs/roost/internal/rest/types"
)

// Presence converts a presence summary to its REST representation,
// applying the group's display mode. Groups in count mode expose only the
// number of present members.
func Presence(group *dbTypes.Group, summary presence.Summary) restTypes.GetPresenceResponse {
	response := restTypes.GetPresenceResponse{
		GroupID:     summary.GroupID,
		Count:       summary.Count(),
		DisplayMode: string(group.DisplayMode),
	}

	if group.DisplayMode == dbTypes.DisplayModeCount {
		return response
	}

	response.Members = make([]restTypes.Member, 0, len(summary.Members))
	for _, member := range summary.Members {
		response.Members = append(response.Members, restTypes.Member{
			UserID:      member.UserID,
			DisplayName: member.DisplayName,
			LastUpdated: member.LastUpdated,
		})
	}
	return response
}
