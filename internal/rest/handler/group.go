package handler

import (
	"net/http"
	"sort"

	"github.com/roostlabs/roost/internal/presence"
	"github.com/roostlabs/roost/internal/rest/convert"
	restTypes "github.com/roostlabs/roost/internal/rest/types"
	"github.com/uptrace/bunrouter"
	"go.uber.org/zap"
)

// GroupHandler handles queries about the agent's tracked groups.
type GroupHandler struct {
	engine        *presence.Engine
	hostMaxRadius float64
	logger        *zap.Logger
}

// NewGroupHandler creates a new group handler.
func NewGroupHandler(engine *presence.Engine, hostMaxRadius float64, logger *zap.Logger) *GroupHandler {
	return &GroupHandler{
		engine:        engine,
		hostMaxRadius: hostMaxRadius,
		logger:        logger,
	}
}

// GetGroups handles GET /v1/groups.
func (h *GroupHandler) GetGroups(w http.ResponseWriter, _ bunrouter.Request) error {
	groups := h.engine.RegisteredGroups()
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Name != groups[j].Name {
			return groups[i].Name < groups[j].Name
		}
		return groups[i].ID.String() < groups[j].ID.String()
	})

	response := restTypes.GetGroupsResponse{
		Groups: make([]restTypes.Group, 0, len(groups)),
	}
	for _, group := range groups {
		response.Groups = append(response.Groups, convert.Group(group, h.hostMaxRadius))
	}

	return bunrouter.JSON(w, response)
}
