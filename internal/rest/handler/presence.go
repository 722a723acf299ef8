// Package handler implements the agent API endpoints.
package handler

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/roostlabs/roost/internal/presence"
	"github.com/roostlabs/roost/internal/rest/convert"
	restTypes "github.com/roostlabs/roost/internal/rest/types"
	"github.com/uptrace/bunrouter"
	"go.uber.org/zap"
)

// PresenceHandler handles check-in, check-out, and presence queries.
type PresenceHandler struct {
	engine *presence.Engine
	logger *zap.Logger
}

// NewPresenceHandler creates a new presence handler.
func NewPresenceHandler(engine *presence.Engine, logger *zap.Logger) *PresenceHandler {
	return &PresenceHandler{
		engine: engine,
		logger: logger,
	}
}

// CheckIn handles POST /v1/groups/:id/checkin.
func (h *PresenceHandler) CheckIn(w http.ResponseWriter, req bunrouter.Request) error {
	groupID, ok := parseGroupID(w, req)
	if !ok {
		return nil
	}

	if err := h.engine.ManualCheckIn(req.Context(), groupID); err != nil {
		if errors.Is(err, presence.ErrGroupNotRegistered) {
			http.Error(w, "Group not tracked", http.StatusNotFound)
			return nil
		}
		h.logger.Error("Failed to check in",
			zap.Error(err),
			zap.String("groupId", groupID.String()))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return nil
	}

	response := restTypes.CheckActionResponse{
		GroupID: groupID,
		State:   h.engine.GroupState(groupID).String(),
	}
	if remaining, pending := h.engine.RemainingAutoCheckout(groupID); pending {
		response.AutoCheckoutRemainingMs = remaining.Milliseconds()
	}
	return bunrouter.JSON(w, response)
}

// CheckOut handles POST /v1/groups/:id/checkout.
func (h *PresenceHandler) CheckOut(w http.ResponseWriter, req bunrouter.Request) error {
	groupID, ok := parseGroupID(w, req)
	if !ok {
		return nil
	}

	if err := h.engine.ManualCheckOut(req.Context(), groupID); err != nil {
		if errors.Is(err, presence.ErrGroupNotRegistered) {
			http.Error(w, "Group not tracked", http.StatusNotFound)
			return nil
		}
		h.logger.Error("Failed to check out",
			zap.Error(err),
			zap.String("groupId", groupID.String()))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return nil
	}

	return bunrouter.JSON(w, restTypes.CheckActionResponse{
		GroupID: groupID,
		State:   h.engine.GroupState(groupID).String(),
	})
}

// GetPresence handles GET /v1/groups/:id/presence.
func (h *PresenceHandler) GetPresence(w http.ResponseWriter, req bunrouter.Request) error {
	groupID, ok := parseGroupID(w, req)
	if !ok {
		return nil
	}

	group, ok := h.engine.Group(groupID)
	if !ok {
		http.Error(w, "Group not tracked", http.StatusNotFound)
		return nil
	}

	summary, ok := h.engine.PresenceSummary(groupID)
	if !ok {
		// No delivery yet, report an empty group rather than failing
		summary = presence.Summary{GroupID: groupID}
	}

	return bunrouter.JSON(w, convert.Presence(group, summary))
}

// GetMemberPresence handles GET /v1/groups/:id/members/:userID/presence.
func (h *PresenceHandler) GetMemberPresence(w http.ResponseWriter, req bunrouter.Request) error {
	groupID, ok := parseGroupID(w, req)
	if !ok {
		return nil
	}

	if _, ok := h.engine.Group(groupID); !ok {
		http.Error(w, "Group not tracked", http.StatusNotFound)
		return nil
	}

	userID := req.Param("userID")
	return bunrouter.JSON(w, restTypes.MemberPresenceResponse{
		GroupID:   groupID,
		UserID:    userID,
		IsPresent: h.engine.IsUserPresent(groupID, userID),
	})
}

// GetTimer handles GET /v1/groups/:id/checkout-timer.
func (h *PresenceHandler) GetTimer(w http.ResponseWriter, req bunrouter.Request) error {
	groupID, ok := parseGroupID(w, req)
	if !ok {
		return nil
	}

	if _, ok := h.engine.Group(groupID); !ok {
		http.Error(w, "Group not tracked", http.StatusNotFound)
		return nil
	}

	remaining, pending := h.engine.RemainingAutoCheckout(groupID)
	return bunrouter.JSON(w, restTypes.GetTimerResponse{
		GroupID:     groupID,
		Pending:     pending,
		RemainingMs: remaining.Milliseconds(),
	})
}

// parseGroupID extracts the group ID path parameter, writing a 400 response
// when it is not a valid UUID.
func parseGroupID(w http.ResponseWriter, req bunrouter.Request) (uuid.UUID, bool) {
	groupID, err := uuid.Parse(req.Param("id"))
	if err != nil {
		http.Error(w, "Invalid group ID", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return groupID, true
}
