package handler

import (
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/roostlabs/roost/internal/geofence"
	restTypes "github.com/roostlabs/roost/internal/rest/types"
	"github.com/uptrace/bunrouter"
	"go.uber.org/zap"
)

// LocationHandler feeds position fixes into the geofence monitor.
type LocationHandler struct {
	monitor *geofence.Monitor
	logger  *zap.Logger
}

// NewLocationHandler creates a new location handler.
func NewLocationHandler(monitor *geofence.Monitor, logger *zap.Logger) *LocationHandler {
	return &LocationHandler{
		monitor: monitor,
		logger:  logger,
	}
}

// ReportLocation handles POST /v1/location.
func (h *LocationHandler) ReportLocation(w http.ResponseWriter, req bunrouter.Request) error {
	var body restTypes.LocationRequest
	if err := sonic.ConfigDefault.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return nil
	}

	if body.Position.Lat < -90 || body.Position.Lat > 90 ||
		body.Position.Lng < -180 || body.Position.Lng > 180 {
		http.Error(w, "Position out of range", http.StatusBadRequest)
		return nil
	}

	h.monitor.ReportPosition(body.Position)

	return bunrouter.JSON(w, h.monitorResponse())
}

// RefreshGeofences handles POST /v1/geofences/refresh.
func (h *LocationHandler) RefreshGeofences(w http.ResponseWriter, _ bunrouter.Request) error {
	h.monitor.Refresh()
	return bunrouter.JSON(w, h.monitorResponse())
}

func (h *LocationHandler) monitorResponse() restTypes.MonitorResponse {
	return restTypes.MonitorResponse{
		WatchedGroups: h.monitor.WatchedGroupIDs(),
		Degraded:      h.monitor.Degraded(),
	}
}
