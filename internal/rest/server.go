// Package rest implements the agent's local REST API.
package rest

import (
	"net/http"

	"github.com/klauspost/compress/gzhttp"
	"github.com/roostlabs/roost/internal/geofence"
	"github.com/roostlabs/roost/internal/presence"
	"github.com/roostlabs/roost/internal/rest/handler"
	"github.com/roostlabs/roost/internal/rest/middleware/auth"
	"github.com/roostlabs/roost/internal/setup/config"
	"github.com/uptrace/bunrouter"
	"go.uber.org/zap"
)

// Server implements the agent API service.
type Server struct {
	presenceHandler *handler.PresenceHandler
	groupHandler    *handler.GroupHandler
	locationHandler *handler.LocationHandler
}

// NewServer creates a new agent API server.
func NewServer(
	engine *presence.Engine, monitor *geofence.Monitor,
	apiConfig *config.API, hostMaxRadius float64, logger *zap.Logger,
) http.Handler {
	server := &Server{
		presenceHandler: handler.NewPresenceHandler(engine, logger),
		groupHandler:    handler.NewGroupHandler(engine, hostMaxRadius, logger),
		locationHandler: handler.NewLocationHandler(monitor, logger),
	}

	authMiddleware := auth.New(apiConfig.AuthToken, logger)

	router := bunrouter.New()

	router.Use(
		authMiddleware.AsRESTMiddleware,
	).WithGroup("/v1", func(g *bunrouter.Group) {
		g.GET("/groups", server.groupHandler.GetGroups)
		g.GET("/groups/:id/presence", server.presenceHandler.GetPresence)
		g.GET("/groups/:id/members/:userID/presence", server.presenceHandler.GetMemberPresence)
		g.GET("/groups/:id/checkout-timer", server.presenceHandler.GetTimer)
		g.POST("/groups/:id/checkin", server.presenceHandler.CheckIn)
		g.POST("/groups/:id/checkout", server.presenceHandler.CheckOut)
		g.POST("/location", server.locationHandler.ReportLocation)
		g.POST("/geofences/refresh", server.locationHandler.RefreshGeofences)
	})

	// Add gzip compression
	return gzhttp.GzipHandler(router)
}
