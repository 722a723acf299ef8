// Package agent wires the presence engine, geofence monitor, and remote
// synchronizer into the long-running device agent.
package agent

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/google/uuid"
	"github.com/roostlabs/roost/internal/database/types"
	"github.com/roostlabs/roost/internal/geofence"
	"github.com/roostlabs/roost/internal/presence"
	"github.com/roostlabs/roost/internal/remote"
	"github.com/roostlabs/roost/internal/rest"
	"github.com/roostlabs/roost/internal/setup"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrUserNotConfigured indicates the agent config has no user identity.
var ErrUserNotConfigured = errors.New("agent user ID not configured")

// Server timeouts.
const (
	readTimeout     = 5 * time.Second
	writeTimeout    = 10 * time.Second
	shutdownTimeout = 10 * time.Second
)

// Agent runs presence reconciliation for one user on one device.
type Agent struct {
	app          *setup.App
	synchronizer *remote.Synchronizer
	store        *presence.Store
	logger       *zap.Logger

	engine  *presence.Engine
	watcher *geofence.PositionWatcher
	monitor *geofence.Monitor
	server  *http.Server

	runCtx context.Context
	cancel context.CancelFunc
	tasks  errgroup.Group

	mu            sync.Mutex
	subscriptions map[uuid.UUID]*remote.Subscription
	groupSub      *remote.Subscription
}

// New creates an agent from the initialized application bundle.
func New(app *setup.App) (*Agent, error) {
	user := app.Config.Agent.User
	if user.ID == "" {
		return nil, ErrUserNotConfigured
	}

	return &Agent{
		app:   app,
		store: presence.NewStore(),
		synchronizer: remote.NewSynchronizer(
			app.DB.Model().Presence(), app.EventsClient, user.ID, user.DisplayName, app.Logger,
		),
		logger:        app.Logger.Named("agent"),
		subscriptions: make(map[uuid.UUID]*remote.Subscription),
	}, nil
}

// Start brings up geofence monitoring, group subscriptions, and the local
// API server. It returns once everything is running.
func (a *Agent) Start(ctx context.Context) error {
	a.runCtx, a.cancel = context.WithCancel(ctx)

	user := a.app.Config.Agent.User
	geofenceCfg := a.app.Config.Agent.Geofence

	a.engine = presence.NewEngine(
		a.runCtx, user.ID, user.DisplayName,
		a.synchronizer, a.store, quartz.NewReal(), a.app.Logger,
	)

	granted := geofence.ParseAuthorization(geofenceCfg.Authorization)
	a.watcher = geofence.NewPositionWatcher(granted, a.app.Logger)
	a.monitor = geofence.NewMonitor(a.watcher, geofenceCfg.MaxRadius, a.app.Logger)
	a.monitor.Start(a.runCtx)

	a.tasks.Go(func() error {
		a.engine.ConsumeEvents(a.runCtx, a.watcher.Events())
		return nil
	})

	// Load groups synchronously so the API never serves an empty directory
	// on startup, then follow directory changes
	if err := a.refreshGroups(a.runCtx); err != nil {
		return err
	}
	a.groupSub = a.synchronizer.SubscribeGroupEvents(a.runCtx, a.handleGroupEvent)

	if err := a.startServer(); err != nil {
		return err
	}

	a.logger.Info("Agent started",
		zap.String("userId", user.ID),
		zap.String("listenAddr", a.app.Config.Agent.API.ListenAddr),
		zap.Bool("degraded", a.monitor.Degraded()))
	return nil
}

// Close shuts the agent down, stopping the API server, subscriptions,
// timers, and geofence monitoring.
func (a *Agent) Close() {
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := a.server.Shutdown(ctx); err != nil {
			a.logger.Error("API server forced to shutdown", zap.Error(err))
		}
	}

	if a.cancel != nil {
		a.cancel()
	}

	a.mu.Lock()
	for groupID, sub := range a.subscriptions {
		sub.Close()
		delete(a.subscriptions, groupID)
	}
	a.mu.Unlock()

	if a.groupSub != nil {
		a.groupSub.Close()
	}
	if a.engine != nil {
		a.engine.Stop()
	}
	if a.monitor != nil {
		a.monitor.Stop()
	}

	// Both the event consumer and the API server have been told to stop,
	// so this only waits for in-flight work to drain
	if err := a.tasks.Wait(); err != nil {
		a.logger.Error("Agent subsystem exited with error", zap.Error(err))
	}

	a.logger.Info("Agent stopped")
}

// handleGroupEvent refreshes the tracked groups whenever the directory
// changes or the subscription (re)connects.
func (a *Agent) handleGroupEvent(event remote.GroupEvent) {
	a.logger.Debug("Group directory event",
		zap.String("action", string(event.Action)),
		zap.String("groupId", event.GroupID.String()))

	if err := a.refreshGroups(a.runCtx); err != nil {
		a.logger.Error("Failed to refresh groups", zap.Error(err))
	}
}

// refreshGroups reloads the user's groups, reconciling engine registrations,
// per-group subscriptions, and watched geofence regions.
func (a *Agent) refreshGroups(ctx context.Context) error {
	groups, err := a.app.DB.Model().Group().GetGroupsForUser(ctx, a.app.Config.Agent.User.ID)
	if err != nil {
		return fmt.Errorf("failed to load groups: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	seen := make(map[uuid.UUID]struct{}, len(groups))
	for _, group := range groups {
		seen[group.ID] = struct{}{}
		a.engine.RegisterGroup(group)

		if _, ok := a.subscriptions[group.ID]; !ok {
			groupID := group.ID
			a.subscriptions[groupID] = a.synchronizer.Subscribe(a.runCtx, groupID,
				func(records []*types.PresenceRecord) {
					a.engine.ApplyRemoteUpdate(a.runCtx, groupID, records)
				})
		}
	}

	for groupID, sub := range a.subscriptions {
		if _, ok := seen[groupID]; ok {
			continue
		}
		sub.Close()
		delete(a.subscriptions, groupID)
		a.engine.UnregisterGroup(groupID)
	}

	a.monitor.SetGroups(groups)

	a.logger.Info("Refreshed tracked groups", zap.Int("count", len(groups)))
	return nil
}

// startServer binds the API listener and serves in the background. Binding
// synchronously surfaces address conflicts at startup.
func (a *Agent) startServer() error {
	apiConfig := a.app.Config.Agent.API
	handler := rest.NewServer(
		a.engine, a.monitor, &apiConfig,
		a.app.Config.Agent.Geofence.MaxRadius, a.app.Logger,
	)

	listener, err := net.Listen("tcp", apiConfig.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to bind API listener: %w", err)
	}

	a.server = &http.Server{
		Handler:      handler,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	a.tasks.Go(func() error {
		if err := a.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("API server failed: %w", err)
		}
		return nil
	})

	return nil
}
