package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/roostlabs/roost/internal/database"
	"github.com/roostlabs/roost/internal/database/migrations"
	"github.com/roostlabs/roost/internal/database/types"
	"github.com/roostlabs/roost/internal/geo"
	"github.com/roostlabs/roost/internal/redis"
	"github.com/roostlabs/roost/internal/remote"
	"github.com/roostlabs/roost/internal/setup/config"
	"github.com/roostlabs/roost/internal/worker/core"
	"github.com/uptrace/bun/migrate"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

var (
	ErrNameRequired     = errors.New("NAME argument required")
	ErrFileRequired     = errors.New("FILE argument required")
	ErrGroupIDRequired  = errors.New("GROUP_ID argument required")
	ErrMemberRequired   = errors.New("GROUP_ID and USER_ID arguments required")
	ErrOwnerRequired    = errors.New("owner flag required")
	ErrBoundaryTooSmall = errors.New("boundary must have at least 3 points")
)

func main() {
	if err := run(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	// Setup dependencies
	db, migrator, cfg, logger, err := setupTool()
	if err != nil {
		return fmt.Errorf("failed to setup database tool: %w", err)
	}
	defer db.Close()

	app := &cli.Command{
		Name:  "db",
		Usage: "Database and group directory management tool",
		Commands: []*cli.Command{
			{
				Name:  "init",
				Usage: "Initialize migration tables",
				Action: func(ctx context.Context, _ *cli.Command) error {
					return migrator.Init(ctx)
				},
			},
			{
				Name:  "migrate",
				Usage: "Run pending migrations",
				Action: func(ctx context.Context, _ *cli.Command) error {
					if err := migrator.Lock(ctx); err != nil {
						return err
					}
					defer migrator.Unlock(ctx) //nolint:errcheck

					group, err := migrator.Migrate(ctx)
					if err != nil {
						return err
					}

					if group.IsZero() {
						logger.Info("No new migrations to run (database is up to date)")
						return nil
					}

					logger.Info("Successfully migrated",
						zap.String("group", group.String()),
					)
					return nil
				},
			},
			{
				Name:  "rollback",
				Usage: "Rollback the last migration group",
				Action: func(ctx context.Context, _ *cli.Command) error {
					if err := migrator.Lock(ctx); err != nil {
						return err
					}
					defer migrator.Unlock(ctx) //nolint:errcheck

					group, err := migrator.Rollback(ctx)
					if err != nil {
						return err
					}

					if group.IsZero() {
						logger.Info("No groups to roll back")
						return nil
					}

					logger.Info("Successfully rolled back",
						zap.String("group", group.String()),
					)
					return nil
				},
			},
			{
				Name:  "status",
				Usage: "Show migration status",
				Action: func(ctx context.Context, _ *cli.Command) error {
					ms, err := migrator.MigrationsWithStatus(ctx)
					if err != nil {
						return err
					}

					logger.Info("Migration status",
						zap.String("migrations", ms.String()),
						zap.String("unapplied", ms.Unapplied().String()),
						zap.String("last_group", ms.LastGroup().String()),
					)
					return nil
				},
			},
			{
				Name:      "create",
				Usage:     "Create a new Go migration file",
				ArgsUsage: "NAME",
				Action: func(ctx context.Context, c *cli.Command) error {
					if c.Args().Len() != 1 {
						return ErrNameRequired
					}

					mf, err := migrator.CreateGoMigration(ctx, c.Args().First())
					if err != nil {
						return err
					}

					logger.Info("Created Go migration",
						zap.String("name", mf.Name),
						zap.String("path", mf.Path),
					)
					return nil
				},
			},
			{
				Name:      "create-group",
				Usage:     "Create a group from a JSON definition file",
				ArgsUsage: "FILE",
				Action: func(ctx context.Context, c *cli.Command) error {
					if c.Args().Len() != 1 {
						return ErrFileRequired
					}
					return createGroup(ctx, db, cfg, logger, c.Args().First())
				},
			},
			{
				Name:      "update-group",
				Usage:     "Update a group's display mode and auto-checkout duration",
				ArgsUsage: "GROUP_ID",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "owner", Usage: "Owner user ID", Required: true},
					&cli.StringFlag{Name: "display-mode", Value: "names", Usage: "Display mode (names or count)"},
					&cli.IntFlag{Name: "auto-checkout", Value: types.DefaultAutoCheckoutMinutes, Usage: "Auto-checkout minutes"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					groupID, err := groupIDArg(c)
					if err != nil {
						return err
					}

					err = db.Model().Group().UpdateSettings(ctx, groupID, c.String("owner"),
						types.DisplayMode(c.String("display-mode")), c.Int("auto-checkout"))
					if err != nil {
						return err
					}

					publishGroupEvent(ctx, cfg, logger,
						remote.GroupEvent{GroupID: groupID, Action: remote.GroupUpdated})
					logger.Info("Updated group", zap.String("groupId", groupID.String()))
					return nil
				},
			},
			{
				Name:      "set-boundary",
				Usage:     "Replace a group's boundary from a JSON points file",
				ArgsUsage: "GROUP_ID FILE",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "owner", Usage: "Owner user ID", Required: true},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					if c.Args().Len() != 2 {
						return ErrGroupIDRequired
					}
					groupID, err := uuid.Parse(c.Args().First())
					if err != nil {
						return fmt.Errorf("invalid GROUP_ID: %w", err)
					}
					return setBoundary(ctx, db, cfg, logger, groupID, c.String("owner"), c.Args().Get(1))
				},
			},
			{
				Name:      "add-member",
				Usage:     "Add a member to a group",
				ArgsUsage: "GROUP_ID USER_ID DISPLAY_NAME",
				Action: func(ctx context.Context, c *cli.Command) error {
					if c.Args().Len() < 2 {
						return ErrMemberRequired
					}
					groupID, err := uuid.Parse(c.Args().First())
					if err != nil {
						return fmt.Errorf("invalid GROUP_ID: %w", err)
					}

					member := &types.GroupMember{
						GroupID:     groupID,
						UserID:      c.Args().Get(1),
						DisplayName: c.Args().Get(2),
						JoinedAt:    time.Now(),
					}
					if err := db.Model().Group().AddMember(ctx, member); err != nil {
						return err
					}

					publishGroupEvent(ctx, cfg, logger,
						remote.GroupEvent{GroupID: groupID, Action: remote.GroupMembersChanged})
					logger.Info("Added member",
						zap.String("groupId", groupID.String()),
						zap.String("userId", member.UserID))
					return nil
				},
			},
			{
				Name:      "remove-member",
				Usage:     "Remove a member from a group",
				ArgsUsage: "GROUP_ID USER_ID",
				Action: func(ctx context.Context, c *cli.Command) error {
					if c.Args().Len() != 2 {
						return ErrMemberRequired
					}
					groupID, err := uuid.Parse(c.Args().First())
					if err != nil {
						return fmt.Errorf("invalid GROUP_ID: %w", err)
					}

					if err := db.Model().Group().RemoveMember(ctx, groupID, c.Args().Get(1)); err != nil {
						return err
					}

					publishGroupEvent(ctx, cfg, logger,
						remote.GroupEvent{GroupID: groupID, Action: remote.GroupMembersChanged})
					logger.Info("Removed member",
						zap.String("groupId", groupID.String()),
						zap.String("userId", c.Args().Get(1)))
					return nil
				},
			},
			{
				Name:      "delete-group",
				Usage:     "Delete a group and its memberships",
				ArgsUsage: "GROUP_ID",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "owner", Usage: "Owner user ID", Required: true},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					groupID, err := groupIDArg(c)
					if err != nil {
						return err
					}

					if err := db.Model().Group().DeleteGroup(ctx, groupID, c.String("owner")); err != nil {
						return err
					}

					publishGroupEvent(ctx, cfg, logger,
						remote.GroupEvent{GroupID: groupID, Action: remote.GroupDeleted})
					logger.Info("Deleted group", zap.String("groupId", groupID.String()))
					return nil
				},
			},
			{
				Name:  "workers",
				Usage: "List registered workers and their health",
				Action: func(ctx context.Context, _ *cli.Command) error {
					return listWorkers(ctx, cfg, logger)
				},
			},
		},
	}

	return app.Run(context.Background(), os.Args)
}

// groupDefinition is the JSON shape accepted by create-group.
type groupDefinition struct {
	Name                string            `json:"name"`
	OwnerID             string            `json:"ownerId"`
	DisplayMode         types.DisplayMode `json:"displayMode"`
	AutoCheckoutMinutes int               `json:"autoCheckoutMinutes"`
	Boundary            []geo.Point       `json:"boundary"`
	Members             []struct {
		UserID      string `json:"userId"`
		DisplayName string `json:"displayName"`
	} `json:"members"`
}

func createGroup(
	ctx context.Context, db database.Client, cfg *config.Config, logger *zap.Logger, path string,
) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read group definition: %w", err)
	}

	var def groupDefinition
	if err := sonic.Unmarshal(data, &def); err != nil {
		return fmt.Errorf("failed to parse group definition: %w", err)
	}
	if len(def.Boundary) > 0 && len(def.Boundary) < 3 {
		return ErrBoundaryTooSmall
	}
	if def.OwnerID == "" {
		return ErrOwnerRequired
	}
	if def.DisplayMode == "" {
		def.DisplayMode = types.DisplayModeNames
	}
	if def.AutoCheckoutMinutes <= 0 {
		def.AutoCheckoutMinutes = types.DefaultAutoCheckoutMinutes
	}

	group := &types.Group{
		ID:                  uuid.New(),
		Name:                def.Name,
		OwnerID:             def.OwnerID,
		Boundary:            def.Boundary,
		DisplayMode:         def.DisplayMode,
		AutoCheckoutMinutes: def.AutoCheckoutMinutes,
	}
	if err := db.Model().Group().CreateGroup(ctx, group); err != nil {
		return err
	}

	// The owner is always a member
	owner := &types.GroupMember{GroupID: group.ID, UserID: def.OwnerID, JoinedAt: time.Now()}
	if err := db.Model().Group().AddMember(ctx, owner); err != nil {
		return fmt.Errorf("failed to add owner %s: %w", def.OwnerID, err)
	}

	added := 1
	for _, m := range def.Members {
		if m.UserID == def.OwnerID {
			continue
		}
		member := &types.GroupMember{
			GroupID:     group.ID,
			UserID:      m.UserID,
			DisplayName: m.DisplayName,
			JoinedAt:    time.Now(),
		}
		if err := db.Model().Group().AddMember(ctx, member); err != nil {
			return fmt.Errorf("failed to add member %s: %w", m.UserID, err)
		}
		added++
	}

	publishGroupEvent(ctx, cfg, logger,
		remote.GroupEvent{GroupID: group.ID, Action: remote.GroupCreated})
	logger.Info("Created group",
		zap.String("groupId", group.ID.String()),
		zap.String("name", group.Name),
		zap.Int("members", added))
	return nil
}

func setBoundary(
	ctx context.Context, db database.Client, cfg *config.Config, logger *zap.Logger,
	groupID uuid.UUID, ownerID string, path string,
) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read boundary file: %w", err)
	}

	var boundary []geo.Point
	if err := sonic.Unmarshal(data, &boundary); err != nil {
		return fmt.Errorf("failed to parse boundary file: %w", err)
	}
	if len(boundary) < 3 {
		return ErrBoundaryTooSmall
	}

	if err := db.Model().Group().UpdateBoundary(ctx, groupID, ownerID, boundary); err != nil {
		return err
	}

	publishGroupEvent(ctx, cfg, logger,
		remote.GroupEvent{GroupID: groupID, Action: remote.GroupUpdated})
	logger.Info("Updated boundary",
		zap.String("groupId", groupID.String()),
		zap.Int("points", len(boundary)))
	return nil
}

func listWorkers(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	manager := redis.NewManager(&cfg.Common.Redis, logger)
	defer manager.Close()

	client, err := manager.GetClient(redis.WorkerStatusDBIndex)
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	statuses, err := core.NewMonitor(client, logger).GetAllStatuses(ctx)
	if err != nil {
		return err
	}

	now := time.Now()
	for _, status := range statuses {
		logger.Info("Worker",
			zap.String("id", status.WorkerID),
			zap.String("type", status.WorkerType),
			zap.String("task", status.CurrentTask),
			zap.Int("progress", status.Progress),
			zap.Bool("healthy", status.IsHealthy),
			zap.Bool("stale", status.Stale(now)),
			zap.Time("lastSeen", status.LastSeen),
		)
	}
	if len(statuses) == 0 {
		logger.Info("No workers registered")
	}
	return nil
}

// publishGroupEvent announces a directory change. The mutation is already
// durable, so failures only delay agents until their next resync.
func publishGroupEvent(ctx context.Context, cfg *config.Config, logger *zap.Logger, event remote.GroupEvent) {
	manager := redis.NewManager(&cfg.Common.Redis, logger)
	defer manager.Close()

	client, err := manager.GetClient(redis.EventsDBIndex)
	if err != nil {
		logger.Warn("Failed to connect to Redis, agents will refresh on reconnect", zap.Error(err))
		return
	}

	if err := remote.PublishGroupEvent(ctx, client, event); err != nil {
		logger.Warn("Failed to publish group event", zap.Error(err))
	}
}

func groupIDArg(c *cli.Command) (uuid.UUID, error) {
	if c.Args().Len() != 1 {
		return uuid.Nil, ErrGroupIDRequired
	}

	groupID, err := uuid.Parse(c.Args().First())
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid GROUP_ID: %w", err)
	}
	return groupID, nil
}

// setupTool initializes the database connection and migrator.
func setupTool() (database.Client, *migrate.Migrator, *config.Config, *zap.Logger, error) {
	// Load full configuration
	cfg, _, err := config.LoadConfig()
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Create development logger
	logger, err := zap.NewDevelopment()
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}

	// Connect to database
	db, err := database.NewConnection(context.Background(), &cfg.Common.PostgreSQL, logger, false)
	if err != nil {
		return nil, nil, nil, logger, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Create migrator using database connection and migrations
	migrator := migrate.NewMigrator(db.DB(), migrations.Migrations)

	return db, migrator, cfg, logger, nil
}
