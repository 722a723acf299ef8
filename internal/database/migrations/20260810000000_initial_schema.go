package migrations

import (
	"context"
	"fmt"

	"github.com/roostlabs/roost/internal/database/types"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		// Create core tables
		models := []any{
			(*types.Group)(nil),
			(*types.GroupMember)(nil),
			(*types.PresenceRecord)(nil),
		}

		for _, model := range models {
			_, err := db.NewCreateTable().
				Model(model).
				IfNotExists().
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("failed to create table for %T: %w", model, err)
			}
		}

		// Membership and presence rows follow their group's lifecycle
		constraints := []struct {
			table  string
			column string
		}{
			{"group_members", "group_id"},
			{"presence_records", "group_id"},
		}

		for _, c := range constraints {
			_, err := db.NewRaw(fmt.Sprintf(`
				ALTER TABLE %s
				ADD CONSTRAINT %s_%s_fkey
				FOREIGN KEY (%s) REFERENCES groups (id)
				ON DELETE CASCADE
			`, c.table, c.table, c.column, c.column)).Exec(ctx)
			if err != nil {
				return fmt.Errorf("failed to add foreign key on %s: %w", c.table, err)
			}
		}

		// Indexes for the hot query paths
		indexes := []string{
			`CREATE INDEX IF NOT EXISTS idx_group_members_user
				ON group_members (user_id)`,
			`CREATE INDEX IF NOT EXISTS idx_presence_records_present
				ON presence_records (group_id) WHERE is_present`,
			`CREATE INDEX IF NOT EXISTS idx_presence_records_stale
				ON presence_records (last_updated) WHERE is_present`,
		}

		for _, idx := range indexes {
			if _, err := db.NewRaw(idx).Exec(ctx); err != nil {
				return fmt.Errorf("failed to create index: %w", err)
			}
		}

		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		tables := []string{"presence_records", "group_members", "groups"}
		for _, table := range tables {
			_, err := db.NewRaw(fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", table)).Exec(ctx)
			if err != nil {
				return fmt.Errorf("failed to drop table %s: %w", table, err)
			}
		}
		return nil
	})
}
