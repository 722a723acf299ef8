package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/roostlabs/roost/internal/database/dbretry"
	"github.com/roostlabs/roost/internal/database/types"
	"github.com/roostlabs/roost/internal/geo"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// GroupModel handles database operations for groups and their memberships.
type GroupModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewGroup creates a GroupModel.
func NewGroup(db *bun.DB, logger *zap.Logger) *GroupModel {
	return &GroupModel{
		db:     db,
		logger: logger.Named("db_group"),
	}
}

// CreateGroup inserts a new group, assigning an ID when none is set.
func (r *GroupModel) CreateGroup(ctx context.Context, group *types.Group) error {
	if group.ID == uuid.Nil {
		group.ID = uuid.New()
	}

	now := time.Now()
	group.CreatedAt = now
	group.UpdatedAt = now

	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := r.db.NewInsert().
			Model(group).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to create group: %w", err)
		}
		return nil
	})
}

// GetGroup retrieves a group by ID.
func (r *GroupModel) GetGroup(ctx context.Context, groupID uuid.UUID) (*types.Group, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (*types.Group, error) {
		group := new(types.Group)
		err := r.db.NewSelect().
			Model(group).
			Where("id = ?", groupID).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, types.ErrGroupNotFound
			}
			return nil, fmt.Errorf("failed to get group: %w", err)
		}
		return group, nil
	})
}

// GetGroupsForUser retrieves all groups the user is a member of.
func (r *GroupModel) GetGroupsForUser(ctx context.Context, userID string) ([]*types.Group, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]*types.Group, error) {
		var groups []*types.Group
		err := r.db.NewSelect().
			Model(&groups).
			Join(`JOIN group_members AS gm ON gm.group_id = "group".id`).
			Where("gm.user_id = ?", userID).
			Order("created_at ASC").
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get groups for user: %w", err)
		}
		return groups, nil
	})
}

// UpdateBoundary replaces a group's boundary. Only the owner may change it.
func (r *GroupModel) UpdateBoundary(
	ctx context.Context, groupID uuid.UUID, ownerID string, boundary []geo.Point,
) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		res, err := r.db.NewUpdate().
			Model((*types.Group)(nil)).
			Set("boundary = ?", boundary).
			Set("updated_at = ?", time.Now()).
			Where("id = ?", groupID).
			Where("owner_id = ?", ownerID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to update boundary: %w", err)
		}

		rows, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check boundary update: %w", err)
		}
		if rows == 0 {
			return types.ErrNotGroupOwner
		}
		return nil
	})
}

// UpdateSettings changes a group's display mode and auto-checkout duration.
// Only the owner may change them.
func (r *GroupModel) UpdateSettings(
	ctx context.Context, groupID uuid.UUID, ownerID string,
	displayMode types.DisplayMode, autoCheckoutMinutes int,
) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		res, err := r.db.NewUpdate().
			Model((*types.Group)(nil)).
			Set("display_mode = ?", displayMode).
			Set("auto_checkout_minutes = ?", autoCheckoutMinutes).
			Set("updated_at = ?", time.Now()).
			Where("id = ?", groupID).
			Where("owner_id = ?", ownerID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to update settings: %w", err)
		}

		rows, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check settings update: %w", err)
		}
		if rows == 0 {
			return types.ErrNotGroupOwner
		}
		return nil
	})
}

// DeleteGroup removes a group. Memberships and presence records follow
// through the cascade. Only the owner may delete.
func (r *GroupModel) DeleteGroup(ctx context.Context, groupID uuid.UUID, ownerID string) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		res, err := r.db.NewDelete().
			Model((*types.Group)(nil)).
			Where("id = ?", groupID).
			Where("owner_id = ?", ownerID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to delete group: %w", err)
		}

		rows, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check group deletion: %w", err)
		}
		if rows == 0 {
			return types.ErrNotGroupOwner
		}
		return nil
	})
}

// AddMember adds a user to a group, refreshing the display name on rejoin.
func (r *GroupModel) AddMember(ctx context.Context, member *types.GroupMember) error {
	if member.JoinedAt.IsZero() {
		member.JoinedAt = time.Now()
	}

	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := r.db.NewInsert().
			Model(member).
			On("CONFLICT (group_id, user_id) DO UPDATE").
			Set("display_name = EXCLUDED.display_name").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to add member: %w", err)
		}
		return nil
	})
}

// RemoveMember removes a user from a group along with their presence record.
func (r *GroupModel) RemoveMember(ctx context.Context, groupID uuid.UUID, userID string) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			res, err := tx.NewDelete().
				Model((*types.GroupMember)(nil)).
				Where("group_id = ?", groupID).
				Where("user_id = ?", userID).
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("failed to remove member: %w", err)
			}

			rows, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to check member removal: %w", err)
			}
			if rows == 0 {
				return types.ErrMemberNotFound
			}

			_, err = tx.NewDelete().
				Model((*types.PresenceRecord)(nil)).
				Where("group_id = ?", groupID).
				Where("user_id = ?", userID).
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("failed to remove presence record: %w", err)
			}
			return nil
		})
	})
}

// GetMembers retrieves all members of a group.
func (r *GroupModel) GetMembers(ctx context.Context, groupID uuid.UUID) ([]*types.GroupMember, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]*types.GroupMember, error) {
		var members []*types.GroupMember
		err := r.db.NewSelect().
			Model(&members).
			Where("group_id = ?", groupID).
			Order("joined_at ASC").
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get members: %w", err)
		}
		return members, nil
	})
}
