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
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// PresenceModel handles database operations for presence records.
type PresenceModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewPresence creates a PresenceModel.
func NewPresence(db *bun.DB, logger *zap.Logger) *PresenceModel {
	return &PresenceModel{
		db:     db,
		logger: logger.Named("db_presence"),
	}
}

// Upsert writes a presence record, replacing any previous state for the
// (user, group) pair. Writes are idempotent so callers may safely repeat
// them after transient failures.
func (r *PresenceModel) Upsert(ctx context.Context, record *types.PresenceRecord) error {
	if record.LastUpdated.IsZero() {
		record.LastUpdated = time.Now()
	}

	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := r.db.NewInsert().
			Model(record).
			On("CONFLICT (user_id, group_id) DO UPDATE").
			Set("is_present = EXCLUDED.is_present").
			Set("is_manual = EXCLUDED.is_manual").
			Set("last_updated = EXCLUDED.last_updated").
			Set("display_name = EXCLUDED.display_name").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to upsert presence record: %w", err)
		}
		return nil
	})
}

// GetRecord retrieves the presence record for a user in a group.
func (r *PresenceModel) GetRecord(
	ctx context.Context, userID string, groupID uuid.UUID,
) (*types.PresenceRecord, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (*types.PresenceRecord, error) {
		record := new(types.PresenceRecord)
		err := r.db.NewSelect().
			Model(record).
			Where("user_id = ?", userID).
			Where("group_id = ?", groupID).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, types.ErrPresenceNotFound
			}
			return nil, fmt.Errorf("failed to get presence record: %w", err)
		}
		return record, nil
	})
}

// GetPresentMembers retrieves every record currently marked present for a
// group, ordered for stable summaries.
func (r *PresenceModel) GetPresentMembers(
	ctx context.Context, groupID uuid.UUID,
) ([]*types.PresenceRecord, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]*types.PresenceRecord, error) {
		var records []*types.PresenceRecord
		err := r.db.NewSelect().
			Model(&records).
			Where("group_id = ?", groupID).
			Where("is_present = true").
			Order("display_name ASC", "user_id ASC").
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get present members: %w", err)
		}
		return records, nil
	})
}

// GetStaleRecords retrieves present records whose last update is older than
// the cutoff, for the sweeper to force out.
func (r *PresenceModel) GetStaleRecords(
	ctx context.Context, cutoff time.Time, limit int,
) ([]*types.PresenceRecord, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]*types.PresenceRecord, error) {
		var records []*types.PresenceRecord
		err := r.db.NewSelect().
			Model(&records).
			Where("is_present = true").
			Where("last_updated < ?", cutoff).
			Order("last_updated ASC").
			Limit(limit).
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get stale records: %w", err)
		}
		return records, nil
	})
}
