package database

import (
	"github.com/roostlabs/roost/internal/database/models"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// Repository provides access to all database models.
type Repository struct {
	group    *models.GroupModel
	presence *models.PresenceModel
}

// NewRepository creates a new repository instance with all models.
func NewRepository(db *bun.DB, logger *zap.Logger) *Repository {
	return &Repository{
		group:    models.NewGroup(db, logger),
		presence: models.NewPresence(db, logger),
	}
}

// Group returns the group model repository.
func (r *Repository) Group() *models.GroupModel {
	return r.group
}

// Presence returns the presence model repository.
func (r *Repository) Presence() *models.PresenceModel {
	return r.presence
}
