package types

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrPresenceNotFound = errors.New("presence record not found")

// MaxPresenceDuration is the longest a presence record is trusted without a
// fresh write. Records older than this are treated as stale and swept.
const MaxPresenceDuration = 10 * time.Hour

// PresenceRecord is the shared-store row describing one user's presence in
// one group. There is exactly one logical record per (user, group) pair;
// every write replaces the previous state.
type PresenceRecord struct {
	UserID      string    `bun:",pk"           json:"userId"`
	GroupID     uuid.UUID `bun:",pk,type:uuid" json:"groupId"`
	IsPresent   bool      `bun:",notnull,default:false" json:"isPresent"`
	IsManual    bool      `bun:",notnull,default:false" json:"isManual"`
	LastUpdated time.Time `bun:",notnull"      json:"lastUpdated"`
	DisplayName string    `bun:",notnull"      json:"displayName"`
}

// Stale reports whether a present record is older than maxAge as of now.
// Absent records are never stale since there is nothing left to expire.
func (r *PresenceRecord) Stale(now time.Time, maxAge time.Duration) bool {
	return r.IsPresent && now.Sub(r.LastUpdated) > maxAge
}
