package presence

import (
	"time"

	"github.com/roostlabs/roost/internal/database/types"
)

// SplitStale partitions presence records into those still within maxAge and
// those whose last update is older. Records that are not present are never
// stale regardless of age.
func SplitStale(records []*types.PresenceRecord, now time.Time, maxAge time.Duration) (fresh, stale []*types.PresenceRecord) {
	for _, record := range records {
		if record.Stale(now, maxAge) {
			stale = append(stale, record)
			continue
		}
		fresh = append(fresh, record)
	}
	return fresh, stale
}
