package presence_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/roostlabs/roost/internal/database/types"
	"github.com/roostlabs/roost/internal/presence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitStale(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	groupID := uuid.New()

	fresh := &types.PresenceRecord{
		UserID: "fresh", GroupID: groupID, IsPresent: true,
		LastUpdated: now.Add(-types.MaxPresenceDuration + time.Minute),
	}
	expired := &types.PresenceRecord{
		UserID: "expired", GroupID: groupID, IsPresent: true,
		LastUpdated: now.Add(-types.MaxPresenceDuration - time.Minute),
	}
	absent := &types.PresenceRecord{
		UserID: "absent", GroupID: groupID, IsPresent: false,
		LastUpdated: now.Add(-24 * time.Hour),
	}

	gotFresh, gotStale := presence.SplitStale(
		[]*types.PresenceRecord{fresh, expired, absent}, now, types.MaxPresenceDuration)

	require.Len(t, gotStale, 1)
	assert.Equal(t, "expired", gotStale[0].UserID)

	require.Len(t, gotFresh, 2)
	assert.Equal(t, "fresh", gotFresh[0].UserID)
	assert.Equal(t, "absent", gotFresh[1].UserID, "absent records never become stale")
}

func TestSplitStaleBoundary(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	record := &types.PresenceRecord{
		UserID: "edge", IsPresent: true,
		LastUpdated: now.Add(-types.MaxPresenceDuration),
	}

	// A record exactly at the age limit is still fresh
	gotFresh, gotStale := presence.SplitStale(
		[]*types.PresenceRecord{record}, now, types.MaxPresenceDuration)
	assert.Len(t, gotFresh, 1)
	assert.Empty(t, gotStale)
}

func TestSplitStaleEmpty(t *testing.T) {
	t.Parallel()

	gotFresh, gotStale := presence.SplitStale(nil, time.Now(), types.MaxPresenceDuration)
	assert.Empty(t, gotFresh)
	assert.Empty(t, gotStale)
}
