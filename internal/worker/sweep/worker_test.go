package sweep

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/coder/quartz"
	"github.com/google/uuid"
	"github.com/redis/rueidis"
	"github.com/roostlabs/roost/internal/database/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeStore is an in-memory PresenceStore. Checked-out records stop matching
// the stale query, so batch pagination terminates the same way it does
// against the real table.
type fakeStore struct {
	mu         sync.Mutex
	records    map[string]*types.PresenceRecord
	queries    int
	failQuery  error
	failUpsert error
}

var _ PresenceStore = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]*types.PresenceRecord)}
}

func storeKey(userID string, groupID uuid.UUID) string {
	return userID + "/" + groupID.String()
}

func (f *fakeStore) add(record *types.PresenceRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()

	clone := *record
	f.records[storeKey(record.UserID, record.GroupID)] = &clone
}

func (f *fakeStore) get(userID string, groupID uuid.UUID) *types.PresenceRecord {
	f.mu.Lock()
	defer f.mu.Unlock()

	record, ok := f.records[storeKey(userID, groupID)]
	if !ok {
		return nil
	}

	clone := *record
	return &clone
}

func (f *fakeStore) queryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.queries
}

func (f *fakeStore) GetStaleRecords(
	_ context.Context, cutoff time.Time, limit int,
) ([]*types.PresenceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.queries++
	if f.failQuery != nil {
		return nil, f.failQuery
	}

	var stale []*types.PresenceRecord
	for _, record := range f.records {
		if record.IsPresent && record.LastUpdated.Before(cutoff) {
			clone := *record
			stale = append(stale, &clone)
		}
	}

	sort.Slice(stale, func(i, j int) bool {
		return stale[i].LastUpdated.Before(stale[j].LastUpdated)
	})
	if len(stale) > limit {
		stale = stale[:limit]
	}

	return stale, nil
}

func (f *fakeStore) Upsert(_ context.Context, record *types.PresenceRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failUpsert != nil {
		return f.failUpsert
	}

	clone := *record
	f.records[storeKey(record.UserID, record.GroupID)] = &clone

	return nil
}

// setupWorker creates a sweep worker wired to a fake store, a mock clock,
// and a miniredis-backed events client.
func setupWorker(t *testing.T, batchSize int) (*Worker, *fakeStore, *quartz.Mock, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  []string{mr.Addr()},
		DisableCache: true,
	})
	require.NoError(t, err)

	store := newFakeStore()
	clock := quartz.NewMock(t)
	worker := &Worker{
		store:     store,
		events:    client,
		logger:    zap.NewNop(),
		clock:     clock,
		interval:  time.Minute,
		batchSize: batchSize,
	}

	cleanup := func() {
		client.Close()
		mr.Close()
	}

	return worker, store, clock, cleanup
}

// seedRecord adds a presence record whose last update is age in the past.
func seedRecord(
	store *fakeStore, clock quartz.Clock,
	userID string, groupID uuid.UUID, present, manual bool, age time.Duration,
) {
	store.add(&types.PresenceRecord{
		UserID:      userID,
		GroupID:     groupID,
		DisplayName: "User " + userID,
		IsPresent:   present,
		IsManual:    manual,
		LastUpdated: clock.Now().Add(-age),
	})
}

func TestRunCycleChecksOutStaleRecords(t *testing.T) {
	t.Parallel()

	worker, store, clock, cleanup := setupWorker(t, 10)
	defer cleanup()

	groupA := uuid.New()
	groupB := uuid.New()
	seedRecord(store, clock, "user-1", groupA, true, false, 11*time.Hour)
	seedRecord(store, clock, "user-2", groupA, true, true, 12*time.Hour)
	seedRecord(store, clock, "user-3", groupB, true, false, 11*time.Hour)
	seedRecord(store, clock, "user-4", groupA, true, false, time.Hour)
	seedRecord(store, clock, "user-5", groupB, false, false, 20*time.Hour)

	swept, err := worker.RunCycle(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 3, swept)

	for _, userID := range []string{"user-1", "user-2", "user-3"} {
		groupID := groupA
		if userID == "user-3" {
			groupID = groupB
		}

		record := store.get(userID, groupID)
		require.NotNil(t, record)
		assert.False(t, record.IsPresent, "record for %s should be checked out", userID)
		assert.False(t, record.IsManual)
		assert.Equal(t, clock.Now(), record.LastUpdated)
	}

	// The fresh record keeps its presence and its original timestamp.
	fresh := store.get("user-4", groupA)
	require.NotNil(t, fresh)
	assert.True(t, fresh.IsPresent)
	assert.Equal(t, clock.Now().Add(-time.Hour), fresh.LastUpdated)

	// Absent records are not stale no matter how old they are.
	absent := store.get("user-5", groupB)
	require.NotNil(t, absent)
	assert.False(t, absent.IsPresent)
	assert.Equal(t, clock.Now().Add(-20*time.Hour), absent.LastUpdated)
}

func TestRunCycleDrainsInBatches(t *testing.T) {
	t.Parallel()

	worker, store, clock, cleanup := setupWorker(t, 2)
	defer cleanup()

	groupID := uuid.New()
	for i := range 5 {
		seedRecord(store, clock, "user-"+string(rune('a'+i)), groupID, true, false,
			11*time.Hour+time.Duration(i)*time.Minute)
	}

	swept, err := worker.RunCycle(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 5, swept)

	// Two full batches plus the final short one.
	assert.Equal(t, 3, store.queryCount())
}

func TestRunCycleNothingStale(t *testing.T) {
	t.Parallel()

	worker, store, clock, cleanup := setupWorker(t, 10)
	defer cleanup()

	seedRecord(store, clock, "user-1", uuid.New(), true, false, time.Hour)

	swept, err := worker.RunCycle(t.Context())
	require.NoError(t, err)
	assert.Zero(t, swept)
	assert.Equal(t, 1, store.queryCount())
}

func TestRunCycleQueryFailure(t *testing.T) {
	t.Parallel()

	worker, store, _, cleanup := setupWorker(t, 10)
	defer cleanup()

	store.failQuery = assert.AnError

	swept, err := worker.RunCycle(t.Context())
	require.ErrorIs(t, err, assert.AnError)
	require.ErrorContains(t, err, "failed to query stale records")
	assert.Zero(t, swept)
}

func TestRunCycleUpsertFailure(t *testing.T) {
	t.Parallel()

	worker, store, clock, cleanup := setupWorker(t, 10)
	defer cleanup()

	seedRecord(store, clock, "user-1", uuid.New(), true, false, 11*time.Hour)
	store.failUpsert = assert.AnError

	swept, err := worker.RunCycle(t.Context())
	require.ErrorIs(t, err, assert.AnError)
	require.ErrorContains(t, err, "sweep batch had failures")
	assert.Zero(t, swept)
}

func TestCheckoutBatchCollectsGroups(t *testing.T) {
	t.Parallel()

	worker, _, clock, cleanup := setupWorker(t, 10)
	defer cleanup()

	groupA := uuid.New()
	groupB := uuid.New()
	records := []*types.PresenceRecord{
		{UserID: "user-1", GroupID: groupA, IsPresent: true, LastUpdated: clock.Now().Add(-11 * time.Hour)},
		{UserID: "user-2", GroupID: groupA, IsPresent: true, LastUpdated: clock.Now().Add(-11 * time.Hour)},
		{UserID: "user-3", GroupID: groupB, IsPresent: true, LastUpdated: clock.Now().Add(-11 * time.Hour)},
	}

	groups, err := worker.checkoutBatch(t.Context(), records)
	require.NoError(t, err)
	assert.Len(t, groups, 2)
	assert.Contains(t, groups, groupA)
	assert.Contains(t, groups, groupB)
}
