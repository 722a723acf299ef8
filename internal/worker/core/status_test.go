package core_test

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/rueidis"
	"github.com/roostlabs/roost/internal/worker/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTest(t *testing.T) (*core.Monitor, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  []string{mr.Addr()},
		DisableCache: true,
	})
	require.NoError(t, err)

	logger, err := zap.NewDevelopment()
	require.NoError(t, err)

	monitor := core.NewMonitor(client, logger)

	cleanup := func() {
		mr.Close()
		client.Close()
		logger.Sync()
	}

	return monitor, cleanup
}

func TestReportStatus(t *testing.T) {
	t.Parallel()
	monitor, cleanup := setupTest(t)
	defer cleanup()

	ctx := t.Context()
	err := monitor.ReportStatus(ctx, core.Status{
		WorkerID:    "worker-1",
		WorkerType:  "sweep",
		CurrentTask: "Sweeping stale presence records",
		Progress:    50,
		IsHealthy:   true,
	})
	require.NoError(t, err)

	statuses, err := monitor.GetAllStatuses(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 1)

	status := statuses[0]
	assert.Equal(t, "worker-1", status.WorkerID)
	assert.Equal(t, "sweep", status.WorkerType)
	assert.Equal(t, "Sweeping stale presence records", status.CurrentTask)
	assert.Equal(t, 50, status.Progress)
	assert.True(t, status.IsHealthy)
	assert.False(t, status.LastSeen.IsZero(), "reporting stamps the heartbeat")
}

func TestReportStatusOverwrites(t *testing.T) {
	t.Parallel()
	monitor, cleanup := setupTest(t)
	defer cleanup()

	ctx := t.Context()
	status := core.Status{WorkerID: "worker-1", WorkerType: "sweep", Progress: 10, IsHealthy: true}
	require.NoError(t, monitor.ReportStatus(ctx, status))

	status.Progress = 90
	require.NoError(t, monitor.ReportStatus(ctx, status))

	statuses, err := monitor.GetAllStatuses(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, 90, statuses[0].Progress)
}

func TestGetAllStatusesMultipleWorkers(t *testing.T) {
	t.Parallel()
	monitor, cleanup := setupTest(t)
	defer cleanup()

	ctx := t.Context()
	require.NoError(t, monitor.ReportStatus(ctx, core.Status{WorkerID: "worker-1", WorkerType: "sweep"}))
	require.NoError(t, monitor.ReportStatus(ctx, core.Status{WorkerID: "worker-2", WorkerType: "sweep"}))

	statuses, err := monitor.GetAllStatuses(ctx)
	require.NoError(t, err)
	assert.Len(t, statuses, 2)
}

func TestGetAllStatusesEmpty(t *testing.T) {
	t.Parallel()
	monitor, cleanup := setupTest(t)
	defer cleanup()

	statuses, err := monitor.GetAllStatuses(t.Context())
	require.NoError(t, err)
	assert.Empty(t, statuses)
}

func TestStatusStale(t *testing.T) {
	t.Parallel()

	now := time.Now()
	fresh := &core.Status{LastSeen: now.Add(-30 * time.Second)}
	assert.False(t, fresh.Stale(now))

	stale := &core.Status{LastSeen: now.Add(-2 * time.Minute)}
	assert.True(t, stale.Stale(now))
}
