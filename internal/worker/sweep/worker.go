// Package sweep implements the proactive stale presence sweeper. It checks
// out presence records whose last update exceeded the maximum duration,
// covering users whose agents died without writing a checkout.
package sweep

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/google/uuid"
	"github.com/redis/rueidis"
	"github.com/roostlabs/roost/internal/database/types"
	"github.com/roostlabs/roost/internal/remote"
	"github.com/roostlabs/roost/internal/setup"
	"github.com/roostlabs/roost/internal/worker/core"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

// sweepConcurrency caps parallel checkout writes per batch.
const sweepConcurrency = 8

// PresenceStore is the slice of the presence model the sweeper needs.
type PresenceStore interface {
	GetStaleRecords(ctx context.Context, cutoff time.Time, limit int) ([]*types.PresenceRecord, error)
	Upsert(ctx context.Context, record *types.PresenceRecord) error
}

// Worker periodically force-checks-out stale presence records.
type Worker struct {
	store     PresenceStore
	events    rueidis.Client
	reporter  *core.StatusReporter
	logger    *zap.Logger
	clock     quartz.Clock
	interval  time.Duration
	batchSize int
}

// New creates a new sweep worker.
func New(app *setup.App, logger *zap.Logger) *Worker {
	return &Worker{
		store:     app.DB.Model().Presence(),
		events:    app.EventsClient,
		reporter:  core.NewStatusReporter(app.StatusClient, "sweep", logger),
		logger:    logger,
		clock:     quartz.NewReal(),
		interval:  time.Duration(app.Config.Sweeper.IntervalMinutes) * time.Minute,
		batchSize: app.Config.Sweeper.BatchSize,
	}
}

// Start begins the sweep worker's main loop. It returns when the context is
// cancelled.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("Sweep worker started",
		zap.String("workerID", w.reporter.GetWorkerID()),
		zap.Duration("interval", w.interval))
	w.reporter.Start(ctx)
	defer w.reporter.Stop()

	for {
		w.reporter.SetHealthy(true)
		w.reporter.UpdateStatus("Sweeping stale records", 0)

		swept, err := w.RunCycle(ctx)
		if err != nil {
			w.logger.Error("Sweep cycle failed", zap.Error(err))
			w.reporter.SetHealthy(false)
		}
		if swept > 0 {
			w.logger.Info("Sweep cycle checked out stale records", zap.Int("count", swept))
		}

		w.reporter.UpdateStatus("Completed", 100)

		timer := w.clock.NewTimer(w.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// RunCycle performs one full sweep, draining all stale records in batches.
// It returns the number of records checked out.
func (w *Worker) RunCycle(ctx context.Context) (int, error) {
	cutoff := w.clock.Now().Add(-types.MaxPresenceDuration)
	swept := 0

	for {
		records, err := w.store.GetStaleRecords(ctx, cutoff, w.batchSize)
		if err != nil {
			return swept, fmt.Errorf("failed to query stale records: %w", err)
		}
		if len(records) == 0 {
			return swept, nil
		}

		groups, err := w.checkoutBatch(ctx, records)
		if err != nil {
			return swept, err
		}

		for groupID := range groups {
			remote.PublishChange(ctx, w.events, remote.ChangeEvent{GroupID: groupID}, w.logger)
		}
		swept += len(records)

		if len(records) < w.batchSize {
			return swept, nil
		}
	}
}

// checkoutBatch writes a checked-out record for every stale record and
// returns the distinct groups that changed.
func (w *Worker) checkoutBatch(ctx context.Context, records []*types.PresenceRecord) (map[uuid.UUID]struct{}, error) {
	var (
		p      = pool.New().WithContext(ctx).WithMaxGoroutines(sweepConcurrency)
		mu     sync.Mutex
		groups = make(map[uuid.UUID]struct{})
	)

	for _, record := range records {
		p.Go(func(ctx context.Context) error {
			checkout := *record
			checkout.IsPresent = false
			checkout.IsManual = false
			checkout.LastUpdated = w.clock.Now()

			if err := w.store.Upsert(ctx, &checkout); err != nil {
				return fmt.Errorf("failed to check out user %s in group %s: %w",
					record.UserID, record.GroupID, err)
			}

			mu.Lock()
			groups[record.GroupID] = struct{}{}
			mu.Unlock()

			w.logger.Info("Checked out stale presence record",
				zap.String("userId", record.UserID),
				zap.String("groupId", record.GroupID.String()),
				zap.Time("lastUpdated", record.LastUpdated))
			return nil
		})
	}

	if err := p.Wait(); err != nil {
		return groups, fmt.Errorf("sweep batch had failures: %w", err)
	}
	return groups, nil
}
