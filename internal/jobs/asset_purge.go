// Package jobs defines River job types for background maintenance.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"tenantdesk.io/console/internal/pkg/logger"
)

// DefaultAssetRetention is how long superseded profile pictures are kept.
const DefaultAssetRetention = 7 * 24 * time.Hour

// AssetPurger deletes pictures superseded before a cutoff.
type AssetPurger interface {
	PurgeSuperseded(ctx context.Context, cutoff time.Time) (int64, error)
}

// AssetPurgeArgs is a periodic job removing superseded profile pictures.
type AssetPurgeArgs struct{}

// Kind returns the job kind identifier.
func (AssetPurgeArgs) Kind() string { return "profile_asset_purge" }

// InsertOpts keeps at most one purge per hour in the queue.
func (AssetPurgeArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       river.QueueDefault,
		MaxAttempts: 3,
		UniqueOpts: river.UniqueOpts{
			ByPeriod: time.Hour,
			ByQueue:  true,
			ByArgs:   true,
		},
	}
}

// AssetPurgeWorker deletes superseded pictures older than the retention.
type AssetPurgeWorker struct {
	river.WorkerDefaults[AssetPurgeArgs]
	purger    AssetPurger
	retention time.Duration
	now       func() time.Time
}

// NewAssetPurgeWorker creates a purge worker. Non-positive retention falls
// back to DefaultAssetRetention.
func NewAssetPurgeWorker(purger AssetPurger, retention time.Duration) *AssetPurgeWorker {
	if retention <= 0 {
		retention = DefaultAssetRetention
	}
	return &AssetPurgeWorker{purger: purger, retention: retention, now: time.Now}
}

// Work removes expired rows.
func (w *AssetPurgeWorker) Work(ctx context.Context, _ *river.Job[AssetPurgeArgs]) error {
	if w == nil || w.purger == nil {
		return fmt.Errorf("asset purge worker is not initialized")
	}

	cutoff := w.now().UTC().Add(-w.retention)
	deleted, err := w.purger.PurgeSuperseded(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("purge pictures superseded before %s: %w", cutoff.Format(time.RFC3339), err)
	}

	logger.Info("profile asset purge completed",
		zap.Int64("deleted_rows", deleted),
		zap.String("cutoff", cutoff.Format(time.RFC3339)),
		zap.Duration("retention", w.retention),
	)
	return nil
}

// AssetPurgeJob schedules AssetPurgeArgs every interval, once on start too.
func AssetPurgeJob(interval time.Duration) *river.PeriodicJob {
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	return river.NewPeriodicJob(
		river.PeriodicInterval(interval),
		func() (river.JobArgs, *river.InsertOpts) {
			return AssetPurgeArgs{}, nil
		},
		&river.PeriodicJobOpts{RunOnStart: true},
	)
}
