package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/straye-as/shortage-api/internal/datawarehouse"
	"github.com/straye-as/shortage-api/internal/domain"
	"github.com/straye-as/shortage-api/internal/metrics"
	"go.uber.org/zap"
)

// InventoryImportJobName is the name of the warehouse stock import job
const InventoryImportJobName = "inventory_import"

// LevelSource reads current stock levels
type LevelSource interface {
	FetchInventoryLevels(ctx context.Context) ([]datawarehouse.InventoryLevel, error)
}

// SnapshotImporter stores imported snapshots
type SnapshotImporter interface {
	Import(ctx context.Context, snaps []domain.InventorySnapshot, source string) (int, error)
}

// InventoryImportJob copies the warehouse stock levels into the snapshot
// history, dated the day the job runs. Re-running on the same day replaces
// that day's snapshot.
type InventoryImportJob struct {
	source   LevelSource
	importer SnapshotImporter
	metrics  *metrics.Metrics
	logger   *zap.Logger
	timeout  time.Duration
	now      func() time.Time
}

func NewInventoryImportJob(source LevelSource, importer SnapshotImporter, m *metrics.Metrics, logger *zap.Logger, timeout time.Duration) *InventoryImportJob {
	return &InventoryImportJob{
		source:   source,
		importer: importer,
		metrics:  m,
		logger:   logger.With(zap.String("job_name", InventoryImportJobName)),
		timeout:  timeout,
		now:      time.Now,
	}
}

// Run is the cron entry point
func (j *InventoryImportJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	n, err := j.Import(ctx)
	j.metrics.ObserveJob(InventoryImportJobName, err)
	if err != nil {
		j.logger.Error("inventory import failed", zap.Error(err))
		return
	}
	j.logger.Info("inventory import completed", zap.Int("snapshots", n))
}

// Import fetches the levels and stores them as snapshots
func (j *InventoryImportJob) Import(ctx context.Context) (int, error) {
	levels, err := j.source.FetchInventoryLevels(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch inventory levels: %w", err)
	}
	if len(levels) == 0 {
		j.logger.Warn("data warehouse returned no inventory levels")
		return 0, nil
	}

	date := domain.DateOnly(j.now())
	snaps := make([]domain.InventorySnapshot, len(levels))
	for i, l := range levels {
		snaps[i] = domain.InventorySnapshot{
			PKID:         l.PKID,
			PlantSite:    l.PlantSite,
			SnapshotDate: date,
			OnHandQty:    l.OnHandQty,
		}
	}

	n, err := j.importer.Import(ctx, snaps, domain.SnapshotSourceWarehouse)
	if err != nil {
		return 0, fmt.Errorf("failed to store inventory snapshots: %w", err)
	}
	return n, nil
}

// RegisterInventoryImportJob schedules the import when a warehouse client is
// available
func RegisterInventoryImportJob(scheduler *Scheduler, job *InventoryImportJob, cronExpr string) error {
	if cronExpr == "" {
		return nil
	}
	return scheduler.AddJob(InventoryImportJobName, cronExpr, job.Run)
}
