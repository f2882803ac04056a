package repository

import (
	"context"
	"errors"
	"time"

	"github.com/straye-as/shortage-api/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// latestSnapshotCondition keeps, per (pkid, plant_site), only the newest
// snapshot dated on or before the bound date
const latestSnapshotCondition = `snapshot_date = (
	SELECT MAX(s2.snapshot_date) FROM inventory_snapshots s2
	WHERE s2.pkid = inventory_snapshots.pkid
	AND s2.plant_site = inventory_snapshots.plant_site
	AND s2.snapshot_date <= ?)`

// InventoryRepository handles inventory snapshot data access operations
type InventoryRepository struct {
	db *gorm.DB
}

// NewInventoryRepository creates a new inventory repository instance
func NewInventoryRepository(db *gorm.DB) *InventoryRepository {
	return &InventoryRepository{db: db}
}

// UpsertSnapshots stores snapshots. A row for an existing (pkid, site, date)
// replaces that date's quantity; other dates are never touched.
func (r *InventoryRepository) UpsertSnapshots(ctx context.Context, snapshots []domain.InventorySnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	for i := range snapshots {
		snapshots[i].SnapshotDate = domain.DateOnly(snapshots[i].SnapshotDate)
		if snapshots[i].Source == "" {
			snapshots[i].Source = domain.SnapshotSourceUpload
		}
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "pkid"}, {Name: "plant_site"}, {Name: "snapshot_date"}},
			DoUpdates: clause.AssignmentColumns([]string{"on_hand_qty", "source", "updated_at"}),
		}).
		CreateInBatches(snapshots, upsertBatchSize).Error
}

// LatestOnOrBefore returns the newest snapshot of pkid at site dated on or
// before asOf. Returns nil, nil when there is none.
func (r *InventoryRepository) LatestOnOrBefore(ctx context.Context, pkid, site string, asOf time.Time) (*domain.InventorySnapshot, error) {
	var snap domain.InventorySnapshot
	err := r.db.WithContext(ctx).
		Where("pkid = ? AND plant_site = ? AND snapshot_date <= ?", pkid, site, domain.DateOnly(asOf)).
		Order("snapshot_date DESC").
		First(&snap).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &snap, nil
}

// LatestAsOf returns, for every (pkid, site) pair, the newest snapshot dated
// on or before asOf. An empty site returns all sites.
func (r *InventoryRepository) LatestAsOf(ctx context.Context, site string, asOf time.Time) ([]domain.InventorySnapshot, error) {
	var snaps []domain.InventorySnapshot
	query := r.db.WithContext(ctx).Where(latestSnapshotCondition, domain.DateOnly(asOf))
	if site != "" {
		query = query.Where("plant_site = ?", site)
	}
	err := query.Order("plant_site ASC, pkid ASC").Find(&snaps).Error
	return snaps, err
}

// History returns the last limit snapshots of pkid at site, newest first
func (r *InventoryRepository) History(ctx context.Context, pkid, site string, limit int) ([]domain.InventorySnapshot, error) {
	if limit < 1 {
		limit = 2
	}
	var snaps []domain.InventorySnapshot
	err := r.db.WithContext(ctx).
		Where("pkid = ? AND plant_site = ?", pkid, site).
		Order("snapshot_date DESC").
		Limit(limit).
		Find(&snaps).Error
	return snaps, err
}

// LatestSnapshotDate returns the most recent snapshot date across all parts,
// or nil when no snapshot has been stored
func (r *InventoryRepository) LatestSnapshotDate(ctx context.Context) (*time.Time, error) {
	var snap domain.InventorySnapshot
	err := r.db.WithContext(ctx).
		Select("snapshot_date").
		Order("snapshot_date DESC").
		First(&snap).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	d := domain.DateOnly(snap.SnapshotDate)
	return &d, nil
}
