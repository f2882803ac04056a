package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/straye-as/shortage-api/internal/domain"
	"github.com/straye-as/shortage-api/internal/shortage"
	"gorm.io/gorm"
)

// AnalysisView is everything a shortage run reads, captured in one transaction
type AnalysisView struct {
	Catalog shortage.CatalogData
	Orders  []domain.Order
}

// CatalogRepository loads master data, stock and orders for a shortage run
type CatalogRepository struct {
	db *gorm.DB
}

// NewCatalogRepository creates a new catalog repository instance
func NewCatalogRepository(db *gorm.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// LoadAnalysisView reads products, sites, BOM lines, substitute links, the
// latest snapshot per (part, site) on or before asOf and the active orders
// matching filters. On Postgres the reads share one REPEATABLE READ read-only
// transaction so concurrent uploads cannot tear the view.
func (r *CatalogRepository) LoadAnalysisView(ctx context.Context, asOf time.Time, filters *OrderFilters) (*AnalysisView, error) {
	view := &AnalysisView{}

	var opts *sql.TxOptions
	if r.db.Dialector.Name() == "postgres" {
		opts = &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Find(&view.Catalog.Products).Error; err != nil {
			return err
		}
		if err := tx.Find(&view.Catalog.Sites).Error; err != nil {
			return err
		}
		if err := tx.Order("id ASC").Find(&view.Catalog.BOMLines).Error; err != nil {
			return err
		}
		if err := tx.Order("priority ASC, id ASC").Find(&view.Catalog.Substitutes).Error; err != nil {
			return err
		}

		snapQuery := tx.Where(latestSnapshotCondition, domain.DateOnly(asOf))
		if filters != nil && len(filters.Sites) > 0 {
			snapQuery = snapQuery.Where("plant_site IN ?", filters.Sites)
		}
		if err := snapQuery.Find(&view.Catalog.Snapshots).Error; err != nil {
			return err
		}

		orders, err := (&OrderRepository{db: tx}).ListForAnalysis(ctx, filters)
		if err != nil {
			return err
		}
		view.Orders = orders
		return nil
	}, opts)
	if err != nil {
		return nil, err
	}

	return view, nil
}
