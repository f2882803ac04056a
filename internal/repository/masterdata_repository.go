package repository

import (
	"context"

	"github.com/straye-as/shortage-api/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// upsertBatchSize bounds the number of rows per INSERT statement
const upsertBatchSize = 500

// ProductRepository handles product master data access operations
type ProductRepository struct {
	db *gorm.DB
}

// NewProductRepository creates a new product repository instance
func NewProductRepository(db *gorm.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// Upsert inserts products or updates the descriptive fields of existing ones
func (r *ProductRepository) Upsert(ctx context.Context, products []domain.Product) error {
	if len(products) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "pkid"}},
			DoUpdates: clause.AssignmentColumns([]string{"description", "unit", "customer", "car_type", "updated_at"}),
		}).
		CreateInBatches(products, upsertBatchSize).Error
}

// ExistingPKIDs returns the subset of pkids present in the product master
func (r *ProductRepository) ExistingPKIDs(ctx context.Context, pkids []string) (map[string]bool, error) {
	found := make(map[string]bool, len(pkids))
	if len(pkids) == 0 {
		return found, nil
	}
	var rows []string
	err := r.db.WithContext(ctx).
		Model(&domain.Product{}).
		Where("pkid IN ?", pkids).
		Pluck("pkid", &rows).Error
	if err != nil {
		return nil, err
	}
	for _, p := range rows {
		found[p] = true
	}
	return found, nil
}

// List returns a paginated list of products ordered by PKID
func (r *ProductRepository) List(ctx context.Context, page, pageSize int, customer string) ([]domain.Product, int64, error) {
	var products []domain.Product
	var total int64

	page, pageSize = normalizePagination(page, pageSize)

	query := r.db.WithContext(ctx).Model(&domain.Product{})
	if customer != "" {
		query = query.Where("customer = ?", customer)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Order("pkid ASC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&products).Error
	if err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

// PlantSiteRepository handles plant site master data access operations
type PlantSiteRepository struct {
	db *gorm.DB
}

// NewPlantSiteRepository creates a new plant site repository instance
func NewPlantSiteRepository(db *gorm.DB) *PlantSiteRepository {
	return &PlantSiteRepository{db: db}
}

// Upsert inserts plant sites or updates the name and region of existing ones
func (r *PlantSiteRepository) Upsert(ctx context.Context, sites []domain.PlantSite) error {
	if len(sites) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "site_code"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "region", "updated_at"}),
		}).
		CreateInBatches(sites, upsertBatchSize).Error
}

// ExistingCodes returns the subset of codes present in the plant site master
func (r *PlantSiteRepository) ExistingCodes(ctx context.Context, codes []string) (map[string]bool, error) {
	found := make(map[string]bool, len(codes))
	if len(codes) == 0 {
		return found, nil
	}
	var rows []string
	err := r.db.WithContext(ctx).
		Model(&domain.PlantSite{}).
		Where("site_code IN ?", codes).
		Pluck("site_code", &rows).Error
	if err != nil {
		return nil, err
	}
	for _, c := range rows {
		found[c] = true
	}
	return found, nil
}

// ListAll returns every plant site ordered by code
func (r *PlantSiteRepository) ListAll(ctx context.Context) ([]domain.PlantSite, error) {
	var sites []domain.PlantSite
	err := r.db.WithContext(ctx).Order("site_code ASC").Find(&sites).Error
	return sites, err
}

// BOMRepository handles bill of materials and substitute link data access
type BOMRepository struct {
	db *gorm.DB
}

// NewBOMRepository creates a new BOM repository instance
func NewBOMRepository(db *gorm.DB) *BOMRepository {
	return &BOMRepository{db: db}
}

// UpsertLines inserts BOM lines. An existing parent/component pair keeps its ID,
// and therefore its position, and only has its quantity updated.
func (r *BOMRepository) UpsertLines(ctx context.Context, lines []domain.BOMLine) error {
	if len(lines) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "parent_pkid"}, {Name: "component_pkid"}},
			DoUpdates: clause.AssignmentColumns([]string{"quantity_per_unit"}),
		}).
		CreateInBatches(lines, upsertBatchSize).Error
}

// LinesForParent returns the BOM of parent in insertion order
func (r *BOMRepository) LinesForParent(ctx context.Context, parent string) ([]domain.BOMLine, error) {
	var lines []domain.BOMLine
	err := r.db.WithContext(ctx).
		Where("parent_pkid = ?", parent).
		Order("id ASC").
		Find(&lines).Error
	return lines, err
}

// DeleteLine removes a single parent/component edge
func (r *BOMRepository) DeleteLine(ctx context.Context, parent, component string) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("parent_pkid = ? AND component_pkid = ?", parent, component).
		Delete(&domain.BOMLine{})
	return result.RowsAffected > 0, result.Error
}

// UpsertSubstitutes inserts substitute links or updates priority and
// description of existing pairs
func (r *BOMRepository) UpsertSubstitutes(ctx context.Context, links []domain.SubstituteLink) error {
	if len(links) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "primary_pkid"}, {Name: "substitute_pkid"}},
			DoUpdates: clause.AssignmentColumns([]string{"priority", "description"}),
		}).
		CreateInBatches(links, upsertBatchSize).Error
}

// SubstitutesFor returns the substitute links of primary in walk order
func (r *BOMRepository) SubstitutesFor(ctx context.Context, primary string) ([]domain.SubstituteLink, error) {
	var links []domain.SubstituteLink
	err := r.db.WithContext(ctx).
		Where("primary_pkid = ?", primary).
		Order("priority ASC, id ASC").
		Find(&links).Error
	return links, err
}

// DeleteSubstitute removes a single primary/substitute link
func (r *BOMRepository) DeleteSubstitute(ctx context.Context, primary, substitute string) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("primary_pkid = ? AND substitute_pkid = ?", primary, substitute).
		Delete(&domain.SubstituteLink{})
	return result.RowsAffected > 0, result.Error
}
