package repository

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/straye-as/shortage-api/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PurchaseOrderFilters defines filter options for purchase order listing
type PurchaseOrderFilters struct {
	PKID     string
	Supplier string
	Statuses []domain.PurchaseOrderStatus
	OpenOnly bool
}

var closedPurchaseStatuses = []domain.PurchaseOrderStatus{domain.PurchaseStatusArrived, domain.PurchaseStatusObsoleted}

// PurchaseOrderRepository handles purchase order data access operations
type PurchaseOrderRepository struct {
	db *gorm.DB
}

// NewPurchaseOrderRepository creates a new purchase order repository instance
func NewPurchaseOrderRepository(db *gorm.DB) *PurchaseOrderRepository {
	return &PurchaseOrderRepository{db: db}
}

// Transaction runs fn with a repository bound to one database transaction
func (r *PurchaseOrderRepository) Transaction(ctx context.Context, fn func(txRepo *PurchaseOrderRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&PurchaseOrderRepository{db: tx})
	})
}

// LastNumberWithPrefix returns the PO number with the highest sequence among
// those starting with prefix, or "" when there is none
func (r *PurchaseOrderRepository) LastNumberWithPrefix(ctx context.Context, prefix string) (string, error) {
	var numbers []string
	err := r.db.WithContext(ctx).
		Model(&domain.PurchaseOrder{}).
		Where("po_number LIKE ?", prefix+"%").
		Order("LENGTH(po_number) DESC").
		Order("po_number DESC").
		Limit(1).
		Pluck("po_number", &numbers).Error
	if err != nil || len(numbers) == 0 {
		return "", err
	}
	return numbers[0], nil
}

// Create inserts a new purchase order
func (r *PurchaseOrderRepository) Create(ctx context.Context, po *domain.PurchaseOrder) error {
	return r.db.WithContext(ctx).Create(po).Error
}

// GetByID retrieves a purchase order by its ID
func (r *PurchaseOrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.PurchaseOrder, error) {
	var po domain.PurchaseOrder
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&po).Error
	if err != nil {
		return nil, err
	}
	return &po, nil
}

// UpdateFields writes only the given columns of a purchase order. It returns
// gorm.ErrRecordNotFound when no row matched.
func (r *PurchaseOrderRepository) UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error {
	fields["updated_at"] = time.Now()
	result := r.db.WithContext(ctx).
		Model(&domain.PurchaseOrder{}).
		Where("id = ?", id).
		Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// List returns a paginated list of purchase orders, ordered by status stage
// (issued, in transit, arrived, obsoleted, other) and then by ETA with
// undated purchases last
func (r *PurchaseOrderRepository) List(ctx context.Context, page, pageSize int, filters *PurchaseOrderFilters) ([]domain.PurchaseOrder, int64, error) {
	var pos []domain.PurchaseOrder
	var total int64

	page, pageSize = normalizePagination(page, pageSize)

	query := applyPurchaseOrderFilters(r.db.WithContext(ctx).Model(&domain.PurchaseOrder{}), filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Order(statusRankClause()).
		Order("CASE WHEN eta IS NULL THEN 1 ELSE 0 END").
		Order("eta ASC").
		Order("po_number ASC").
		Offset(offset).Limit(pageSize).
		Find(&pos).Error
	if err != nil {
		return nil, 0, err
	}
	return pos, total, nil
}

// OpenCount returns the number of purchases still awaiting delivery
func (r *PurchaseOrderRepository) OpenCount(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&domain.PurchaseOrder{}).
		Where("status NOT IN ?", closedPurchaseStatuses).
		Count(&n).Error
	return n, err
}

// statusRankClause orders rows by their position in domain.PurchaseOrderStatuses
func statusRankClause() clause.OrderBy {
	statuses := domain.PurchaseOrderStatuses()
	sql := "CASE status"
	vars := make([]interface{}, 0, len(statuses))
	for i, s := range statuses {
		sql += " WHEN ? THEN " + strconv.Itoa(i+1)
		vars = append(vars, string(s))
	}
	sql += " ELSE 9 END"
	return clause.OrderBy{Expression: clause.Expr{SQL: sql, Vars: vars, WithoutParentheses: true}}
}

func applyPurchaseOrderFilters(query *gorm.DB, filters *PurchaseOrderFilters) *gorm.DB {
	if filters == nil {
		return query
	}
	if filters.PKID != "" {
		query = query.Where("pkid = ?", filters.PKID)
	}
	if filters.Supplier != "" {
		query = query.Where("supplier = ?", filters.Supplier)
	}
	if len(filters.Statuses) > 0 {
		query = query.Where("status IN ?", filters.Statuses)
	}
	if filters.OpenOnly {
		query = query.Where("status NOT IN ?", closedPurchaseStatuses)
	}
	return query
}
