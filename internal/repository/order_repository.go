package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/straye-as/shortage-api/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OrderFilters defines filter options for order listing.
// An empty slice means no filtering on that dimension.
type OrderFilters struct {
	Customers []string
	Sites     []string
	Statuses  []domain.OrderStatus
	PKID      string
	PONumber  string
}

// OrderScope is a (customer, production site) pair an upload covers
type OrderScope struct {
	Customer       string
	ProductionSite string
}

// orderSortableFields maps API field names to database column names for orders
var orderSortableFields = map[string]string{
	"createdAt":      "created_at",
	"updatedAt":      "updated_at",
	"poNumber":       "po_number",
	"pkid":           "pkid",
	"customer":       "customer",
	"productionSite": "production_site",
	"orderDate":      "order_date",
	"dueDate":        "due_date",
	"status":         "status",
}

// OrderRepository handles order ledger data access operations
type OrderRepository struct {
	db *gorm.DB
}

// NewOrderRepository creates a new order repository instance
func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Transaction runs fn with a repository bound to one database transaction.
// Returning an error from fn rolls back everything it did.
func (r *OrderRepository) Transaction(ctx context.Context, fn func(txRepo *OrderRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&OrderRepository{db: tx})
	})
}

// FindByKeyForUpdate loads the order with the given natural key and locks its
// row for the rest of the surrounding transaction. Returns nil, nil when absent.
func (r *OrderRepository) FindByKeyForUpdate(ctx context.Context, key domain.OrderKey) (*domain.Order, error) {
	var order domain.Order
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("po_number = ? AND pkid = ? AND customer = ? AND production_site = ?",
			key.PONumber, key.PKID, key.Customer, key.ProductionSite).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// GetByID retrieves an order by its ID
func (r *OrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	var order domain.Order
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// Create inserts a new order line
func (r *OrderRepository) Create(ctx context.Context, order *domain.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

// UpdateFields writes only the given columns of an existing order line
func (r *OrderRepository) UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error {
	fields["updated_at"] = time.Now()
	return r.db.WithContext(ctx).
		Model(&domain.Order{}).
		Where("id = ?", id).
		Updates(fields).Error
}

// List returns a paginated list of orders with filter and sort options
func (r *OrderRepository) List(ctx context.Context, page, pageSize int, filters *OrderFilters, sort SortConfig) ([]domain.Order, int64, error) {
	var orders []domain.Order
	var total int64

	page, pageSize = normalizePagination(page, pageSize)

	query := applyOrderFilters(r.db.WithContext(ctx).Model(&domain.Order{}), filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	orderClause := BuildOrderClause(sort, orderSortableFields, "updated_at")
	offset := (page - 1) * pageSize
	err := query.Order(orderClause).Order("id ASC").Offset(offset).Limit(pageSize).Find(&orders).Error
	if err != nil {
		return nil, 0, err
	}

	return orders, total, nil
}

// ListForAnalysis returns every OPEN or PARTIAL order line matching filters
func (r *OrderRepository) ListForAnalysis(ctx context.Context, filters *OrderFilters) ([]domain.Order, error) {
	var orders []domain.Order
	query := applyOrderFilters(r.db.WithContext(ctx).Model(&domain.Order{}), filters).
		Where("status IN ?", domain.ActiveOrderStatuses())
	err := query.
		Order("customer ASC, production_site ASC, po_number ASC, pkid ASC").
		Find(&orders).Error
	return orders, err
}

// CancelMissing cancels active order lines inside scopes whose natural key is
// not in keep. It returns the cancelled lines.
func (r *OrderRepository) CancelMissing(ctx context.Context, scopes []OrderScope, keep map[domain.OrderKey]bool) ([]domain.Order, error) {
	var cancelled []domain.Order

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, scope := range scopes {
			var active []domain.Order
			err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("customer = ? AND production_site = ? AND status IN ?",
					scope.Customer, scope.ProductionSite, domain.ActiveOrderStatuses()).
				Find(&active).Error
			if err != nil {
				return err
			}

			var ids []uuid.UUID
			for _, o := range active {
				if !keep[o.Key()] {
					ids = append(ids, o.ID)
					o.Status = domain.OrderStatusCancelled
					cancelled = append(cancelled, o)
				}
			}
			if len(ids) == 0 {
				continue
			}

			err = tx.Model(&domain.Order{}).
				Where("id IN ?", ids).
				Updates(map[string]interface{}{
					"status":     domain.OrderStatusCancelled,
					"updated_at": time.Now(),
				}).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return cancelled, nil
}

// CountByStatus returns the number of order lines per status
func (r *OrderRepository) CountByStatus(ctx context.Context) (map[domain.OrderStatus]int64, error) {
	var rows []struct {
		Status domain.OrderStatus
		Count  int64
	}
	err := r.db.WithContext(ctx).
		Model(&domain.Order{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[domain.OrderStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

func applyOrderFilters(query *gorm.DB, filters *OrderFilters) *gorm.DB {
	if filters == nil {
		return query
	}
	if len(filters.Customers) > 0 {
		query = query.Where("customer IN ?", filters.Customers)
	}
	if len(filters.Sites) > 0 {
		query = query.Where("production_site IN ?", filters.Sites)
	}
	if len(filters.Statuses) > 0 {
		query = query.Where("status IN ?", filters.Statuses)
	}
	if filters.PKID != "" {
		query = query.Where("pkid = ?", filters.PKID)
	}
	if filters.PONumber != "" {
		query = query.Where("po_number = ?", filters.PONumber)
	}
	return query
}
