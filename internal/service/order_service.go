package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/straye-as/shortage-api/internal/domain"
	"github.com/straye-as/shortage-api/internal/mapper"
	"github.com/straye-as/shortage-api/internal/metrics"
	"github.com/straye-as/shortage-api/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MaxReconcileRows bounds a single reconciliation batch
const MaxReconcileRows = 10000

// ReconcileOptions tunes a reconciliation batch
type ReconcileOptions struct {
	// CancelMissing cancels active lines in the batch's (customer, site)
	// scopes whose key does not appear in the batch. Use it only for full
	// uploads of those scopes.
	CancelMissing bool
}

// ParsedRow is an order row together with any error found while decoding it
// from its wire form. Rows with a decode error are rejected without touching
// the database.
type ParsedRow struct {
	Row domain.OrderRow
	Err error
}

type rowOutcome int

const (
	outcomeInserted rowOutcome = iota
	outcomeUpdated
	outcomeUnchanged
)

// rowValidator reports struct validation failures by JSON field name
var rowValidator = newRowValidator()

func newRowValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// OrderService reconciles incoming order rows against the order ledger
type OrderService struct {
	orderRepo   *repository.OrderRepository
	productRepo *repository.ProductRepository
	siteRepo    *repository.PlantSiteRepository
	locks       *keyLocker
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

// NewOrderService creates a new order service instance
func NewOrderService(
	orderRepo *repository.OrderRepository,
	productRepo *repository.ProductRepository,
	siteRepo *repository.PlantSiteRepository,
	m *metrics.Metrics,
	logger *zap.Logger,
) *OrderService {
	return &OrderService{
		orderRepo:   orderRepo,
		productRepo: productRepo,
		siteRepo:    siteRepo,
		locks:       newKeyLocker(),
		metrics:     m,
		logger:      logger,
	}
}

// Reconcile applies rows to the order ledger. Each row is validated, matched
// on its natural key and inserted or updated in its own transaction. A
// rejected row never aborts the batch.
func (s *OrderService) Reconcile(ctx context.Context, rows []domain.OrderRow, opts ReconcileOptions) (*domain.ReconcileResult, error) {
	parsed := make([]ParsedRow, len(rows))
	for i := range rows {
		parsed[i] = ParsedRow{Row: rows[i]}
	}
	return s.ReconcileParsed(ctx, parsed, opts)
}

// ReconcileRequests decodes wire rows and reconciles them
func (s *OrderService) ReconcileRequests(ctx context.Context, reqs []domain.OrderRowRequest, opts ReconcileOptions) (*domain.ReconcileResult, error) {
	parsed := make([]ParsedRow, len(reqs))
	for i := range reqs {
		row, err := mapper.ToOrderRow(&reqs[i])
		parsed[i] = ParsedRow{Row: row, Err: err}
	}
	return s.ReconcileParsed(ctx, parsed, opts)
}

// ReconcileParsed is Reconcile for rows that may carry decode errors
func (s *OrderService) ReconcileParsed(ctx context.Context, rows []ParsedRow, opts ReconcileOptions) (*domain.ReconcileResult, error) {
	if len(rows) == 0 {
		return nil, ErrEmptyBatch
	}
	if len(rows) > MaxReconcileRows {
		return nil, fmt.Errorf("%w: %d rows, limit %d", ErrBatchTooLarge, len(rows), MaxReconcileRows)
	}

	for i := range rows {
		normalizeRow(&rows[i].Row)
	}

	products, sites, err := s.loadReferences(ctx, rows)
	if err != nil {
		return nil, err
	}

	result := &domain.ReconcileResult{Rejected: []domain.RejectedRow{}}
	seen := make(map[domain.OrderKey]bool, len(rows))
	scopes := make(map[repository.OrderScope]bool)
	batchKeys := make(map[domain.OrderKey]bool, len(rows))

	for i := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		row := rows[i].Row
		key := row.Key()
		if key.Customer != "" && key.ProductionSite != "" {
			scopes[repository.OrderScope{Customer: key.Customer, ProductionSite: key.ProductionSite}] = true
			batchKeys[key] = true
		}

		verr := rowError(rows[i].Err)
		if verr == nil {
			verr = validateRow(&row, products, sites)
		}
		if verr == nil && seen[key] {
			verr = &domain.ValidationError{Reason: domain.ReasonDuplicateInBatch}
		}
		if verr != nil {
			result.Rejected = append(result.Rejected, domain.RejectedRow{Index: i, Row: row, Reason: verr.Error()})
			continue
		}
		seen[key] = true

		outcome, closed, err := s.applyRow(ctx, &row)
		if err != nil {
			var conflict *domain.ConflictError
			if errors.As(err, &conflict) {
				s.logger.Warn("Concurrent write on order line",
					zap.String("order_key", key.String()),
					zap.Error(err),
				)
				result.Rejected = append(result.Rejected, domain.RejectedRow{
					Index:     i,
					Row:       row,
					Reason:    domain.ReasonConcurrentConflict,
					Retryable: conflict.Retryable(),
				})
				continue
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("failed to reconcile order %s: %w", key, err)
		}

		switch outcome {
		case outcomeInserted:
			result.Inserted++
		case outcomeUpdated:
			result.Updated++
		case outcomeUnchanged:
			result.Unchanged++
		}
		if closed {
			result.Closed++
		}
	}

	if opts.CancelMissing && len(scopes) > 0 {
		scopeList := make([]repository.OrderScope, 0, len(scopes))
		for sc := range scopes {
			scopeList = append(scopeList, sc)
		}
		cancelled, err := s.orderRepo.CancelMissing(ctx, scopeList, batchKeys)
		if err != nil {
			return nil, fmt.Errorf("failed to cancel superseded orders: %w", err)
		}
		result.Cancelled = len(cancelled)
	}

	s.metrics.ObserveReconcile(result)
	s.refreshStatusCounts(ctx)
	s.logger.Info("Order reconciliation complete",
		zap.Int("rows", len(rows)),
		zap.Int("inserted", result.Inserted),
		zap.Int("updated", result.Updated),
		zap.Int("unchanged", result.Unchanged),
		zap.Int("closed", result.Closed),
		zap.Int("cancelled", result.Cancelled),
		zap.Int("rejected", len(result.Rejected)),
	)

	return result, nil
}

// refreshStatusCounts publishes the ledger's per-status line counts
func (s *OrderService) refreshStatusCounts(ctx context.Context) {
	if s.metrics == nil {
		return
	}
	counts, err := s.orderRepo.CountByStatus(ctx)
	if err != nil {
		s.logger.Warn("Failed to count order lines by status", zap.Error(err))
		return
	}
	s.metrics.SetOrderLines(counts)
}

// applyRow inserts or updates one validated row while holding the key lock
// and a row lock on the matched line. It reports whether the line moved to
// CLOSED.
func (s *OrderService) applyRow(ctx context.Context, row *domain.OrderRow) (rowOutcome, bool, error) {
	key := row.Key()
	unlock := s.locks.Lock(key.String())
	defer unlock()

	var outcome rowOutcome
	var closed bool
	err := s.orderRepo.Transaction(ctx, func(tx *repository.OrderRepository) error {
		existing, err := tx.FindByKeyForUpdate(ctx, key)
		if err != nil {
			return fmt.Errorf("failed to look up order: %w", err)
		}

		now := time.Now().UTC()
		if existing == nil {
			order := newOrderFromRow(row, now)
			if err := tx.Create(ctx, order); err != nil {
				return err
			}
			outcome = outcomeInserted
			closed = order.Status == domain.OrderStatusClosed
			return nil
		}

		fields := diffOrder(existing, row, now)
		if len(fields) == 0 {
			outcome = outcomeUnchanged
			return nil
		}
		if err := tx.UpdateFields(ctx, existing.ID, fields); err != nil {
			return err
		}
		outcome = outcomeUpdated
		if status, ok := fields["status"]; ok && status == domain.OrderStatusClosed {
			closed = true
		}
		return nil
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return 0, false, &domain.ConflictError{Key: key, Err: err}
	}
	return outcome, closed, err
}

// GetByID returns a single order line
func (s *OrderService) GetByID(ctx context.Context, id uuid.UUID) (*domain.OrderDTO, error) {
	order, err := s.orderRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	dto := mapper.ToOrderDTO(order)
	return &dto, nil
}

// List returns a paginated list of order lines
func (s *OrderService) List(ctx context.Context, page, pageSize int, filters *repository.OrderFilters, sort repository.SortConfig) (*domain.PaginatedResponse, error) {
	orders, total, err := s.orderRepo.List(ctx, page, pageSize, filters, sort)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	page, pageSize = clampPage(page, pageSize)
	dtos := make([]domain.OrderDTO, len(orders))
	for i := range orders {
		dtos[i] = mapper.ToOrderDTO(&orders[i])
	}

	return &domain.PaginatedResponse{
		Data:       dtos,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages(total, pageSize),
	}, nil
}

func (s *OrderService) loadReferences(ctx context.Context, rows []ParsedRow) (map[string]bool, map[string]bool, error) {
	pkidSet := make(map[string]bool)
	siteSet := make(map[string]bool)
	for _, r := range rows {
		if r.Row.PKID != "" {
			pkidSet[r.Row.PKID] = true
		}
		if r.Row.ProductionSite != "" {
			siteSet[r.Row.ProductionSite] = true
		}
	}

	products, err := s.productRepo.ExistingPKIDs(ctx, keys(pkidSet))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to check products: %w", err)
	}
	sites, err := s.siteRepo.ExistingCodes(ctx, keys(siteSet))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to check plant sites: %w", err)
	}
	return products, sites, nil
}

func normalizeRow(row *domain.OrderRow) {
	row.PONumber = strings.TrimSpace(row.PONumber)
	row.PKID = strings.TrimSpace(row.PKID)
	row.Customer = strings.TrimSpace(row.Customer)
	row.ProductionSite = strings.TrimSpace(row.ProductionSite)
	row.Status = domain.OrderStatus(strings.ToUpper(strings.TrimSpace(string(row.Status))))
	if !row.OrderDate.IsZero() {
		row.OrderDate = domain.DateOnly(row.OrderDate)
	}
	if row.DueDate != nil {
		d := domain.DateOnly(*row.DueDate)
		row.DueDate = &d
	}
}

func rowError(err error) *domain.ValidationError {
	if err == nil {
		return nil
	}
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		return verr
	}
	return &domain.ValidationError{Reason: err.Error()}
}

// validateRow checks a row in a fixed order and returns the first failure
func validateRow(row *domain.OrderRow, products, sites map[string]bool) *domain.ValidationError {
	if err := rowValidator.Struct(row); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			if fe.Tag() == "required" {
				return &domain.ValidationError{Reason: domain.ReasonMissingField, Field: fe.Field()}
			}
			return &domain.ValidationError{Reason: domain.ReasonFieldTooLong, Field: fe.Field()}
		}
		return &domain.ValidationError{Reason: err.Error()}
	}
	if row.OrderDate.IsZero() {
		return &domain.ValidationError{Reason: domain.ReasonMissingField, Field: "orderDate"}
	}
	if !row.OrderedQty.IsPositive() {
		return &domain.ValidationError{Reason: domain.ReasonNonPositiveQty}
	}
	if row.DeliveredQty.IsNegative() {
		return &domain.ValidationError{Reason: domain.ReasonNegativeDelivered}
	}
	if row.DueDate != nil && row.DueDate.Before(row.OrderDate) {
		return &domain.ValidationError{Reason: domain.ReasonDueBeforeOrder}
	}
	if row.Status != "" && !row.Status.IsValid() {
		return &domain.ValidationError{Reason: domain.ReasonInvalidStatus}
	}
	if !products[row.PKID] {
		return &domain.ValidationError{Reason: domain.ReasonUnknownProduct}
	}
	if !sites[row.ProductionSite] {
		return &domain.ValidationError{Reason: domain.ReasonUnknownSite}
	}
	return nil
}

// deriveStatus picks the status a line should have after applying a row.
// An explicit status always wins. Otherwise a fully delivered line closes,
// terminal lines stay terminal, and active lines follow delivered quantity.
func deriveStatus(current, explicit domain.OrderStatus, ordered, delivered decimal.Decimal) domain.OrderStatus {
	if explicit != "" {
		return explicit
	}
	if delivered.GreaterThanOrEqual(ordered) {
		return domain.OrderStatusClosed
	}
	if current == domain.OrderStatusClosed || current == domain.OrderStatusCancelled {
		return current
	}
	if delivered.IsPositive() {
		return domain.OrderStatusPartial
	}
	return domain.OrderStatusOpen
}

func newOrderFromRow(row *domain.OrderRow, now time.Time) *domain.Order {
	order := &domain.Order{
		PONumber:       row.PONumber,
		PKID:           row.PKID,
		Customer:       row.Customer,
		ProductionSite: row.ProductionSite,
		OrderedQty:     row.OrderedQty,
		DeliveredQty:   row.DeliveredQty,
		OrderDate:      row.OrderDate,
		DueDate:        row.DueDate,
		Status:         deriveStatus("", row.Status, row.OrderedQty, row.DeliveredQty),
	}
	if order.Status == domain.OrderStatusClosed {
		order.CompletedAt = &now
	}
	return order
}

// diffOrder returns the columns whose stored value differs from the row
func diffOrder(existing *domain.Order, row *domain.OrderRow, now time.Time) map[string]interface{} {
	fields := make(map[string]interface{})

	if !existing.OrderedQty.Equal(row.OrderedQty) {
		fields["ordered_qty"] = row.OrderedQty
	}
	if !existing.DeliveredQty.Equal(row.DeliveredQty) {
		fields["delivered_qty"] = row.DeliveredQty
	}
	if !domain.DateOnly(existing.OrderDate).Equal(row.OrderDate) {
		fields["order_date"] = row.OrderDate
	}
	if !sameDate(existing.DueDate, row.DueDate) {
		fields["due_date"] = row.DueDate
	}

	status := deriveStatus(existing.Status, row.Status, row.OrderedQty, row.DeliveredQty)
	if status != existing.Status {
		fields["status"] = status
		switch {
		case status == domain.OrderStatusClosed && existing.CompletedAt == nil:
			fields["completed_at"] = now
		case status.IsActive() && existing.CompletedAt != nil:
			fields["completed_at"] = nil
		}
	}
	return fields
}

func sameDate(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return domain.DateOnly(*a).Equal(domain.DateOnly(*b))
}

func keys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}

func clampPage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = repository.DefaultPageSize
	}
	if pageSize > repository.MaxPageSize {
		pageSize = repository.MaxPageSize
	}
	return page, pageSize
}

func totalPages(total int64, pageSize int) int {
	if pageSize <= 0 {
		return 0
	}
	return int((total + int64(pageSize) - 1) / int64(pageSize))
}
