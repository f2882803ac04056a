package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/straye-as/shortage-api/internal/domain"
	"github.com/straye-as/shortage-api/internal/mapper"
	"github.com/straye-as/shortage-api/internal/metrics"
	"github.com/straye-as/shortage-api/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// numberAttempts bounds retries when another writer takes the same PO number
const numberAttempts = 3

// ReasonNumberTaken is reported when no free PO number could be assigned
const ReasonNumberTaken = "purchase order number already taken"

// PurchaseOrderService places and tracks inbound component purchases
type PurchaseOrderService struct {
	poRepo      *repository.PurchaseOrderRepository
	productRepo *repository.ProductRepository
	locks       *keyLocker
	metrics     *metrics.Metrics
	logger      *zap.Logger
	now         func() time.Time
}

// NewPurchaseOrderService creates a new purchase order service instance
func NewPurchaseOrderService(
	poRepo *repository.PurchaseOrderRepository,
	productRepo *repository.ProductRepository,
	m *metrics.Metrics,
	logger *zap.Logger,
) *PurchaseOrderService {
	return &PurchaseOrderService{
		poRepo:      poRepo,
		productRepo: productRepo,
		locks:       newKeyLocker(),
		metrics:     m,
		logger:      logger,
		now:         time.Now,
	}
}

// Today returns the current calendar date in UTC
func (s *PurchaseOrderService) Today() time.Time {
	return domain.DateOnly(s.now().UTC())
}

// Create places one purchase per request, dated today
func (s *PurchaseOrderService) Create(ctx context.Context, reqs []domain.PurchaseOrderRequest, actor string) (*domain.PurchaseOrderBatchResult, error) {
	rows := make([]ParsedPurchaseOrder, len(reqs))
	for i := range reqs {
		rows[i] = ParsedPurchaseOrder{Request: reqs[i]}
	}
	return s.CreateParsed(ctx, rows, actor)
}

// CreateParsed places one purchase per row. Each purchase is numbered and
// inserted on its own; a rejected row never aborts the batch.
func (s *PurchaseOrderService) CreateParsed(ctx context.Context, rows []ParsedPurchaseOrder, actor string) (*domain.PurchaseOrderBatchResult, error) {
	if err := checkBatchSize(len(rows)); err != nil {
		return nil, err
	}

	pkids := make(map[string]bool, len(rows))
	for _, row := range rows {
		pkids[strings.TrimSpace(row.Request.PKID)] = true
	}
	known, err := s.productRepo.ExistingPKIDs(ctx, keys(pkids))
	if err != nil {
		return nil, fmt.Errorf("failed to check products: %w", err)
	}

	result := &domain.PurchaseOrderBatchResult{Created: []string{}, Rejected: []domain.BulkRejectedRow{}}
	reject := func(index int, reason string) {
		result.Rejected = append(result.Rejected, domain.BulkRejectedRow{Index: index, Reason: reason})
	}

	today := s.Today()
	for i, row := range rows {
		if row.Err != nil {
			reject(i, row.Err.Error())
			continue
		}
		po, err := newPurchaseOrder(&row.Request, today, actor)
		if err != nil {
			reject(i, err.Error())
			continue
		}
		if !known[po.PKID] {
			reject(i, domain.ReasonUnknownProduct)
			continue
		}

		if err := s.insert(ctx, po); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				reject(i, ReasonNumberTaken)
				continue
			}
			return nil, fmt.Errorf("failed to create purchase order: %w", err)
		}
		result.Created = append(result.Created, po.PONumber)
	}

	s.refreshOpenCount(ctx)
	s.logger.Info("Purchase orders created",
		zap.Int("rows", len(rows)),
		zap.Int("created", len(result.Created)),
		zap.Int("rejected", len(result.Rejected)),
		zap.String("actor", actor),
	)
	return result, nil
}

// insert numbers po with the next free sequence of its order date and stores
// it. Numbering is serialized per day within the process; a duplicate from
// another process is retried.
func (s *PurchaseOrderService) insert(ctx context.Context, po *domain.PurchaseOrder) error {
	prefix := domain.PurchaseOrderPrefix(po.OrderDate)
	unlock := s.locks.Lock(prefix)
	defer unlock()

	var err error
	for attempt := 0; attempt < numberAttempts; attempt++ {
		err = s.poRepo.Transaction(ctx, func(tx *repository.PurchaseOrderRepository) error {
			last, err := tx.LastNumberWithPrefix(ctx, prefix)
			if err != nil {
				return err
			}
			seq := 0
			if last != "" {
				if seq, err = domain.PurchaseOrderSequence(last); err != nil {
					return err
				}
			}
			po.PONumber = domain.FormatPurchaseOrderNumber(po.OrderDate, seq+1)
			return tx.Create(ctx, po)
		})
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return err
		}
		s.logger.Warn("Purchase order number taken, retrying",
			zap.String("po_number", po.PONumber),
			zap.Int("attempt", attempt+1),
		)
	}
	return err
}

// newPurchaseOrder validates a request and builds the purchase placed on orderDate
func newPurchaseOrder(req *domain.PurchaseOrderRequest, orderDate time.Time, actor string) (*domain.PurchaseOrder, error) {
	req.PKID = strings.TrimSpace(req.PKID)
	req.Supplier = strings.TrimSpace(req.Supplier)
	if reason := structReason(req); reason != "" {
		return nil, errors.New(reason)
	}
	if !req.OrderQty.IsPositive() {
		return nil, &domain.ValidationError{Reason: domain.ReasonNonPositiveQty, Field: "orderQty"}
	}

	po := &domain.PurchaseOrder{
		PKID:      req.PKID,
		Supplier:  req.Supplier,
		OrderDate: orderDate,
		OrderQty:  req.OrderQty,
		Remarks:   strings.TrimSpace(req.Remarks),
		UpdatedBy: actor,
	}
	if eta := strings.TrimSpace(req.ETA); eta != "" {
		d, err := domain.ParseDate(eta)
		if err != nil {
			return nil, &domain.ValidationError{Reason: domain.ReasonInvalidDate, Field: "eta"}
		}
		po.ETA = &d
	}
	status, err := domain.ParsePurchaseOrderStatus(req.Status)
	if err != nil {
		return nil, &domain.ValidationError{Reason: domain.ReasonInvalidStatus, Field: "status"}
	}
	po.Status = status
	return po, nil
}

// Update changes the ETA, status or remarks of a purchase
func (s *PurchaseOrderService) Update(ctx context.Context, id uuid.UUID, req *domain.UpdatePurchaseOrderRequest, actor string) (*domain.PurchaseOrderDTO, error) {
	fields := make(map[string]interface{})
	if req.ETA != nil {
		if eta := strings.TrimSpace(*req.ETA); eta == "" {
			fields["eta"] = nil
		} else {
			d, err := domain.ParseDate(eta)
			if err != nil {
				return nil, fmt.Errorf("%w: eta: %v", ErrInvalidInput, err)
			}
			fields["eta"] = d
		}
	}
	if req.Status != nil {
		if strings.TrimSpace(*req.Status) == "" {
			return nil, fmt.Errorf("%w: status must not be empty", ErrInvalidInput)
		}
		status, err := domain.ParsePurchaseOrderStatus(*req.Status)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		fields["status"] = status
	}
	if req.Remarks != nil {
		fields["remarks"] = strings.TrimSpace(*req.Remarks)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: nothing to update", ErrInvalidInput)
	}
	fields["updated_by"] = actor

	if err := s.poRepo.UpdateFields(ctx, id, fields); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPurchaseOrderNotFound
		}
		return nil, fmt.Errorf("failed to update purchase order: %w", err)
	}

	s.refreshOpenCount(ctx)
	s.logger.Info("Purchase order updated",
		zap.String("id", id.String()),
		zap.String("actor", actor),
	)
	return s.GetByID(ctx, id)
}

// GetByID returns a single purchase order
func (s *PurchaseOrderService) GetByID(ctx context.Context, id uuid.UUID) (*domain.PurchaseOrderDTO, error) {
	po, err := s.poRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPurchaseOrderNotFound
		}
		return nil, fmt.Errorf("failed to get purchase order: %w", err)
	}
	dto := mapper.ToPurchaseOrderDTO(po, s.Today())
	return &dto, nil
}

// List returns a page of purchase orders in tracking order
func (s *PurchaseOrderService) List(ctx context.Context, page, pageSize int, filters *repository.PurchaseOrderFilters) (*domain.PaginatedResponse, error) {
	pos, total, err := s.poRepo.List(ctx, page, pageSize, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list purchase orders: %w", err)
	}

	page, pageSize = clampPage(page, pageSize)
	today := s.Today()
	dtos := make([]domain.PurchaseOrderDTO, len(pos))
	for i := range pos {
		dtos[i] = mapper.ToPurchaseOrderDTO(&pos[i], today)
	}

	return &domain.PaginatedResponse{
		Data:       dtos,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages(total, pageSize),
	}, nil
}

// Template returns an example upload file, UTF-8 with a byte order mark so
// spreadsheet tools detect the encoding
func (s *PurchaseOrderService) Template() ([]byte, error) {
	eta := s.Today().Format(domain.DateLayout)

	var buf bytes.Buffer
	buf.WriteString("\ufeff")
	w := csv.NewWriter(&buf)
	records := [][]string{
		{"PKID", "Supplier", "Order Qty", "ETA", "Status", "Remarks"},
		{"PKID001", "Supplier A", "100", eta, string(domain.PurchaseStatusIssued), "Urgent"},
		{"PKID002", "Supplier B", "200", eta, string(domain.PurchaseStatusInTransit), ""},
	}
	if err := w.WriteAll(records); err != nil {
		return nil, fmt.Errorf("failed to write template: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *PurchaseOrderService) refreshOpenCount(ctx context.Context) {
	if s.metrics == nil {
		return
	}
	n, err := s.poRepo.OpenCount(ctx)
	if err != nil {
		s.logger.Warn("Failed to count open purchase orders", zap.Error(err))
		return
	}
	s.metrics.SetOpenPurchaseOrders(n)
}
