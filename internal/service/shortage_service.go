package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/straye-as/shortage-api/internal/config"
	"github.com/straye-as/shortage-api/internal/domain"
	"github.com/straye-as/shortage-api/internal/mapper"
	"github.com/straye-as/shortage-api/internal/metrics"
	"github.com/straye-as/shortage-api/internal/repository"
	"github.com/straye-as/shortage-api/internal/shortage"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ReportRequest selects the order lines and analysis date of a report.
// Empty sets mean no filtering on that dimension.
type ReportRequest struct {
	AsOf      time.Time
	Customers []string
	Sites     []string
	Statuses  []domain.OrderStatus
}

// ShortageService loads a consistent analysis view and runs the shortage engine over it
type ShortageService struct {
	catalogRepo *repository.CatalogRepository
	orderRepo   *repository.OrderRepository
	cfg         config.ShortageConfig
	metrics     *metrics.Metrics
	logger      *zap.Logger
	now         func() time.Time
}

// NewShortageService creates a new shortage service instance
func NewShortageService(
	catalogRepo *repository.CatalogRepository,
	orderRepo *repository.OrderRepository,
	cfg config.ShortageConfig,
	m *metrics.Metrics,
	logger *zap.Logger,
) *ShortageService {
	return &ShortageService{
		catalogRepo: catalogRepo,
		orderRepo:   orderRepo,
		cfg:         cfg,
		metrics:     m,
		logger:      logger,
		now:         time.Now,
	}
}

// Today returns the current calendar date in UTC
func (s *ShortageService) Today() time.Time {
	return domain.DateOnly(s.now().UTC())
}

// Generate computes the R1 and R2 reports. Integrity faults fail the whole
// run with a *shortage.ReportError.
func (s *ShortageService) Generate(ctx context.Context, req ReportRequest) (*shortage.Report, error) {
	asOf := req.AsOf
	if asOf.IsZero() {
		asOf = s.Today()
	}
	asOf = domain.DateOnly(asOf)

	statuses := req.Statuses
	if len(statuses) == 0 {
		statuses = s.defaultStatuses()
	}

	start := time.Now()
	report, err := s.generate(ctx, asOf, req.Customers, req.Sites, statuses)
	s.metrics.ObserveReport(time.Since(start), report, err)

	if err != nil {
		var reportErr *shortage.ReportError
		if errors.As(err, &reportErr) {
			s.logger.Warn("Shortage report failed on master data faults",
				zap.String("as_of", asOf.Format(domain.DateLayout)),
				zap.Int("faulted_lines", len(reportErr.Faults)),
				zap.Int("completed_lines", reportErr.Completed),
			)
			return nil, err
		}
		return nil, fmt.Errorf("failed to generate shortage report: %w", err)
	}

	s.logger.Info("Shortage report generated",
		zap.String("as_of", asOf.Format(domain.DateLayout)),
		zap.Int("order_lines", len(report.R2)),
		zap.Int("components", len(report.Components)),
		zap.Int("rollup_rows", len(report.R1)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return report, nil
}

// Report is Generate mapped to its response DTO
func (s *ShortageService) Report(ctx context.Context, req ReportRequest) (*domain.ShortageReportDTO, error) {
	report, err := s.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	dto := mapper.ToShortageReportDTO(report, s.now())
	return &dto, nil
}

// ForOrder returns the shortage records of a single order line as of asOf
func (s *ShortageService) ForOrder(ctx context.Context, id uuid.UUID, asOf time.Time) ([]domain.ShortageRecordDTO, error) {
	order, err := s.orderRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	if asOf.IsZero() {
		asOf = s.Today()
	}
	asOf = domain.DateOnly(asOf)

	view, err := s.catalogRepo.LoadAnalysisView(ctx, asOf, &repository.OrderFilters{
		Sites:    []string{order.ProductionSite},
		PONumber: order.PONumber,
		PKID:     order.PKID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load analysis view: %w", err)
	}

	engine, err := shortage.NewEngine(shortage.NewCatalog(view.Catalog), nil, s.options(asOf))
	if err != nil {
		return nil, fmt.Errorf("failed to create shortage engine: %w", err)
	}

	records, err := engine.Compute(*order)
	if err != nil {
		return nil, err
	}

	dtos := make([]domain.ShortageRecordDTO, 0, len(records))
	for i := range records {
		dtos = append(dtos, mapper.ToShortageRecordDTO(&records[i]))
	}
	return dtos, nil
}

func (s *ShortageService) generate(ctx context.Context, asOf time.Time, customers, sites []string, statuses []domain.OrderStatus) (*shortage.Report, error) {
	view, err := s.catalogRepo.LoadAnalysisView(ctx, asOf, &repository.OrderFilters{
		Customers: customers,
		Sites:     sites,
		Statuses:  statuses,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load analysis view: %w", err)
	}

	catalog := shortage.NewCatalog(view.Catalog)
	for _, verr := range catalog.Validate() {
		s.logger.Warn("Inconsistent bill of materials", zap.Error(verr))
	}

	engine, err := shortage.NewEngine(catalog, nil, s.options(asOf))
	if err != nil {
		return nil, err
	}

	return engine.Run(ctx, view.Orders, shortage.Filter{
		Customers: customers,
		Sites:     sites,
		Statuses:  statuses,
	})
}

func (s *ShortageService) options(asOf time.Time) shortage.Options {
	return shortage.Options{
		AnalysisDate:   asOf,
		UrgentLeadDays: s.cfg.UrgentLeadTimeDays,
		Workers:        s.cfg.Workers,
	}
}

func (s *ShortageService) defaultStatuses() []domain.OrderStatus {
	var statuses []domain.OrderStatus
	for _, raw := range s.cfg.DefaultStatuses {
		status, err := domain.ParseOrderStatus(raw)
		if err != nil || status == "" {
			s.logger.Warn("Ignoring invalid default status", zap.String("status", raw))
			continue
		}
		statuses = append(statuses, status)
	}
	return statuses
}
