package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/straye-as/shortage-api/internal/domain"
	"github.com/straye-as/shortage-api/internal/mapper"
	"github.com/straye-as/shortage-api/internal/repository"
	"go.uber.org/zap"
)

// MaxMasterDataRows bounds a single master-data load
const MaxMasterDataRows = 50000

// MasterDataService loads and reads products, plant sites, BOM lines and
// substitute links. Every loader is idempotent: re-sending a row updates it.
type MasterDataService struct {
	productRepo *repository.ProductRepository
	siteRepo    *repository.PlantSiteRepository
	bomRepo     *repository.BOMRepository
	logger      *zap.Logger
}

// NewMasterDataService creates a new master data service instance
func NewMasterDataService(
	productRepo *repository.ProductRepository,
	siteRepo *repository.PlantSiteRepository,
	bomRepo *repository.BOMRepository,
	logger *zap.Logger,
) *MasterDataService {
	return &MasterDataService{
		productRepo: productRepo,
		siteRepo:    siteRepo,
		bomRepo:     bomRepo,
		logger:      logger,
	}
}

// UpsertProducts loads product master rows
func (s *MasterDataService) UpsertProducts(ctx context.Context, reqs []domain.ProductRequest) (*domain.BulkUpsertResult, error) {
	if err := checkBatchSize(len(reqs)); err != nil {
		return nil, err
	}

	result := &domain.BulkUpsertResult{Rejected: []domain.BulkRejectedRow{}}
	byKey := make(map[string]int)
	var products []domain.Product
	for i := range reqs {
		req := reqs[i]
		req.PKID = strings.TrimSpace(req.PKID)
		if reason := structReason(&req); reason != "" {
			rejectRow(result, i, reason)
			continue
		}
		p := domain.Product{
			PKID:        req.PKID,
			Description: strings.TrimSpace(req.Description),
			Unit:        strings.TrimSpace(req.Unit),
			Customer:    strings.TrimSpace(req.Customer),
			CarType:     strings.TrimSpace(req.CarType),
		}
		// last occurrence wins
		if at, ok := byKey[p.PKID]; ok {
			products[at] = p
			continue
		}
		byKey[p.PKID] = len(products)
		products = append(products, p)
	}

	if err := s.productRepo.Upsert(ctx, products); err != nil {
		return nil, fmt.Errorf("failed to upsert products: %w", err)
	}
	result.Upserted = len(products)

	s.logger.Info("Products loaded",
		zap.Int("upserted", result.Upserted),
		zap.Int("rejected", len(result.Rejected)),
	)
	return result, nil
}

// UpsertPlantSites loads plant site rows
func (s *MasterDataService) UpsertPlantSites(ctx context.Context, reqs []domain.PlantSiteRequest) (*domain.BulkUpsertResult, error) {
	if err := checkBatchSize(len(reqs)); err != nil {
		return nil, err
	}

	result := &domain.BulkUpsertResult{Rejected: []domain.BulkRejectedRow{}}
	byKey := make(map[string]int)
	var sites []domain.PlantSite
	for i := range reqs {
		req := reqs[i]
		req.SiteCode = strings.TrimSpace(req.SiteCode)
		if reason := structReason(&req); reason != "" {
			rejectRow(result, i, reason)
			continue
		}
		site := domain.PlantSite{
			SiteCode: req.SiteCode,
			Name:     strings.TrimSpace(req.Name),
			Region:   strings.TrimSpace(req.Region),
		}
		if at, ok := byKey[site.SiteCode]; ok {
			sites[at] = site
			continue
		}
		byKey[site.SiteCode] = len(sites)
		sites = append(sites, site)
	}

	if err := s.siteRepo.Upsert(ctx, sites); err != nil {
		return nil, fmt.Errorf("failed to upsert plant sites: %w", err)
	}
	result.Upserted = len(sites)

	s.logger.Info("Plant sites loaded",
		zap.Int("upserted", result.Upserted),
		zap.Int("rejected", len(result.Rejected)),
	)
	return result, nil
}

// UpsertBOMLines loads BOM edges. Self loops and non-positive quantities are
// rejected per row. References to parts missing from the product master are
// accepted and surface as integrity faults when a report runs.
func (s *MasterDataService) UpsertBOMLines(ctx context.Context, reqs []domain.BOMLineRequest) (*domain.BulkUpsertResult, error) {
	if err := checkBatchSize(len(reqs)); err != nil {
		return nil, err
	}

	type edge struct{ parent, component string }

	result := &domain.BulkUpsertResult{Rejected: []domain.BulkRejectedRow{}}
	byKey := make(map[edge]int)
	var lines []domain.BOMLine
	for i := range reqs {
		req := reqs[i]
		if reason := structReason(&req); reason != "" {
			rejectRow(result, i, reason)
			continue
		}
		line, err := domain.NewBOMLine(req.ParentPKID, req.ComponentPKID, req.QuantityPerUnit)
		if err != nil {
			rejectRow(result, i, err.Error())
			continue
		}
		k := edge{line.ParentPKID, line.ComponentPKID}
		if at, ok := byKey[k]; ok {
			lines[at] = *line
			continue
		}
		byKey[k] = len(lines)
		lines = append(lines, *line)
	}

	if err := s.bomRepo.UpsertLines(ctx, lines); err != nil {
		return nil, fmt.Errorf("failed to upsert bom lines: %w", err)
	}
	result.Upserted = len(lines)

	s.logger.Info("BOM lines loaded",
		zap.Int("upserted", result.Upserted),
		zap.Int("rejected", len(result.Rejected)),
	)
	return result, nil
}

// UpsertSubstitutes loads substitute links
func (s *MasterDataService) UpsertSubstitutes(ctx context.Context, reqs []domain.SubstituteRequest) (*domain.BulkUpsertResult, error) {
	if err := checkBatchSize(len(reqs)); err != nil {
		return nil, err
	}

	type pair struct{ primary, substitute string }

	result := &domain.BulkUpsertResult{Rejected: []domain.BulkRejectedRow{}}
	byKey := make(map[pair]int)
	var links []domain.SubstituteLink
	for i := range reqs {
		req := reqs[i]
		if reason := structReason(&req); reason != "" {
			rejectRow(result, i, reason)
			continue
		}
		link, err := domain.NewSubstituteLink(req.PrimaryPKID, req.SubstitutePKID, req.Priority)
		if err != nil {
			rejectRow(result, i, err.Error())
			continue
		}
		link.Description = strings.TrimSpace(req.Description)
		k := pair{link.PrimaryPKID, link.SubstitutePKID}
		if at, ok := byKey[k]; ok {
			links[at] = *link
			continue
		}
		byKey[k] = len(links)
		links = append(links, *link)
	}

	if err := s.bomRepo.UpsertSubstitutes(ctx, links); err != nil {
		return nil, fmt.Errorf("failed to upsert substitutes: %w", err)
	}
	result.Upserted = len(links)

	s.logger.Info("Substitute links loaded",
		zap.Int("upserted", result.Upserted),
		zap.Int("rejected", len(result.Rejected)),
	)
	return result, nil
}

// ListProducts returns a paginated list of products, optionally for one customer
func (s *MasterDataService) ListProducts(ctx context.Context, page, pageSize int, customer string) (*domain.PaginatedResponse, error) {
	products, total, err := s.productRepo.List(ctx, page, pageSize, customer)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}

	page, pageSize = clampPage(page, pageSize)
	dtos := make([]domain.ProductDTO, len(products))
	for i := range products {
		dtos[i] = mapper.ToProductDTO(&products[i])
	}

	return &domain.PaginatedResponse{
		Data:       dtos,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages(total, pageSize),
	}, nil
}

// ListPlantSites returns every plant site
func (s *MasterDataService) ListPlantSites(ctx context.Context) ([]domain.PlantSiteDTO, error) {
	sites, err := s.siteRepo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list plant sites: %w", err)
	}
	dtos := make([]domain.PlantSiteDTO, len(sites))
	for i := range sites {
		dtos[i] = mapper.ToPlantSiteDTO(&sites[i])
	}
	return dtos, nil
}

// GetBOM returns the bill of materials of parent with each component's substitutes
func (s *MasterDataService) GetBOM(ctx context.Context, parent string) (*domain.BOMDTO, error) {
	parent = strings.TrimSpace(parent)
	lines, err := s.bomRepo.LinesForParent(ctx, parent)
	if err != nil {
		return nil, fmt.Errorf("failed to get bom: %w", err)
	}
	if len(lines) == 0 {
		exists, err := s.productRepo.ExistingPKIDs(ctx, []string{parent})
		if err != nil {
			return nil, fmt.Errorf("failed to check product: %w", err)
		}
		if !exists[parent] {
			return nil, ErrNotFound
		}
	}

	substitutes := make(map[string][]domain.SubstituteLink, len(lines))
	for _, l := range lines {
		links, err := s.bomRepo.SubstitutesFor(ctx, l.ComponentPKID)
		if err != nil {
			return nil, fmt.Errorf("failed to get substitutes: %w", err)
		}
		substitutes[l.ComponentPKID] = links
	}

	dto := mapper.ToBOMDTO(parent, lines, substitutes)
	return &dto, nil
}

// DeleteBOMLine removes a single BOM edge
func (s *MasterDataService) DeleteBOMLine(ctx context.Context, parent, component string) error {
	deleted, err := s.bomRepo.DeleteLine(ctx, strings.TrimSpace(parent), strings.TrimSpace(component))
	if err != nil {
		return fmt.Errorf("failed to delete bom line: %w", err)
	}
	if !deleted {
		return ErrNotFound
	}
	s.logger.Info("BOM line deleted",
		zap.String("parent_pkid", parent),
		zap.String("component_pkid", component),
	)
	return nil
}

// ListSubstitutes returns the substitutes of primary in consumption order.
// A known part without substitutes yields an empty list.
func (s *MasterDataService) ListSubstitutes(ctx context.Context, primary string) ([]domain.SubstituteDTO, error) {
	primary = strings.TrimSpace(primary)
	links, err := s.bomRepo.SubstitutesFor(ctx, primary)
	if err != nil {
		return nil, fmt.Errorf("failed to get substitutes: %w", err)
	}
	if len(links) == 0 {
		exists, err := s.productRepo.ExistingPKIDs(ctx, []string{primary})
		if err != nil {
			return nil, fmt.Errorf("failed to check product: %w", err)
		}
		if !exists[primary] {
			return nil, ErrNotFound
		}
	}
	return mapper.ToSubstituteDTOs(links), nil
}

// DeleteSubstitute removes a single substitute link
func (s *MasterDataService) DeleteSubstitute(ctx context.Context, primary, substitute string) error {
	deleted, err := s.bomRepo.DeleteSubstitute(ctx, strings.TrimSpace(primary), strings.TrimSpace(substitute))
	if err != nil {
		return fmt.Errorf("failed to delete substitute link: %w", err)
	}
	if !deleted {
		return ErrNotFound
	}
	s.logger.Info("Substitute link deleted",
		zap.String("primary_pkid", primary),
		zap.String("substitute_pkid", substitute),
	)
	return nil
}

func rejectRow(result *domain.BulkUpsertResult, index int, reason string) {
	result.Rejected = append(result.Rejected, domain.BulkRejectedRow{Index: index, Reason: reason})
}

func checkBatchSize(n int) error {
	if n == 0 {
		return ErrEmptyBatch
	}
	if n > MaxMasterDataRows {
		return fmt.Errorf("%w: %d rows, limit %d", ErrBatchTooLarge, n, MaxMasterDataRows)
	}
	return nil
}

// structReason validates a request row and describes the first failure
func structReason(v interface{}) string {
	err := rowValidator.Struct(v)
	if err == nil {
		return ""
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return fe.Field() + ": " + domain.GetValidationMessage(fe.Tag())
	}
	return err.Error()
}
