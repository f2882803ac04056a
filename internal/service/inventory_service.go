package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/straye-as/shortage-api/internal/domain"
	"github.com/straye-as/shortage-api/internal/mapper"
	"github.com/straye-as/shortage-api/internal/metrics"
	"github.com/straye-as/shortage-api/internal/repository"
	"go.uber.org/zap"
)

// DefaultHistoryLimit is the number of snapshot dates compared by default
const DefaultHistoryLimit = 2

// MaxHistoryLimit bounds a snapshot history request
const MaxHistoryLimit = 100

// InventoryService stores dated inventory snapshots and answers point-in-time
// stock lookups
type InventoryService struct {
	inventoryRepo *repository.InventoryRepository
	siteRepo      *repository.PlantSiteRepository
	metrics       *metrics.Metrics
	logger        *zap.Logger
}

// NewInventoryService creates a new inventory service instance
func NewInventoryService(
	inventoryRepo *repository.InventoryRepository,
	siteRepo *repository.PlantSiteRepository,
	m *metrics.Metrics,
	logger *zap.Logger,
) *InventoryService {
	return &InventoryService{
		inventoryRepo: inventoryRepo,
		siteRepo:      siteRepo,
		metrics:       m,
		logger:        logger,
	}
}

// UpsertSnapshots stores long-format snapshot rows. Rows naming an unknown
// site, an unparsable date or a negative quantity are rejected individually.
func (s *InventoryService) UpsertSnapshots(ctx context.Context, reqs []domain.SnapshotRequest) (*domain.BulkUpsertResult, error) {
	if err := checkBatchSize(len(reqs)); err != nil {
		return nil, err
	}

	codes := make(map[string]bool)
	for _, r := range reqs {
		codes[strings.TrimSpace(r.PlantSite)] = true
	}
	sites, err := s.siteRepo.ExistingCodes(ctx, keys(codes))
	if err != nil {
		return nil, fmt.Errorf("failed to check plant sites: %w", err)
	}

	type snapKey struct {
		pkid, site string
		date       time.Time
	}

	result := &domain.BulkUpsertResult{Rejected: []domain.BulkRejectedRow{}}
	byKey := make(map[snapKey]int)
	var snaps []domain.InventorySnapshot
	for i := range reqs {
		req := reqs[i]
		req.PKID = strings.TrimSpace(req.PKID)
		req.PlantSite = strings.TrimSpace(req.PlantSite)
		req.SnapshotDate = strings.TrimSpace(req.SnapshotDate)
		if reason := structReason(&req); reason != "" {
			rejectRow(result, i, reason)
			continue
		}
		date, err := domain.ParseDate(req.SnapshotDate)
		if err != nil {
			rejectRow(result, i, domain.ReasonInvalidDate)
			continue
		}
		if req.OnHandQty.IsNegative() {
			rejectRow(result, i, "negative on-hand quantity")
			continue
		}
		if !sites[req.PlantSite] {
			rejectRow(result, i, domain.ReasonUnknownSite)
			continue
		}

		snap := domain.InventorySnapshot{
			PKID:         req.PKID,
			PlantSite:    req.PlantSite,
			SnapshotDate: date,
			OnHandQty:    req.OnHandQty,
			Source:       domain.SnapshotSourceUpload,
		}
		k := snapKey{snap.PKID, snap.PlantSite, date}
		if at, ok := byKey[k]; ok {
			snaps[at] = snap
			continue
		}
		byKey[k] = len(snaps)
		snaps = append(snaps, snap)
	}

	if err := s.store(ctx, snaps, domain.SnapshotSourceUpload); err != nil {
		return nil, err
	}
	result.Upserted = len(snaps)
	return result, nil
}

// UpsertWide melts a wide snapshot sheet, one column per site, into long
// rows. Site columns that are not in the plant site master are ignored, but
// at least one column must name a known site.
func (s *InventoryService) UpsertWide(ctx context.Context, req *domain.WideSnapshotRequest) (*domain.BulkUpsertResult, error) {
	date, err := domain.ParseDate(req.SnapshotDate)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := checkBatchSize(len(req.Rows)); err != nil {
		return nil, err
	}

	codes := make(map[string]bool)
	for _, row := range req.Rows {
		for site := range row.Sites {
			codes[strings.TrimSpace(site)] = true
		}
	}
	known, err := s.siteRepo.ExistingCodes(ctx, keys(codes))
	if err != nil {
		return nil, fmt.Errorf("failed to check plant sites: %w", err)
	}
	if len(known) == 0 {
		return nil, fmt.Errorf("%w: no valid site columns found", ErrInvalidInput)
	}
	var ignored []string
	for code := range codes {
		if !known[code] {
			ignored = append(ignored, code)
		}
	}
	if len(ignored) > 0 {
		sort.Strings(ignored)
		s.logger.Warn("Ignoring unknown site columns in inventory upload", zap.Strings("sites", ignored))
	}

	result := &domain.BulkUpsertResult{Rejected: []domain.BulkRejectedRow{}}
	byKey := make(map[[2]string]int)
	var snaps []domain.InventorySnapshot
	for i, row := range req.Rows {
		pkid := strings.TrimSpace(row.PKID)
		if pkid == "" {
			rejectRow(result, i, domain.ReasonMissingField+": pkid")
			continue
		}

		siteCodes := make([]string, 0, len(row.Sites))
		for site := range row.Sites {
			siteCodes = append(siteCodes, site)
		}
		sort.Strings(siteCodes)

		for _, site := range siteCodes {
			qty := row.Sites[site]
			site = strings.TrimSpace(site)
			if !known[site] {
				continue
			}
			if qty.IsNegative() {
				rejectRow(result, i, fmt.Sprintf("negative on-hand quantity at %s", site))
				continue
			}
			snap := domain.InventorySnapshot{
				PKID:         pkid,
				PlantSite:    site,
				SnapshotDate: date,
				OnHandQty:    qty,
				Source:       domain.SnapshotSourceUpload,
			}
			k := [2]string{pkid, site}
			if at, ok := byKey[k]; ok {
				snaps[at] = snap
				continue
			}
			byKey[k] = len(snaps)
			snaps = append(snaps, snap)
		}
	}

	if err := s.store(ctx, snaps, domain.SnapshotSourceUpload); err != nil {
		return nil, err
	}
	result.Upserted = len(snaps)
	return result, nil
}

// Import stores snapshots read from an external feed, tagged with source
func (s *InventoryService) Import(ctx context.Context, snaps []domain.InventorySnapshot, source string) (int, error) {
	for i := range snaps {
		snaps[i].Source = source
	}
	if err := s.store(ctx, snaps, source); err != nil {
		return 0, err
	}
	return len(snaps), nil
}

// Available resolves the on-hand quantity of pkid at site as of a date:
// the newest snapshot dated on or before asOf, or zero when none exists
func (s *InventoryService) Available(ctx context.Context, pkid, site string, asOf time.Time) (*domain.AvailableStockDTO, error) {
	pkid = strings.TrimSpace(pkid)
	site = strings.TrimSpace(site)
	if pkid == "" || site == "" {
		return nil, fmt.Errorf("%w: pkid and site are required", ErrInvalidInput)
	}
	asOf = domain.DateOnly(asOf)

	snap, err := s.inventoryRepo.LatestOnOrBefore(ctx, pkid, site, asOf)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve stock: %w", err)
	}
	dto := mapper.ToAvailableStockDTO(pkid, site, asOf, snap)
	return &dto, nil
}

// Levels returns the resolved stock of every part at site as of a date. An
// empty site covers all sites.
func (s *InventoryService) Levels(ctx context.Context, site string, asOf time.Time) ([]domain.AvailableStockDTO, error) {
	asOf = domain.DateOnly(asOf)
	snaps, err := s.inventoryRepo.LatestAsOf(ctx, strings.TrimSpace(site), asOf)
	if err != nil {
		return nil, fmt.Errorf("failed to list stock levels: %w", err)
	}
	dtos := make([]domain.AvailableStockDTO, len(snaps))
	for i := range snaps {
		dtos[i] = mapper.ToAvailableStockDTO(snaps[i].PKID, snaps[i].PlantSite, asOf, &snaps[i])
	}
	return dtos, nil
}

// History compares the last limit snapshots of pkid at site
func (s *InventoryService) History(ctx context.Context, pkid, site string, limit int) (*domain.SnapshotHistoryDTO, error) {
	pkid = strings.TrimSpace(pkid)
	site = strings.TrimSpace(site)
	if pkid == "" || site == "" {
		return nil, fmt.Errorf("%w: pkid and site are required", ErrInvalidInput)
	}
	if limit < 1 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}

	snaps, err := s.inventoryRepo.History(ctx, pkid, site, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot history: %w", err)
	}
	dto := mapper.ToSnapshotHistoryDTO(pkid, site, snaps)
	return &dto, nil
}

// LatestSnapshotDate returns the newest snapshot date on record, or nil
func (s *InventoryService) LatestSnapshotDate(ctx context.Context) (*time.Time, error) {
	d, err := s.inventoryRepo.LatestSnapshotDate(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest snapshot date: %w", err)
	}
	return d, nil
}

func (s *InventoryService) store(ctx context.Context, snaps []domain.InventorySnapshot, source string) error {
	if err := s.inventoryRepo.UpsertSnapshots(ctx, snaps); err != nil {
		return fmt.Errorf("failed to store inventory snapshots: %w", err)
	}
	s.metrics.ObserveSnapshots(source, len(snaps))
	if latest, err := s.LatestSnapshotDate(ctx); err != nil {
		s.logger.Warn("Failed to read latest snapshot date", zap.Error(err))
	} else if latest != nil {
		s.metrics.SetLatestSnapshot(*latest)
	}
	s.logger.Info("Inventory snapshots stored",
		zap.String("source", source),
		zap.Int("rows", len(snaps)),
	)
	return nil
}
