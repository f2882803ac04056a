package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/straye-as/shortage-api/internal/domain"
	"github.com/straye-as/shortage-api/internal/service"
	"go.uber.org/zap"
)

type InventoryHandler struct {
	inventoryService *service.InventoryService
	archiveService   *service.ArchiveService
	maxUploadMB      int64
	logger           *zap.Logger
}

func NewInventoryHandler(inventoryService *service.InventoryService, archiveService *service.ArchiveService, maxUploadMB int64, logger *zap.Logger) *InventoryHandler {
	return &InventoryHandler{
		inventoryService: inventoryService,
		archiveService:   archiveService,
		maxUploadMB:      maxUploadMB,
		logger:           logger,
	}
}

// Available godoc
// @Summary Resolve on-hand stock
// @Description On-hand quantity of a part at a site from the newest snapshot dated on or before asOf. No snapshot means zero.
// @Tags Inventory
// @Produce json
// @Param pkid query string true "Part PKID"
// @Param site query string true "Plant site code"
// @Param asOf query string false "As-of date (YYYY-MM-DD), default today"
// @Success 200 {object} domain.AvailableStockDTO
// @Failure 400 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /inventory/available [get]
func (h *InventoryHandler) Available(w http.ResponseWriter, r *http.Request) {
	asOf, ok := h.asOf(w, r)
	if !ok {
		return
	}

	dto, err := h.inventoryService.Available(r.Context(), r.URL.Query().Get("pkid"), r.URL.Query().Get("site"), asOf)
	if err != nil {
		handleServiceError(w, h.logger, err, "resolve stock")
		return
	}

	respondJSON(w, http.StatusOK, dto)
}

// Levels godoc
// @Summary Stock levels as of a date
// @Tags Inventory
// @Produce json
// @Param site query string false "Plant site code (all sites when omitted)"
// @Param asOf query string false "As-of date (YYYY-MM-DD), default today"
// @Success 200 {array} domain.AvailableStockDTO
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /inventory/levels [get]
func (h *InventoryHandler) Levels(w http.ResponseWriter, r *http.Request) {
	asOf, ok := h.asOf(w, r)
	if !ok {
		return
	}

	levels, err := h.inventoryService.Levels(r.Context(), r.URL.Query().Get("site"), asOf)
	if err != nil {
		handleServiceError(w, h.logger, err, "list stock levels")
		return
	}

	respondJSON(w, http.StatusOK, levels)
}

// History godoc
// @Summary Compare recent snapshots
// @Description Last N snapshots of a part at a site, newest first, each with its change against the previous one.
// @Tags Inventory
// @Produce json
// @Param pkid query string true "Part PKID"
// @Param site query string true "Plant site code"
// @Param limit query int false "Number of snapshot dates (max 100)" default(2)
// @Success 200 {object} domain.SnapshotHistoryDTO
// @Failure 400 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /inventory/history [get]
func (h *InventoryHandler) History(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	history, err := h.inventoryService.History(r.Context(), r.URL.Query().Get("pkid"), r.URL.Query().Get("site"), limit)
	if err != nil {
		handleServiceError(w, h.logger, err, "get snapshot history")
		return
	}

	respondJSON(w, http.StatusOK, history)
}

// UpsertSnapshots godoc
// @Summary Load inventory snapshots
// @Description Long format, one row per (PKID, site, date). Re-uploading a date replaces that date's quantity.
// @Tags Inventory
// @Accept json
// @Produce json
// @Param request body []domain.SnapshotRequest true "Snapshot rows"
// @Success 200 {object} domain.BulkUpsertResult
// @Failure 400 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /inventory/snapshots [post]
func (h *InventoryHandler) UpsertSnapshots(w http.ResponseWriter, r *http.Request) {
	var reqs []domain.SnapshotRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	result, err := h.inventoryService.UpsertSnapshots(r.Context(), reqs)
	if err != nil {
		handleServiceError(w, h.logger, err, "store snapshots")
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// UpsertWide godoc
// @Summary Load a wide inventory sheet
// @Description One snapshot date, one row per part with a quantity per site code. Unknown site columns are ignored; at least one must name a known site.
// @Tags Inventory
// @Accept json
// @Produce json
// @Param request body domain.WideSnapshotRequest true "Wide snapshot"
// @Success 200 {object} domain.BulkUpsertResult
// @Failure 400 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /inventory/snapshots/wide [post]
func (h *InventoryHandler) UpsertWide(w http.ResponseWriter, r *http.Request) {
	var req domain.WideSnapshotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := validate.Var(req.SnapshotDate, "required,datetime=2006-01-02"); err != nil {
		respondWithError(w, http.StatusBadRequest, "snapshotDate must be a date in YYYY-MM-DD format")
		return
	}

	result, err := h.inventoryService.UpsertWide(r.Context(), &req)
	if err != nil {
		handleServiceError(w, h.logger, err, "store snapshots")
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// UploadWide godoc
// @Summary Upload a wide inventory CSV
// @Description CSV with a PKID column followed by one column per site code, at least one of them known. The file is archived when storage is configured.
// @Tags Inventory
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Inventory CSV"
// @Param snapshotDate formData string true "Snapshot date (YYYY-MM-DD)"
// @Success 200 {object} domain.BulkUpsertResult
// @Failure 400 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /inventory/snapshots/upload [post]
func (h *InventoryHandler) UploadWide(w http.ResponseWriter, r *http.Request) {
	data, filename, ok := readUpload(w, r, h.maxUploadMB)
	if !ok {
		return
	}

	snapshotDate := strings.TrimSpace(r.FormValue("snapshotDate"))
	if _, err := domain.ParseDate(snapshotDate); err != nil {
		respondWithError(w, http.StatusBadRequest, "snapshotDate must be a date in YYYY-MM-DD format")
		return
	}

	rows, err := service.ParseWideInventoryCSV(bytes.NewReader(data))
	if err != nil {
		handleServiceError(w, h.logger, err, "parse inventory file")
		return
	}

	archiveUpload(r, h.archiveService, h.logger, domain.ArchiveKindInventoryUpload, filename, data)

	result, err := h.inventoryService.UpsertWide(r.Context(), &domain.WideSnapshotRequest{
		SnapshotDate: snapshotDate,
		Rows:         rows,
	})
	if err != nil {
		handleServiceError(w, h.logger, err, "store snapshots")
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// asOf reads the asOf parameter, defaulting to today
func (h *InventoryHandler) asOf(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	asOf, err := parseAsOf(r, "asOf")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return time.Time{}, false
	}
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}
	return asOf, true
}
