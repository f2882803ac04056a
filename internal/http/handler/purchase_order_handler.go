package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/straye-as/shortage-api/internal/auth"
	"github.com/straye-as/shortage-api/internal/domain"
	"github.com/straye-as/shortage-api/internal/repository"
	"github.com/straye-as/shortage-api/internal/service"
	"go.uber.org/zap"
)

type PurchaseOrderHandler struct {
	purchaseService *service.PurchaseOrderService
	archiveService  *service.ArchiveService
	maxUploadMB     int64
	logger          *zap.Logger
}

func NewPurchaseOrderHandler(purchaseService *service.PurchaseOrderService, archiveService *service.ArchiveService, maxUploadMB int64, logger *zap.Logger) *PurchaseOrderHandler {
	return &PurchaseOrderHandler{
		purchaseService: purchaseService,
		archiveService:  archiveService,
		maxUploadMB:     maxUploadMB,
		logger:          logger,
	}
}

// List godoc
// @Summary List purchase orders
// @Description Ordered by status (PO Issued, In-Transit, Arrived, Obsoleted, ETC) and then by ETA. Open purchases past their ETA are flagged DELAYED, those due within three days IMMINENT.
// @Tags PurchaseOrders
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param pageSize query int false "Items per page (max 200)" default(20)
// @Param pkid query string false "Component PKID"
// @Param supplier query string false "Supplier"
// @Param status query string false "Status filter (comma-separated)"
// @Param open query bool false "Only purchases not yet arrived or obsoleted"
// @Success 200 {object} domain.PaginatedResponse{data=[]domain.PurchaseOrderDTO}
// @Failure 400 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /purchase-orders [get]
func (h *PurchaseOrderHandler) List(w http.ResponseWriter, r *http.Request) {
	page, pageSize := parsePagination(r)

	var statuses []domain.PurchaseOrderStatus
	for _, raw := range queryList(r, "status") {
		status, err := domain.ParsePurchaseOrderStatus(raw)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		statuses = append(statuses, status)
	}
	openOnly, _ := strconv.ParseBool(r.URL.Query().Get("open"))

	filters := &repository.PurchaseOrderFilters{
		PKID:     r.URL.Query().Get("pkid"),
		Supplier: r.URL.Query().Get("supplier"),
		Statuses: statuses,
		OpenOnly: openOnly,
	}

	result, err := h.purchaseService.List(r.Context(), page, pageSize, filters)
	if err != nil {
		handleServiceError(w, h.logger, err, "list purchase orders")
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// GetByID godoc
// @Summary Get purchase order
// @Tags PurchaseOrders
// @Produce json
// @Param id path string true "Purchase order ID"
// @Success 200 {object} domain.PurchaseOrderDTO
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /purchase-orders/{id} [get]
func (h *PurchaseOrderHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	po, err := h.purchaseService.GetByID(r.Context(), id)
	if err != nil {
		handleServiceError(w, h.logger, err, "get purchase order")
		return
	}
	respondJSON(w, http.StatusOK, po)
}

// Create godoc
// @Summary Place purchase orders
// @Description Each row becomes one purchase dated today and numbered PO-YYYYMMDD-NNN. Invalid rows are reported and skipped.
// @Tags PurchaseOrders
// @Accept json
// @Produce json
// @Param request body []domain.PurchaseOrderRequest true "Purchases"
// @Success 201 {object} domain.PurchaseOrderBatchResult
// @Failure 400 {object} domain.APIError
// @Failure 413 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /purchase-orders [post]
func (h *PurchaseOrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	rows, ok := decodeRows[domain.PurchaseOrderRequest](w, r)
	if !ok {
		return
	}
	result, err := h.purchaseService.Create(r.Context(), rows, auth.Actor(r.Context()))
	if err != nil {
		handleServiceError(w, h.logger, err, "create purchase orders")
		return
	}
	respondJSON(w, http.StatusCreated, result)
}

// Upload godoc
// @Summary Upload a purchase order CSV
// @Description CSV with PKID, Supplier, Order Qty and ETA columns and optional Status and Remarks columns. UTF-8 and CP949 files are accepted. The file is archived when storage is configured.
// @Tags PurchaseOrders
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Purchase order CSV"
// @Success 201 {object} domain.PurchaseOrderBatchResult
// @Failure 400 {object} domain.APIError
// @Failure 413 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /purchase-orders/upload [post]
func (h *PurchaseOrderHandler) Upload(w http.ResponseWriter, r *http.Request) {
	data, filename, ok := readUpload(w, r, h.maxUploadMB)
	if !ok {
		return
	}

	rows, err := service.ParsePurchaseOrderCSV(bytes.NewReader(data))
	if err != nil {
		handleServiceError(w, h.logger, err, "parse purchase order file")
		return
	}

	archive := archiveUpload(r, h.archiveService, h.logger, domain.ArchiveKindPurchaseUpload, filename, data)

	result, err := h.purchaseService.CreateParsed(r.Context(), rows, auth.Actor(r.Context()))
	if err != nil {
		handleServiceError(w, h.logger, err, "create purchase orders")
		return
	}
	result.Archive = archive
	respondJSON(w, http.StatusCreated, result)
}

// Update godoc
// @Summary Update purchase order tracking
// @Description Change the ETA, status or remarks. Omitted fields are kept; an empty ETA clears it.
// @Tags PurchaseOrders
// @Accept json
// @Produce json
// @Param id path string true "Purchase order ID"
// @Param request body domain.UpdatePurchaseOrderRequest true "Changes"
// @Success 200 {object} domain.PurchaseOrderDTO
// @Failure 400 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /purchase-orders/{id} [patch]
func (h *PurchaseOrderHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	var req domain.UpdatePurchaseOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	po, err := h.purchaseService.Update(r.Context(), id, &req, auth.Actor(r.Context()))
	if err != nil {
		handleServiceError(w, h.logger, err, "update purchase order")
		return
	}
	respondJSON(w, http.StatusOK, po)
}

// Template godoc
// @Summary Download the purchase order upload template
// @Tags PurchaseOrders
// @Produce text/csv
// @Success 200 {file} file
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /purchase-orders/template [get]
func (h *PurchaseOrderHandler) Template(w http.ResponseWriter, r *http.Request) {
	data, err := h.purchaseService.Template()
	if err != nil {
		handleServiceError(w, h.logger, err, "build purchase order template")
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="po_upload_template.csv"`)
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *PurchaseOrderHandler) parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid purchase order ID: must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}
