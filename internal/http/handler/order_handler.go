package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
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

type OrderHandler struct {
	orderService   *service.OrderService
	archiveService *service.ArchiveService
	maxUploadMB    int64
	logger         *zap.Logger
}

func NewOrderHandler(orderService *service.OrderService, archiveService *service.ArchiveService, maxUploadMB int64, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		orderService:   orderService,
		archiveService: archiveService,
		maxUploadMB:    maxUploadMB,
		logger:         logger,
	}
}

// Reconcile godoc
// @Summary Reconcile order rows
// @Description Insert new order lines and update changed ones, matched on (PO number, PKID, customer, production site). Invalid rows are reported and skipped; the rest of the batch is applied.
// @Tags Orders
// @Accept json
// @Produce json
// @Param request body domain.ReconcileOrdersRequest true "Order rows"
// @Success 200 {object} domain.ReconcileResult
// @Failure 400 {object} domain.APIError
// @Failure 413 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /orders/reconcile [post]
func (h *OrderHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	var req domain.ReconcileOrdersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	result, err := h.orderService.ReconcileRequests(r.Context(), req.Rows, service.ReconcileOptions{CancelMissing: req.CancelMissing})
	if err != nil {
		handleServiceError(w, h.logger, err, "reconcile orders")
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// Upload godoc
// @Summary Upload an order CSV
// @Description Reconcile an order export in CSV form. Headers are matched case-insensitively (PO_NUMBER, PKID, CUSTOMER, PRODUCTION_SITE, ORDER_QTY, DELIVERED_QTY, ORDER_DATE, DUE_DATE, STATUS). The file is archived when storage is configured.
// @Tags Orders
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Order CSV"
// @Param cancelMissing formData bool false "Cancel active lines of the uploaded customers and sites that are missing from the file"
// @Success 200 {object} domain.UploadOrdersResponse
// @Failure 400 {object} domain.APIError
// @Failure 413 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /orders/upload [post]
func (h *OrderHandler) Upload(w http.ResponseWriter, r *http.Request) {
	data, filename, ok := readUpload(w, r, h.maxUploadMB)
	if !ok {
		return
	}

	cancelMissing, _ := strconv.ParseBool(r.FormValue("cancelMissing"))

	rows, err := service.ParseOrderCSV(bytes.NewReader(data))
	if err != nil {
		handleServiceError(w, h.logger, err, "parse order file")
		return
	}

	archive := archiveUpload(r, h.archiveService, h.logger, domain.ArchiveKindOrderUpload, filename, data)

	result, err := h.orderService.ReconcileParsed(r.Context(), rows, service.ReconcileOptions{CancelMissing: cancelMissing})
	if err != nil {
		handleServiceError(w, h.logger, err, "reconcile orders")
		return
	}

	respondJSON(w, http.StatusOK, domain.UploadOrdersResponse{Archive: archive, Result: result})
}

// List godoc
// @Summary List order lines
// @Tags Orders
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param pageSize query int false "Items per page (max 200)" default(20)
// @Param customer query string false "Customer filter (comma-separated)"
// @Param site query string false "Production site filter (comma-separated)"
// @Param status query string false "Status filter (comma-separated)" Enums(OPEN, PARTIAL, CLOSED, CANCELLED)
// @Param pkid query string false "Product PKID"
// @Param poNumber query string false "PO number"
// @Param sortBy query string false "Sort field" Enums(createdAt, updatedAt, poNumber, pkid, customer, productionSite, orderDate, dueDate)
// @Param sortOrder query string false "Sort order" Enums(asc, desc) default(desc)
// @Success 200 {object} domain.PaginatedResponse{data=[]domain.OrderDTO}
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /orders [get]
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	page, pageSize := parsePagination(r)

	statuses, err := parseStatuses(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	filters := &repository.OrderFilters{
		Customers: queryList(r, "customer"),
		Sites:     queryList(r, "site"),
		Statuses:  statuses,
		PKID:      r.URL.Query().Get("pkid"),
		PONumber:  r.URL.Query().Get("poNumber"),
	}

	sort := repository.DefaultSortConfig()
	if sortBy := r.URL.Query().Get("sortBy"); sortBy != "" {
		sort.Field = sortBy
	}
	sort.Order = repository.ParseSortOrder(r.URL.Query().Get("sortOrder"))

	result, err := h.orderService.List(r.Context(), page, pageSize, filters, sort)
	if err != nil {
		handleServiceError(w, h.logger, err, "list orders")
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// GetByID godoc
// @Summary Get order line
// @Tags Orders
// @Produce json
// @Param id path string true "Order ID"
// @Success 200 {object} domain.OrderDTO
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /orders/{id} [get]
func (h *OrderHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid order ID: must be a valid UUID")
		return
	}

	order, err := h.orderService.GetByID(r.Context(), id)
	if err != nil {
		handleServiceError(w, h.logger, err, "get order")
		return
	}

	respondJSON(w, http.StatusOK, order)
}

// readUpload reads the "file" field of a multipart form into memory. On
// failure the response has been written and ok is false.
func readUpload(w http.ResponseWriter, r *http.Request, maxUploadMB int64) (data []byte, filename string, ok bool) {
	limit := maxUploadMB * 1024 * 1024
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := r.ParseMultipartForm(limit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondWithError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("File too large: maximum size is %dMB", maxUploadMB))
			return nil, "", false
		}
		respondWithError(w, http.StatusBadRequest, "Invalid multipart form: "+err.Error())
		return nil, "", false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid file upload: file field is required")
		return nil, "", false
	}
	defer file.Close()

	data, err = io.ReadAll(file)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Failed to read uploaded file")
		return nil, "", false
	}
	return data, header.Filename, true
}

// archiveUpload keeps a copy of an uploaded sheet. Archiving is best effort:
// a storage failure is logged and the upload is still processed.
func archiveUpload(r *http.Request, archives *service.ArchiveService, logger *zap.Logger, kind domain.ArchiveKind, filename string, data []byte) *domain.ArchivedFileDTO {
	if archives == nil {
		return nil
	}
	archived, err := archives.Save(r.Context(), kind, filename, "text/csv", bytes.NewReader(data), auth.Actor(r.Context()))
	if err != nil {
		if !errors.Is(err, service.ErrStorageUnavailable) {
			logger.Warn("failed to archive upload", zap.String("filename", filename), zap.Error(err))
		}
		return nil
	}
	return archived
}
