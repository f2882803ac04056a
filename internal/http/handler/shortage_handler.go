package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/straye-as/shortage-api/internal/auth"
	"github.com/straye-as/shortage-api/internal/service"
	"go.uber.org/zap"
)

type ShortageHandler struct {
	shortageService *service.ShortageService
	exportService   *service.ExportService
	logger          *zap.Logger
}

func NewShortageHandler(shortageService *service.ShortageService, exportService *service.ExportService, logger *zap.Logger) *ShortageHandler {
	return &ShortageHandler{
		shortageService: shortageService,
		exportService:   exportService,
		logger:          logger,
	}
}

// parseReportRequest reads the shared report filters
func parseReportRequest(r *http.Request) (service.ReportRequest, error) {
	asOf, err := parseAsOf(r, "asOf")
	if err != nil {
		return service.ReportRequest{}, err
	}
	statuses, err := parseStatuses(r)
	if err != nil {
		return service.ReportRequest{}, err
	}
	return service.ReportRequest{
		AsOf:      asOf,
		Customers: queryList(r, "customer"),
		Sites:     queryList(r, "site"),
		Statuses:  statuses,
	}, nil
}

// Report godoc
// @Summary Shortage report
// @Description Explode every active order line through its BOM, resolve stock as of the analysis date and return the customer/site rollup (R1) with the per-line component detail (R2). Any line referencing unknown parts or sites fails the whole report with 422.
// @Tags Shortages
// @Produce json
// @Param asOf query string false "Analysis date (YYYY-MM-DD), default today"
// @Param customer query string false "Customer filter (repeatable or comma-separated)"
// @Param site query string false "Production site filter (repeatable or comma-separated)"
// @Param status query string false "Status filter" Enums(OPEN, PARTIAL)
// @Success 200 {object} domain.ShortageReportDTO
// @Failure 400 {object} domain.APIError
// @Failure 422 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /shortages/report [get]
func (h *ShortageHandler) Report(w http.ResponseWriter, r *http.Request) {
	req, err := parseReportRequest(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := h.shortageService.Report(r.Context(), req)
	if err != nil {
		handleServiceError(w, h.logger, err, "generate shortage report")
		return
	}

	respondJSON(w, http.StatusOK, report)
}

// Export godoc
// @Summary Download shortage report
// @Description XLSX carries both R1 and R2 sheets; CSV carries the selected view.
// @Tags Shortages
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Produce text/csv
// @Param format query string false "File format" Enums(xlsx, csv) default(xlsx)
// @Param view query string false "Report view for CSV" Enums(r1, r2) default(r1)
// @Param asOf query string false "Analysis date (YYYY-MM-DD), default today"
// @Param customer query string false "Customer filter"
// @Param site query string false "Production site filter"
// @Param status query string false "Status filter"
// @Success 200 {file} file
// @Failure 400 {object} domain.APIError
// @Failure 422 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /shortages/report/export [get]
func (h *ShortageHandler) Export(w http.ResponseWriter, r *http.Request) {
	req, err := parseReportRequest(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	file, err := h.exportService.Export(r.Context(), req, r.URL.Query().Get("format"), r.URL.Query().Get("view"))
	if err != nil {
		handleServiceError(w, h.logger, err, "export shortage report")
		return
	}

	writeAttachment(w, file.Filename, file.ContentType, file.Data)
}

// Archive godoc
// @Summary Export and archive shortage report
// @Description Render the report and keep a copy in object storage for later download.
// @Tags Shortages
// @Produce json
// @Param format query string false "File format" Enums(xlsx, csv) default(xlsx)
// @Param asOf query string false "Analysis date (YYYY-MM-DD), default today"
// @Success 201 {object} domain.ArchivedFileDTO
// @Failure 422 {object} domain.APIError
// @Failure 503 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /shortages/report/archive [post]
func (h *ShortageHandler) Archive(w http.ResponseWriter, r *http.Request) {
	req, err := parseReportRequest(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	archived, err := h.exportService.ExportAndArchive(r.Context(), req, r.URL.Query().Get("format"), auth.Actor(r.Context()))
	if err != nil {
		handleServiceError(w, h.logger, err, "archive shortage report")
		return
	}

	respondJSON(w, http.StatusCreated, archived)
}

// ForOrder godoc
// @Summary Shortages of one order line
// @Tags Shortages
// @Produce json
// @Param id path string true "Order ID"
// @Param asOf query string false "Analysis date (YYYY-MM-DD), default today"
// @Success 200 {array} domain.ShortageRecordDTO
// @Failure 404 {object} domain.APIError
// @Failure 422 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /shortages/orders/{id} [get]
func (h *ShortageHandler) ForOrder(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid order ID: must be a valid UUID")
		return
	}
	asOf, err := parseAsOf(r, "asOf")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	records, err := h.shortageService.ForOrder(r.Context(), id, asOf)
	if err != nil {
		handleServiceError(w, h.logger, err, "compute order shortages")
		return
	}

	respondJSON(w, http.StatusOK, records)
}
