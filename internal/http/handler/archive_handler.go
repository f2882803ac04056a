package handler

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/straye-as/shortage-api/internal/domain"
	"github.com/straye-as/shortage-api/internal/service"
	"go.uber.org/zap"
)

type ArchiveHandler struct {
	archiveService *service.ArchiveService
	logger         *zap.Logger
}

func NewArchiveHandler(archiveService *service.ArchiveService, logger *zap.Logger) *ArchiveHandler {
	return &ArchiveHandler{
		archiveService: archiveService,
		logger:         logger,
	}
}

// List godoc
// @Summary List archived files
// @Tags Archives
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param pageSize query int false "Items per page (max 200)" default(20)
// @Param kind query string false "Archive kind" Enums(order_upload, inventory_upload, purchase_upload, report_export)
// @Success 200 {object} domain.PaginatedResponse{data=[]domain.ArchivedFileDTO}
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /archives [get]
func (h *ArchiveHandler) List(w http.ResponseWriter, r *http.Request) {
	page, pageSize := parsePagination(r)

	result, err := h.archiveService.List(r.Context(), page, pageSize, domain.ArchiveKind(r.URL.Query().Get("kind")))
	if err != nil {
		handleServiceError(w, h.logger, err, "list archived files")
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// Download godoc
// @Summary Download archived file
// @Tags Archives
// @Produce application/octet-stream
// @Param id path string true "Archive ID"
// @Success 200 {file} file
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /archives/{id}/download [get]
func (h *ArchiveHandler) Download(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid archive ID: must be a valid UUID")
		return
	}

	file, reader, err := h.archiveService.Download(r.Context(), id)
	if err != nil {
		handleServiceError(w, h.logger, err, "download archived file")
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	w.Header().Set("Content-Type", file.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(file.Size, 10))

	if _, err := io.Copy(w, reader); err != nil {
		h.logger.Warn("archived file download interrupted", zap.String("id", id.String()), zap.Error(err))
	}
}

// Delete godoc
// @Summary Delete archived file
// @Tags Archives
// @Param id path string true "Archive ID"
// @Success 204
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /archives/{id} [delete]
func (h *ArchiveHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid archive ID: must be a valid UUID")
		return
	}

	if err := h.archiveService.Delete(r.Context(), id); err != nil {
		handleServiceError(w, h.logger, err, "delete archived file")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
