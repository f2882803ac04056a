package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/straye-as/shortage-api/internal/domain"
	"github.com/straye-as/shortage-api/internal/service"
	"go.uber.org/zap"
)

type MasterDataHandler struct {
	masterDataService *service.MasterDataService
	logger            *zap.Logger
}

func NewMasterDataHandler(masterDataService *service.MasterDataService, logger *zap.Logger) *MasterDataHandler {
	return &MasterDataHandler{
		masterDataService: masterDataService,
		logger:            logger,
	}
}

// decodeRows decodes a JSON array body, writing a 400 on failure
func decodeRows[T any](w http.ResponseWriter, r *http.Request) ([]T, bool) {
	var rows []T
	if err := json.NewDecoder(r.Body).Decode(&rows); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body: expected a JSON array of rows")
		return nil, false
	}
	return rows, true
}

// UpsertProducts godoc
// @Summary Load products
// @Description Idempotent bulk load keyed on PKID. Rows failing validation are reported and skipped.
// @Tags MasterData
// @Accept json
// @Produce json
// @Param request body []domain.ProductRequest true "Products"
// @Success 200 {object} domain.BulkUpsertResult
// @Failure 400 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /masterdata/products [post]
func (h *MasterDataHandler) UpsertProducts(w http.ResponseWriter, r *http.Request) {
	rows, ok := decodeRows[domain.ProductRequest](w, r)
	if !ok {
		return
	}
	result, err := h.masterDataService.UpsertProducts(r.Context(), rows)
	if err != nil {
		handleServiceError(w, h.logger, err, "load products")
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// ListProducts godoc
// @Summary List products
// @Tags MasterData
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param pageSize query int false "Items per page (max 200)" default(20)
// @Param customer query string false "Customer filter"
// @Success 200 {object} domain.PaginatedResponse{data=[]domain.ProductDTO}
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /masterdata/products [get]
func (h *MasterDataHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	page, pageSize := parsePagination(r)
	result, err := h.masterDataService.ListProducts(r.Context(), page, pageSize, r.URL.Query().Get("customer"))
	if err != nil {
		handleServiceError(w, h.logger, err, "list products")
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// UpsertPlantSites godoc
// @Summary Load plant sites
// @Tags MasterData
// @Accept json
// @Produce json
// @Param request body []domain.PlantSiteRequest true "Plant sites"
// @Success 200 {object} domain.BulkUpsertResult
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /masterdata/plant-sites [post]
func (h *MasterDataHandler) UpsertPlantSites(w http.ResponseWriter, r *http.Request) {
	rows, ok := decodeRows[domain.PlantSiteRequest](w, r)
	if !ok {
		return
	}
	result, err := h.masterDataService.UpsertPlantSites(r.Context(), rows)
	if err != nil {
		handleServiceError(w, h.logger, err, "load plant sites")
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// ListPlantSites godoc
// @Summary List plant sites
// @Tags MasterData
// @Produce json
// @Success 200 {array} domain.PlantSiteDTO
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /masterdata/plant-sites [get]
func (h *MasterDataHandler) ListPlantSites(w http.ResponseWriter, r *http.Request) {
	sites, err := h.masterDataService.ListPlantSites(r.Context())
	if err != nil {
		handleServiceError(w, h.logger, err, "list plant sites")
		return
	}
	respondJSON(w, http.StatusOK, sites)
}

// UpsertBOMLines godoc
// @Summary Load BOM lines
// @Description Single-level BOM edges keyed on (parent, component). Self references and non-positive quantities are rejected.
// @Tags MasterData
// @Accept json
// @Produce json
// @Param request body []domain.BOMLineRequest true "BOM lines"
// @Success 200 {object} domain.BulkUpsertResult
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /masterdata/bom-lines [post]
func (h *MasterDataHandler) UpsertBOMLines(w http.ResponseWriter, r *http.Request) {
	rows, ok := decodeRows[domain.BOMLineRequest](w, r)
	if !ok {
		return
	}
	result, err := h.masterDataService.UpsertBOMLines(r.Context(), rows)
	if err != nil {
		handleServiceError(w, h.logger, err, "load bom lines")
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// GetBOM godoc
// @Summary Get the BOM of a product
// @Tags MasterData
// @Produce json
// @Param pkid path string true "Parent PKID"
// @Success 200 {object} domain.BOMDTO
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /masterdata/bom/{pkid} [get]
func (h *MasterDataHandler) GetBOM(w http.ResponseWriter, r *http.Request) {
	bom, err := h.masterDataService.GetBOM(r.Context(), chi.URLParam(r, "pkid"))
	if err != nil {
		handleServiceError(w, h.logger, err, "get bom")
		return
	}
	respondJSON(w, http.StatusOK, bom)
}

// DeleteBOMLine godoc
// @Summary Delete a BOM line
// @Tags MasterData
// @Param pkid path string true "Parent PKID"
// @Param component path string true "Component PKID"
// @Success 204
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /masterdata/bom/{pkid}/{component} [delete]
func (h *MasterDataHandler) DeleteBOMLine(w http.ResponseWriter, r *http.Request) {
	if err := h.masterDataService.DeleteBOMLine(r.Context(), chi.URLParam(r, "pkid"), chi.URLParam(r, "component")); err != nil {
		handleServiceError(w, h.logger, err, "delete bom line")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpsertSubstitutes godoc
// @Summary Load substitute links
// @Description Links keyed on (primary, substitute); lower priority is consumed first.
// @Tags MasterData
// @Accept json
// @Produce json
// @Param request body []domain.SubstituteRequest true "Substitute links"
// @Success 200 {object} domain.BulkUpsertResult
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /masterdata/substitutes [post]
func (h *MasterDataHandler) UpsertSubstitutes(w http.ResponseWriter, r *http.Request) {
	rows, ok := decodeRows[domain.SubstituteRequest](w, r)
	if !ok {
		return
	}
	result, err := h.masterDataService.UpsertSubstitutes(r.Context(), rows)
	if err != nil {
		handleServiceError(w, h.logger, err, "load substitutes")
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// ListSubstitutes godoc
// @Summary List the substitutes of a part
// @Description Ordered by priority, lowest first.
// @Tags MasterData
// @Produce json
// @Param pkid path string true "Primary PKID"
// @Success 200 {array} domain.SubstituteDTO
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /masterdata/substitutes/{pkid} [get]
func (h *MasterDataHandler) ListSubstitutes(w http.ResponseWriter, r *http.Request) {
	subs, err := h.masterDataService.ListSubstitutes(r.Context(), chi.URLParam(r, "pkid"))
	if err != nil {
		handleServiceError(w, h.logger, err, "list substitutes")
		return
	}
	respondJSON(w, http.StatusOK, subs)
}

// DeleteSubstitute godoc
// @Summary Delete a substitute link
// @Tags MasterData
// @Param pkid path string true "Primary PKID"
// @Param substitute path string true "Substitute PKID"
// @Success 204
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /masterdata/substitutes/{pkid}/{substitute} [delete]
func (h *MasterDataHandler) DeleteSubstitute(w http.ResponseWriter, r *http.Request) {
	if err := h.masterDataService.DeleteSubstitute(r.Context(), chi.URLParam(r, "pkid"), chi.URLParam(r, "substitute")); err != nil {
		handleServiceError(w, h.logger, err, "delete substitute link")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
