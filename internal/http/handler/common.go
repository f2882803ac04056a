package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/straye-as/shortage-api/internal/domain"
	"github.com/straye-as/shortage-api/internal/service"
	"github.com/straye-as/shortage-api/internal/shortage"
	"go.uber.org/zap"
)

var validate = validator.New()

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// respondValidationError sends a standardized validation error response with specific field messages
func respondValidationError(w http.ResponseWriter, err error) {
	errs := make(map[string]string)
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			errs[toJSONFieldName(fe.Field())] = formatValidationError(fe)
		}
	}

	respondJSON(w, http.StatusBadRequest, domain.APIError{
		Type:   domain.ErrorTypeValidation,
		Title:  "Validation Error",
		Status: http.StatusBadRequest,
		Detail: "One or more fields failed validation",
		Errors: errs,
	})
}

// formatValidationError creates a human-readable validation error message
func formatValidationError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", toJSONFieldName(fe.Field()))
	case "max":
		return fmt.Sprintf("Must be at most %s", fe.Param())
	case "min":
		return fmt.Sprintf("Must be at least %s", fe.Param())
	case "gte":
		return fmt.Sprintf("Must be greater than or equal to %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("Must be one of: %s", fe.Param())
	case "datetime":
		return "Must be a date in YYYY-MM-DD format"
	default:
		return domain.GetValidationMessage(fe.Tag())
	}
}

// toJSONFieldName converts a Go struct field name to its JSON equivalent (camelCase)
func toJSONFieldName(field string) string {
	if len(field) == 0 {
		return field
	}
	return strings.ToLower(field[:1]) + field[1:]
}

// respondWithError sends a standardized JSON error response
func respondWithError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, domain.APIError{
		Type:   getErrorType(status),
		Title:  http.StatusText(status),
		Status: status,
		Detail: message,
	})
}

// getErrorType returns the appropriate error type for an HTTP status code
func getErrorType(status int) string {
	switch status {
	case http.StatusBadRequest:
		return domain.ErrorTypeBadRequest
	case http.StatusUnauthorized:
		return domain.ErrorTypeUnauthorized
	case http.StatusForbidden:
		return domain.ErrorTypeForbidden
	case http.StatusNotFound:
		return domain.ErrorTypeNotFound
	case http.StatusConflict:
		return domain.ErrorTypeConflict
	case http.StatusRequestEntityTooLarge:
		return domain.ErrorTypeTooLarge
	case http.StatusUnprocessableEntity:
		return domain.ErrorTypeIntegrity
	case http.StatusServiceUnavailable:
		return domain.ErrorTypeServiceDegraded
	default:
		return domain.ErrorTypeInternal
	}
}

// respondIntegrityError lists every order line whose master data is broken
func respondIntegrityError(w http.ResponseWriter, reportErr *shortage.ReportError) {
	faults := make(map[string]string, len(reportErr.Faults))
	for _, f := range reportErr.Faults {
		faults[f.Order.String()] = f.Err.Error()
	}
	respondJSON(w, http.StatusUnprocessableEntity, domain.APIError{
		Type:   domain.ErrorTypeIntegrity,
		Title:  "Master Data Integrity Error",
		Status: http.StatusUnprocessableEntity,
		Detail: fmt.Sprintf("%d order line(s) reference unknown master data; %d computed cleanly", len(reportErr.Faults), reportErr.Completed),
		Errors: faults,
	})
}

// handleServiceError maps service errors to HTTP responses. Unknown errors
// are logged and reported as 500 without detail.
func handleServiceError(w http.ResponseWriter, logger *zap.Logger, err error, action string) {
	var reportErr *shortage.ReportError
	switch {
	case errors.As(err, &reportErr):
		respondIntegrityError(w, reportErr)
	case shortage.IsIntegrityFault(err):
		respondWithError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, service.ErrBatchTooLarge):
		respondWithError(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, service.ErrEmptyBatch),
		errors.Is(err, service.ErrInvalidCSV),
		errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, service.ErrUnsupportedFormat):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrNotFound),
		errors.Is(err, service.ErrOrderNotFound),
		errors.Is(err, service.ErrPurchaseOrderNotFound),
		errors.Is(err, service.ErrArchiveNotFound):
		respondWithError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrStorageUnavailable):
		respondWithError(w, http.StatusServiceUnavailable, err.Error())
	default:
		logger.Error("failed to "+action, zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "Failed to "+action)
	}
}

// parsePagination reads page and pageSize query parameters
func parsePagination(r *http.Request) (int, int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("pageSize"))
	if pageSize < 1 {
		pageSize = 20
	}
	return page, pageSize
}

// parseAsOf reads an optional YYYY-MM-DD date parameter. The zero time means
// the caller did not pass one.
func parseAsOf(r *http.Request, name string) (time.Time, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return time.Time{}, nil
	}
	d, err := domain.ParseDate(v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s: %w", name, err)
	}
	return d, nil
}

// queryList collects a repeated or comma-separated query parameter
func queryList(r *http.Request, name string) []string {
	var out []string
	for _, v := range r.URL.Query()[name] {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// parseStatuses reads the status filter, rejecting unknown values
func parseStatuses(r *http.Request) ([]domain.OrderStatus, error) {
	raw := queryList(r, "status")
	statuses := make([]domain.OrderStatus, 0, len(raw))
	for _, s := range raw {
		status, err := domain.ParseOrderStatus(s)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

// writeAttachment sends a file download
func writeAttachment(w http.ResponseWriter, filename, contentType string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
