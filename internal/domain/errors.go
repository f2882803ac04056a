package domain

import "fmt"

// APIError represents a standardized API error with HTTP status code
type APIError struct {
	Type   string            `json:"type"`
	Title  string            `json:"title"`
	Status int               `json:"status"`
	Detail string            `json:"detail,omitempty"`
	Errors map[string]string `json:"errors,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return e.Title
}

// ValidationMessages provides human-readable validation error messages
// These map validator tags to user-friendly messages
var ValidationMessages = map[string]string{
	"required": "This field is required",
	"max":      "Exceeds maximum length",
	"min":      "Below minimum length",
	"gte":      "Must be greater than or equal to minimum value",
	"gt":       "Must be greater than minimum value",
	"lte":      "Must be less than or equal to maximum value",
	"lt":       "Must be less than maximum value",
	"uuid":     "Must be a valid UUID",
	"oneof":    "Must be one of the allowed values",
	"alphanum": "Must contain only alphanumeric characters",
	"numeric":  "Must be a numeric value",
	"datetime": "Must be a date in YYYY-MM-DD format",
	"dive":     "One or more entries are invalid",
	"excludes": "Must not contain the specified value",
}

// GetValidationMessage returns a human-readable message for a validation tag
func GetValidationMessage(tag string) string {
	if msg, ok := ValidationMessages[tag]; ok {
		return msg
	}
	return "Validation failed: " + tag
}

// Common error types for RFC 7807 Problem Details
const (
	ErrorTypeValidation      = "validation_error"
	ErrorTypeNotFound        = "not_found"
	ErrorTypeBadRequest      = "bad_request"
	ErrorTypeConflict        = "conflict"
	ErrorTypeUnauthorized    = "unauthorized"
	ErrorTypeForbidden       = "forbidden"
	ErrorTypeIntegrity       = "integrity_error"
	ErrorTypeTooLarge        = "payload_too_large"
	ErrorTypeRateLimited     = "rate_limited"
	ErrorTypeInternal        = "internal_error"
	ErrorTypeServiceDegraded = "service_unavailable"
)

// Rejection reasons reported for order rows. Callers match on these strings.
const (
	ReasonMissingField       = "missing required field"
	ReasonFieldTooLong       = "field exceeds maximum length"
	ReasonInvalidDate        = "invalid date"
	ReasonInvalidQuantity    = "invalid quantity"
	ReasonNonPositiveQty     = "non-positive quantity"
	ReasonNegativeDelivered  = "negative delivered quantity"
	ReasonDueBeforeOrder     = "due date before order date"
	ReasonInvalidStatus      = "invalid status"
	ReasonUnknownProduct     = "unknown product"
	ReasonUnknownSite        = "unknown production site"
	ReasonDuplicateInBatch   = "duplicate key in batch"
	ReasonConcurrentConflict = "concurrent update of the same order line"
)

// ValidationError is a row-level rejection. It never aborts a batch.
type ValidationError struct {
	Reason string
	Field  string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Reason, e.Field)
	}
	return e.Reason
}

// ConflictError reports a transient write conflict on a natural key. Retrying
// the same row is expected to succeed.
type ConflictError struct {
	Key OrderKey
	Err error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s (%s): %v", ReasonConcurrentConflict, e.Key, e.Err)
}

func (e *ConflictError) Unwrap() error { return e.Err }

// Retryable marks the error as transient
func (e *ConflictError) Retryable() bool { return true }
