package service

import "errors"

// Common service errors
var (
	// ErrNotFound is returned when a resource is not found
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput is returned when input validation fails
	ErrInvalidInput = errors.New("invalid input")

	// ErrOrderNotFound is returned when an order line is not found
	ErrOrderNotFound = errors.New("order not found")

	// ErrPurchaseOrderNotFound is returned when a purchase order is not found
	ErrPurchaseOrderNotFound = errors.New("purchase order not found")

	// ErrArchiveNotFound is returned when an archived file is not found
	ErrArchiveNotFound = errors.New("archived file not found")

	// ErrEmptyBatch is returned when a load contains no rows
	ErrEmptyBatch = errors.New("batch contains no rows")

	// ErrBatchTooLarge is returned when a load exceeds the row limit
	ErrBatchTooLarge = errors.New("batch exceeds maximum row count")

	// ErrInvalidCSV is returned when an uploaded file cannot be parsed
	ErrInvalidCSV = errors.New("invalid csv file")

	// ErrUnsupportedFormat is returned for unknown export formats or views
	ErrUnsupportedFormat = errors.New("unsupported export format")

	// ErrStorageUnavailable is returned when no object storage is configured
	ErrStorageUnavailable = errors.New("storage not configured")
)
