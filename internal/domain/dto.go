package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}

type PaginatedResponse struct {
	Data       interface{} `json:"data"`
	Total      int64       `json:"total"`
	Page       int         `json:"page"`
	PageSize   int         `json:"pageSize"`
	TotalPages int         `json:"totalPages"`
}

// OrderRow is one incoming order line as received from an upload or API call.
// Dates are already parsed; DueDate is optional. An empty Status lets the
// reconciler derive one from the delivered quantity.
type OrderRow struct {
	PONumber       string          `json:"poNumber" validate:"required,max=64"`
	PKID           string          `json:"pkid" validate:"required,max=64"`
	Customer       string          `json:"customer" validate:"required,max=128"`
	ProductionSite string          `json:"productionSite" validate:"required,max=32"`
	OrderedQty     decimal.Decimal `json:"orderedQty"`
	DeliveredQty   decimal.Decimal `json:"deliveredQty"`
	OrderDate      time.Time       `json:"orderDate"`
	DueDate        *time.Time      `json:"dueDate,omitempty"`
	Status         OrderStatus     `json:"status,omitempty"`
}

// Key returns the natural key of the row
func (r OrderRow) Key() OrderKey {
	return OrderKey{
		PONumber:       r.PONumber,
		PKID:           r.PKID,
		Customer:       r.Customer,
		ProductionSite: r.ProductionSite,
	}
}

// RejectedRow reports an order row that was not applied
type RejectedRow struct {
	Index     int      `json:"index"`
	Row       OrderRow `json:"row"`
	Reason    string   `json:"reason"`
	Retryable bool     `json:"retryable,omitempty"`
}

// ReconcileResult summarizes a reconciliation batch
type ReconcileResult struct {
	Inserted  int           `json:"inserted"`
	Updated   int           `json:"updated"`
	Unchanged int           `json:"unchanged"`
	Closed    int           `json:"closed"`
	Cancelled int           `json:"cancelled"`
	Rejected  []RejectedRow `json:"rejected"`
}

// Matched counts rows that found an existing order line
func (r *ReconcileResult) Matched() int {
	return r.Updated + r.Unchanged
}

// ============================================================================
// Request DTOs
// ============================================================================

// OrderRowRequest is the wire form of an order row. Fields are checked per row
// by the reconciler so one bad row never fails the whole request.
type OrderRowRequest struct {
	PONumber       string           `json:"poNumber"`
	PKID           string           `json:"pkid"`
	Customer       string           `json:"customer"`
	ProductionSite string           `json:"productionSite"`
	OrderedQty     decimal.Decimal  `json:"orderedQty" swaggertype:"string"`
	DeliveredQty   *decimal.Decimal `json:"deliveredQty,omitempty" swaggertype:"string"`
	OrderDate      string           `json:"orderDate" example:"2025-03-01"`
	DueDate        string           `json:"dueDate,omitempty" example:"2025-03-20"`
	Status         string           `json:"status,omitempty"`
}

// ReconcileOrdersRequest is the body of POST /orders/reconcile
type ReconcileOrdersRequest struct {
	Rows          []OrderRowRequest `json:"rows"`
	CancelMissing bool              `json:"cancelMissing"`
}

// ProductRequest creates or updates a product
type ProductRequest struct {
	PKID        string `json:"pkid" validate:"required,max=64"`
	Description string `json:"description" validate:"max=255"`
	Unit        string `json:"unit" validate:"max=16"`
	Customer    string `json:"customer" validate:"max=128"`
	CarType     string `json:"carType" validate:"max=64"`
}

// PlantSiteRequest creates or updates a plant site
type PlantSiteRequest struct {
	SiteCode string `json:"siteCode" validate:"required,max=32"`
	Name     string `json:"name" validate:"max=128"`
	Region   string `json:"region" validate:"max=64"`
}

// BOMLineRequest creates or updates a BOM line
type BOMLineRequest struct {
	ParentPKID      string          `json:"parentPkid" validate:"required,max=64"`
	ComponentPKID   string          `json:"componentPkid" validate:"required,max=64"`
	QuantityPerUnit decimal.Decimal `json:"quantityPerUnit" swaggertype:"string"`
}

// SubstituteRequest creates or updates a substitute link
type SubstituteRequest struct {
	PrimaryPKID    string `json:"primaryPkid" validate:"required,max=64"`
	SubstitutePKID string `json:"substitutePkid" validate:"required,max=64"`
	Priority       int    `json:"priority" validate:"gte=0"`
	Description    string `json:"description" validate:"max=255"`
}

// SnapshotRequest is one long-format inventory snapshot row
type SnapshotRequest struct {
	PKID         string          `json:"pkid" validate:"required,max=64"`
	PlantSite    string          `json:"plantSite" validate:"required,max=32"`
	SnapshotDate string          `json:"snapshotDate" validate:"required,datetime=2006-01-02"`
	OnHandQty    decimal.Decimal `json:"onHandQty" swaggertype:"string"`
}

// WideSnapshotRequest carries one snapshot date with a column per site,
// matching the spreadsheet layout used by planners
type WideSnapshotRequest struct {
	SnapshotDate string            `json:"snapshotDate" validate:"required,datetime=2006-01-02"`
	Rows         []WideSnapshotRow `json:"rows" validate:"required,min=1,dive"`
}

// WideSnapshotRow is a part with on-hand quantities keyed by site code
type WideSnapshotRow struct {
	PKID  string                     `json:"pkid" validate:"required,max=64"`
	Sites map[string]decimal.Decimal `json:"sites"`
}

// PurchaseOrderRequest places one purchase. ETA is optional; Status defaults
// to "PO Issued".
type PurchaseOrderRequest struct {
	PKID     string          `json:"pkid" validate:"required,max=64"`
	Supplier string          `json:"supplier" validate:"required,max=128"`
	OrderQty decimal.Decimal `json:"orderQty" swaggertype:"string"`
	ETA      string          `json:"eta,omitempty" example:"2025-03-20"`
	Status   string          `json:"status,omitempty" example:"PO Issued"`
	Remarks  string          `json:"remarks,omitempty"`
}

// UpdatePurchaseOrderRequest changes the tracking fields of a purchase.
// Omitted fields are left alone; an empty ETA clears it.
type UpdatePurchaseOrderRequest struct {
	ETA     *string `json:"eta,omitempty" example:"2025-03-20"`
	Status  *string `json:"status,omitempty" example:"In-Transit"`
	Remarks *string `json:"remarks,omitempty"`
}

// PurchaseOrderBatchResult lists the PO numbers created by a bulk load and
// the rows that were skipped
type PurchaseOrderBatchResult struct {
	Created  []string          `json:"created"`
	Rejected []BulkRejectedRow `json:"rejected"`
	Archive  *ArchivedFileDTO  `json:"archive,omitempty"`
}

// BulkUpsertResult summarizes a master-data load
type BulkUpsertResult struct {
	Upserted int               `json:"upserted"`
	Rejected []BulkRejectedRow `json:"rejected"`
}

// BulkRejectedRow reports a master-data row that was skipped
type BulkRejectedRow struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// ============================================================================
// Response DTOs
// ============================================================================

type OrderDTO struct {
	ID             uuid.UUID   `json:"id"`
	PONumber       string      `json:"poNumber"`
	PKID           string      `json:"pkid"`
	Customer       string      `json:"customer"`
	ProductionSite string      `json:"productionSite"`
	OrderedQty     string      `json:"orderedQty"`
	DeliveredQty   string      `json:"deliveredQty"`
	OutstandingQty string      `json:"outstandingQty"`
	OrderDate      string      `json:"orderDate"`
	DueDate        *string     `json:"dueDate,omitempty"`
	Status         OrderStatus `json:"status"`
	CompletedAt    *string     `json:"completedAt,omitempty"`
	CreatedAt      string      `json:"createdAt"`
	UpdatedAt      string      `json:"updatedAt"`
}

type PurchaseOrderDTO struct {
	ID        uuid.UUID           `json:"id"`
	PONumber  string              `json:"poNumber"`
	PKID      string              `json:"pkid"`
	Supplier  string              `json:"supplier,omitempty"`
	OrderDate string              `json:"orderDate"`
	OrderQty  string              `json:"orderQty"`
	ETA       *string             `json:"eta,omitempty"`
	Status    PurchaseOrderStatus `json:"status"`
	Remarks   string              `json:"remarks,omitempty"`
	Urgency   string              `json:"urgency,omitempty"`
	UpdatedBy string              `json:"updatedBy,omitempty"`
	CreatedAt string              `json:"createdAt"`
	UpdatedAt string              `json:"updatedAt"`
}

type ProductDTO struct {
	PKID        string `json:"pkid"`
	Description string `json:"description,omitempty"`
	Unit        string `json:"unit,omitempty"`
	Customer    string `json:"customer,omitempty"`
	CarType     string `json:"carType,omitempty"`
	UpdatedAt   string `json:"updatedAt"`
}

type PlantSiteDTO struct {
	SiteCode string `json:"siteCode"`
	Name     string `json:"name,omitempty"`
	Region   string `json:"region,omitempty"`
}

type SubstituteDTO struct {
	SubstitutePKID string `json:"substitutePkid"`
	Priority       int    `json:"priority"`
	Description    string `json:"description,omitempty"`
}

type BOMLineDTO struct {
	ComponentPKID   string          `json:"componentPkid"`
	QuantityPerUnit string          `json:"quantityPerUnit"`
	Substitutes     []SubstituteDTO `json:"substitutes"`
}

// BOMDTO is the single-level bill of materials of a product
type BOMDTO struct {
	ParentPKID string       `json:"parentPkid"`
	Lines      []BOMLineDTO `json:"lines"`
}

type AvailableStockDTO struct {
	PKID         string  `json:"pkid"`
	PlantSite    string  `json:"plantSite"`
	AsOf         string  `json:"asOf"`
	OnHandQty    string  `json:"onHandQty"`
	SnapshotDate *string `json:"snapshotDate,omitempty"`
}

type SnapshotHistoryDTO struct {
	PKID      string             `json:"pkid"`
	PlantSite string             `json:"plantSite"`
	Points    []SnapshotPointDTO `json:"points"`
}

type SnapshotPointDTO struct {
	SnapshotDate string `json:"snapshotDate"`
	OnHandQty    string `json:"onHandQty"`
	Change       string `json:"change"`
}

type SubstituteUsageDTO struct {
	PKID string `json:"pkid"`
	Qty  string `json:"qty"`
}

type ShortageRecordDTO struct {
	OrderID          uuid.UUID            `json:"orderId"`
	PONumber         string               `json:"poNumber"`
	ComponentPKID    string               `json:"componentPkid"`
	RequiredQty      string               `json:"requiredQty"`
	PrimaryAvailable string               `json:"primaryAvailable"`
	AvailableQty     string               `json:"availableQty"`
	ShortageQty      string               `json:"shortageQty"`
	Urgent           bool                 `json:"urgent"`
	Substitutes      []SubstituteUsageDTO `json:"substitutes,omitempty"`
}

type R1RowDTO struct {
	Customer          string   `json:"customer"`
	ProductionSite    string   `json:"productionSite"`
	OrderLines        int      `json:"orderLines"`
	OutstandingQty    string   `json:"outstandingQty"`
	RequiredQty       string   `json:"requiredQty"`
	ShortageQty       string   `json:"shortageQty"`
	ShortedOrderLines int      `json:"shortedOrderLines"`
	ShortComponents   []string `json:"shortComponents"`
}

type ComponentCellDTO struct {
	RequiredQty    string `json:"requiredQty"`
	AvailableQty   string `json:"availableQty"`
	ShortageQty    string `json:"shortageQty"`
	SubstituteUsed string `json:"substituteUsed"`
}

type R2RowDTO struct {
	OrderID        uuid.UUID                   `json:"orderId"`
	PONumber       string                      `json:"poNumber"`
	PKID           string                      `json:"pkid"`
	Customer       string                      `json:"customer"`
	ProductionSite string                      `json:"productionSite"`
	Status         OrderStatus                 `json:"status"`
	DueDate        *string                     `json:"dueDate,omitempty"`
	OutstandingQty string                      `json:"outstandingQty"`
	Urgent         bool                        `json:"urgent"`
	Components     map[string]ComponentCellDTO `json:"components"`
}

type ShortageReportDTO struct {
	AnalysisDate string     `json:"analysisDate"`
	GeneratedAt  string     `json:"generatedAt"`
	OrderLines   int        `json:"orderLines"`
	Components   []string   `json:"components"`
	R1           []R1RowDTO `json:"r1"`
	R2           []R2RowDTO `json:"r2"`
}

type ArchivedFileDTO struct {
	ID          uuid.UUID   `json:"id"`
	Kind        ArchiveKind `json:"kind"`
	Filename    string      `json:"filename"`
	ContentType string      `json:"contentType"`
	Size        int64       `json:"size"`
	CreatedBy   string      `json:"createdBy,omitempty"`
	CreatedAt   string      `json:"createdAt"`
}

// UploadOrdersResponse wraps the reconciliation result of a CSV upload
type UploadOrdersResponse struct {
	Archive *ArchivedFileDTO `json:"archive,omitempty"`
	Result  *ReconcileResult `json:"result"`
}

// AuthUserDTO describes the authenticated caller
type AuthUserDTO struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Email       string   `json:"email"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
	IsAdmin     bool     `json:"isAdmin"`
}
