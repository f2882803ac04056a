package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	// ErrBOMSelfLoop is returned when a BOM line names its parent as its own component
	ErrBOMSelfLoop = errors.New("bom line cannot reference its own parent")

	// ErrSelfSubstitute is returned when a part is linked as its own substitute
	ErrSelfSubstitute = errors.New("part cannot substitute for itself")

	// ErrNonPositiveQuantity is returned for quantities that must be strictly positive
	ErrNonPositiveQuantity = errors.New("quantity must be positive")
)

// OrderStatus represents the lifecycle state of an order line
type OrderStatus string

const (
	OrderStatusOpen      OrderStatus = "OPEN"
	OrderStatusPartial   OrderStatus = "PARTIAL"
	OrderStatusClosed    OrderStatus = "CLOSED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// IsValid checks if the status is a known order status
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusOpen, OrderStatusPartial, OrderStatusClosed, OrderStatusCancelled:
		return true
	}
	return false
}

// IsActive reports whether the line still awaits delivery and takes part in shortage analysis
func (s OrderStatus) IsActive() bool {
	return s == OrderStatusOpen || s == OrderStatusPartial
}

// ParseOrderStatus normalizes a status string. An empty input yields an empty status.
func ParseOrderStatus(s string) (OrderStatus, error) {
	status := OrderStatus(strings.ToUpper(strings.TrimSpace(s)))
	if status == "" {
		return "", nil
	}
	if !status.IsValid() {
		return "", fmt.Errorf("invalid order status: %s", s)
	}
	return status, nil
}

// ActiveOrderStatuses lists the statuses that are eligible for shortage analysis
func ActiveOrderStatuses() []OrderStatus {
	return []OrderStatus{OrderStatusOpen, OrderStatusPartial}
}

// Product is a finished good or a component, identified by its part key (PKID)
type Product struct {
	PKID        string    `gorm:"column:pkid;type:varchar(64);primaryKey"`
	Description string    `gorm:"type:varchar(255)"`
	Unit        string    `gorm:"type:varchar(16)"`
	Customer    string    `gorm:"type:varchar(128)"`
	CarType     string    `gorm:"column:car_type;type:varchar(64)"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

func (Product) TableName() string { return "products" }

// PlantSite is a production site that consumes components and holds stock
type PlantSite struct {
	SiteCode  string    `gorm:"column:site_code;type:varchar(32);primaryKey"`
	Name      string    `gorm:"type:varchar(128)"`
	Region    string    `gorm:"type:varchar(64)"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (PlantSite) TableName() string { return "plant_sites" }

// BOMLine is a single parent -> component edge. ID preserves insertion order,
// which is the order components are reported in.
type BOMLine struct {
	ID              uint            `gorm:"primaryKey;autoIncrement"`
	ParentPKID      string          `gorm:"column:parent_pkid;type:varchar(64);not null;uniqueIndex:idx_bom_lines_parent_component"`
	ComponentPKID   string          `gorm:"column:component_pkid;type:varchar(64);not null;uniqueIndex:idx_bom_lines_parent_component;index"`
	QuantityPerUnit decimal.Decimal `gorm:"column:quantity_per_unit;type:numeric(18,4);not null"`
	CreatedAt       time.Time       `gorm:"not null"`
}

func (BOMLine) TableName() string { return "bom_lines" }

// NewBOMLine builds a BOM line, rejecting self loops and non-positive quantities
func NewBOMLine(parent, component string, qtyPerUnit decimal.Decimal) (*BOMLine, error) {
	parent = strings.TrimSpace(parent)
	component = strings.TrimSpace(component)
	if parent == "" || component == "" {
		return nil, errors.New("parent and component are required")
	}
	if parent == component {
		return nil, ErrBOMSelfLoop
	}
	if !qtyPerUnit.IsPositive() {
		return nil, ErrNonPositiveQuantity
	}
	return &BOMLine{
		ParentPKID:      parent,
		ComponentPKID:   component,
		QuantityPerUnit: qtyPerUnit,
	}, nil
}

// SubstituteLink declares that SubstitutePKID may stand in for PrimaryPKID.
// Lower Priority is preferred; ties fall back to ID.
type SubstituteLink struct {
	ID             uint      `gorm:"primaryKey;autoIncrement"`
	PrimaryPKID    string    `gorm:"column:primary_pkid;type:varchar(64);not null;uniqueIndex:idx_substitute_links_pair"`
	SubstitutePKID string    `gorm:"column:substitute_pkid;type:varchar(64);not null;uniqueIndex:idx_substitute_links_pair"`
	Priority       int       `gorm:"not null;default:0"`
	Description    string    `gorm:"type:varchar(255)"`
	CreatedAt      time.Time `gorm:"not null"`
}

func (SubstituteLink) TableName() string { return "substitute_links" }

// NewSubstituteLink builds a substitute link, rejecting self-substitution
func NewSubstituteLink(primary, substitute string, priority int) (*SubstituteLink, error) {
	primary = strings.TrimSpace(primary)
	substitute = strings.TrimSpace(substitute)
	if primary == "" || substitute == "" {
		return nil, errors.New("primary and substitute are required")
	}
	if primary == substitute {
		return nil, ErrSelfSubstitute
	}
	return &SubstituteLink{
		PrimaryPKID:    primary,
		SubstitutePKID: substitute,
		Priority:       priority,
	}, nil
}

// OrderKey is the natural key of an order line
type OrderKey struct {
	PONumber       string `json:"poNumber"`
	PKID           string `json:"pkid"`
	Customer       string `json:"customer"`
	ProductionSite string `json:"productionSite"`
}

func (k OrderKey) String() string {
	return k.PONumber + "/" + k.PKID + "/" + k.Customer + "/" + k.ProductionSite
}

// Order is one line of the canonical order ledger. Lines are never deleted;
// they leave analysis by moving to CLOSED or CANCELLED.
type Order struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey"`
	PONumber       string          `gorm:"column:po_number;type:varchar(64);not null;uniqueIndex:idx_orders_natural_key"`
	PKID           string          `gorm:"column:pkid;type:varchar(64);not null;uniqueIndex:idx_orders_natural_key;index"`
	Customer       string          `gorm:"type:varchar(128);not null;uniqueIndex:idx_orders_natural_key"`
	ProductionSite string          `gorm:"column:production_site;type:varchar(32);not null;uniqueIndex:idx_orders_natural_key"`
	OrderedQty     decimal.Decimal `gorm:"column:ordered_qty;type:numeric(18,4);not null"`
	DeliveredQty   decimal.Decimal `gorm:"column:delivered_qty;type:numeric(18,4);not null;default:0"`
	OrderDate      time.Time       `gorm:"column:order_date;type:date;not null"`
	DueDate        *time.Time      `gorm:"column:due_date;type:date"`
	Status         OrderStatus     `gorm:"type:varchar(16);not null;index"`
	CompletedAt    *time.Time      `gorm:"column:completed_at"`
	CreatedAt      time.Time       `gorm:"not null"`
	UpdatedAt      time.Time       `gorm:"not null"`
}

func (Order) TableName() string { return "orders" }

// BeforeCreate assigns a UUID when none is set
func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// Key returns the natural key of the order line
func (o *Order) Key() OrderKey {
	return OrderKey{
		PONumber:       o.PONumber,
		PKID:           o.PKID,
		Customer:       o.Customer,
		ProductionSite: o.ProductionSite,
	}
}

// OutstandingQty is the quantity still to be produced, never negative
func (o *Order) OutstandingQty() decimal.Decimal {
	remaining := o.OrderedQty.Sub(o.DeliveredQty)
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

// InventorySnapshot is the on-hand quantity of a part at a site on a calendar date.
// History across dates is append-only; re-uploading a date replaces that date only.
type InventorySnapshot struct {
	PKID         string          `gorm:"column:pkid;type:varchar(64);primaryKey"`
	PlantSite    string          `gorm:"column:plant_site;type:varchar(32);primaryKey"`
	SnapshotDate time.Time       `gorm:"column:snapshot_date;type:date;primaryKey"`
	OnHandQty    decimal.Decimal `gorm:"column:on_hand_qty;type:numeric(18,4);not null"`
	Source       string          `gorm:"type:varchar(32);not null;default:'upload'"`
	CreatedAt    time.Time       `gorm:"not null"`
	UpdatedAt    time.Time       `gorm:"not null"`
}

func (InventorySnapshot) TableName() string { return "inventory_snapshots" }

// Snapshot sources
const (
	SnapshotSourceUpload    = "upload"
	SnapshotSourceWarehouse = "warehouse"
)

// ArchiveKind classifies files kept in object storage
type ArchiveKind string

const (
	ArchiveKindOrderUpload     ArchiveKind = "order_upload"
	ArchiveKindInventoryUpload ArchiveKind = "inventory_upload"
	ArchiveKindReportExport    ArchiveKind = "report_export"
	ArchiveKindPurchaseUpload  ArchiveKind = "purchase_upload"
)

// ArchivedFile records a file placed in object storage. Archived reports are
// copies for download only; reports are always recomputed from the ledger.
type ArchivedFile struct {
	ID          uuid.UUID   `gorm:"type:uuid;primaryKey"`
	Kind        ArchiveKind `gorm:"type:varchar(32);not null;index"`
	Filename    string      `gorm:"type:varchar(255);not null"`
	ContentType string      `gorm:"column:content_type;type:varchar(128);not null"`
	Size        int64       `gorm:"not null"`
	StoragePath string      `gorm:"column:storage_path;type:varchar(512);not null"`
	CreatedBy   string      `gorm:"column:created_by;type:varchar(255)"`
	CreatedAt   time.Time   `gorm:"not null;index"`
}

func (ArchivedFile) TableName() string { return "archived_files" }

// BeforeCreate assigns a UUID when none is set
func (f *ArchivedFile) BeforeCreate(tx *gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return nil
}

// PurchaseOrderStatus tracks an inbound component purchase
type PurchaseOrderStatus string

const (
	PurchaseStatusIssued    PurchaseOrderStatus = "PO Issued"
	PurchaseStatusInTransit PurchaseOrderStatus = "In-Transit"
	PurchaseStatusArrived   PurchaseOrderStatus = "Arrived"
	PurchaseStatusObsoleted PurchaseOrderStatus = "Obsoleted"
	PurchaseStatusOther     PurchaseOrderStatus = "ETC"
)

// PurchaseOrderStatuses lists every purchase status in listing order
func PurchaseOrderStatuses() []PurchaseOrderStatus {
	return []PurchaseOrderStatus{
		PurchaseStatusIssued,
		PurchaseStatusInTransit,
		PurchaseStatusArrived,
		PurchaseStatusObsoleted,
		PurchaseStatusOther,
	}
}

// IsClosed reports whether the purchase no longer awaits delivery
func (s PurchaseOrderStatus) IsClosed() bool {
	return s == PurchaseStatusArrived || s == PurchaseStatusObsoleted
}

// ParsePurchaseOrderStatus matches s case-insensitively against the known
// statuses. An empty input yields PurchaseStatusIssued.
func ParsePurchaseOrderStatus(s string) (PurchaseOrderStatus, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return PurchaseStatusIssued, nil
	}
	for _, status := range PurchaseOrderStatuses() {
		if strings.EqualFold(s, string(status)) {
			return status, nil
		}
	}
	return "", fmt.Errorf("invalid purchase order status: %s", s)
}

// ImminentETADays is how close an ETA must be for a purchase to be flagged imminent
const ImminentETADays = 3

// Purchase urgency flags
const (
	UrgencyDelayed  = "DELAYED"
	UrgencyImminent = "IMMINENT"
)

// PurchaseOrder is an inbound purchase of a component from a supplier.
// PONumber is assigned on creation as PO-YYYYMMDD-NNN.
type PurchaseOrder struct {
	ID        uuid.UUID           `gorm:"type:uuid;primaryKey"`
	PONumber  string              `gorm:"column:po_number;type:varchar(32);not null;uniqueIndex"`
	PKID      string              `gorm:"column:pkid;type:varchar(64);not null;index"`
	Supplier  string              `gorm:"type:varchar(128)"`
	OrderDate time.Time           `gorm:"column:order_date;type:date;not null"`
	OrderQty  decimal.Decimal     `gorm:"column:order_qty;type:numeric(18,4);not null"`
	ETA       *time.Time          `gorm:"column:eta;type:date"`
	Status    PurchaseOrderStatus `gorm:"type:varchar(16);not null;default:'PO Issued';index"`
	Remarks   string              `gorm:"type:text"`
	UpdatedBy string              `gorm:"column:updated_by;type:varchar(255)"`
	CreatedAt time.Time           `gorm:"not null"`
	UpdatedAt time.Time           `gorm:"not null"`
}

func (PurchaseOrder) TableName() string { return "purchase_orders" }

// BeforeCreate assigns a UUID when none is set
func (po *PurchaseOrder) BeforeCreate(tx *gorm.DB) error {
	if po.ID == uuid.Nil {
		po.ID = uuid.New()
	}
	return nil
}

// Urgency flags an open purchase whose ETA has passed or falls within
// ImminentETADays of today. Closed purchases and purchases without an ETA
// are never flagged.
func (po *PurchaseOrder) Urgency(today time.Time) string {
	if po.Status.IsClosed() || po.ETA == nil {
		return ""
	}
	eta := DateOnly(*po.ETA)
	today = DateOnly(today)
	switch {
	case eta.Before(today):
		return UrgencyDelayed
	case !eta.After(today.AddDate(0, 0, ImminentETADays)):
		return UrgencyImminent
	}
	return ""
}

// PurchaseOrderPrefix is the PO number prefix for purchases placed on date
func PurchaseOrderPrefix(date time.Time) string {
	return "PO-" + date.Format("20060102") + "-"
}

// FormatPurchaseOrderNumber builds the PO number with sequence seq on date
func FormatPurchaseOrderNumber(date time.Time, seq int) string {
	return fmt.Sprintf("%s%03d", PurchaseOrderPrefix(date), seq)
}

// PurchaseOrderSequence extracts the trailing sequence of a PO number
func PurchaseOrderSequence(poNumber string) (int, error) {
	i := strings.LastIndex(poNumber, "-")
	if i < 0 {
		return 0, fmt.Errorf("malformed purchase order number: %s", poNumber)
	}
	seq, err := strconv.Atoi(poNumber[i+1:])
	if err != nil {
		return 0, fmt.Errorf("malformed purchase order number: %s", poNumber)
	}
	return seq, nil
}

// DateOnly truncates t to its calendar date in UTC
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DateLayout is the wire format for calendar dates
const DateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD date
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return t, nil
}
