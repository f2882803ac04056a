package shortage

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/straye-as/shortage-api/internal/domain"
)

// Requirement is the quantity of one component needed to build an order line
type Requirement struct {
	ComponentPKID string
	Required      decimal.Decimal
	BOMLineID     uint
}

// SubstituteUsage is the substitute stock applied toward a primary deficit
type SubstituteUsage struct {
	PKID string
	Qty  decimal.Decimal
}

// Record is the shortage outcome for one component of one order line.
// A line whose product has no BOM yields a single Record with an empty
// ComponentPKID and zero quantities.
type Record struct {
	OrderID          uuid.UUID
	Order            domain.OrderKey
	ComponentPKID    string
	Required         decimal.Decimal
	PrimaryAvailable decimal.Decimal
	Available        decimal.Decimal
	Shortage         decimal.Decimal
	Substitutes      []SubstituteUsage
	Urgent           bool
}

// SubstituteQty is the total substitute stock applied on this record
func (r Record) SubstituteQty() decimal.Decimal {
	total := decimal.Zero
	for _, s := range r.Substitutes {
		total = total.Add(s.Qty)
	}
	return total
}

// IsMaterialFree reports whether the record stands for a line without components
func (r Record) IsMaterialFree() bool {
	return r.ComponentPKID == ""
}

// StockResolver answers point-in-time on-hand quantity lookups
type StockResolver interface {
	ResolveAvailable(pkid, site string, asOf time.Time) decimal.Decimal
}

// Options configures a shortage computation. AnalysisDate is required and is
// never taken from the wall clock inside this package.
type Options struct {
	AnalysisDate time.Time
	// UrgentLeadDays marks a shortage urgent when the due date is at most this
	// many days after the analysis date. Overdue lines are always within it.
	UrgentLeadDays int
	// Workers bounds the number of order lines computed concurrently
	Workers int
}

// Filter narrows the order lines a report covers. An empty set on any
// dimension means no filtering on that dimension.
type Filter struct {
	Customers []string
	Sites     []string
	Statuses  []domain.OrderStatus
}

// Matches reports whether an order line passes the filter. Only OPEN and
// PARTIAL lines are ever eligible, whatever statuses are requested.
func (f Filter) Matches(o *domain.Order) bool {
	if !o.Status.IsActive() {
		return false
	}
	if len(f.Customers) > 0 && !contains(f.Customers, o.Customer) {
		return false
	}
	if len(f.Sites) > 0 && !contains(f.Sites, o.ProductionSite) {
		return false
	}
	if len(f.Statuses) > 0 && !contains(f.Statuses, o.Status) {
		return false
	}
	return true
}

func contains[T comparable](set []T, v T) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
