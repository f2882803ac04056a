package shortage

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/straye-as/shortage-api/internal/domain"
)

// Calculator turns one order line into its shortage records
type Calculator struct {
	catalog      *Catalog
	stock        StockResolver
	analysisDate time.Time
	leadTime     time.Duration
}

// NewCalculator creates a calculator reading master data from catalog and
// stock levels from stock. A nil stock resolver falls back to the catalog's
// snapshot index.
func NewCalculator(catalog *Catalog, stock StockResolver, opts Options) (*Calculator, error) {
	if catalog == nil {
		return nil, errors.New("catalog is required")
	}
	if opts.AnalysisDate.IsZero() {
		return nil, errors.New("analysis date is required")
	}
	if opts.UrgentLeadDays < 0 {
		return nil, errors.New("urgent lead days must not be negative")
	}
	if stock == nil {
		stock = catalog.Snapshots()
	}
	return &Calculator{
		catalog:      catalog,
		stock:        stock,
		analysisDate: domain.DateOnly(opts.AnalysisDate),
		leadTime:     time.Duration(opts.UrgentLeadDays) * 24 * time.Hour,
	}, nil
}

// Compute explodes the outstanding quantity of order and resolves every
// component against stock at the order's production site.
func (c *Calculator) Compute(order domain.Order) ([]Record, error) {
	if !c.catalog.HasProduct(order.PKID) {
		return nil, &IntegrityError{
			Kind:      IntegrityOrderProduct,
			Reference: order.PKID,
			Referrer:  order.Key().String(),
		}
	}
	if !c.catalog.HasSite(order.ProductionSite) {
		return nil, &IntegrityError{
			Kind:      IntegrityOrderSite,
			Reference: order.ProductionSite,
			Referrer:  order.Key().String(),
		}
	}

	reqs, err := c.catalog.Explode(order.PKID, order.OutstandingQty())
	if err != nil {
		return nil, err
	}

	if len(reqs) == 0 {
		return []Record{{
			OrderID:          order.ID,
			Order:            order.Key(),
			Required:         decimal.Zero,
			PrimaryAvailable: decimal.Zero,
			Available:        decimal.Zero,
			Shortage:         decimal.Zero,
		}}, nil
	}

	records := make([]Record, 0, len(reqs))
	for _, req := range reqs {
		rec, err := c.resolve(&order, req)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func (c *Calculator) resolve(order *domain.Order, req Requirement) (Record, error) {
	links := c.catalog.Substitutes(req.ComponentPKID)
	for _, l := range links {
		if !c.catalog.HasProduct(l.SubstitutePKID) {
			return Record{}, &IntegrityError{
				Kind:      IntegritySubstitute,
				Reference: l.SubstitutePKID,
				Referrer:  req.ComponentPKID,
			}
		}
	}

	primary := c.stock.ResolveAvailable(req.ComponentPKID, order.ProductionSite, c.analysisDate)
	rec := Record{
		OrderID:          order.ID,
		Order:            order.Key(),
		ComponentPKID:    req.ComponentPKID,
		Required:         req.Required,
		PrimaryAvailable: primary,
		Available:        primary,
		Shortage:         decimal.Zero,
	}

	if primary.GreaterThanOrEqual(req.Required) {
		return rec, nil
	}

	deficit := req.Required.Sub(primary)
	for _, l := range links {
		if !deficit.IsPositive() {
			break
		}
		stock := c.stock.ResolveAvailable(l.SubstitutePKID, order.ProductionSite, c.analysisDate)
		if !stock.IsPositive() {
			continue
		}
		applied := decimal.Min(stock, deficit)
		deficit = deficit.Sub(applied)
		rec.Available = rec.Available.Add(applied)
		rec.Substitutes = append(rec.Substitutes, SubstituteUsage{PKID: l.SubstitutePKID, Qty: applied})
	}

	rec.Shortage = decimal.Max(decimal.Zero, deficit)
	rec.Urgent = rec.Shortage.IsPositive() && c.dueWithinLeadTime(order.DueDate)
	return rec, nil
}

// dueWithinLeadTime is true when the due date is at most the lead time after
// the analysis date. Lines without a due date are never urgent.
func (c *Calculator) dueWithinLeadTime(due *time.Time) bool {
	if due == nil {
		return false
	}
	return domain.DateOnly(*due).Sub(c.analysisDate) <= c.leadTime
}
