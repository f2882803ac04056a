package shortage

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/straye-as/shortage-api/internal/domain"
)

// R1Row is the customer/site rollup
type R1Row struct {
	Customer          string
	ProductionSite    string
	OrderLines        int
	OutstandingQty    decimal.Decimal
	RequiredQty       decimal.Decimal
	ShortageQty       decimal.Decimal
	ShortedOrderLines int
	ShortComponents   []string
}

// ComponentCell is one component's triple in an R2 row
type ComponentCell struct {
	Required       decimal.Decimal
	Available      decimal.Decimal
	Shortage       decimal.Decimal
	SubstituteUsed decimal.Decimal
	Urgent         bool
}

// R2Row is one order line in the wide detail report
type R2Row struct {
	OrderID        uuid.UUID
	Order          domain.OrderKey
	Status         domain.OrderStatus
	DueDate        *time.Time
	OutstandingQty decimal.Decimal
	Urgent         bool
	Cells          map[string]ComponentCell
}

// Cell returns the cell for component, zero-filled when the line does not use it
func (r R2Row) Cell(component string) ComponentCell {
	if c, ok := r.Cells[component]; ok {
		return c
	}
	return ComponentCell{
		Required:       decimal.Zero,
		Available:      decimal.Zero,
		Shortage:       decimal.Zero,
		SubstituteUsed: decimal.Zero,
	}
}

// Report is the full output of one run
type Report struct {
	AnalysisDate time.Time
	// Components is the R2 column set: every component touched by any line,
	// in first-encounter order over the sorted lines.
	Components []string
	R1         []R1Row
	R2         []R2Row
	Lines      []LineResult
}

type siteKey struct {
	customer string
	site     string
}

// Aggregate reduces computed lines into R1 and R2 in one pass. Lines are
// expected in SortOrders order; R1 is additionally sorted by customer, site.
func Aggregate(analysisDate time.Time, lines []LineResult) *Report {
	report := &Report{
		AnalysisDate: domain.DateOnly(analysisDate),
		Components:   []string{},
		R1:           []R1Row{},
		R2:           make([]R2Row, 0, len(lines)),
		Lines:        lines,
	}

	seen := make(map[string]bool)
	groups := make(map[siteKey]*R1Row)
	shortSets := make(map[siteKey]map[string]bool)

	for _, line := range lines {
		o := line.Order
		key := siteKey{customer: o.Customer, site: o.ProductionSite}
		group, ok := groups[key]
		if !ok {
			group = &R1Row{
				Customer:       o.Customer,
				ProductionSite: o.ProductionSite,
				OutstandingQty: decimal.Zero,
				RequiredQty:    decimal.Zero,
				ShortageQty:    decimal.Zero,
			}
			groups[key] = group
			shortSets[key] = make(map[string]bool)
		}
		group.OrderLines++
		group.OutstandingQty = group.OutstandingQty.Add(o.OutstandingQty())

		row := R2Row{
			OrderID:        o.ID,
			Order:          o.Key(),
			Status:         o.Status,
			DueDate:        o.DueDate,
			OutstandingQty: o.OutstandingQty(),
			Cells:          make(map[string]ComponentCell),
		}

		lineShort := false
		for _, rec := range line.Records {
			group.RequiredQty = group.RequiredQty.Add(rec.Required)
			group.ShortageQty = group.ShortageQty.Add(rec.Shortage)
			if rec.Shortage.IsPositive() {
				lineShort = true
				shortSets[key][rec.ComponentPKID] = true
			}
			if rec.Urgent {
				row.Urgent = true
			}
			if rec.IsMaterialFree() {
				continue
			}
			if !seen[rec.ComponentPKID] {
				seen[rec.ComponentPKID] = true
				report.Components = append(report.Components, rec.ComponentPKID)
			}
			cell := row.Cell(rec.ComponentPKID)
			cell.Required = cell.Required.Add(rec.Required)
			cell.Available = cell.Available.Add(rec.Available)
			cell.Shortage = cell.Shortage.Add(rec.Shortage)
			cell.SubstituteUsed = cell.SubstituteUsed.Add(rec.SubstituteQty())
			cell.Urgent = cell.Urgent || rec.Urgent
			row.Cells[rec.ComponentPKID] = cell
		}
		if lineShort {
			group.ShortedOrderLines++
		}
		report.R2 = append(report.R2, row)
	}

	keys := make([]siteKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].customer != keys[j].customer {
			return keys[i].customer < keys[j].customer
		}
		return keys[i].site < keys[j].site
	})
	for _, k := range keys {
		group := groups[k]
		group.ShortComponents = make([]string, 0, len(shortSets[k]))
		for c := range shortSets[k] {
			group.ShortComponents = append(group.ShortComponents, c)
		}
		sort.Strings(group.ShortComponents)
		report.R1 = append(report.R1, *group)
	}

	return report
}
