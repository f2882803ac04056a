// Package shortage computes component shortages for open order lines.
//
// A run reads from an immutable Catalog, maps every order line to its
// shortage records in parallel and reduces the results into the R1
// customer/site rollup and the R2 per-line wide report. The reduce step only
// depends on the ordered input, never on completion order.
package shortage

import (
	"context"
	"errors"
	"sort"

	"github.com/straye-as/shortage-api/internal/domain"
	"golang.org/x/sync/errgroup"
)

const defaultWorkers = 4

// LineResult is the outcome of computing one order line
type LineResult struct {
	Order   domain.Order
	Records []Record
	Err     error
}

// Engine runs shortage reports over a fixed catalog
type Engine struct {
	calc    *Calculator
	opts    Options
	workers int
}

// NewEngine creates an engine. stock may be nil to read the catalog's snapshots.
func NewEngine(catalog *Catalog, stock StockResolver, opts Options) (*Engine, error) {
	calc, err := NewCalculator(catalog, stock, opts)
	if err != nil {
		return nil, err
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Engine{calc: calc, opts: opts, workers: workers}, nil
}

// Compute returns the shortage records of a single order line
func (e *Engine) Compute(order domain.Order) ([]Record, error) {
	return e.calc.Compute(order)
}

// Run filters orders, computes every remaining line and aggregates the
// report. If any line hits an integrity fault the other lines still run, and
// the run fails with a *ReportError naming each faulted line. A cancelled
// context discards everything computed so far.
func (e *Engine) Run(ctx context.Context, orders []domain.Order, filter Filter) (*Report, error) {
	lines := make([]domain.Order, 0, len(orders))
	for i := range orders {
		if filter.Matches(&orders[i]) {
			lines = append(lines, orders[i])
		}
	}
	SortOrders(lines)

	results := make([]LineResult, len(lines))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i := range lines {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			recs, err := e.calc.Compute(lines[i])
			results[i] = LineResult{Order: lines[i], Records: recs, Err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var faults []LineFault
	for _, r := range results {
		if r.Err != nil {
			faults = append(faults, LineFault{OrderID: r.Order.ID, Order: r.Order.Key(), Err: r.Err})
		}
	}
	if len(faults) > 0 {
		return nil, &ReportError{Faults: faults, Completed: len(results) - len(faults)}
	}

	return Aggregate(e.opts.AnalysisDate, results), nil
}

// SortOrders puts order lines in report order: customer, site, PO number,
// part, then ID as a final tiebreak.
func SortOrders(lines []domain.Order) {
	sort.SliceStable(lines, func(i, j int) bool {
		a, b := &lines[i], &lines[j]
		if a.Customer != b.Customer {
			return a.Customer < b.Customer
		}
		if a.ProductionSite != b.ProductionSite {
			return a.ProductionSite < b.ProductionSite
		}
		if a.PONumber != b.PONumber {
			return a.PONumber < b.PONumber
		}
		if a.PKID != b.PKID {
			return a.PKID < b.PKID
		}
		return a.ID.String() < b.ID.String()
	})
}

// IsIntegrityFault reports whether err is, or contains, a master data fault
func IsIntegrityFault(err error) bool {
	return errors.Is(err, ErrIntegrity)
}
