package shortage_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/straye-as/shortage-api/internal/domain"
	"github.com/straye-as/shortage-api/internal/shortage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T, cat *shortage.Catalog, workers int) *shortage.Engine {
	t.Helper()
	eng, err := shortage.NewEngine(cat, nil, shortage.Options{
		AnalysisDate:   analysisDate,
		UrgentLeadDays: 7,
		Workers:        workers,
	})
	require.NoError(t, err)
	return eng
}

// render flattens a report into comparable text
func render(r *shortage.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "components=%v\n", r.Components)
	for _, row := range r.R1 {
		fmt.Fprintf(&b, "R1 %s/%s lines=%d out=%s req=%s short=%s shorted=%d comps=%v\n",
			row.Customer, row.ProductionSite, row.OrderLines, row.OutstandingQty, row.RequiredQty,
			row.ShortageQty, row.ShortedOrderLines, row.ShortComponents)
	}
	for _, row := range r.R2 {
		fmt.Fprintf(&b, "R2 %s urgent=%t", row.Order, row.Urgent)
		for _, c := range r.Components {
			cell := row.Cell(c)
			fmt.Fprintf(&b, " %s[%s/%s/%s]", c, cell.Required, cell.Available, cell.Shortage)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func manyOrders() []domain.Order {
	var orders []domain.Order
	customers := []string{"VOLVO", "ACME", "SCANIA"}
	for i := 0; i < 60; i++ {
		c := customers[i%len(customers)]
		orders = append(orders, newOrder(fmt.Sprintf("PO-%03d", 60-i), "P1", c, "S1", fmt.Sprintf("%d", i%7+1), dayPtr(i%12-2)))
	}
	return orders
}

func TestEngine_RunIsDeterministic(t *testing.T) {
	cat := exampleCatalog()
	orders := manyOrders()

	serial, err := newEngine(t, cat, 1).Run(context.Background(), orders, shortage.Filter{})
	require.NoError(t, err)

	for _, workers := range []int{2, 8, 32} {
		parallel, err := newEngine(t, cat, workers).Run(context.Background(), orders, shortage.Filter{})
		require.NoError(t, err)
		assert.Equal(t, render(serial), render(parallel), "workers=%d", workers)
	}
}

func TestEngine_RunSortsLines(t *testing.T) {
	orders := []domain.Order{
		newOrder("PO-2", "P1", "B", "S1", "1", nil),
		newOrder("PO-9", "P1", "A", "S1", "1", nil),
		newOrder("PO-1", "P1", "B", "S1", "1", nil),
	}

	report, err := newEngine(t, exampleCatalog(), 4).Run(context.Background(), orders, shortage.Filter{})
	require.NoError(t, err)
	require.Len(t, report.R2, 3)
	assert.Equal(t, "A", report.R2[0].Order.Customer)
	assert.Equal(t, "PO-1", report.R2[1].Order.PONumber)
	assert.Equal(t, "PO-2", report.R2[2].Order.PONumber)
}

func TestEngine_RunFailsOnIntegrityFaults(t *testing.T) {
	orders := []domain.Order{
		newOrder("PO-1", "P1", "ACME", "S1", "1", nil),
		newOrder("PO-2", "MISSING", "ACME", "S1", "1", nil),
		newOrder("PO-3", "P1", "ACME", "S1", "1", nil),
	}

	report, err := newEngine(t, exampleCatalog(), 4).Run(context.Background(), orders, shortage.Filter{})
	require.Error(t, err)
	assert.Nil(t, report)

	var re *shortage.ReportError
	require.True(t, errors.As(err, &re))
	require.Len(t, re.Faults, 1)
	assert.Equal(t, "PO-2", re.Faults[0].Order.PONumber)
	assert.Equal(t, 2, re.Completed)
	assert.True(t, shortage.IsIntegrityFault(err))
	assert.Contains(t, err.Error(), "MISSING")
}

func TestEngine_RunFailsOnUnknownSite(t *testing.T) {
	orders := []domain.Order{
		newOrder("PO-1", "P1", "ACME", "S1", "10", nil),
		newOrder("PO-2", "P1", "ACME", "GHOST", "10", nil),
	}

	report, err := newEngine(t, exampleCatalog(), 2).Run(context.Background(), orders, shortage.Filter{})
	require.Error(t, err)
	assert.Nil(t, report)

	var re *shortage.ReportError
	require.True(t, errors.As(err, &re))
	require.Len(t, re.Faults, 1)
	assert.Equal(t, "GHOST", re.Faults[0].Order.ProductionSite)
	assert.Equal(t, 1, re.Completed)

	var ie *shortage.IntegrityError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, shortage.IntegrityOrderSite, ie.Kind)
}

func TestEngine_RunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := newEngine(t, exampleCatalog(), 4).Run(ctx, manyOrders(), shortage.Filter{})
	assert.Nil(t, report)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEngine_RunFilters(t *testing.T) {
	closed := newOrder("PO-3", "P1", "ACME", "S1", "5", nil)
	closed.Status = domain.OrderStatusClosed
	cancelled := newOrder("PO-4", "P1", "ACME", "S1", "5", nil)
	cancelled.Status = domain.OrderStatusCancelled
	partial := newOrder("PO-5", "P1", "ACME", "S2", "5", nil)
	partial.Status = domain.OrderStatusPartial

	orders := []domain.Order{
		newOrder("PO-1", "P1", "ACME", "S1", "5", nil),
		newOrder("PO-2", "P1", "VOLVO", "S1", "5", nil),
		closed, cancelled, partial,
	}
	eng := newEngine(t, exampleCatalog(), 2)

	t.Run("only active lines", func(t *testing.T) {
		report, err := eng.Run(context.Background(), orders, shortage.Filter{})
		require.NoError(t, err)
		assert.Len(t, report.R2, 3)
	})

	t.Run("closed status never included", func(t *testing.T) {
		report, err := eng.Run(context.Background(), orders, shortage.Filter{Statuses: []domain.OrderStatus{domain.OrderStatusClosed}})
		require.NoError(t, err)
		assert.Empty(t, report.R2)
	})

	t.Run("customer and site", func(t *testing.T) {
		report, err := eng.Run(context.Background(), orders, shortage.Filter{Customers: []string{"ACME"}, Sites: []string{"S2"}})
		require.NoError(t, err)
		require.Len(t, report.R2, 1)
		assert.Equal(t, "PO-5", report.R2[0].Order.PONumber)
	})

	t.Run("status", func(t *testing.T) {
		report, err := eng.Run(context.Background(), orders, shortage.Filter{Statuses: []domain.OrderStatus{domain.OrderStatusPartial}})
		require.NoError(t, err)
		require.Len(t, report.R2, 1)
		assert.Equal(t, domain.OrderStatusPartial, report.R2[0].Status)
	})
}

func TestEngine_EmptyRun(t *testing.T) {
	report, err := newEngine(t, exampleCatalog(), 2).Run(context.Background(), nil, shortage.Filter{})
	require.NoError(t, err)
	assert.Empty(t, report.R1)
	assert.Empty(t, report.R2)
	assert.Empty(t, report.Components)
	assert.Equal(t, analysisDate, report.AnalysisDate)
}
