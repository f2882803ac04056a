package shortage_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/straye-as/shortage-api/internal/domain"
	"github.com/straye-as/shortage-api/internal/shortage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reportCatalog() *shortage.Catalog {
	return newCatalogBuilder().
		products("P1", "P2", "SVC", "C1", "C2", "C2S", "C3").
		bom("P1", "C1", "2").
		bom("P1", "C2", "1").
		bom("P2", "C3", "4").
		substitute("C2", "C2S", 1).
		stock("C1", "S1", day(-1), "15").
		stock("C2S", "S1", day(-1), "8").
		stock("C3", "S1", day(-1), "100").
		stock("C3", "S2", day(-1), "1").
		build()
}

func TestAggregate_ExampleReport(t *testing.T) {
	orders := []domain.Order{newOrder("PO-1", "P1", "ACME", "S1", "10", dayPtr(3))}

	report, err := newEngine(t, exampleCatalog(), 1).Run(context.Background(), orders, shortage.Filter{})
	require.NoError(t, err)

	require.Len(t, report.R1, 1)
	r1 := report.R1[0]
	assert.Equal(t, "ACME", r1.Customer)
	assert.Equal(t, 1, r1.OrderLines)
	assertDec(t, "10", r1.OutstandingQty)
	assertDec(t, "30", r1.RequiredQty)
	assertDec(t, "7", r1.ShortageQty)
	assert.Equal(t, 1, r1.ShortedOrderLines)
	assert.Equal(t, []string{"C1", "C2"}, r1.ShortComponents)

	require.Len(t, report.R2, 1)
	r2 := report.R2[0]
	assert.True(t, r2.Urgent)
	assertDec(t, "5", r2.Cell("C1").Shortage)
	assertDec(t, "8", r2.Cell("C2").SubstituteUsed)
	assert.Equal(t, []string{"C1", "C2"}, report.Components)
}

func TestAggregate_R1MatchesR2(t *testing.T) {
	orders := []domain.Order{
		newOrder("PO-1", "P1", "ACME", "S1", "10", dayPtr(3)),
		newOrder("PO-2", "P2", "ACME", "S1", "5", dayPtr(30)),
		newOrder("PO-3", "P2", "ACME", "S2", "5", nil),
		newOrder("PO-4", "SVC", "VOLVO", "S1", "2", nil),
		newOrder("PO-5", "P1", "VOLVO", "S1", "1", dayPtr(-1)),
	}

	report, err := newEngine(t, reportCatalog(), 3).Run(context.Background(), orders, shortage.Filter{})
	require.NoError(t, err)

	type group struct{ customer, site string }
	shortages := make(map[group]decimal.Decimal)
	required := make(map[group]decimal.Decimal)
	lines := make(map[group]int)
	for _, row := range report.R2 {
		g := group{row.Order.Customer, row.Order.ProductionSite}
		lines[g]++
		for _, c := range report.Components {
			cell := row.Cell(c)
			shortages[g] = shortages[g].Add(cell.Shortage)
			required[g] = required[g].Add(cell.Required)
		}
	}

	require.Len(t, report.R1, len(lines))
	for _, r1 := range report.R1 {
		g := group{r1.Customer, r1.ProductionSite}
		assert.Equal(t, lines[g], r1.OrderLines, "%v", g)
		assert.True(t, shortages[g].Equal(r1.ShortageQty), "%v shortage", g)
		assert.True(t, required[g].Equal(r1.RequiredQty), "%v required", g)
	}
}

func TestAggregate_ComponentsAndZeroFill(t *testing.T) {
	orders := []domain.Order{
		newOrder("PO-1", "P2", "ACME", "S1", "1", nil),
		newOrder("PO-2", "P1", "ACME", "S1", "1", nil),
		newOrder("PO-3", "SVC", "ACME", "S1", "1", nil),
	}

	report, err := newEngine(t, reportCatalog(), 2).Run(context.Background(), orders, shortage.Filter{})
	require.NoError(t, err)

	assert.Equal(t, []string{"C3", "C1", "C2"}, report.Components)
	require.Len(t, report.R2, 3)

	first := report.R2[0]
	assert.Equal(t, "P2", first.Order.PKID)
	cell := first.Cell("C1")
	assert.True(t, cell.Required.IsZero())
	assert.True(t, cell.Shortage.IsZero())

	svc := report.R2[2]
	assert.Equal(t, "SVC", svc.Order.PKID)
	assert.Empty(t, svc.Cells)
	assert.False(t, svc.Urgent)

	require.Len(t, report.R1, 1)
	assert.Equal(t, 3, report.R1[0].OrderLines)
	assert.Equal(t, 0, report.R1[0].ShortedOrderLines)
}

func TestAggregate_R1SortedByCustomerThenSite(t *testing.T) {
	orders := []domain.Order{
		newOrder("PO-1", "P2", "VOLVO", "S2", "1", nil),
		newOrder("PO-2", "P2", "ACME", "S2", "1", nil),
		newOrder("PO-3", "P2", "ACME", "S1", "1", nil),
	}

	report, err := newEngine(t, reportCatalog(), 2).Run(context.Background(), orders, shortage.Filter{})
	require.NoError(t, err)
	require.Len(t, report.R1, 3)
	assert.Equal(t, "ACME/S1", report.R1[0].Customer+"/"+report.R1[0].ProductionSite)
	assert.Equal(t, "ACME/S2", report.R1[1].Customer+"/"+report.R1[1].ProductionSite)
	assert.Equal(t, "VOLVO/S2", report.R1[2].Customer+"/"+report.R1[2].ProductionSite)
}
