package shortage_test

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/straye-as/shortage-api/internal/domain"
	"github.com/straye-as/shortage-api/internal/shortage"
	"github.com/stretchr/testify/assert"
)

var analysisDate = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDec(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), append([]interface{}{"want %s, got %s", want, got.String()}, msgAndArgs...)...)
}

func day(offset int) time.Time {
	return analysisDate.AddDate(0, 0, offset)
}

func dayPtr(offset int) *time.Time {
	d := day(offset)
	return &d
}

// catalogBuilder assembles master data for tests with insertion-ordered IDs.
// Plant sites S1 and S2 are always present.
type catalogBuilder struct {
	data   shortage.CatalogData
	nextID uint
}

func newCatalogBuilder() *catalogBuilder {
	return (&catalogBuilder{}).sites("S1", "S2")
}

func (b *catalogBuilder) products(pkids ...string) *catalogBuilder {
	for _, p := range pkids {
		b.data.Products = append(b.data.Products, domain.Product{PKID: p})
	}
	return b
}

func (b *catalogBuilder) sites(codes ...string) *catalogBuilder {
	for _, c := range codes {
		b.data.Sites = append(b.data.Sites, domain.PlantSite{SiteCode: c})
	}
	return b
}

func (b *catalogBuilder) bom(parent, component, qty string) *catalogBuilder {
	b.nextID++
	b.data.BOMLines = append(b.data.BOMLines, domain.BOMLine{
		ID:              b.nextID,
		ParentPKID:      parent,
		ComponentPKID:   component,
		QuantityPerUnit: dec(qty),
	})
	return b
}

func (b *catalogBuilder) substitute(primary, sub string, priority int) *catalogBuilder {
	b.nextID++
	b.data.Substitutes = append(b.data.Substitutes, domain.SubstituteLink{
		ID:             b.nextID,
		PrimaryPKID:    primary,
		SubstitutePKID: sub,
		Priority:       priority,
	})
	return b
}

func (b *catalogBuilder) stock(pkid, site string, date time.Time, qty string) *catalogBuilder {
	b.data.Snapshots = append(b.data.Snapshots, domain.InventorySnapshot{
		PKID:         pkid,
		PlantSite:    site,
		SnapshotDate: date,
		OnHandQty:    dec(qty),
	})
	return b
}

func (b *catalogBuilder) build() *shortage.Catalog {
	return shortage.NewCatalog(b.data)
}

// exampleCatalog is P1 -> {C1 x2, C2 x1}, C2S substitutes C2 at priority 1
func exampleCatalog() *shortage.Catalog {
	return newCatalogBuilder().
		products("P1", "C1", "C2", "C2S").
		bom("P1", "C1", "2").
		bom("P1", "C2", "1").
		substitute("C2", "C2S", 1).
		stock("C1", "S1", day(-1), "15").
		stock("C2", "S1", day(-1), "0").
		stock("C2S", "S1", day(-1), "8").
		build()
}

func newOrder(po, pkid, customer, site, qty string, due *time.Time) domain.Order {
	return domain.Order{
		ID:             uuid.New(),
		PONumber:       po,
		PKID:           pkid,
		Customer:       customer,
		ProductionSite: site,
		OrderedQty:     dec(qty),
		DeliveredQty:   decimal.Zero,
		OrderDate:      day(-10),
		DueDate:        due,
		Status:         domain.OrderStatusOpen,
	}
}

// recordingResolver records every stock lookup it answers
type recordingResolver struct {
	inner shortage.StockResolver
	mu    sync.Mutex
	calls []string
}

func (p *recordingResolver) ResolveAvailable(pkid, site string, asOf time.Time) decimal.Decimal {
	p.mu.Lock()
	p.calls = append(p.calls, pkid)
	p.mu.Unlock()
	return p.inner.ResolveAvailable(pkid, site, asOf)
}

func (p *recordingResolver) looked(pkid string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.calls {
		if c == pkid {
			return true
		}
	}
	return false
}
