package shortage

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/straye-as/shortage-api/internal/domain"
)

type stockKey struct {
	pkid string
	site string
}

type stockPoint struct {
	date time.Time
	qty  decimal.Decimal
}

// SnapshotIndex resolves on-hand stock from inventory snapshots. It is
// immutable once built and safe for concurrent reads.
type SnapshotIndex struct {
	series map[stockKey][]stockPoint
}

// NewSnapshotIndex indexes snapshots per (part, site), ascending by date.
// When the same date appears more than once the last one wins.
func NewSnapshotIndex(snapshots []domain.InventorySnapshot) *SnapshotIndex {
	idx := &SnapshotIndex{series: make(map[stockKey][]stockPoint)}
	for _, s := range snapshots {
		k := stockKey{pkid: s.PKID, site: s.PlantSite}
		idx.series[k] = append(idx.series[k], stockPoint{date: domain.DateOnly(s.SnapshotDate), qty: s.OnHandQty})
	}
	for k, points := range idx.series {
		sort.SliceStable(points, func(i, j int) bool {
			return points[i].date.Before(points[j].date)
		})
		deduped := points[:0]
		for _, p := range points {
			if n := len(deduped); n > 0 && deduped[n-1].date.Equal(p.date) {
				deduped[n-1] = p
				continue
			}
			deduped = append(deduped, p)
		}
		idx.series[k] = deduped
	}
	return idx
}

// ResolveAvailable returns the quantity of the latest snapshot dated on or
// before asOf, or zero when there is none. Later snapshots are never used.
func (x *SnapshotIndex) ResolveAvailable(pkid, site string, asOf time.Time) decimal.Decimal {
	if p, ok := x.latest(pkid, site, asOf); ok {
		return p.qty
	}
	return decimal.Zero
}

func (x *SnapshotIndex) latest(pkid, site string, asOf time.Time) (stockPoint, bool) {
	points := x.series[stockKey{pkid: pkid, site: site}]
	day := domain.DateOnly(asOf)
	// first index with date > day
	i := sort.Search(len(points), func(i int) bool {
		return points[i].date.After(day)
	})
	if i == 0 {
		return stockPoint{}, false
	}
	return points[i-1], true
}
