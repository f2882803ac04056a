package shortage

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/straye-as/shortage-api/internal/domain"
)

// Catalog is an immutable in-memory copy of the master data and inventory
// snapshots a report run reads from. Building one from a single read
// transaction gives every order line the same consistent view.
type Catalog struct {
	products    map[string]domain.Product
	sites       map[string]domain.PlantSite
	bom         map[string][]domain.BOMLine
	substitutes map[string][]domain.SubstituteLink
	snapshots   *SnapshotIndex
}

// CatalogData is the raw material a Catalog is built from
type CatalogData struct {
	Products    []domain.Product
	Sites       []domain.PlantSite
	BOMLines    []domain.BOMLine
	Substitutes []domain.SubstituteLink
	Snapshots   []domain.InventorySnapshot
}

// NewCatalog indexes master data. BOM lines keep insertion (ID) order and
// substitutes are ranked by priority, then ID.
func NewCatalog(data CatalogData) *Catalog {
	c := &Catalog{
		products:    make(map[string]domain.Product, len(data.Products)),
		sites:       make(map[string]domain.PlantSite, len(data.Sites)),
		bom:         make(map[string][]domain.BOMLine),
		substitutes: make(map[string][]domain.SubstituteLink),
		snapshots:   NewSnapshotIndex(data.Snapshots),
	}
	for _, p := range data.Products {
		c.products[p.PKID] = p
	}
	for _, s := range data.Sites {
		c.sites[s.SiteCode] = s
	}
	for _, l := range data.BOMLines {
		c.bom[l.ParentPKID] = append(c.bom[l.ParentPKID], l)
	}
	for parent := range c.bom {
		lines := c.bom[parent]
		sort.SliceStable(lines, func(i, j int) bool { return lines[i].ID < lines[j].ID })
	}
	for _, s := range data.Substitutes {
		c.substitutes[s.PrimaryPKID] = append(c.substitutes[s.PrimaryPKID], s)
	}
	for primary := range c.substitutes {
		links := c.substitutes[primary]
		sort.SliceStable(links, func(i, j int) bool {
			if links[i].Priority != links[j].Priority {
				return links[i].Priority < links[j].Priority
			}
			return links[i].ID < links[j].ID
		})
	}
	return c
}

// HasProduct reports whether pkid exists in the product master
func (c *Catalog) HasProduct(pkid string) bool {
	_, ok := c.products[pkid]
	return ok
}

// HasSite reports whether code exists in the plant site master
func (c *Catalog) HasSite(code string) bool {
	_, ok := c.sites[code]
	return ok
}

// Substitutes returns the substitute links for a primary part in walk order
func (c *Catalog) Substitutes(pkid string) []domain.SubstituteLink {
	return c.substitutes[pkid]
}

// Snapshots returns the stock index built from the catalog's snapshots
func (c *Catalog) Snapshots() *SnapshotIndex {
	return c.snapshots
}

// Explode returns one requirement per BOM line of product, scaled by qty, in
// BOM insertion order. A product without BOM lines yields an empty slice.
// Components are not exploded further.
func (c *Catalog) Explode(product string, qty decimal.Decimal) ([]Requirement, error) {
	lines := c.bom[product]
	reqs := make([]Requirement, 0, len(lines))
	for _, l := range lines {
		if !c.HasProduct(l.ComponentPKID) {
			return nil, &IntegrityError{
				Kind:      IntegrityBOMComponent,
				Reference: l.ComponentPKID,
				Referrer:  product,
			}
		}
		reqs = append(reqs, Requirement{
			ComponentPKID: l.ComponentPKID,
			Required:      l.QuantityPerUnit.Mul(qty),
			BOMLineID:     l.ID,
		})
	}
	return reqs, nil
}

// Validate walks the BOM graph and reports self loops and cycles. Single
// level explosion never follows them, but a cycle still means the product
// master is inconsistent.
func (c *Catalog) Validate() []error {
	var errs []error
	const (
		unvisited = iota
		inProgress
		done
	)
	state := make(map[string]int, len(c.bom))

	parents := make([]string, 0, len(c.bom))
	for p := range c.bom {
		parents = append(parents, p)
	}
	sort.Strings(parents)

	var visit func(pkid string, path []string)
	visit = func(pkid string, path []string) {
		next := append(append(make([]string, 0, len(path)+1), path...), pkid)
		switch state[pkid] {
		case inProgress:
			errs = append(errs, fmt.Errorf("bom cycle: %v", next))
			return
		case done:
			return
		}
		state[pkid] = inProgress
		for _, l := range c.bom[pkid] {
			visit(l.ComponentPKID, next)
		}
		state[pkid] = done
	}
	for _, p := range parents {
		if state[p] == unvisited {
			visit(p, nil)
		}
	}
	return errs
}
