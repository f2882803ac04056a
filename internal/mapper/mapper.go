package mapper

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/straye-as/shortage-api/internal/domain"
	"github.com/straye-as/shortage-api/internal/shortage"
)

const timestampLayout = "2006-01-02T15:04:05Z"

func formatDate(t time.Time) string {
	return t.Format(domain.DateLayout)
}

func formatDatePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatDate(*t)
	return &s
}

// ToOrderRow converts the wire form of an order row. Date strings that do not
// parse are reported as a *domain.ValidationError; empty ones are left zero so
// the reconciler reports them as missing.
func ToOrderRow(req *domain.OrderRowRequest) (domain.OrderRow, error) {
	row := domain.OrderRow{
		PONumber:       strings.TrimSpace(req.PONumber),
		PKID:           strings.TrimSpace(req.PKID),
		Customer:       strings.TrimSpace(req.Customer),
		ProductionSite: strings.TrimSpace(req.ProductionSite),
		OrderedQty:     req.OrderedQty,
		DeliveredQty:   decimal.Zero,
		Status:         domain.OrderStatus(strings.ToUpper(strings.TrimSpace(req.Status))),
	}
	if req.DeliveredQty != nil {
		row.DeliveredQty = *req.DeliveredQty
	}

	if s := strings.TrimSpace(req.OrderDate); s != "" {
		d, err := domain.ParseDate(s)
		if err != nil {
			return row, &domain.ValidationError{Reason: domain.ReasonInvalidDate, Field: "orderDate"}
		}
		row.OrderDate = d
	}
	if s := strings.TrimSpace(req.DueDate); s != "" {
		d, err := domain.ParseDate(s)
		if err != nil {
			return row, &domain.ValidationError{Reason: domain.ReasonInvalidDate, Field: "dueDate"}
		}
		row.DueDate = &d
	}
	return row, nil
}

// ToOrderDTO converts Order to OrderDTO
func ToOrderDTO(order *domain.Order) domain.OrderDTO {
	dto := domain.OrderDTO{
		ID:             order.ID,
		PONumber:       order.PONumber,
		PKID:           order.PKID,
		Customer:       order.Customer,
		ProductionSite: order.ProductionSite,
		OrderedQty:     order.OrderedQty.String(),
		DeliveredQty:   order.DeliveredQty.String(),
		OutstandingQty: order.OutstandingQty().String(),
		OrderDate:      formatDate(order.OrderDate),
		DueDate:        formatDatePtr(order.DueDate),
		Status:         order.Status,
		CreatedAt:      order.CreatedAt.Format(timestampLayout),
		UpdatedAt:      order.UpdatedAt.Format(timestampLayout),
	}
	if order.CompletedAt != nil {
		completed := order.CompletedAt.Format(timestampLayout)
		dto.CompletedAt = &completed
	}
	return dto
}

// ToPurchaseOrderDTO converts PurchaseOrder to PurchaseOrderDTO, flagging
// urgency relative to today
func ToPurchaseOrderDTO(po *domain.PurchaseOrder, today time.Time) domain.PurchaseOrderDTO {
	return domain.PurchaseOrderDTO{
		ID:        po.ID,
		PONumber:  po.PONumber,
		PKID:      po.PKID,
		Supplier:  po.Supplier,
		OrderDate: formatDate(po.OrderDate),
		OrderQty:  po.OrderQty.String(),
		ETA:       formatDatePtr(po.ETA),
		Status:    po.Status,
		Remarks:   po.Remarks,
		Urgency:   po.Urgency(today),
		UpdatedBy: po.UpdatedBy,
		CreatedAt: po.CreatedAt.Format(timestampLayout),
		UpdatedAt: po.UpdatedAt.Format(timestampLayout),
	}
}

// ToProductDTO converts Product to ProductDTO
func ToProductDTO(p *domain.Product) domain.ProductDTO {
	return domain.ProductDTO{
		PKID:        p.PKID,
		Description: p.Description,
		Unit:        p.Unit,
		Customer:    p.Customer,
		CarType:     p.CarType,
		UpdatedAt:   p.UpdatedAt.Format(timestampLayout),
	}
}

// ToPlantSiteDTO converts PlantSite to PlantSiteDTO
func ToPlantSiteDTO(s *domain.PlantSite) domain.PlantSiteDTO {
	return domain.PlantSiteDTO{SiteCode: s.SiteCode, Name: s.Name, Region: s.Region}
}

// ToBOMDTO converts the lines of one parent with the substitutes of each
// component, keyed by component PKID
func ToBOMDTO(parent string, lines []domain.BOMLine, substitutes map[string][]domain.SubstituteLink) domain.BOMDTO {
	dto := domain.BOMDTO{ParentPKID: parent, Lines: make([]domain.BOMLineDTO, 0, len(lines))}
	for _, l := range lines {
		line := domain.BOMLineDTO{
			ComponentPKID:   l.ComponentPKID,
			QuantityPerUnit: l.QuantityPerUnit.String(),
			Substitutes:     ToSubstituteDTOs(substitutes[l.ComponentPKID]),
		}
		dto.Lines = append(dto.Lines, line)
	}
	return dto
}

// ToSubstituteDTOs converts substitute links, keeping their order
func ToSubstituteDTOs(links []domain.SubstituteLink) []domain.SubstituteDTO {
	dtos := make([]domain.SubstituteDTO, 0, len(links))
	for _, s := range links {
		dtos = append(dtos, domain.SubstituteDTO{
			SubstitutePKID: s.SubstitutePKID,
			Priority:       s.Priority,
			Description:    s.Description,
		})
	}
	return dtos
}

// ToArchivedFileDTO converts ArchivedFile to ArchivedFileDTO
func ToArchivedFileDTO(file *domain.ArchivedFile) domain.ArchivedFileDTO {
	return domain.ArchivedFileDTO{
		ID:          file.ID,
		Kind:        file.Kind,
		Filename:    file.Filename,
		ContentType: file.ContentType,
		Size:        file.Size,
		CreatedBy:   file.CreatedBy,
		CreatedAt:   file.CreatedAt.Format(timestampLayout),
	}
}

// ToAvailableStockDTO converts a resolved snapshot lookup. A nil snapshot
// means no stock was recorded on or before asOf.
func ToAvailableStockDTO(pkid, site string, asOf time.Time, snap *domain.InventorySnapshot) domain.AvailableStockDTO {
	dto := domain.AvailableStockDTO{
		PKID:      pkid,
		PlantSite: site,
		AsOf:      formatDate(asOf),
		OnHandQty: decimal.Zero.String(),
	}
	if snap != nil {
		dto.OnHandQty = snap.OnHandQty.String()
		dto.SnapshotDate = formatDatePtr(&snap.SnapshotDate)
	}
	return dto
}

// ToSnapshotHistoryDTO converts snapshots ordered newest first. Each point
// carries its change from the next older point; the oldest point has none.
func ToSnapshotHistoryDTO(pkid, site string, snaps []domain.InventorySnapshot) domain.SnapshotHistoryDTO {
	dto := domain.SnapshotHistoryDTO{
		PKID:      pkid,
		PlantSite: site,
		Points:    make([]domain.SnapshotPointDTO, 0, len(snaps)),
	}
	for i, s := range snaps {
		change := decimal.Zero
		if i+1 < len(snaps) {
			change = s.OnHandQty.Sub(snaps[i+1].OnHandQty)
		}
		dto.Points = append(dto.Points, domain.SnapshotPointDTO{
			SnapshotDate: formatDate(s.SnapshotDate),
			OnHandQty:    s.OnHandQty.String(),
			Change:       change.String(),
		})
	}
	return dto
}

// ToShortageRecordDTO converts one computed shortage record
func ToShortageRecordDTO(rec *shortage.Record) domain.ShortageRecordDTO {
	dto := domain.ShortageRecordDTO{
		OrderID:          rec.OrderID,
		PONumber:         rec.Order.PONumber,
		ComponentPKID:    rec.ComponentPKID,
		RequiredQty:      rec.Required.String(),
		PrimaryAvailable: rec.PrimaryAvailable.String(),
		AvailableQty:     rec.Available.String(),
		ShortageQty:      rec.Shortage.String(),
		Urgent:           rec.Urgent,
	}
	for _, s := range rec.Substitutes {
		dto.Substitutes = append(dto.Substitutes, domain.SubstituteUsageDTO{PKID: s.PKID, Qty: s.Qty.String()})
	}
	return dto
}

// ToR1RowDTO converts one rollup row
func ToR1RowDTO(row *shortage.R1Row) domain.R1RowDTO {
	return domain.R1RowDTO{
		Customer:          row.Customer,
		ProductionSite:    row.ProductionSite,
		OrderLines:        row.OrderLines,
		OutstandingQty:    row.OutstandingQty.String(),
		RequiredQty:       row.RequiredQty.String(),
		ShortageQty:       row.ShortageQty.String(),
		ShortedOrderLines: row.ShortedOrderLines,
		ShortComponents:   row.ShortComponents,
	}
}

// ToR2RowDTO converts one detail row, zero-filling every component column
func ToR2RowDTO(row *shortage.R2Row, components []string) domain.R2RowDTO {
	dto := domain.R2RowDTO{
		OrderID:        row.OrderID,
		PONumber:       row.Order.PONumber,
		PKID:           row.Order.PKID,
		Customer:       row.Order.Customer,
		ProductionSite: row.Order.ProductionSite,
		Status:         row.Status,
		DueDate:        formatDatePtr(row.DueDate),
		OutstandingQty: row.OutstandingQty.String(),
		Urgent:         row.Urgent,
		Components:     make(map[string]domain.ComponentCellDTO, len(components)),
	}
	for _, c := range components {
		cell := row.Cell(c)
		dto.Components[c] = domain.ComponentCellDTO{
			RequiredQty:    cell.Required.String(),
			AvailableQty:   cell.Available.String(),
			ShortageQty:    cell.Shortage.String(),
			SubstituteUsed: cell.SubstituteUsed.String(),
		}
	}
	return dto
}

// ToShortageReportDTO converts a full report
func ToShortageReportDTO(report *shortage.Report, generatedAt time.Time) domain.ShortageReportDTO {
	dto := domain.ShortageReportDTO{
		AnalysisDate: formatDate(report.AnalysisDate),
		GeneratedAt:  generatedAt.UTC().Format(timestampLayout),
		OrderLines:   len(report.R2),
		Components:   report.Components,
		R1:           make([]domain.R1RowDTO, 0, len(report.R1)),
		R2:           make([]domain.R2RowDTO, 0, len(report.R2)),
	}
	for i := range report.R1 {
		dto.R1 = append(dto.R1, ToR1RowDTO(&report.R1[i]))
	}
	for i := range report.R2 {
		dto.R2 = append(dto.R2, ToR2RowDTO(&report.R2[i], report.Components))
	}
	return dto
}
