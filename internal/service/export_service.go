package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/straye-as/shortage-api/internal/domain"
	"github.com/straye-as/shortage-api/internal/shortage"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// Export formats and views
const (
	FormatXLSX = "xlsx"
	FormatCSV  = "csv"

	ViewR1 = "r1"
	ViewR2 = "r2"
)

const (
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	contentTypeCSV  = "text/csv"

	sheetR1 = "R1"
	sheetR2 = "R2"
)

// ExportedFile is a rendered report ready for download or archiving
type ExportedFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ExportService renders shortage reports to CSV and XLSX
type ExportService struct {
	shortageService *ShortageService
	archiveService  *ArchiveService
	logger          *zap.Logger
}

// NewExportService creates a new export service instance. archiveService may
// be nil when no object storage is configured.
func NewExportService(shortageService *ShortageService, archiveService *ArchiveService, logger *zap.Logger) *ExportService {
	return &ExportService{
		shortageService: shortageService,
		archiveService:  archiveService,
		logger:          logger,
	}
}

// Export generates a report and renders it. XLSX always carries both views
// as sheets; CSV carries the single view asked for.
func (s *ExportService) Export(ctx context.Context, req ReportRequest, format, view string) (*ExportedFile, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	view = strings.ToLower(strings.TrimSpace(view))
	if format == "" {
		format = FormatXLSX
	}
	if view == "" {
		view = ViewR1
	}
	if format != FormatXLSX && format != FormatCSV {
		return nil, fmt.Errorf("%w: format %q", ErrUnsupportedFormat, format)
	}
	if view != ViewR1 && view != ViewR2 {
		return nil, fmt.Errorf("%w: view %q", ErrUnsupportedFormat, view)
	}

	report, err := s.shortageService.Generate(ctx, req)
	if err != nil {
		return nil, err
	}

	if format == FormatCSV {
		return RenderCSV(report, view)
	}
	return RenderXLSX(report)
}

// ExportAndArchive renders the report in format and stores a copy in object
// storage. It is what the scheduled export runs.
func (s *ExportService) ExportAndArchive(ctx context.Context, req ReportRequest, format, createdBy string) (*domain.ArchivedFileDTO, error) {
	if s.archiveService == nil {
		return nil, ErrStorageUnavailable
	}
	file, err := s.Export(ctx, req, format, ViewR1)
	if err != nil {
		return nil, err
	}
	archived, err := s.archiveService.Save(ctx, domain.ArchiveKindReportExport, file.Filename, file.ContentType, bytes.NewReader(file.Data), createdBy)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Shortage report exported",
		zap.String("filename", file.Filename),
		zap.Int("bytes", len(file.Data)),
	)
	return archived, nil
}

// ExportFilename returns the dated download name of a view
func ExportFilename(report *shortage.Report, format, view string) string {
	stamp := report.AnalysisDate.Format("20060102")
	if format == FormatXLSX {
		return "Shortage_Report_" + stamp + ".xlsx"
	}
	if view == ViewR2 {
		return "R2_Shortage_Detail_" + stamp + ".csv"
	}
	return "R1_Shortage_" + stamp + ".csv"
}

func r1Header() []string {
	return []string{
		"CUSTOMER", "PRODUCTION_SITE", "ORDER_LINES", "OUTSTANDING_QTY",
		"REQUIRED_QTY", "SHORTAGE_QTY", "SHORTED_ORDER_LINES", "SHORT_COMPONENTS",
	}
}

func r1Record(row *shortage.R1Row) []string {
	return []string{
		row.Customer,
		row.ProductionSite,
		strconv.Itoa(row.OrderLines),
		row.OutstandingQty.String(),
		row.RequiredQty.String(),
		row.ShortageQty.String(),
		strconv.Itoa(row.ShortedOrderLines),
		strings.Join(row.ShortComponents, ";"),
	}
}

func r2Header(components []string) []string {
	header := []string{
		"PO_NUMBER", "PKID", "CUSTOMER", "PRODUCTION_SITE",
		"STATUS", "DUE_DATE", "OUTSTANDING_QTY", "IS_URGENT",
	}
	for _, c := range components {
		header = append(header,
			c+" REQUIRED", c+" AVAILABLE", c+" SHORTAGE", c+" SUBSTITUTE_USED")
	}
	return header
}

func r2Record(row *shortage.R2Row, components []string) []string {
	due := ""
	if row.DueDate != nil {
		due = row.DueDate.Format(domain.DateLayout)
	}
	record := []string{
		row.Order.PONumber,
		row.Order.PKID,
		row.Order.Customer,
		row.Order.ProductionSite,
		string(row.Status),
		due,
		row.OutstandingQty.String(),
		strconv.FormatBool(row.Urgent),
	}
	for _, c := range components {
		cell := row.Cell(c)
		record = append(record,
			cell.Required.String(), cell.Available.String(),
			cell.Shortage.String(), cell.SubstituteUsed.String())
	}
	return record
}

// RenderCSV writes one report view as CSV
func RenderCSV(report *shortage.Report, view string) (*ExportedFile, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	var records [][]string
	switch view {
	case ViewR1:
		records = append(records, r1Header())
		for i := range report.R1 {
			records = append(records, r1Record(&report.R1[i]))
		}
	case ViewR2:
		records = append(records, r2Header(report.Components))
		for i := range report.R2 {
			records = append(records, r2Record(&report.R2[i], report.Components))
		}
	default:
		return nil, fmt.Errorf("%w: view %q", ErrUnsupportedFormat, view)
	}

	if err := w.WriteAll(records); err != nil {
		return nil, fmt.Errorf("failed to write csv: %w", err)
	}

	return &ExportedFile{
		Filename:    ExportFilename(report, FormatCSV, view),
		ContentType: contentTypeCSV,
		Data:        buf.Bytes(),
	}, nil
}

// RenderXLSX writes a workbook with an R1 and an R2 sheet. Quantities are
// written as numbers so planners can sum and filter them.
func RenderXLSX(report *shortage.Report) (*ExportedFile, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetR1); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}
	if _, err := f.NewSheet(sheetR2); err != nil {
		return nil, fmt.Errorf("failed to add sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:   &excelize.Font{Bold: true, Size: 11},
		Fill:   excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
		Border: []excelize.Border{{Type: "bottom", Color: "000000", Style: 1}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}
	urgentStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "#C00000"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create urgent style: %w", err)
	}

	if err := writeSheet(f, sheetR1, r1Header(), len(report.R1), func(i int) []interface{} {
		return cellValues(r1Record(&report.R1[i]), map[int]bool{2: true, 3: true, 4: true, 5: true, 6: true})
	}, headerStyle); err != nil {
		return nil, err
	}

	numeric := map[int]bool{6: true}
	for i := range report.Components {
		for j := 0; j < 4; j++ {
			numeric[8+i*4+j] = true
		}
	}
	if err := writeSheet(f, sheetR2, r2Header(report.Components), len(report.R2), func(i int) []interface{} {
		return cellValues(r2Record(&report.R2[i], report.Components), numeric)
	}, headerStyle); err != nil {
		return nil, err
	}
	for i := range report.R2 {
		if !report.R2[i].Urgent {
			continue
		}
		cell, _ := excelize.CoordinatesToCellName(8, i+2)
		if err := f.SetCellStyle(sheetR2, cell, cell, urgentStyle); err != nil {
			return nil, fmt.Errorf("failed to style urgent cell: %w", err)
		}
	}

	f.SetActiveSheet(0)
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}

	return &ExportedFile{
		Filename:    ExportFilename(report, FormatXLSX, ""),
		ContentType: contentTypeXLSX,
		Data:        buf.Bytes(),
	}, nil
}

func writeSheet(f *excelize.File, sheet string, header []string, rows int, row func(i int) []interface{}, headerStyle int) error {
	headerCells := make([]interface{}, len(header))
	for i, h := range header {
		headerCells[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &headerCells); err != nil {
		return fmt.Errorf("failed to write %s header: %w", sheet, err)
	}
	last, _ := excelize.CoordinatesToCellName(len(header), 1)
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("failed to style %s header: %w", sheet, err)
	}

	for i := 0; i < rows; i++ {
		cells := row(i)
		start, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheet, start, &cells); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", sheet, i+2, err)
		}
	}

	if err := f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("failed to freeze %s header: %w", sheet, err)
	}

	lastCol, _ := excelize.ColumnNumberToName(len(header))
	if err := f.SetColWidth(sheet, "A", lastCol, 16); err != nil {
		return fmt.Errorf("failed to size %s columns: %w", sheet, err)
	}
	return nil
}

// cellValues converts a text record, turning the columns flagged numeric
// into float cells
func cellValues(record []string, numeric map[int]bool) []interface{} {
	cells := make([]interface{}, len(record))
	for i, v := range record {
		if numeric[i] {
			if d, err := decimal.NewFromString(v); err == nil {
				cells[i] = d.InexactFloat64()
				continue
			}
		}
		cells[i] = v
	}
	return cells
}
