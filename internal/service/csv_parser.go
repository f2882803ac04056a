package service

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/straye-as/shortage-api/internal/domain"
	"github.com/straye-as/shortage-api/internal/mapper"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/transform"
)

// Order upload columns. Aliases come from the legacy spreadsheet exports.
const (
	colPONumber       = "PO_NUMBER"
	colPKID           = "PKID"
	colCustomer       = "CUSTOMER"
	colProductionSite = "PRODUCTION_SITE"
	colOrderQty       = "ORDER_QTY"
	colDeliveredQty   = "DELIVERED_QTY"
	colOrderDate      = "ORDER_DATE"
	colDueDate        = "DUE_DATE"
	colStatus         = "STATUS"
)

var orderColumnAliases = map[string]string{
	"ORDER_KEY": colPONumber,
	"PN":        colPKID,
	"SITE":      colProductionSite,
	"QTY":       colOrderQty,
}

var requiredOrderColumns = []string{colPONumber, colPKID, colCustomer, colProductionSite, colOrderQty, colOrderDate}

// normalizeHeader upper-cases a header and folds spaces and dashes to underscores
func normalizeHeader(h string) string {
	h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	h = strings.ToUpper(h)
	h = strings.NewReplacer(" ", "_", "-", "_").Replace(h)
	if canonical, ok := orderColumnAliases[h]; ok {
		return canonical
	}
	return h
}

// newCSVReader decodes r as UTF-8, falling back to CP949 for spreadsheet
// exports from Korean Excel, and strips a leading byte order mark.
func newCSVReader(r io.Reader) (*csv.Reader, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCSV, err)
	}
	data = bytes.TrimPrefix(data, []byte("\ufeff"))

	var src io.Reader = bytes.NewReader(data)
	if !utf8.Valid(data) {
		src = transform.NewReader(src, korean.EUCKR.NewDecoder())
	}

	reader := csv.NewReader(src)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	return reader, nil
}

// readHeader reads the first record of an upload
func readHeader(reader *csv.Reader) ([]string, error) {
	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: missing header row", ErrInvalidCSV)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidCSV, err)
	}
	return header, nil
}

// ParseOrderCSV reads an order upload. A malformed header fails the whole
// file; a malformed cell only marks its row.
func ParseOrderCSV(r io.Reader) ([]ParsedRow, error) {
	reader, err := newCSVReader(r)
	if err != nil {
		return nil, err
	}

	header, err := readHeader(reader)
	if err != nil {
		return nil, err
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		index[normalizeHeader(h)] = i
	}
	for _, col := range requiredOrderColumns {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("%w: missing column %s", ErrInvalidCSV, col)
		}
	}

	var rows []ParsedRow
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCSV, err)
		}
		if blankRecord(record) {
			continue
		}
		rows = append(rows, parseOrderRecord(record, index))
	}
	return rows, nil
}

func parseOrderRecord(record []string, index map[string]int) ParsedRow {
	cell := func(col string) string {
		i, ok := index[col]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	req := domain.OrderRowRequest{
		PONumber:       cell(colPONumber),
		PKID:           cell(colPKID),
		Customer:       cell(colCustomer),
		ProductionSite: cell(colProductionSite),
		OrderDate:      cell(colOrderDate),
		DueDate:        cell(colDueDate),
		Status:         cell(colStatus),
	}

	var qtyErr error
	if s := cell(colOrderQty); s != "" {
		qty, err := decimal.NewFromString(s)
		if err != nil {
			qtyErr = &domain.ValidationError{Reason: domain.ReasonInvalidQuantity, Field: "orderedQty"}
		}
		req.OrderedQty = qty
	}
	if s := cell(colDeliveredQty); s != "" && qtyErr == nil {
		qty, err := decimal.NewFromString(s)
		if err != nil {
			qtyErr = &domain.ValidationError{Reason: domain.ReasonInvalidQuantity, Field: "deliveredQty"}
		} else {
			req.DeliveredQty = &qty
		}
	}

	row, err := mapper.ToOrderRow(&req)
	if qtyErr != nil {
		err = qtyErr
	}
	return ParsedRow{Row: row, Err: err}
}

func blankRecord(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// ParseWideInventoryCSV reads an inventory sheet with a PKID column followed
// by one on-hand column per site code. Blank cells are skipped.
func ParseWideInventoryCSV(r io.Reader) ([]domain.WideSnapshotRow, error) {
	reader, err := newCSVReader(r)
	if err != nil {
		return nil, err
	}

	header, err := readHeader(reader)
	if err != nil {
		return nil, err
	}

	pkidCol := -1
	siteCols := make(map[int]string)
	for i, h := range header {
		if normalizeHeader(h) == colPKID {
			pkidCol = i
			continue
		}
		if code := strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")); code != "" {
			siteCols[i] = code
		}
	}
	if pkidCol < 0 {
		return nil, fmt.Errorf("%w: missing column %s", ErrInvalidCSV, colPKID)
	}
	if len(siteCols) == 0 {
		return nil, fmt.Errorf("%w: no site columns", ErrInvalidCSV)
	}

	var rows []domain.WideSnapshotRow
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCSV, err)
		}
		line++
		if blankRecord(record) {
			continue
		}

		row := domain.WideSnapshotRow{Sites: make(map[string]decimal.Decimal, len(siteCols))}
		if pkidCol < len(record) {
			row.PKID = strings.TrimSpace(record[pkidCol])
		}
		for i, code := range siteCols {
			if i >= len(record) || strings.TrimSpace(record[i]) == "" {
				continue
			}
			qty, err := decimal.NewFromString(strings.TrimSpace(record[i]))
			if err != nil {
				return nil, fmt.Errorf("%w: line %d, site %s: %s", ErrInvalidCSV, line, code, domain.ReasonInvalidQuantity)
			}
			row.Sites[code] = qty
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Purchase order upload columns
const (
	colSupplier = "SUPPLIER"
	colETA      = "ETA"
	colRemarks  = "REMARKS"
)

var requiredPurchaseColumns = []string{colPKID, colSupplier, colOrderQty, colETA}

// ParsedPurchaseOrder is a purchase order row together with any error found
// while decoding it
type ParsedPurchaseOrder struct {
	Request domain.PurchaseOrderRequest
	Err     error
}

// ParsePurchaseOrderCSV reads a purchase order upload with PKID, Supplier,
// Order Qty and ETA columns and optional Status and Remarks columns
func ParsePurchaseOrderCSV(r io.Reader) ([]ParsedPurchaseOrder, error) {
	reader, err := newCSVReader(r)
	if err != nil {
		return nil, err
	}

	header, err := readHeader(reader)
	if err != nil {
		return nil, err
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		index[normalizeHeader(h)] = i
	}
	for _, col := range requiredPurchaseColumns {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("%w: missing column %s", ErrInvalidCSV, col)
		}
	}

	var rows []ParsedPurchaseOrder
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCSV, err)
		}
		if blankRecord(record) {
			continue
		}

		cell := func(col string) string {
			i, ok := index[col]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		parsed := ParsedPurchaseOrder{Request: domain.PurchaseOrderRequest{
			PKID:     cell(colPKID),
			Supplier: cell(colSupplier),
			ETA:      cell(colETA),
			Status:   cell(colStatus),
			Remarks:  cell(colRemarks),
		}}
		if s := cell(colOrderQty); s != "" {
			qty, err := decimal.NewFromString(s)
			if err != nil {
				parsed.Err = &domain.ValidationError{Reason: domain.ReasonInvalidQuantity, Field: "orderQty"}
			}
			parsed.Request.OrderQty = qty
		}
		rows = append(rows, parsed)
	}
	return rows, nil
}
