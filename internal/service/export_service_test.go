package service_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"
	"time"

	"github.com/straye-as/shortage-api/internal/domain"
	"github.com/straye-as/shortage-api/internal/service"
	"github.com/straye-as/shortage-api/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func createExportService(t *testing.T, db *gorm.DB) *service.ExportService {
	t.Helper()
	return service.NewExportService(createShortageService(t, db), createArchiveService(t, db), zap.NewNop())
}

func seedExportScenario(t *testing.T, db *gorm.DB) {
	t.Helper()
	testutil.SeedExample(t, db)
	order := testutil.CreateTestOrder(t, db, "PO-1", "P1", "ACME", "S1", "10", "")
	setDue(t, db, order, testutil.Date(2025, time.March, 14))
}

func TestExportService_CSV(t *testing.T) {
	db := testutil.SetupTestDB(t)
	seedExportScenario(t, db)
	svc := createExportService(t, db)
	ctx := context.Background()

	t.Run("r1", func(t *testing.T) {
		file, err := svc.Export(ctx, service.ReportRequest{AsOf: analysisDate}, "csv", "r1")
		require.NoError(t, err)
		assert.Equal(t, "R1_Shortage_20250310.csv", file.Filename)
		assert.Equal(t, "text/csv", file.ContentType)

		records, err := csv.NewReader(bytes.NewReader(file.Data)).ReadAll()
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, "CUSTOMER", records[0][0])
		assert.Equal(t, []string{"ACME", "S1", "1", "10", "30", "7", "1", "C1;C2"}, records[1])
	})

	t.Run("r2", func(t *testing.T) {
		file, err := svc.Export(ctx, service.ReportRequest{AsOf: analysisDate}, "CSV", "R2")
		require.NoError(t, err)
		assert.Equal(t, "R2_Shortage_Detail_20250310.csv", file.Filename)

		records, err := csv.NewReader(bytes.NewReader(file.Data)).ReadAll()
		require.NoError(t, err)
		require.Len(t, records, 2)
		header, row := records[0], records[1]
		require.Len(t, header, 8+2*4)
		assert.Equal(t, "C1 REQUIRED", header[8])
		assert.Equal(t, "C2 SUBSTITUTE_USED", header[15])
		assert.Equal(t, "PO-1", row[0])
		assert.Equal(t, "2025-03-14", row[5])
		assert.Equal(t, "true", row[7])
		assert.Equal(t, "20", row[8])
		assert.Equal(t, "5", row[10])
		assert.Equal(t, "8", row[15])
	})

	t.Run("unsupported", func(t *testing.T) {
		_, err := svc.Export(ctx, service.ReportRequest{AsOf: analysisDate}, "pdf", "r1")
		assert.ErrorIs(t, err, service.ErrUnsupportedFormat)
		_, err = svc.Export(ctx, service.ReportRequest{AsOf: analysisDate}, "csv", "r3")
		assert.ErrorIs(t, err, service.ErrUnsupportedFormat)
	})
}

func TestExportService_XLSX(t *testing.T) {
	db := testutil.SetupTestDB(t)
	seedExportScenario(t, db)
	svc := createExportService(t, db)

	file, err := svc.Export(context.Background(), service.ReportRequest{AsOf: analysisDate}, "", "")
	require.NoError(t, err)
	assert.Equal(t, "Shortage_Report_20250310.xlsx", file.Filename)

	wb, err := excelize.OpenReader(bytes.NewReader(file.Data))
	require.NoError(t, err)
	defer wb.Close()

	assert.Equal(t, []string{"R1", "R2"}, wb.GetSheetList())

	customer, err := wb.GetCellValue("R1", "A2")
	require.NoError(t, err)
	assert.Equal(t, "ACME", customer)
	short, err := wb.GetCellValue("R1", "F2")
	require.NoError(t, err)
	assert.Equal(t, "7", short)

	po, err := wb.GetCellValue("R2", "A2")
	require.NoError(t, err)
	assert.Equal(t, "PO-1", po)
}

func TestExportService_ExportAndArchive(t *testing.T) {
	db := testutil.SetupTestDB(t)
	seedExportScenario(t, db)
	svc := createExportService(t, db)

	archived, err := svc.ExportAndArchive(context.Background(), service.ReportRequest{AsOf: analysisDate}, "xlsx", "scheduler")
	require.NoError(t, err)
	assert.Equal(t, domain.ArchiveKindReportExport, archived.Kind)
	assert.Equal(t, "Shortage_Report_20250310.xlsx", archived.Filename)
	assert.Positive(t, archived.Size)

	t.Run("without storage", func(t *testing.T) {
		bare := service.NewExportService(createShortageService(t, db), nil, zap.NewNop())
		_, err := bare.ExportAndArchive(context.Background(), service.ReportRequest{AsOf: analysisDate}, "xlsx", "")
		assert.ErrorIs(t, err, service.ErrStorageUnavailable)
	})
}
