package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/straye-as/shortage-api/internal/config"
	"github.com/straye-as/shortage-api/internal/domain"
	"github.com/straye-as/shortage-api/internal/metrics"
	"github.com/straye-as/shortage-api/internal/repository"
	"github.com/straye-as/shortage-api/internal/service"
	"github.com/straye-as/shortage-api/internal/shortage"
	"github.com/straye-as/shortage-api/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var analysisDate = testutil.Date(2025, time.March, 10)

func createShortageService(t *testing.T, db *gorm.DB) *service.ShortageService {
	t.Helper()
	return service.NewShortageService(
		repository.NewCatalogRepository(db),
		repository.NewOrderRepository(db),
		config.ShortageConfig{UrgentLeadTimeDays: 7, Workers: 4},
		metrics.New(),
		zap.NewNop(),
	)
}

func setDue(t *testing.T, db *gorm.DB, order *domain.Order, due time.Time) {
	t.Helper()
	require.NoError(t, db.Model(order).Update("due_date", due).Error)
}

func TestShortageService_Generate_ExampleScenario(t *testing.T) {
	db := testutil.SetupTestDB(t)
	testutil.SeedExample(t, db)
	order := testutil.CreateTestOrder(t, db, "PO-1", "P1", "ACME", "S1", "10", "")
	setDue(t, db, order, testutil.Date(2025, time.March, 14))

	svc := createShortageService(t, db)
	report, err := svc.Generate(context.Background(), service.ReportRequest{AsOf: analysisDate})
	require.NoError(t, err)

	require.Len(t, report.R1, 1)
	r1 := report.R1[0]
	assert.Equal(t, "ACME", r1.Customer)
	assert.Equal(t, "S1", r1.ProductionSite)
	assert.Equal(t, 1, r1.OrderLines)
	assert.True(t, r1.RequiredQty.Equal(testutil.Dec("30")))
	assert.True(t, r1.ShortageQty.Equal(testutil.Dec("7")))
	assert.Equal(t, []string{"C1", "C2"}, r1.ShortComponents)

	require.Len(t, report.R2, 1)
	assert.Equal(t, []string{"C1", "C2"}, report.Components)
	c1 := report.R2[0].Cell("C1")
	assert.True(t, c1.Required.Equal(testutil.Dec("20")))
	assert.True(t, c1.Shortage.Equal(testutil.Dec("5")))
	c2 := report.R2[0].Cell("C2")
	assert.True(t, c2.SubstituteUsed.Equal(testutil.Dec("8")))
	assert.True(t, c2.Shortage.Equal(testutil.Dec("2")))
	assert.True(t, report.R2[0].Urgent)
}

func TestShortageService_Generate_NoLookahead(t *testing.T) {
	db := testutil.SetupTestDB(t)
	testutil.SeedExample(t, db)
	testutil.CreateTestOrder(t, db, "PO-1", "P1", "ACME", "S1", "10", "")
	// a replenishment recorded after the analysis date must not count
	testutil.CreateTestSnapshot(t, db, "C1", "S1", testutil.Date(2025, time.March, 11), "500")

	svc := createShortageService(t, db)
	report, err := svc.Generate(context.Background(), service.ReportRequest{AsOf: analysisDate})
	require.NoError(t, err)
	require.Len(t, report.R1, 1)
	assert.True(t, report.R1[0].ShortageQty.Equal(testutil.Dec("7")))

	later, err := svc.Generate(context.Background(), service.ReportRequest{AsOf: testutil.Date(2025, time.March, 11)})
	require.NoError(t, err)
	assert.True(t, later.R1[0].ShortageQty.Equal(testutil.Dec("2")))
}

func TestShortageService_Generate_Filters(t *testing.T) {
	db := testutil.SetupTestDB(t)
	testutil.SeedExample(t, db)
	testutil.CreateTestOrder(t, db, "PO-1", "P1", "ACME", "S1", "10", "")
	testutil.CreateTestOrder(t, db, "PO-2", "P1", "GLOBEX", "S1", "1", domain.OrderStatusPartial)
	testutil.CreateTestOrder(t, db, "PO-3", "P1", "ACME", "S1", "4", domain.OrderStatusClosed)

	svc := createShortageService(t, db)
	ctx := context.Background()

	all, err := svc.Generate(ctx, service.ReportRequest{AsOf: analysisDate})
	require.NoError(t, err)
	assert.Len(t, all.R2, 2, "closed lines never take part")

	acme, err := svc.Generate(ctx, service.ReportRequest{AsOf: analysisDate, Customers: []string{"ACME"}})
	require.NoError(t, err)
	require.Len(t, acme.R2, 1)
	assert.Equal(t, "PO-1", acme.R2[0].Order.PONumber)

	partial, err := svc.Generate(ctx, service.ReportRequest{AsOf: analysisDate, Statuses: []domain.OrderStatus{domain.OrderStatusPartial}})
	require.NoError(t, err)
	require.Len(t, partial.R2, 1)
	assert.Equal(t, "GLOBEX", partial.R2[0].Order.Customer)
}

func TestShortageService_Generate_IntegrityFault(t *testing.T) {
	db := testutil.SetupTestDB(t)
	testutil.SeedExample(t, db)
	testutil.CreateTestProducts(t, db, "P2")
	testutil.CreateTestBOMLine(t, db, "P2", "GHOST", "1")
	testutil.CreateTestOrder(t, db, "PO-1", "P1", "ACME", "S1", "10", "")
	testutil.CreateTestOrder(t, db, "PO-2", "P2", "ACME", "S1", "10", "")

	svc := createShortageService(t, db)
	_, err := svc.Generate(context.Background(), service.ReportRequest{AsOf: analysisDate})
	require.Error(t, err)

	var reportErr *shortage.ReportError
	require.ErrorAs(t, err, &reportErr)
	require.Len(t, reportErr.Faults, 1)
	assert.Equal(t, "PO-2", reportErr.Faults[0].Order.PONumber)
	assert.Equal(t, 1, reportErr.Completed)
	assert.True(t, shortage.IsIntegrityFault(err))
}

func TestShortageService_Report(t *testing.T) {
	db := testutil.SetupTestDB(t)
	testutil.SeedExample(t, db)
	testutil.CreateTestOrder(t, db, "PO-1", "P1", "ACME", "S1", "10", "")

	svc := createShortageService(t, db)
	dto, err := svc.Report(context.Background(), service.ReportRequest{AsOf: analysisDate})
	require.NoError(t, err)

	assert.Equal(t, "2025-03-10", dto.AnalysisDate)
	assert.Equal(t, 1, dto.OrderLines)
	require.Len(t, dto.R1, 1)
	assert.Equal(t, "7", dto.R1[0].ShortageQty)
	require.Len(t, dto.R2, 1)
	assert.Equal(t, "2", dto.R2[0].Components["C2"].ShortageQty)
}

func TestShortageService_ForOrder(t *testing.T) {
	db := testutil.SetupTestDB(t)
	testutil.SeedExample(t, db)
	order := testutil.CreateTestOrder(t, db, "PO-1", "P1", "ACME", "S1", "10", "")

	svc := createShortageService(t, db)
	ctx := context.Background()

	t.Run("records per component", func(t *testing.T) {
		records, err := svc.ForOrder(ctx, order.ID, analysisDate)
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, "C1", records[0].ComponentPKID)
		assert.Equal(t, "5", records[0].ShortageQty)
		assert.Equal(t, "C2", records[1].ComponentPKID)
		require.Len(t, records[1].Substitutes, 1)
		assert.Equal(t, "C2S", records[1].Substitutes[0].PKID)
		assert.Equal(t, "8", records[1].Substitutes[0].Qty)
	})

	t.Run("unknown order", func(t *testing.T) {
		_, err := svc.ForOrder(ctx, uuid.New(), analysisDate)
		assert.ErrorIs(t, err, service.ErrOrderNotFound)
	})
}
