package service_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/straye-as/shortage-api/internal/domain"
	"github.com/straye-as/shortage-api/internal/metrics"
	"github.com/straye-as/shortage-api/internal/repository"
	"github.com/straye-as/shortage-api/internal/service"
	"github.com/straye-as/shortage-api/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func createPurchaseOrderService(t *testing.T, db *gorm.DB, m *metrics.Metrics) *service.PurchaseOrderService {
	t.Helper()
	return service.NewPurchaseOrderService(
		repository.NewPurchaseOrderRepository(db),
		repository.NewProductRepository(db),
		m,
		zap.NewNop(),
	)
}

func purchaseRequest(pkid, qty, eta string) domain.PurchaseOrderRequest {
	return domain.PurchaseOrderRequest{
		PKID:     pkid,
		Supplier: "Acme Metal",
		OrderQty: testutil.Dec(qty),
		ETA:      eta,
	}
}

func TestPurchaseOrderService_Create(t *testing.T) {
	db := testutil.SetupTestDB(t)
	testutil.SeedExample(t, db)
	svc := createPurchaseOrderService(t, db, nil)
	ctx := context.Background()
	today := svc.Today()

	badStatus := purchaseRequest("C1", "5", "")
	badStatus.Status = "lost"
	noSupplier := purchaseRequest("C1", "5", "")
	noSupplier.Supplier = "  "

	result, err := svc.Create(ctx, []domain.PurchaseOrderRequest{
		purchaseRequest(" C1 ", "100", "2025-03-12"),
		purchaseRequest("GHOST", "10", ""),
		purchaseRequest("C2", "0", ""),
		purchaseRequest("C2", "10", "12/03/2025"),
		badStatus,
		noSupplier,
		purchaseRequest("C2", "40", ""),
	}, "kari@straye.no")
	require.NoError(t, err)

	assert.Equal(t, []string{
		domain.FormatPurchaseOrderNumber(today, 1),
		domain.FormatPurchaseOrderNumber(today, 2),
	}, result.Created)

	reasons := make(map[int]string, len(result.Rejected))
	for _, r := range result.Rejected {
		reasons[r.Index] = r.Reason
	}
	assert.Len(t, reasons, 5)
	assert.Equal(t, domain.ReasonUnknownProduct, reasons[1])
	assert.Contains(t, reasons[2], domain.ReasonNonPositiveQty)
	assert.Contains(t, reasons[3], domain.ReasonInvalidDate)
	assert.Contains(t, reasons[4], domain.ReasonInvalidStatus)
	assert.Contains(t, reasons[5], "Supplier")

	page, err := svc.List(ctx, 1, 20, nil)
	require.NoError(t, err)
	dtos := page.Data.([]domain.PurchaseOrderDTO)
	require.Len(t, dtos, 2)
	first := dtos[0]
	assert.Equal(t, "C1", first.PKID)
	assert.Equal(t, domain.PurchaseStatusIssued, first.Status)
	assert.Equal(t, today.Format(domain.DateLayout), first.OrderDate)
	require.NotNil(t, first.ETA)
	assert.Equal(t, "2025-03-12", *first.ETA)
	assert.Equal(t, "kari@straye.no", first.UpdatedBy)

	t.Run("numbering continues on the next batch", func(t *testing.T) {
		again, err := svc.Create(ctx, []domain.PurchaseOrderRequest{purchaseRequest("C2S", "1", "")}, "kari@straye.no")
		require.NoError(t, err)
		assert.Equal(t, []string{domain.FormatPurchaseOrderNumber(today, 3)}, again.Created)
	})

	t.Run("empty batch", func(t *testing.T) {
		_, err := svc.Create(ctx, nil, "kari@straye.no")
		assert.ErrorIs(t, err, service.ErrEmptyBatch)
	})
}

func TestPurchaseOrderService_CreateParsed_KeepsParseErrors(t *testing.T) {
	db := testutil.SetupTestDB(t)
	testutil.SeedExample(t, db)
	svc := createPurchaseOrderService(t, db, nil)

	rows, err := service.ParsePurchaseOrderCSV(bytes.NewBufferString(
		"PKID,Supplier,Order Qty,ETA\nC1,Acme,many,\nC2,Acme,3,2025-03-20\n",
	))
	require.NoError(t, err)

	result, err := svc.CreateParsed(context.Background(), rows, "upload")
	require.NoError(t, err)
	require.Len(t, result.Created, 1)
	require.Len(t, result.Rejected, 1)
	assert.Equal(t, 0, result.Rejected[0].Index)
	assert.Contains(t, result.Rejected[0].Reason, domain.ReasonInvalidQuantity)
}

func TestPurchaseOrderService_Update(t *testing.T) {
	db := testutil.SetupTestDB(t)
	testutil.SeedExample(t, db)
	svc := createPurchaseOrderService(t, db, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, []domain.PurchaseOrderRequest{purchaseRequest("C1", "100", "2025-03-12")}, "kari@straye.no")
	require.NoError(t, err)
	page, err := svc.List(ctx, 1, 20, nil)
	require.NoError(t, err)
	id := page.Data.([]domain.PurchaseOrderDTO)[0].ID

	str := func(s string) *string { return &s }

	t.Run("status and remarks", func(t *testing.T) {
		dto, err := svc.Update(ctx, id, &domain.UpdatePurchaseOrderRequest{
			Status:  str("in-transit"),
			Remarks: str(" shipped by sea "),
		}, "ola@straye.no")
		require.NoError(t, err)
		assert.Equal(t, domain.PurchaseStatusInTransit, dto.Status)
		assert.Equal(t, "shipped by sea", dto.Remarks)
		assert.Equal(t, "ola@straye.no", dto.UpdatedBy)
		require.NotNil(t, dto.ETA)
	})

	t.Run("empty eta clears it", func(t *testing.T) {
		dto, err := svc.Update(ctx, id, &domain.UpdatePurchaseOrderRequest{ETA: str("")}, "ola@straye.no")
		require.NoError(t, err)
		assert.Nil(t, dto.ETA)
		assert.Empty(t, dto.Urgency)
	})

	t.Run("invalid input", func(t *testing.T) {
		for name, req := range map[string]*domain.UpdatePurchaseOrderRequest{
			"nothing":      {},
			"empty status": {Status: str(" ")},
			"bad status":   {Status: str("lost")},
			"bad eta":      {ETA: str("soon")},
		} {
			_, err := svc.Update(ctx, id, req, "ola@straye.no")
			assert.ErrorIs(t, err, service.ErrInvalidInput, name)
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := svc.Update(ctx, uuid.New(), &domain.UpdatePurchaseOrderRequest{Remarks: str("x")}, "ola@straye.no")
		assert.ErrorIs(t, err, service.ErrPurchaseOrderNotFound)

		_, err = svc.GetByID(ctx, uuid.New())
		assert.ErrorIs(t, err, service.ErrPurchaseOrderNotFound)
	})
}

func TestPurchaseOrderService_Urgency(t *testing.T) {
	db := testutil.SetupTestDB(t)
	testutil.SeedExample(t, db)
	svc := createPurchaseOrderService(t, db, nil)
	ctx := context.Background()
	today := svc.Today()

	_, err := svc.Create(ctx, []domain.PurchaseOrderRequest{
		purchaseRequest("C1", "1", today.AddDate(0, 0, -1).Format(domain.DateLayout)),
		purchaseRequest("C1", "1", today.AddDate(0, 0, 2).Format(domain.DateLayout)),
		purchaseRequest("C1", "1", today.AddDate(0, 0, 30).Format(domain.DateLayout)),
	}, "kari@straye.no")
	require.NoError(t, err)

	page, err := svc.List(ctx, 1, 20, &repository.PurchaseOrderFilters{PKID: "C1"})
	require.NoError(t, err)
	dtos := page.Data.([]domain.PurchaseOrderDTO)
	require.Len(t, dtos, 3)
	assert.Equal(t, domain.UrgencyDelayed, dtos[0].Urgency)
	assert.Equal(t, domain.UrgencyImminent, dtos[1].Urgency)
	assert.Empty(t, dtos[2].Urgency)
}

func TestPurchaseOrderService_PublishesOpenCount(t *testing.T) {
	db := testutil.SetupTestDB(t)
	testutil.SeedExample(t, db)
	m := metrics.New()
	svc := createPurchaseOrderService(t, db, m)
	ctx := context.Background()

	_, err := svc.Create(ctx, []domain.PurchaseOrderRequest{
		purchaseRequest("C1", "1", ""),
		purchaseRequest("C2", "1", ""),
	}, "kari@straye.no")
	require.NoError(t, err)
	assert.Contains(t, scrapeMetrics(t, m), "shortage_purchase_orders_open 2")

	page, err := svc.List(ctx, 1, 20, nil)
	require.NoError(t, err)
	arrived := string(domain.PurchaseStatusArrived)
	_, err = svc.Update(ctx, page.Data.([]domain.PurchaseOrderDTO)[0].ID, &domain.UpdatePurchaseOrderRequest{Status: &arrived}, "kari@straye.no")
	require.NoError(t, err)
	assert.Contains(t, scrapeMetrics(t, m), "shortage_purchase_orders_open 1")
}

func TestPurchaseOrderService_Template(t *testing.T) {
	db := testutil.SetupTestDB(t)
	testutil.SeedExample(t, db)
	svc := createPurchaseOrderService(t, db, nil)

	data, err := svc.Template()
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("\ufeff")))

	rows, err := service.ParsePurchaseOrderCSV(bytes.NewReader(data))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "PKID001", rows[0].Request.PKID)
	assert.Equal(t, string(domain.PurchaseStatusInTransit), rows[1].Request.Status)
}
