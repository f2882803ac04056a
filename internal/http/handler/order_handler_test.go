package handler_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/straye-as/shortage-api/internal/domain"
	"github.com/straye-as/shortage-api/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const orderCSV = "PO_NUMBER,PKID,CUSTOMER,PRODUCTION_SITE,ORDER_QTY,DELIVERED_QTY,ORDER_DATE,DUE_DATE,STATUS\n" +
	"PO-1,P1,ACME,S1,10,0,2025-03-01,2025-03-14,\n" +
	"PO-2,P9,ACME,S1,5,0,2025-03-01,,\n"

func TestOrderHandler_Reconcile(t *testing.T) {
	env := newTestEnv(t)
	testutil.SeedExample(t, env.db)

	t.Run("inserts valid rows and reports rejected ones", func(t *testing.T) {
		rec := env.postJSON(t, "/orders/reconcile", domain.ReconcileOrdersRequest{
			Rows: []domain.OrderRowRequest{
				{PONumber: "PO-1", PKID: "P1", Customer: "ACME", ProductionSite: "S1", OrderedQty: testutil.Dec("10"), OrderDate: "2025-03-01"},
				{PONumber: "PO-2", PKID: "P1", Customer: "ACME", ProductionSite: "S1", OrderedQty: testutil.Dec("-1"), OrderDate: "2025-03-01"},
			},
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		result := decode[domain.ReconcileResult](t, rec)
		assert.Equal(t, 1, result.Inserted)
		require.Len(t, result.Rejected, 1)
		assert.Equal(t, 1, result.Rejected[0].Index)
	})

	t.Run("same batch again is unchanged", func(t *testing.T) {
		rec := env.postJSON(t, "/orders/reconcile", domain.ReconcileOrdersRequest{
			Rows: []domain.OrderRowRequest{
				{PONumber: "PO-1", PKID: "P1", Customer: "ACME", ProductionSite: "S1", OrderedQty: testutil.Dec("10"), OrderDate: "2025-03-01"},
			},
		})
		require.Equal(t, http.StatusOK, rec.Code)
		result := decode[domain.ReconcileResult](t, rec)
		assert.Equal(t, 0, result.Inserted)
		assert.Equal(t, 1, result.Unchanged)
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/orders/reconcile", strings.NewReader("{"))
		rec := env.do(t, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, domain.ErrorTypeBadRequest, apiError(t, rec).Type)
	})

	t.Run("empty batch", func(t *testing.T) {
		rec := env.postJSON(t, "/orders/reconcile", domain.ReconcileOrdersRequest{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestOrderHandler_Upload(t *testing.T) {
	env := newTestEnv(t)
	testutil.SeedExample(t, env.db)

	t.Run("reconciles and archives the file", func(t *testing.T) {
		rec := env.upload(t, "/orders/upload", "orders.csv", []byte(orderCSV), nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		resp := decode[domain.UploadOrdersResponse](t, rec)
		require.NotNil(t, resp.Result)
		assert.Equal(t, 1, resp.Result.Inserted)
		require.Len(t, resp.Result.Rejected, 1)
		assert.Equal(t, "P9", resp.Result.Rejected[0].Row.PKID)

		require.NotNil(t, resp.Archive)
		assert.Equal(t, domain.ArchiveKindOrderUpload, resp.Archive.Kind)
		assert.Equal(t, "orders.csv", resp.Archive.Filename)
		assert.Equal(t, "kari@straye.no", resp.Archive.CreatedBy)
	})

	t.Run("missing file field", func(t *testing.T) {
		rec := env.upload(t, "/orders/upload", "", nil, map[string]string{"cancelMissing": "true"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unparseable csv", func(t *testing.T) {
		rec := env.upload(t, "/orders/upload", "orders.csv", []byte("A,B\n1,2\n"), nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("file over the size limit", func(t *testing.T) {
		big := bytes.Repeat([]byte("x"), testMaxUploadMB*1024*1024+1)
		rec := env.upload(t, "/orders/upload", "orders.csv", big, nil)
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
		assert.Equal(t, domain.ErrorTypeTooLarge, apiError(t, rec).Type)
	})
}

func TestOrderHandler_ListAndGet(t *testing.T) {
	env := newTestEnv(t)
	testutil.SeedExample(t, env.db)
	open := testutil.CreateTestOrder(t, env.db, "PO-1", "P1", "ACME", "S1", "10", "")
	testutil.CreateTestOrder(t, env.db, "PO-2", "P1", "GLOBEX", "S1", "4", domain.OrderStatusClosed)

	t.Run("list filters by status", func(t *testing.T) {
		rec := env.get(t, "/orders?status=OPEN&sortBy=poNumber&sortOrder=asc")
		require.Equal(t, http.StatusOK, rec.Code)

		page := decode[struct {
			Data  []domain.OrderDTO `json:"data"`
			Total int64             `json:"total"`
		}](t, rec)
		assert.Equal(t, int64(1), page.Total)
		require.Len(t, page.Data, 1)
		assert.Equal(t, "PO-1", page.Data[0].PONumber)
		assert.Equal(t, "10", page.Data[0].OutstandingQty)
	})

	t.Run("unknown status", func(t *testing.T) {
		rec := env.get(t, "/orders?status=SHIPPED")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("get by id", func(t *testing.T) {
		rec := env.get(t, "/orders/"+open.ID.String())
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ACME", decode[domain.OrderDTO](t, rec).Customer)
	})

	t.Run("get unknown id", func(t *testing.T) {
		rec := env.get(t, "/orders/"+uuid.New().String())
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("get malformed id", func(t *testing.T) {
		rec := env.get(t, "/orders/not-a-uuid")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
