package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/straye-as/shortage-api/internal/auth"
	"github.com/straye-as/shortage-api/internal/config"
	"github.com/straye-as/shortage-api/internal/domain"
	"github.com/straye-as/shortage-api/internal/http/handler"
	"github.com/straye-as/shortage-api/internal/metrics"
	"github.com/straye-as/shortage-api/internal/repository"
	"github.com/straye-as/shortage-api/internal/service"
	"github.com/straye-as/shortage-api/internal/storage"
	"github.com/straye-as/shortage-api/internal/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testMaxUploadMB = 1

type testEnv struct {
	db     *gorm.DB
	router chi.Router
}

// newTestEnv mounts every handler on a bare chi router backed by an
// in-memory database and a temp-dir archive store
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.SetupTestDB(t)
	logger := zap.NewNop()
	m := metrics.New()

	orderRepo := repository.NewOrderRepository(db)
	productRepo := repository.NewProductRepository(db)
	siteRepo := repository.NewPlantSiteRepository(db)

	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	archiveService := service.NewArchiveService(repository.NewArchiveRepository(db), store, logger)
	shortageService := service.NewShortageService(
		repository.NewCatalogRepository(db),
		orderRepo,
		config.ShortageConfig{UrgentLeadTimeDays: 7, Workers: 2},
		m,
		logger,
	)

	orders := handler.NewOrderHandler(service.NewOrderService(orderRepo, productRepo, siteRepo, m, logger), archiveService, testMaxUploadMB, logger)
	shortages := handler.NewShortageHandler(shortageService, service.NewExportService(shortageService, archiveService, logger), logger)
	inventory := handler.NewInventoryHandler(service.NewInventoryService(repository.NewInventoryRepository(db), siteRepo, m, logger), archiveService, testMaxUploadMB, logger)
	masterData := handler.NewMasterDataHandler(service.NewMasterDataService(productRepo, siteRepo, repository.NewBOMRepository(db), logger), logger)
	archives := handler.NewArchiveHandler(archiveService, logger)
	purchases := handler.NewPurchaseOrderHandler(
		service.NewPurchaseOrderService(repository.NewPurchaseOrderRepository(db), productRepo, m, logger),
		archiveService, testMaxUploadMB, logger,
	)
	me := handler.NewAuthHandler(logger)

	r := chi.NewRouter()
	r.Get("/auth/me", me.Me)
	r.Get("/orders", orders.List)
	r.Get("/orders/{id}", orders.GetByID)
	r.Post("/orders/reconcile", orders.Reconcile)
	r.Post("/orders/upload", orders.Upload)
	r.Get("/shortages/report", shortages.Report)
	r.Get("/shortages/report/export", shortages.Export)
	r.Post("/shortages/report/archive", shortages.Archive)
	r.Get("/shortages/orders/{id}", shortages.ForOrder)
	r.Get("/inventory/available", inventory.Available)
	r.Get("/inventory/levels", inventory.Levels)
	r.Get("/inventory/history", inventory.History)
	r.Post("/inventory/snapshots", inventory.UpsertSnapshots)
	r.Post("/inventory/snapshots/wide", inventory.UpsertWide)
	r.Post("/inventory/snapshots/upload", inventory.UploadWide)
	r.Get("/masterdata/products", masterData.ListProducts)
	r.Post("/masterdata/products", masterData.UpsertProducts)
	r.Get("/masterdata/plant-sites", masterData.ListPlantSites)
	r.Post("/masterdata/plant-sites", masterData.UpsertPlantSites)
	r.Post("/masterdata/bom-lines", masterData.UpsertBOMLines)
	r.Post("/masterdata/substitutes", masterData.UpsertSubstitutes)
	r.Get("/masterdata/bom/{pkid}", masterData.GetBOM)
	r.Delete("/masterdata/bom/{pkid}/{component}", masterData.DeleteBOMLine)
	r.Get("/masterdata/substitutes/{pkid}", masterData.ListSubstitutes)
	r.Delete("/masterdata/substitutes/{pkid}/{substitute}", masterData.DeleteSubstitute)
	r.Get("/purchase-orders", purchases.List)
	r.Post("/purchase-orders", purchases.Create)
	r.Post("/purchase-orders/upload", purchases.Upload)
	r.Get("/purchase-orders/template", purchases.Template)
	r.Get("/purchase-orders/{id}", purchases.GetByID)
	r.Patch("/purchase-orders/{id}", purchases.Update)
	r.Get("/archives", archives.List)
	r.Get("/archives/{id}/download", archives.Download)
	r.Delete("/archives/{id}", archives.Delete)

	return &testEnv{db: db, router: r}
}

func plannerContext() context.Context {
	return auth.WithUserContext(context.Background(), &auth.UserContext{
		UserID:      uuid.New(),
		DisplayName: "Kari Planner",
		Email:       "kari@straye.no",
		Roles:       []auth.Role{auth.RolePlanner},
	})
}

func (e *testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	req = req.WithContext(plannerContext())
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	return e.do(t, httptest.NewRequest(http.MethodGet, path, nil))
}

func (e *testEnv) postJSON(t *testing.T, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return e.do(t, req)
}

func (e *testEnv) upload(t *testing.T, path, filename string, content []byte, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if filename != "" {
		part, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = io.Copy(part, bytes.NewReader(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return e.do(t, req)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func apiError(t *testing.T, rec *httptest.ResponseRecorder) domain.APIError {
	t.Helper()
	return decode[domain.APIError](t, rec)
}

func newRequest(method, path string) *http.Request {
	return httptest.NewRequest(method, path, nil)
}
