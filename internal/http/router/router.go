package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/straye-as/shortage-api/internal/auth"
	"github.com/straye-as/shortage-api/internal/config"
	"github.com/straye-as/shortage-api/internal/database"
	"github.com/straye-as/shortage-api/internal/datawarehouse"
	"github.com/straye-as/shortage-api/internal/http/handler"
	"github.com/straye-as/shortage-api/internal/http/middleware"
	"github.com/straye-as/shortage-api/internal/metrics"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	_ "github.com/straye-as/shortage-api/docs" // Import generated swagger docs
)

const healthCheckTimeout = 5 * time.Second

// Handlers groups the HTTP handlers mounted under /api/v1
type Handlers struct {
	Auth       *handler.AuthHandler
	Order      *handler.OrderHandler
	Shortage   *handler.ShortageHandler
	Inventory  *handler.InventoryHandler
	MasterData *handler.MasterDataHandler
	Purchase   *handler.PurchaseOrderHandler
	Archive    *handler.ArchiveHandler
}

type Router struct {
	cfg            *config.Config
	logger         *zap.Logger
	db             *gorm.DB
	dw             *datawarehouse.Client
	metrics        *metrics.Metrics
	authMiddleware *auth.Middleware
	rateLimiter    *middleware.RateLimiter
	handlers       Handlers
}

// NewRouter wires the handlers. dw may be nil when the data warehouse is
// disabled.
func NewRouter(
	cfg *config.Config,
	logger *zap.Logger,
	db *gorm.DB,
	dw *datawarehouse.Client,
	m *metrics.Metrics,
	authMiddleware *auth.Middleware,
	rateLimiter *middleware.RateLimiter,
	handlers Handlers,
) *Router {
	return &Router{
		cfg:            cfg,
		logger:         logger,
		db:             db,
		dw:             dw,
		metrics:        m,
		authMiddleware: authMiddleware,
		rateLimiter:    rateLimiter,
		handlers:       handlers,
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (rt *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(rt.logger))
	r.Use(middleware.Logging(rt.logger, rt.metrics))
	r.Use(middleware.SecurityHeaders(&rt.cfg.Security))
	r.Use(middleware.CORS(&rt.cfg.CORS, rt.cfg.App.Environment, rt.logger))
	r.Use(rt.rateLimiter.LimitByIP)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Get("/health/db", rt.databaseHealth)
	r.Get("/health/ready", rt.readiness)
	r.Method(http.MethodGet, "/metrics", rt.metrics.Handler())

	if rt.cfg.Server.EnableSwagger {
		r.Get("/swagger/*", httpSwagger.Handler(
			httpSwagger.URL("/swagger/doc.json"),
		))
	}

	h := rt.handlers
	perm := rt.authMiddleware.RequirePermission

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(rt.authMiddleware.Authenticate)
		r.Use(rt.rateLimiter.LimitByUser)

		r.Get("/auth/me", h.Auth.Me)

		r.Route("/orders", func(r chi.Router) {
			r.With(perm(auth.PermissionReportsView)).Get("/", h.Order.List)
			r.With(perm(auth.PermissionReportsView)).Get("/{id}", h.Order.GetByID)
			r.With(perm(auth.PermissionOrdersWrite)).Post("/reconcile", h.Order.Reconcile)
			r.With(perm(auth.PermissionOrdersWrite)).Post("/upload", h.Order.Upload)
		})

		r.Route("/shortages", func(r chi.Router) {
			r.With(perm(auth.PermissionReportsView)).Get("/report", h.Shortage.Report)
			r.With(perm(auth.PermissionReportsView)).Get("/report/export", h.Shortage.Export)
			r.With(perm(auth.PermissionArchivesView)).Post("/report/archive", h.Shortage.Archive)
			r.With(perm(auth.PermissionReportsView)).Get("/orders/{id}", h.Shortage.ForOrder)
		})

		r.Route("/inventory", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(perm(auth.PermissionReportsView))
				r.Get("/available", h.Inventory.Available)
				r.Get("/levels", h.Inventory.Levels)
				r.Get("/history", h.Inventory.History)
			})
			r.Group(func(r chi.Router) {
				r.Use(perm(auth.PermissionInventoryWrite))
				r.Post("/snapshots", h.Inventory.UpsertSnapshots)
				r.Post("/snapshots/wide", h.Inventory.UpsertWide)
				r.Post("/snapshots/upload", h.Inventory.UploadWide)
			})
		})

		r.Route("/masterdata", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(perm(auth.PermissionReportsView))
				r.Get("/products", h.MasterData.ListProducts)
				r.Get("/plant-sites", h.MasterData.ListPlantSites)
				r.Get("/bom/{pkid}", h.MasterData.GetBOM)
				r.Get("/substitutes/{pkid}", h.MasterData.ListSubstitutes)
			})
			r.Group(func(r chi.Router) {
				r.Use(perm(auth.PermissionMasterDataWrite))
				r.Post("/products", h.MasterData.UpsertProducts)
				r.Post("/plant-sites", h.MasterData.UpsertPlantSites)
				r.Post("/bom-lines", h.MasterData.UpsertBOMLines)
				r.Post("/substitutes", h.MasterData.UpsertSubstitutes)
				r.Delete("/bom/{pkid}/{component}", h.MasterData.DeleteBOMLine)
				r.Delete("/substitutes/{pkid}/{substitute}", h.MasterData.DeleteSubstitute)
			})
		})

		r.Route("/purchase-orders", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(perm(auth.PermissionReportsView))
				r.Get("/", h.Purchase.List)
				r.Get("/template", h.Purchase.Template)
				r.Get("/{id}", h.Purchase.GetByID)
			})
			r.Group(func(r chi.Router) {
				r.Use(perm(auth.PermissionPurchasingWrite))
				r.Post("/", h.Purchase.Create)
				r.Post("/upload", h.Purchase.Upload)
				r.Patch("/{id}", h.Purchase.Update)
			})
		})

		r.Route("/archives", func(r chi.Router) {
			r.With(perm(auth.PermissionArchivesView)).Get("/", h.Archive.List)
			r.With(perm(auth.PermissionArchivesView)).Get("/{id}/download", h.Archive.Download)
			r.With(perm(auth.PermissionArchivesDelete)).Delete("/{id}", h.Archive.Delete)
		})
	})

	return r
}

// databaseHealth is the readiness check of the primary database, with pool stats
func (rt *Router) databaseHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	stats, err := database.HealthCheckWithStats(ctx, rt.db)
	if err != nil {
		rt.logger.Error("Database health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":  "unhealthy",
			"error":   err.Error(),
			"service": "database",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "database",
		"stats": map[string]interface{}{
			"max_open_connections": stats.MaxOpenConnections,
			"open_connections":     stats.OpenConnections,
			"in_use":               stats.InUse,
			"idle":                 stats.Idle,
			"wait_count":           stats.WaitCount,
			"wait_duration_ms":     stats.WaitDuration.Milliseconds(),
		},
	})
}

// readiness checks every dependency. The data warehouse only feeds the
// scheduled import, so its failure degrades but does not fail readiness.
func (rt *Router) readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	checks := make(map[string]interface{})
	healthy := true

	if err := database.HealthCheck(ctx, rt.db); err != nil {
		rt.logger.Error("Database health check failed", zap.Error(err))
		checks["database"] = map[string]string{"status": "unhealthy", "error": err.Error()}
		healthy = false
	} else {
		checks["database"] = map[string]string{"status": "healthy"}
	}

	checks["dataWarehouse"] = rt.dw.HealthCheck(ctx)

	status, code := "healthy", http.StatusOK
	if !healthy {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{
		"status": status,
		"checks": checks,
	})
}
