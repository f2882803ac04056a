package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/straye-as/shortage-api/docs"
	"github.com/straye-as/shortage-api/internal/auth"
	"github.com/straye-as/shortage-api/internal/config"
	"github.com/straye-as/shortage-api/internal/database"
	"github.com/straye-as/shortage-api/internal/datawarehouse"
	"github.com/straye-as/shortage-api/internal/http/handler"
	"github.com/straye-as/shortage-api/internal/http/middleware"
	"github.com/straye-as/shortage-api/internal/http/router"
	"github.com/straye-as/shortage-api/internal/jobs"
	"github.com/straye-as/shortage-api/internal/logger"
	"github.com/straye-as/shortage-api/internal/metrics"
	"github.com/straye-as/shortage-api/internal/repository"
	"github.com/straye-as/shortage-api/internal/service"
	"github.com/straye-as/shortage-api/internal/storage"
	"go.uber.org/zap"
)

// @title Straye Shortage API
// @version 1.0
// @description Order reconciliation, BOM explosion and component shortage reporting

// @contact.name API Support
// @contact.email support@straye.io

// @host localhost:8080
// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT Bearer token

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name x-api-key
// @description API Key for system operations
// @Security BearerAuth
// @Security ApiKeyAuth

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	basicCfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.NewLogger(&basicCfg.Logging, &basicCfg.App)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	log.Info("Starting application",
		zap.String("app", basicCfg.App.Name),
		zap.String("env", basicCfg.App.Environment),
		zap.Int("port", basicCfg.App.Port),
	)

	if host := os.Getenv("SWAGGER_HOST"); host != "" {
		docs.SwaggerInfo.Host = host
	} else {
		docs.SwaggerInfo.Host = fmt.Sprintf("localhost:%d", basicCfg.App.Port)
	}

	// Development reads secrets from the environment, staging and
	// production from Azure Key Vault
	cfg, err := config.LoadWithSecrets(ctx, log)
	if err != nil {
		return fmt.Errorf("failed to load secrets: %w", err)
	}

	db, err := database.NewDatabase(&cfg.Database, log)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() { _ = database.Close(db) }()

	fileStorage, err := storage.NewStorage(ctx, &cfg.Storage, log)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	log.Info("Storage initialized", zap.String("mode", cfg.Storage.Mode))

	// The data warehouse only feeds the scheduled inventory import; the API
	// runs without it
	dwClient, err := datawarehouse.NewClient(&cfg.DataWarehouse, log)
	if err != nil {
		log.Warn("Data warehouse connection failed, continuing without it", zap.Error(err))
		dwClient = nil
	}
	defer func() { _ = dwClient.Close() }()

	m := metrics.New()

	orderRepo := repository.NewOrderRepository(db)
	catalogRepo := repository.NewCatalogRepository(db)
	inventoryRepo := repository.NewInventoryRepository(db)
	productRepo := repository.NewProductRepository(db)
	siteRepo := repository.NewPlantSiteRepository(db)
	bomRepo := repository.NewBOMRepository(db)
	archiveRepo := repository.NewArchiveRepository(db)
	purchaseOrderRepo := repository.NewPurchaseOrderRepository(db)

	orderService := service.NewOrderService(orderRepo, productRepo, siteRepo, m, log)
	shortageService := service.NewShortageService(catalogRepo, orderRepo, cfg.Shortage, m, log)
	inventoryService := service.NewInventoryService(inventoryRepo, siteRepo, m, log)
	masterDataService := service.NewMasterDataService(productRepo, siteRepo, bomRepo, log)
	archiveService := service.NewArchiveService(archiveRepo, fileStorage, log)
	exportService := service.NewExportService(shortageService, archiveService, log)
	purchaseOrderService := service.NewPurchaseOrderService(purchaseOrderRepo, productRepo, m, log)

	authMiddleware := auth.NewMiddleware(cfg, log)
	rateLimiter := middleware.NewRateLimiter(&cfg.RateLimit, log)

	maxUploadMB := cfg.Storage.MaxUploadSizeMB
	rt := router.NewRouter(cfg, log, db, dwClient, m, authMiddleware, rateLimiter, router.Handlers{
		Auth:       handler.NewAuthHandler(log),
		Order:      handler.NewOrderHandler(orderService, archiveService, maxUploadMB, log),
		Shortage:   handler.NewShortageHandler(shortageService, exportService, log),
		Inventory:  handler.NewInventoryHandler(inventoryService, archiveService, maxUploadMB, log),
		MasterData: handler.NewMasterDataHandler(masterDataService, log),
		Purchase:   handler.NewPurchaseOrderHandler(purchaseOrderService, archiveService, maxUploadMB, log),
		Archive:    handler.NewArchiveHandler(archiveService, log),
	})

	var scheduler *jobs.Scheduler
	if cfg.Jobs.Enabled {
		scheduler = jobs.NewScheduler(log)
		timeout := cfg.Jobs.TimeoutDuration()

		if dwClient != nil {
			importJob := jobs.NewInventoryImportJob(dwClient, inventoryService, m, log, timeout)
			if err := jobs.RegisterInventoryImportJob(scheduler, importJob, cfg.Jobs.InventoryImportSchedule); err != nil {
				log.Error("Failed to register inventory import job", zap.Error(err))
			}
		} else {
			log.Info("Inventory import job skipped, data warehouse not available")
		}

		if fileStorage != nil {
			exportJob := jobs.NewReportExportJob(exportService, cfg.Jobs.ReportExportFormat, m, log, timeout)
			if err := jobs.RegisterReportExportJob(scheduler, exportJob, cfg.Jobs.ReportExportSchedule); err != nil {
				log.Error("Failed to register report export job", zap.Error(err))
			}
		} else {
			log.Info("Report export job skipped, storage disabled")
		}

		scheduler.Start()
	} else {
		log.Info("Background jobs disabled")
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.App.Port),
		Handler:      http.TimeoutHandler(rt.Setup(), cfg.Server.RequestTimeoutDuration(), "request timed out"),
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case sig := <-shutdown:
		log.Info("Shutdown signal received", zap.String("signal", sig.String()))

		if scheduler != nil {
			<-scheduler.Stop().Done()
			log.Info("Scheduler stopped")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Error("Failed to shutdown gracefully", zap.Error(err))
			return err
		}
		log.Info("Server stopped gracefully")
	}

	return nil
}
