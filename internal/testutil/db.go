package testutil

import (
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/straye-as/shortage-api/internal/database"
	"github.com/straye-as/shortage-api/internal/domain"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SetupTestDB returns a migrated database for a single test. It uses an
// in-memory SQLite database unless TEST_DATABASE_DSN points at PostgreSQL,
// in which case the tables are emptied first.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	cfg := &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	var db *gorm.DB
	var err error
	if dsn := os.Getenv("TEST_DATABASE_DSN"); dsn != "" {
		db, err = gorm.Open(postgres.Open(dsn), cfg)
		require.NoError(t, err, "Failed to connect to test database")
		require.NoError(t, database.AutoMigrate(db))
		CleanupTestData(t, db)
	} else {
		db, err = gorm.Open(sqlite.Open(":memory:"), cfg)
		require.NoError(t, err)
		sqlDB, err := db.DB()
		require.NoError(t, err)
		// every connection to :memory: is a separate database
		sqlDB.SetMaxOpenConns(1)
		require.NoError(t, database.AutoMigrate(db))
	}

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// CleanupTestData removes all rows from the service tables
func CleanupTestData(t *testing.T, db *gorm.DB) {
	tables := []string{
		"purchase_orders",
		"archived_files",
		"inventory_snapshots",
		"orders",
		"substitute_links",
		"bom_lines",
		"plant_sites",
		"products",
	}
	for _, table := range tables {
		if err := db.Exec("DELETE FROM " + table).Error; err != nil {
			t.Logf("Note: Could not clean table %s: %v", table, err)
		}
	}
}

// Dec parses a decimal literal, failing the test on bad input
func Dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// Date returns the UTC calendar date
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// CreateTestProducts inserts products with the given PKIDs
func CreateTestProducts(t *testing.T, db *gorm.DB, pkids ...string) {
	t.Helper()
	for _, pkid := range pkids {
		require.NoError(t, db.Create(&domain.Product{PKID: pkid, Unit: "EA"}).Error)
	}
}

// CreateTestSites inserts plant sites with the given codes
func CreateTestSites(t *testing.T, db *gorm.DB, codes ...string) {
	t.Helper()
	for _, code := range codes {
		require.NoError(t, db.Create(&domain.PlantSite{SiteCode: code, Name: "Plant " + code}).Error)
	}
}

// CreateTestBOMLine inserts one BOM edge
func CreateTestBOMLine(t *testing.T, db *gorm.DB, parent, component, qty string) *domain.BOMLine {
	t.Helper()
	line, err := domain.NewBOMLine(parent, component, Dec(qty))
	require.NoError(t, err)
	require.NoError(t, db.Create(line).Error)
	return line
}

// CreateTestSubstitute inserts one substitute link
func CreateTestSubstitute(t *testing.T, db *gorm.DB, primary, substitute string, priority int) *domain.SubstituteLink {
	t.Helper()
	link, err := domain.NewSubstituteLink(primary, substitute, priority)
	require.NoError(t, err)
	require.NoError(t, db.Create(link).Error)
	return link
}

// CreateTestSnapshot inserts one inventory snapshot
func CreateTestSnapshot(t *testing.T, db *gorm.DB, pkid, site string, date time.Time, qty string) {
	t.Helper()
	snap := &domain.InventorySnapshot{
		PKID:         pkid,
		PlantSite:    site,
		SnapshotDate: domain.DateOnly(date),
		OnHandQty:    Dec(qty),
		Source:       domain.SnapshotSourceUpload,
	}
	require.NoError(t, db.Create(snap).Error)
}

// CreateTestOrder inserts an order line with OPEN status unless one is given
func CreateTestOrder(t *testing.T, db *gorm.DB, po, pkid, customer, site, qty string, status domain.OrderStatus) *domain.Order {
	t.Helper()
	if status == "" {
		status = domain.OrderStatusOpen
	}
	order := &domain.Order{
		PONumber:       po,
		PKID:           pkid,
		Customer:       customer,
		ProductionSite: site,
		OrderedQty:     Dec(qty),
		DeliveredQty:   decimal.Zero,
		OrderDate:      Date(2025, time.March, 1),
		Status:         status,
	}
	require.NoError(t, db.Create(order).Error)
	return order
}

// SeedExample loads the P1 -> {C1 x2, C2 x1} master data with C2S as the
// priority 1 substitute of C2, and stock at S1 as of 2025-03-09
func SeedExample(t *testing.T, db *gorm.DB) {
	t.Helper()
	CreateTestProducts(t, db, "P1", "C1", "C2", "C2S")
	CreateTestSites(t, db, "S1")
	CreateTestBOMLine(t, db, "P1", "C1", "2")
	CreateTestBOMLine(t, db, "P1", "C2", "1")
	CreateTestSubstitute(t, db, "C2", "C2S", 1)
	asOf := Date(2025, time.March, 9)
	CreateTestSnapshot(t, db, "C1", "S1", asOf, "15")
	CreateTestSnapshot(t, db, "C2", "S1", asOf, "0")
	CreateTestSnapshot(t, db, "C2S", "S1", asOf, "8")
}
