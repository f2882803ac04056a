package service_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
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

func createInventoryService(t *testing.T, db *gorm.DB) *service.InventoryService {
	t.Helper()
	return service.NewInventoryService(
		repository.NewInventoryRepository(db),
		repository.NewPlantSiteRepository(db),
		metrics.New(),
		zap.NewNop(),
	)
}

func TestInventoryService_UpsertSnapshots(t *testing.T) {
	db := testutil.SetupTestDB(t)
	testutil.CreateTestSites(t, db, "S1")
	svc := createInventoryService(t, db)
	ctx := context.Background()

	result, err := svc.UpsertSnapshots(ctx, []domain.SnapshotRequest{
		{PKID: "C1", PlantSite: "S1", SnapshotDate: "2025-03-01", OnHandQty: testutil.Dec("10")},
		{PKID: "C1", PlantSite: "S1", SnapshotDate: "2025-03-05", OnHandQty: testutil.Dec("4")},
		{PKID: "C1", PlantSite: "S9", SnapshotDate: "2025-03-05", OnHandQty: testutil.Dec("4")},
		{PKID: "C1", PlantSite: "S1", SnapshotDate: "05.03.2025", OnHandQty: testutil.Dec("4")},
		{PKID: "C2", PlantSite: "S1", SnapshotDate: "2025-03-05", OnHandQty: testutil.Dec("-1")},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Upserted)
	require.Len(t, result.Rejected, 3)
	assert.Equal(t, domain.ReasonUnknownSite, result.Rejected[0].Reason)
	assert.Contains(t, result.Rejected[1].Reason, "snapshotDate")
	assert.Equal(t, "negative on-hand quantity", result.Rejected[2].Reason)

	t.Run("available resolves the latest date on or before", func(t *testing.T) {
		tests := []struct {
			asOf     time.Time
			expected string
			dated    string
		}{
			{testutil.Date(2025, time.February, 28), "0", ""},
			{testutil.Date(2025, time.March, 1), "10", "2025-03-01"},
			{testutil.Date(2025, time.March, 4), "10", "2025-03-01"},
			{testutil.Date(2025, time.March, 5), "4", "2025-03-05"},
			{testutil.Date(2025, time.April, 1), "4", "2025-03-05"},
		}
		for _, tt := range tests {
			dto, err := svc.Available(ctx, "C1", "S1", tt.asOf)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, dto.OnHandQty, tt.asOf.Format(domain.DateLayout))
			if tt.dated == "" {
				assert.Nil(t, dto.SnapshotDate)
			} else {
				require.NotNil(t, dto.SnapshotDate)
				assert.Equal(t, tt.dated, *dto.SnapshotDate)
			}
		}
	})

	t.Run("re-uploading a date replaces only that date", func(t *testing.T) {
		_, err := svc.UpsertSnapshots(ctx, []domain.SnapshotRequest{
			{PKID: "C1", PlantSite: "S1", SnapshotDate: "2025-03-05", OnHandQty: testutil.Dec("6")},
		})
		require.NoError(t, err)

		history, err := svc.History(ctx, "C1", "S1", 5)
		require.NoError(t, err)
		require.Len(t, history.Points, 2)
		assert.Equal(t, "2025-03-05", history.Points[0].SnapshotDate)
		assert.Equal(t, "6", history.Points[0].OnHandQty)
		assert.Equal(t, "-4", history.Points[0].Change)
		assert.Equal(t, "10", history.Points[1].OnHandQty)
	})

	t.Run("latest snapshot date", func(t *testing.T) {
		latest, err := svc.LatestSnapshotDate(ctx)
		require.NoError(t, err)
		require.NotNil(t, latest)
		assert.Equal(t, testutil.Date(2025, time.March, 5), *latest)
	})
}

func TestInventoryService_UpsertWide(t *testing.T) {
	db := testutil.SetupTestDB(t)
	testutil.CreateTestSites(t, db, "S1", "S2")
	svc := createInventoryService(t, db)
	ctx := context.Background()

	result, err := svc.UpsertWide(ctx, &domain.WideSnapshotRequest{
		SnapshotDate: "2025-03-09",
		Rows: []domain.WideSnapshotRow{
			{PKID: "C1", Sites: map[string]decimal.Decimal{"S1": testutil.Dec("15"), "S2": testutil.Dec("3"), "OLD": testutil.Dec("9")}},
			{PKID: "C2", Sites: map[string]decimal.Decimal{"S1": testutil.Dec("0")}},
			{PKID: "", Sites: map[string]decimal.Decimal{"S1": testutil.Dec("1")}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Upserted, "unknown site columns are ignored")
	require.Len(t, result.Rejected, 1)
	assert.Equal(t, 2, result.Rejected[0].Index)

	levels, err := svc.Levels(ctx, "S1", testutil.Date(2025, time.March, 10))
	require.NoError(t, err)
	require.Len(t, levels, 2)
	assert.Equal(t, "C1", levels[0].PKID)
	assert.Equal(t, "15", levels[0].OnHandQty)
	assert.Equal(t, "0", levels[1].OnHandQty)

	t.Run("bad date", func(t *testing.T) {
		_, err := svc.UpsertWide(ctx, &domain.WideSnapshotRequest{SnapshotDate: "tomorrow", Rows: []domain.WideSnapshotRow{{PKID: "C1"}}})
		assert.ErrorIs(t, err, service.ErrInvalidInput)
	})

	t.Run("no known site column", func(t *testing.T) {
		_, err := svc.UpsertWide(ctx, &domain.WideSnapshotRequest{
			SnapshotDate: "2025-03-10",
			Rows: []domain.WideSnapshotRow{
				{PKID: "C1", Sites: map[string]decimal.Decimal{"OLD": testutil.Dec("9"), "S9": testutil.Dec("1")}},
			},
		})
		require.ErrorIs(t, err, service.ErrInvalidInput)
		assert.Contains(t, err.Error(), "no valid site columns found")

		levels, err := svc.Levels(ctx, "S1", testutil.Date(2025, time.March, 11))
		require.NoError(t, err)
		assert.Len(t, levels, 2, "nothing is stored")
	})
}

func TestInventoryService_ImportTagsSource(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := createInventoryService(t, db)

	n, err := svc.Import(context.Background(), []domain.InventorySnapshot{
		{PKID: "C1", PlantSite: "S1", SnapshotDate: testutil.Date(2025, time.March, 9), OnHandQty: testutil.Dec("7")},
	}, domain.SnapshotSourceWarehouse)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var snap domain.InventorySnapshot
	require.NoError(t, db.First(&snap).Error)
	assert.Equal(t, domain.SnapshotSourceWarehouse, snap.Source)
}

func TestInventoryService_RequiresKey(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := createInventoryService(t, db)

	_, err := svc.Available(context.Background(), "", "S1", time.Now())
	assert.ErrorIs(t, err, service.ErrInvalidInput)

	_, err = svc.History(context.Background(), "C1", " ", 2)
	assert.ErrorIs(t, err, service.ErrInvalidInput)
}

func TestParseWideInventoryCSV(t *testing.T) {
	input := "PKID,S1,S2\nC1,15,3\nC2,,4\n"
	rows, err := service.ParseWideInventoryCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "C1", rows[0].PKID)
	assert.True(t, rows[0].Sites["S1"].Equal(testutil.Dec("15")))
	_, hasS1 := rows[1].Sites["S1"]
	assert.False(t, hasS1, "blank cells are skipped")

	_, err = service.ParseWideInventoryCSV(strings.NewReader("PKID,S1\nC1,lots\n"))
	assert.ErrorIs(t, err, service.ErrInvalidCSV)

	_, err = service.ParseWideInventoryCSV(strings.NewReader("S1,S2\n1,2\n"))
	assert.ErrorIs(t, err, service.ErrInvalidCSV)
}

func TestInventoryService_PublishesLatestSnapshotDate(t *testing.T) {
	db := testutil.SetupTestDB(t)
	testutil.CreateTestSites(t, db, "S1")
	m := metrics.New()
	svc := service.NewInventoryService(
		repository.NewInventoryRepository(db),
		repository.NewPlantSiteRepository(db),
		m,
		zap.NewNop(),
	)

	_, err := svc.UpsertSnapshots(context.Background(), []domain.SnapshotRequest{
		{PKID: "C1", PlantSite: "S1", SnapshotDate: "2025-03-05", OnHandQty: testutil.Dec("4")},
		{PKID: "C2", PlantSite: "S1", SnapshotDate: "2025-03-01", OnHandQty: testutil.Dec("2")},
	})
	require.NoError(t, err)

	want := fmt.Sprintf("shortage_inventory_latest_snapshot_timestamp_seconds %g",
		float64(testutil.Date(2025, time.March, 5).Unix()))
	assert.Contains(t, scrapeMetrics(t, m), want)
}
