package repository_test

import (
	"context"
	"errors"
	"testing"

	"github.com/straye-as/shortage-api/internal/domain"
	"github.com/straye-as/shortage-api/internal/repository"
	"github.com/straye-as/shortage-api/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestOrderRepository_FindByKeyForUpdate(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewOrderRepository(db)
	ctx := context.Background()

	created := testutil.CreateTestOrder(t, db, "PO-1", "P1", "ACME", "S1", "10", "")

	t.Run("found inside transaction", func(t *testing.T) {
		err := repo.Transaction(ctx, func(tx *repository.OrderRepository) error {
			found, err := tx.FindByKeyForUpdate(ctx, created.Key())
			require.NoError(t, err)
			require.NotNil(t, found)
			assert.Equal(t, created.ID, found.ID)
			assert.True(t, testutil.Dec("10").Equal(found.OrderedQty))
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("missing key returns nil", func(t *testing.T) {
		key := created.Key()
		key.Customer = "OTHER"
		found, err := repo.FindByKeyForUpdate(ctx, key)
		require.NoError(t, err)
		assert.Nil(t, found)
	})
}

func TestOrderRepository_UniqueNaturalKey(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewOrderRepository(db)

	testutil.CreateTestOrder(t, db, "PO-1", "P1", "ACME", "S1", "10", "")

	dup := &domain.Order{
		PONumber:       "PO-1",
		PKID:           "P1",
		Customer:       "ACME",
		ProductionSite: "S1",
		OrderedQty:     testutil.Dec("3"),
		OrderDate:      testutil.Date(2025, 3, 1),
		Status:         domain.OrderStatusOpen,
	}
	err := repo.Create(context.Background(), dup)
	require.Error(t, err)
	assert.True(t, errors.Is(err, gorm.ErrDuplicatedKey))
}

func TestOrderRepository_TransactionRollsBack(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewOrderRepository(db)
	ctx := context.Background()

	boom := errors.New("boom")
	err := repo.Transaction(ctx, func(tx *repository.OrderRepository) error {
		order := &domain.Order{
			PONumber: "PO-9", PKID: "P1", Customer: "ACME", ProductionSite: "S1",
			OrderedQty: testutil.Dec("1"), OrderDate: testutil.Date(2025, 3, 1), Status: domain.OrderStatusOpen,
		}
		require.NoError(t, tx.Create(ctx, order))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	orders, total, err := repo.List(ctx, 1, 10, nil, repository.DefaultSortConfig())
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, orders)
}

func TestOrderRepository_UpdateFields(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewOrderRepository(db)
	ctx := context.Background()

	order := testutil.CreateTestOrder(t, db, "PO-1", "P1", "ACME", "S1", "10", "")

	err := repo.UpdateFields(ctx, order.ID, map[string]interface{}{
		"ordered_qty": testutil.Dec("12"),
		"status":      domain.OrderStatusPartial,
	})
	require.NoError(t, err)

	got, err := repo.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, testutil.Dec("12").Equal(got.OrderedQty))
	assert.Equal(t, domain.OrderStatusPartial, got.Status)
	assert.Equal(t, "ACME", got.Customer)
}

func TestOrderRepository_ListFilters(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewOrderRepository(db)
	ctx := context.Background()

	testutil.CreateTestOrder(t, db, "PO-1", "P1", "ACME", "S1", "1", "")
	testutil.CreateTestOrder(t, db, "PO-2", "P1", "ACME", "S2", "1", domain.OrderStatusPartial)
	testutil.CreateTestOrder(t, db, "PO-3", "P2", "VOLVO", "S1", "1", domain.OrderStatusClosed)
	testutil.CreateTestOrder(t, db, "PO-4", "P2", "VOLVO", "S2", "1", domain.OrderStatusCancelled)

	tests := []struct {
		name    string
		filters *repository.OrderFilters
		want    int64
	}{
		{name: "no filter", filters: nil, want: 4},
		{name: "customer", filters: &repository.OrderFilters{Customers: []string{"ACME"}}, want: 2},
		{name: "site", filters: &repository.OrderFilters{Sites: []string{"S2"}}, want: 2},
		{name: "status", filters: &repository.OrderFilters{Statuses: []domain.OrderStatus{domain.OrderStatusClosed, domain.OrderStatusCancelled}}, want: 2},
		{name: "pkid", filters: &repository.OrderFilters{PKID: "P2"}, want: 2},
		{name: "combined", filters: &repository.OrderFilters{Customers: []string{"ACME"}, Sites: []string{"S1"}}, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orders, total, err := repo.List(ctx, 1, 50, tt.filters, repository.SortConfig{Field: "poNumber", Order: repository.SortOrderAsc})
			require.NoError(t, err)
			assert.Equal(t, tt.want, total)
			assert.Len(t, orders, int(tt.want))
		})
	}

	t.Run("pagination", func(t *testing.T) {
		orders, total, err := repo.List(ctx, 2, 3, nil, repository.SortConfig{Field: "poNumber", Order: repository.SortOrderAsc})
		require.NoError(t, err)
		assert.Equal(t, int64(4), total)
		require.Len(t, orders, 1)
		assert.Equal(t, "PO-4", orders[0].PONumber)
	})
}

func TestOrderRepository_ListForAnalysis(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewOrderRepository(db)

	testutil.CreateTestOrder(t, db, "PO-2", "P1", "VOLVO", "S1", "1", "")
	testutil.CreateTestOrder(t, db, "PO-1", "P1", "ACME", "S1", "1", domain.OrderStatusPartial)
	testutil.CreateTestOrder(t, db, "PO-3", "P1", "ACME", "S1", "1", domain.OrderStatusClosed)

	orders, err := repo.ListForAnalysis(context.Background(), &repository.OrderFilters{})
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "ACME", orders[0].Customer)
	assert.Equal(t, "VOLVO", orders[1].Customer)
}

func TestOrderRepository_CancelMissing(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewOrderRepository(db)
	ctx := context.Background()

	kept := testutil.CreateTestOrder(t, db, "PO-1", "P1", "ACME", "S1", "1", "")
	gone := testutil.CreateTestOrder(t, db, "PO-2", "P1", "ACME", "S1", "1", domain.OrderStatusPartial)
	closed := testutil.CreateTestOrder(t, db, "PO-3", "P1", "ACME", "S1", "1", domain.OrderStatusClosed)
	otherScope := testutil.CreateTestOrder(t, db, "PO-4", "P1", "ACME", "S2", "1", "")

	cancelled, err := repo.CancelMissing(ctx,
		[]repository.OrderScope{{Customer: "ACME", ProductionSite: "S1"}},
		map[domain.OrderKey]bool{kept.Key(): true},
	)
	require.NoError(t, err)
	require.Len(t, cancelled, 1)
	assert.Equal(t, gone.ID, cancelled[0].ID)

	statusOf := func(o *domain.Order) domain.OrderStatus {
		got, err := repo.GetByID(ctx, o.ID)
		require.NoError(t, err)
		return got.Status
	}
	assert.Equal(t, domain.OrderStatusOpen, statusOf(kept))
	assert.Equal(t, domain.OrderStatusCancelled, statusOf(gone))
	assert.Equal(t, domain.OrderStatusClosed, statusOf(closed))
	assert.Equal(t, domain.OrderStatusOpen, statusOf(otherScope))
}

func TestOrderRepository_CountByStatus(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewOrderRepository(db)

	testutil.CreateTestOrder(t, db, "PO-1", "P1", "ACME", "S1", "1", "")
	testutil.CreateTestOrder(t, db, "PO-2", "P1", "ACME", "S1", "1", "")
	testutil.CreateTestOrder(t, db, "PO-3", "P1", "ACME", "S1", "1", domain.OrderStatusClosed)

	counts, err := repo.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[domain.OrderStatusOpen])
	assert.Equal(t, int64(1), counts[domain.OrderStatusClosed])
}
