package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/inventory-backend/pkg/db"
	"github.com/angelmondragon/inventory-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/inventory-backend/pkg/errors"
)

func newLedgerDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:ledger_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.Product{}, &models.StockLedger{}))
	return conn
}

func seedLedger(t *testing.T, conn *gorm.DB, sku string, quantity, limit int) *models.StockLedger {
	t.Helper()
	product := &models.Product{SKU: sku, Name: "Product " + sku, ThumbnailURL: "https://cdn.example/" + sku}
	require.NoError(t, conn.Create(product).Error)
	row := &models.StockLedger{ProductID: product.ID, Quantity: quantity, Limit: limit}
	require.NoError(t, NewRepository(conn).Create(context.Background(), row))
	return row
}

type countingObserver struct {
	ops []string
}

func (c *countingObserver) IncConflict(operation string) {
	c.ops = append(c.ops, operation)
}

func TestCompareAndSetQuantityRequiresCurrentVersion(t *testing.T) {
	t.Parallel()
	conn := newLedgerDB(t)
	row := seedLedger(t, conn, "A", 10, 2)
	repo := NewRepository(conn)
	ctx := context.Background()

	applied, err := repo.CompareAndSetQuantity(ctx, row.ID, row.Version, 7)
	require.NoError(t, err)
	require.True(t, applied)

	applied, err = repo.CompareAndSetQuantity(ctx, row.ID, row.Version, 1)
	require.NoError(t, err)
	require.False(t, applied)

	current, err := repo.FindByID(ctx, row.ID)
	require.NoError(t, err)
	require.Equal(t, 7, current.Quantity)
	require.Equal(t, row.Version+1, current.Version)
}

func TestCompareAndMarkNotifiedOnlyOnce(t *testing.T) {
	t.Parallel()
	conn := newLedgerDB(t)
	row := seedLedger(t, conn, "A", 1, 5)
	repo := NewRepository(conn)
	ctx := context.Background()

	applied, err := repo.CompareAndMarkNotified(ctx, row.ID, row.Version)
	require.NoError(t, err)
	require.True(t, applied)

	current, err := repo.FindByID(ctx, row.ID)
	require.NoError(t, err)
	require.True(t, current.NotificationSent)

	applied, err = repo.CompareAndMarkNotified(ctx, row.ID, current.Version)
	require.NoError(t, err)
	require.False(t, applied)
}

func TestListPendingLimitNotifications(t *testing.T) {
	t.Parallel()
	conn := newLedgerDB(t)
	low := seedLedger(t, conn, "low", 2, 5)
	seedLedger(t, conn, "high", 20, 5)
	edge := seedLedger(t, conn, "edge", 5, 5)
	sent := seedLedger(t, conn, "sent", 0, 5)
	repo := NewRepository(conn)
	ctx := context.Background()

	applied, err := repo.CompareAndMarkNotified(ctx, sent.ID, sent.Version)
	require.NoError(t, err)
	require.True(t, applied)

	pending, err := repo.ListPendingLimitNotifications(ctx, 0)
	require.NoError(t, err)
	ids := map[uuid.UUID]bool{}
	for _, p := range pending {
		ids[p.ID] = true
		require.NotNil(t, p.Product)
	}
	require.Len(t, ids, 2)
	require.True(t, ids[low.ID])
	require.True(t, ids[edge.ID])
}

func TestFindBySKU(t *testing.T) {
	t.Parallel()
	conn := newLedgerDB(t)
	row := seedLedger(t, conn, "SKU-1", 3, 1)
	repo := NewRepository(conn)

	found, err := repo.FindBySKU(context.Background(), "SKU-1")
	require.NoError(t, err)
	require.Equal(t, row.ID, found.ID)
	require.Equal(t, "SKU-1", found.Product.SKU)

	_, err = repo.FindBySKU(context.Background(), "nope")
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
}

func TestDeleteMissingLedgerIsNotFound(t *testing.T) {
	t.Parallel()
	conn := newLedgerDB(t)
	err := NewRepository(conn).Delete(context.Background(), uuid.New())
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
}

func TestRetryConditionalSucceedsAfterConflicts(t *testing.T) {
	t.Parallel()
	observer := &countingObserver{}
	calls := 0
	err := RetryConditional(context.Background(), RetryPolicy{MaxAttempts: 3}, "reserve", observer, func(context.Context) error {
		calls++
		if calls < 3 {
			return ErrVersionConflict
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
	require.Equal(t, []string{"reserve", "reserve"}, observer.ops)
}

func TestRetryConditionalExhaustion(t *testing.T) {
	t.Parallel()
	calls := 0
	err := RetryConditional(context.Background(), RetryPolicy{MaxAttempts: 3, Backoff: time.Millisecond}, "restore", nil, func(context.Context) error {
		calls++
		return ErrVersionConflict
	})
	require.Equal(t, 3, calls)
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeConcurrencyConflict))
	require.True(t, errors.Is(err, ErrVersionConflict))
}

func TestRetryConditionalPassesThroughOtherErrors(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	calls := 0
	err := RetryConditional(context.Background(), DefaultRetryPolicy(), "reserve", nil, func(context.Context) error {
		calls++
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, calls)
}

func TestRetryConditionalStopsOnCancelledContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := RetryConditional(ctx, RetryPolicy{MaxAttempts: 3, Backoff: time.Hour}, "reserve", nil, func(context.Context) error {
		calls++
		cancel()
		return ErrVersionConflict
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, calls)
}

func newTestService(t *testing.T, conn *gorm.DB) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		DB:         db.FromGorm(conn),
		Repository: NewRepository(conn),
		Policy:     RetryPolicy{MaxAttempts: 3, Backoff: time.Millisecond},
	})
	require.NoError(t, err)
	return svc
}

func TestUpdateLedgerOverwritesLevelsAndRearmsNotification(t *testing.T) {
	t.Parallel()
	conn := newLedgerDB(t)
	row := seedLedger(t, conn, "A", 1, 5)
	repo := NewRepository(conn)
	applied, err := repo.CompareAndMarkNotified(context.Background(), row.ID, row.Version)
	require.NoError(t, err)
	require.True(t, applied)

	svc := newTestService(t, conn)
	snapshot, err := svc.UpdateLedger(context.Background(), row.ProductID, UpdateLedgerInput{Quantity: 50, Limit: 10})
	require.NoError(t, err)
	require.Equal(t, 50, snapshot.Quantity)
	require.Equal(t, 10, snapshot.Limit)
	require.False(t, snapshot.NotificationSent)
	require.Equal(t, "A", snapshot.SKU)

	current, err := repo.FindByID(context.Background(), row.ID)
	require.NoError(t, err)
	require.False(t, current.NotificationSent)
	require.Equal(t, row.Version+2, current.Version)
}

func TestUpdateLedgerValidation(t *testing.T) {
	t.Parallel()
	conn := newLedgerDB(t)
	svc := newTestService(t, conn)

	_, err := svc.UpdateLedger(context.Background(), uuid.Nil, UpdateLedgerInput{})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	_, err = svc.UpdateLedger(context.Background(), uuid.New(), UpdateLedgerInput{Quantity: -1})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	_, err = svc.UpdateLedger(context.Background(), uuid.New(), UpdateLedgerInput{Quantity: 1})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
}

func TestListLedgersAndFindBySKU(t *testing.T) {
	t.Parallel()
	conn := newLedgerDB(t)
	seedLedger(t, conn, "A", 1, 0)
	seedLedger(t, conn, "B", 2, 0)
	svc := newTestService(t, conn)

	all, err := svc.ListLedgers(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2)

	snapshot, err := svc.FindBySKU(context.Background(), " B ")
	require.NoError(t, err)
	require.Equal(t, 2, snapshot.Quantity)
	require.Equal(t, "https://cdn.example/B", snapshot.Thumbnail)
}

func TestCheckStock(t *testing.T) {
	t.Parallel()
	conn := newLedgerDB(t)
	seedLedger(t, conn, "A", 5, 0)
	seedLedger(t, conn, "B", 1, 0)
	svc := newTestService(t, conn)
	ctx := context.Background()

	ok, err := svc.CheckStock(ctx, []Line{{SKU: "A", Quantity: 5}, {SKU: "B", Quantity: 1}})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = svc.CheckStock(ctx, []Line{{SKU: "A", Quantity: 1}, {SKU: "B", Quantity: 2}})
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = svc.CheckStock(ctx, []Line{{SKU: "ghost", Quantity: 1}})
	require.NoError(t, err)
	require.False(t, ok)

	_, err = svc.CheckStock(ctx, nil)
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}
