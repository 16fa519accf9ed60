package cron

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/inventory-backend/internal/ledger"
	"github.com/angelmondragon/inventory-backend/internal/reservations"
	"github.com/angelmondragon/inventory-backend/pkg/db"
	"github.com/angelmondragon/inventory-backend/pkg/db/models"
	"github.com/angelmondragon/inventory-backend/pkg/enums"
	"github.com/angelmondragon/inventory-backend/pkg/logger"
	"github.com/angelmondragon/inventory-backend/pkg/migrate"
	"github.com/angelmondragon/inventory-backend/pkg/outbox"
)

type jobFixture struct {
	conn    *gorm.DB
	client  *db.Client
	ledgers ledger.Repository
	outbox  *outbox.Service
	logg    *logger.Logger
}

func newJobFixture(t *testing.T) *jobFixture {
	t.Helper()
	dsn := "file:cron_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, migrate.AutoMigrate(conn))
	logg := logger.New(logger.Options{ServiceName: "cron-test"})
	return &jobFixture{
		conn:    conn,
		client:  db.FromGorm(conn),
		ledgers: ledger.NewRepository(conn),
		outbox:  outbox.NewService(outbox.NewRepository(conn), logg),
		logg:    logg,
	}
}

func (f *jobFixture) seed(t *testing.T, sku string, quantity, limit int) *models.StockLedger {
	t.Helper()
	product := &models.Product{SKU: sku, Name: sku}
	require.NoError(t, f.conn.Create(product).Error)
	row := &models.StockLedger{ProductID: product.ID, Quantity: quantity, Limit: limit}
	require.NoError(t, f.ledgers.Create(context.Background(), row))
	return row
}

func (f *jobFixture) events(t *testing.T, eventType enums.OutboxEventType) []json.RawMessage {
	t.Helper()
	var rows []models.OutboxEvent
	require.NoError(t, f.conn.Where("event_type = ?", eventType).Order("created_at ASC").Find(&rows).Error)
	out := make([]json.RawMessage, 0, len(rows))
	for _, row := range rows {
		var envelope outbox.PayloadEnvelope
		require.NoError(t, json.Unmarshal(row.Payload, &envelope))
		out = append(out, envelope.Data)
	}
	return out
}

func TestReservationExpiryJobRestoresStockAndRequestsCancel(t *testing.T) {
	f := newJobFixture(t)
	row := f.seed(t, "A", 10, 0)
	now := time.Date(2026, 10, 17, 10, 0, 0, 0, time.UTC)

	engine, err := reservations.NewEngine(reservations.EngineParams{
		DB:           f.client,
		Products:     productLookup{conn: f.conn},
		Ledgers:      f.ledgers,
		Reservations: reservations.NewRepository(f.conn),
		Logger:       f.logg,
		Now:          func() time.Time { return now },
	})
	require.NoError(t, err)

	ok, err := engine.Reserve(context.Background(), "O1", []reservations.Line{{SKU: "A", Quantity: 3}})
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = engine.Reserve(context.Background(), "O2", []reservations.Line{{SKU: "A", Quantity: 2}})
	require.NoError(t, err)
	require.True(t, ok)

	job, err := NewReservationExpiryJob(ReservationExpiryJobParams{Logger: f.logg, Engine: engine, Outbox: f.outbox})
	require.NoError(t, err)

	// expiresAt == now is not yet expired
	now = now.Add(reservations.DefaultHoldDuration)
	require.NoError(t, job.Run(context.Background()))
	require.Empty(t, f.events(t, enums.EventOrderCancelRequested))

	now = now.Add(time.Second)
	require.NoError(t, job.Run(context.Background()))

	current, err := f.ledgers.FindByID(context.Background(), row.ID)
	require.NoError(t, err)
	require.Equal(t, 10, current.Quantity)

	var remaining int64
	require.NoError(t, f.conn.Model(&models.Reservation{}).Count(&remaining).Error)
	require.Zero(t, remaining)

	events := f.events(t, enums.EventOrderCancelRequested)
	require.Len(t, events, 2)
	orders := map[string]bool{}
	for _, data := range events {
		var payload struct {
			OrderNumber string `json:"orderNumber"`
		}
		require.NoError(t, json.Unmarshal(data, &payload))
		orders[payload.OrderNumber] = true
	}
	require.True(t, orders["O1"])
	require.True(t, orders["O2"])

	require.NoError(t, job.Run(context.Background()))
	require.Len(t, f.events(t, enums.EventOrderCancelRequested), 2)
}

// flakyEngine behaves like the reservations table: restored rows disappear,
// failing rows stay listed until excluded.
type flakyEngine struct {
	rows     []models.Reservation
	failing  map[uuid.UUID]bool
	attempts map[uuid.UUID]int
	restored []uuid.UUID
}

func newFlakyEngine(rows []models.Reservation, failing ...uuid.UUID) *flakyEngine {
	f := &flakyEngine{rows: rows, failing: map[uuid.UUID]bool{}, attempts: map[uuid.UUID]int{}}
	for _, id := range failing {
		f.failing[id] = true
	}
	return f
}

func (f *flakyEngine) ListExpired(_ context.Context, limit int, exclude ...uuid.UUID) ([]models.Reservation, error) {
	skip := map[uuid.UUID]bool{}
	for _, id := range exclude {
		skip[id] = true
	}
	var out []models.Reservation
	for _, row := range f.rows {
		if skip[row.ID] {
			continue
		}
		out = append(out, row)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *flakyEngine) RestoreExpired(ctx context.Context, r models.Reservation, after func(context.Context, *gorm.DB) error) (bool, error) {
	f.attempts[r.ID]++
	if f.failing[r.ID] {
		return false, context.DeadlineExceeded
	}
	for i, row := range f.rows {
		if row.ID == r.ID {
			f.rows = append(f.rows[:i], f.rows[i+1:]...)
			break
		}
	}
	f.restored = append(f.restored, r.ID)
	return true, nil
}

func expiredRows(n int) []models.Reservation {
	rows := make([]models.Reservation, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, models.Reservation{ID: uuid.New(), OrderNumber: fmt.Sprintf("O%d", i+1)})
	}
	return rows
}

func TestReservationExpiryJobIsolatesItemFailures(t *testing.T) {
	rows := expiredRows(3)
	engine := newFlakyEngine(rows, rows[1].ID)
	job, err := NewReservationExpiryJob(ReservationExpiryJobParams{
		Logger:    logger.New(logger.Options{ServiceName: "cron-test"}),
		Engine:    engine,
		Outbox:    &outbox.Service{},
		BatchSize: 10,
	})
	require.NoError(t, err)

	err = job.Run(context.Background())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Len(t, engine.restored, 2)
}

func TestReservationExpiryJobAttemptsFailingHoldOncePerTick(t *testing.T) {
	rows := expiredRows(7)
	failing := rows[0].ID
	engine := newFlakyEngine(rows, failing)
	job, err := NewReservationExpiryJob(ReservationExpiryJobParams{
		Logger:    logger.New(logger.Options{ServiceName: "cron-test"}),
		Engine:    engine,
		Outbox:    &outbox.Service{},
		BatchSize: 2,
	})
	require.NoError(t, err)

	err = job.Run(context.Background())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Len(t, multierr.Errors(err), 1)
	require.Equal(t, 1, engine.attempts[failing])
	require.Len(t, engine.restored, 6)

	err = job.Run(context.Background())
	require.Len(t, multierr.Errors(err), 1)
	require.Equal(t, 2, engine.attempts[failing])
}

func TestReservationExpiryJobContinuesPastBatchOfFailures(t *testing.T) {
	rows := expiredRows(5)
	engine := newFlakyEngine(rows, rows[0].ID, rows[1].ID)
	job, err := NewReservationExpiryJob(ReservationExpiryJobParams{
		Logger:    logger.New(logger.Options{ServiceName: "cron-test"}),
		Engine:    engine,
		Outbox:    &outbox.Service{},
		BatchSize: 2,
	})
	require.NoError(t, err)

	err = job.Run(context.Background())
	require.Len(t, multierr.Errors(err), 2)
	require.Len(t, engine.restored, 3)
	for _, row := range rows {
		require.Equal(t, 1, engine.attempts[row.ID])
	}
}

func TestStockLimitJobNotifiesOnceUntilRearmed(t *testing.T) {
	f := newJobFixture(t)
	low := f.seed(t, "LOW", 2, 5)
	f.seed(t, "FULL", 50, 5)

	job, err := NewStockLimitJob(StockLimitJobParams{
		Logger:  f.logg,
		DB:      f.client,
		Ledgers: f.ledgers,
		Outbox:  f.outbox,
	})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, job.Run(ctx))
	events := f.events(t, enums.EventStockLimitReached)
	require.Len(t, events, 1)
	require.JSONEq(t, `{"sku":"LOW","limit":5,"currentQuantity":2}`, string(events[0]))

	require.NoError(t, job.Run(ctx))
	require.Len(t, f.events(t, enums.EventStockLimitReached), 1)

	svc, err := ledger.NewService(ledger.ServiceParams{DB: f.client, Repository: f.ledgers})
	require.NoError(t, err)
	_, err = svc.UpdateLedger(ctx, low.ProductID, ledger.UpdateLedgerInput{Quantity: 3, Limit: 5})
	require.NoError(t, err)

	require.NoError(t, job.Run(ctx))
	events = f.events(t, enums.EventStockLimitReached)
	require.Len(t, events, 2)
	require.JSONEq(t, `{"sku":"LOW","limit":5,"currentQuantity":3}`, string(events[1]))
}

func TestStockLimitJobZeroLimitEmptyLedgerNotifies(t *testing.T) {
	f := newJobFixture(t)
	f.seed(t, "NEW", 0, 0)

	job, err := NewStockLimitJob(StockLimitJobParams{Logger: f.logg, DB: f.client, Ledgers: f.ledgers, Outbox: f.outbox})
	require.NoError(t, err)
	require.NoError(t, job.Run(context.Background()))
	require.Len(t, f.events(t, enums.EventStockLimitReached), 1)
}

// contestedLedgers loses the first n notification writes to a concurrent
// version bump.
type contestedLedgers struct {
	ledger.Repository
	losses *int
}

func (c contestedLedgers) WithTx(tx *gorm.DB) ledger.Repository {
	return contestedLedgers{Repository: c.Repository.WithTx(tx), losses: c.losses}
}

func (c contestedLedgers) CompareAndMarkNotified(ctx context.Context, id uuid.UUID, version int64) (bool, error) {
	if *c.losses > 0 {
		*c.losses--
		return false, nil
	}
	return c.Repository.CompareAndMarkNotified(ctx, id, version)
}

type conflictCounter struct {
	ops []string
}

func (c *conflictCounter) IncConflict(operation string) { c.ops = append(c.ops, operation) }

func TestStockLimitJobReportsVersionConflicts(t *testing.T) {
	f := newJobFixture(t)
	f.seed(t, "LOW", 1, 5)

	losses := 2
	conflicts := &conflictCounter{}
	job, err := NewStockLimitJob(StockLimitJobParams{
		Logger:    f.logg,
		DB:        f.client,
		Ledgers:   contestedLedgers{Repository: f.ledgers, losses: &losses},
		Outbox:    f.outbox,
		Policy:    ledger.RetryPolicy{MaxAttempts: 3, Backoff: time.Millisecond},
		Conflicts: conflicts,
	})
	require.NoError(t, err)

	require.NoError(t, job.Run(context.Background()))
	require.Equal(t, []string{"limit_notify", "limit_notify"}, conflicts.ops)
	require.Len(t, f.events(t, enums.EventStockLimitReached), 1)
}

type productLookup struct {
	conn *gorm.DB
}

func (p productLookup) FindBySKU(ctx context.Context, sku string) (*models.Product, error) {
	var product models.Product
	if err := p.conn.WithContext(ctx).Where("sku_code = ?", sku).First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}
