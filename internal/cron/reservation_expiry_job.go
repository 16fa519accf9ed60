package cron

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/inventory-backend/pkg/db/models"
	"github.com/angelmondragon/inventory-backend/pkg/enums"
	"github.com/angelmondragon/inventory-backend/pkg/logger"
	"github.com/angelmondragon/inventory-backend/pkg/metrics"
	"github.com/angelmondragon/inventory-backend/pkg/outbox"
	"github.com/angelmondragon/inventory-backend/pkg/outbox/payloads"
)

const (
	reservationExpiryJobName = "reservation-expiry"
	defaultExpiryBatch       = 500
	maxExpiryBatchesPerRun   = 20
)

// ReservationExpiryJobParams configure the expired hold sweeper.
type ReservationExpiryJobParams struct {
	Logger    *logger.Logger
	Engine    expiryEngine
	Outbox    outboxEmitter
	Metrics   *metrics.CronJobMetrics
	BatchSize int
}

type expiryEngine interface {
	ListExpired(ctx context.Context, limit int, exclude ...uuid.UUID) ([]models.Reservation, error)
	RestoreExpired(ctx context.Context, reservation models.Reservation, afterRestore func(ctx context.Context, tx *gorm.DB) error) (bool, error)
}

// NewReservationExpiryJob builds the job that returns expired holds to stock
// and requests cancellation of their orders.
func NewReservationExpiryJob(params ReservationExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Engine == nil {
		return nil, fmt.Errorf("reservation engine required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultExpiryBatch
	}
	return &reservationExpiryJob{
		logg:    params.Logger,
		engine:  params.Engine,
		outbox:  params.Outbox,
		metrics: params.Metrics,
		batch:   batch,
	}, nil
}

type reservationExpiryJob struct {
	logg    *logger.Logger
	engine  expiryEngine
	outbox  outboxEmitter
	metrics *metrics.CronJobMetrics
	batch   int
}

func (j *reservationExpiryJob) Name() string { return reservationExpiryJobName }

// Run visits each expired hold at most once per tick. Holds that fail stay in
// the table and are left out of the following batches until the next tick.
func (j *reservationExpiryJob) Run(ctx context.Context) error {
	var (
		errs                     []error
		expired, skipped, failed int
		failedIDs                []uuid.UUID
	)
	seen := map[uuid.UUID]struct{}{}
	for round := 0; round < maxExpiryBatchesPerRun; round++ {
		rows, err := j.engine.ListExpired(ctx, j.batch, failedIDs...)
		if err != nil {
			errs = append(errs, fmt.Errorf("list expired reservations: %w", err))
			break
		}
		attempted := 0
		for _, row := range rows {
			if _, ok := seen[row.ID]; ok {
				continue
			}
			seen[row.ID] = struct{}{}
			attempted++
			restored, err := j.expire(ctx, row)
			switch {
			case err != nil:
				failed++
				failedIDs = append(failedIDs, row.ID)
				errs = append(errs, err)
			case restored:
				expired++
			default:
				skipped++
			}
		}
		if len(rows) < j.batch || attempted == 0 {
			break
		}
	}

	j.metrics.AddItems(reservationExpiryJobName, "expired", expired)
	j.metrics.AddItems(reservationExpiryJobName, "skipped", skipped)
	j.metrics.AddItems(reservationExpiryJobName, "failed", failed)
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"expired": expired,
		"skipped": skipped,
		"failed":  failed,
	}), "reservation expiry sweep complete")
	return multierr.Combine(errs...)
}

func (j *reservationExpiryJob) expire(ctx context.Context, row models.Reservation) (bool, error) {
	itemCtx := j.logg.WithOrderNumber(ctx, row.OrderNumber)
	restored, err := j.engine.RestoreExpired(itemCtx, row, func(ctx context.Context, tx *gorm.DB) error {
		return j.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCancelRequested,
			AggregateType: enums.AggregateReservation,
			AggregateID:   row.ID,
			Data:          payloads.OrderCancelRequestedEvent{OrderNumber: row.OrderNumber},
		})
	})
	if err != nil {
		j.logg.Error(j.logg.WithField(itemCtx, "reservation_id", row.ID.String()), "failed to expire reservation", err)
		return false, err
	}
	if restored {
		j.logg.Info(j.logg.WithFields(itemCtx, map[string]any{
			"reservation_id": row.ID.String(),
			"quantity":       row.Quantity,
		}), "reservation expired, stock restored")
	}
	return restored, nil
}
