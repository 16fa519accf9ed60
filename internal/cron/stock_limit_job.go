package cron

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/inventory-backend/internal/ledger"
	"github.com/angelmondragon/inventory-backend/pkg/db/models"
	"github.com/angelmondragon/inventory-backend/pkg/enums"
	"github.com/angelmondragon/inventory-backend/pkg/logger"
	"github.com/angelmondragon/inventory-backend/pkg/metrics"
	"github.com/angelmondragon/inventory-backend/pkg/outbox"
	"github.com/angelmondragon/inventory-backend/pkg/outbox/payloads"
)

const stockLimitJobName = "stock-limit-notifier"

// StockLimitJobParams configure the low-stock notifier.
type StockLimitJobParams struct {
	Logger    *logger.Logger
	DB        txRunner
	Ledgers   ledger.Repository
	Outbox    outboxEmitter
	Policy    ledger.RetryPolicy
	Metrics   *metrics.CronJobMetrics
	Conflicts ledger.ConflictObserver
	BatchSize int
}

// NewStockLimitJob builds the job that announces ledgers crossing their limit.
// A ledger is announced once until an administrative update re-arms it.
func NewStockLimitJob(params StockLimitJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Ledgers == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	policy := params.Policy
	if policy.MaxAttempts <= 0 {
		policy = ledger.DefaultRetryPolicy()
	}
	return &stockLimitJob{
		logg:      params.Logger,
		db:        params.DB,
		ledgers:   params.Ledgers,
		outbox:    params.Outbox,
		policy:    policy,
		metrics:   params.Metrics,
		conflicts: params.Conflicts,
		batch:     params.BatchSize,
	}, nil
}

type stockLimitJob struct {
	logg      *logger.Logger
	db        txRunner
	ledgers   ledger.Repository
	outbox    outboxEmitter
	policy    ledger.RetryPolicy
	metrics   *metrics.CronJobMetrics
	conflicts ledger.ConflictObserver
	batch     int
}

func (j *stockLimitJob) Name() string { return stockLimitJobName }

func (j *stockLimitJob) Run(ctx context.Context) error {
	pending, err := j.ledgers.ListPendingLimitNotifications(ctx, j.batch)
	if err != nil {
		return fmt.Errorf("list ledgers at limit: %w", err)
	}
	var (
		errs                   []error
		notified, skipped, bad int
	)
	for _, row := range pending {
		sent, err := j.notify(ctx, row)
		switch {
		case err != nil:
			bad++
			errs = append(errs, err)
		case sent:
			notified++
		default:
			skipped++
		}
	}

	j.metrics.AddItems(stockLimitJobName, "notified", notified)
	j.metrics.AddItems(stockLimitJobName, "skipped", skipped)
	j.metrics.AddItems(stockLimitJobName, "failed", bad)
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"notified": notified,
		"skipped":  skipped,
		"failed":   bad,
	}), "stock limit scan complete")
	return multierr.Combine(errs...)
}

// notify re-reads the ledger inside the attempt so a concurrent admin update or
// a second notifier never produces a duplicate event.
func (j *stockLimitJob) notify(ctx context.Context, row models.StockLedger) (bool, error) {
	sent := false
	var announced models.StockLedger
	err := ledger.RetryConditional(ctx, j.policy, "limit_notify", j.conflicts, func(ctx context.Context) error {
		sent = false
		return j.db.WithTx(ctx, func(tx *gorm.DB) error {
			repo := j.ledgers.WithTx(tx)
			current, err := repo.FindByID(ctx, row.ID)
			if err != nil {
				return err
			}
			if current.NotificationSent || !current.AtOrBelowLimit() {
				return nil
			}
			applied, err := repo.CompareAndMarkNotified(ctx, current.ID, current.Version)
			if err != nil {
				return err
			}
			if !applied {
				return ledger.ErrVersionConflict
			}
			sku := ""
			if current.Product != nil {
				sku = current.Product.SKU
			}
			if err := j.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventStockLimitReached,
				AggregateType: enums.AggregateStockLedger,
				AggregateID:   current.ID,
				Data: payloads.StockLimitReachedEvent{
					SKU:             sku,
					Limit:           current.Limit,
					CurrentQuantity: current.Quantity,
				},
			}); err != nil {
				return err
			}
			sent = true
			announced = *current
			return nil
		})
	})
	if err != nil {
		return false, fmt.Errorf("notify ledger %s: %w", row.ID, err)
	}
	if sent {
		logCtx := ctx
		if announced.Product != nil {
			logCtx = j.logg.WithSKU(ctx, announced.Product.SKU)
		}
		j.logg.Info(j.logg.WithFields(logCtx, map[string]any{
			"limit":    announced.Limit,
			"quantity": announced.Quantity,
		}), "stock limit reached")
	}
	return sent, nil
}
