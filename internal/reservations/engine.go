package reservations

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/angelmondragon/inventory-backend/internal/ledger"
	"github.com/angelmondragon/inventory-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/inventory-backend/pkg/errors"
	"github.com/angelmondragon/inventory-backend/pkg/logger"
	"github.com/angelmondragon/inventory-backend/pkg/metrics"
	"github.com/angelmondragon/inventory-backend/pkg/tracing"
)

// DefaultHoldDuration is how long a reservation keeps stock out of circulation.
const DefaultHoldDuration = 10 * time.Minute

// Line is one (sku, quantity) pair of a reserve request.
type Line = ledger.Line

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type productFinder interface {
	FindBySKU(ctx context.Context, sku string) (*models.Product, error)
}

type EngineParams struct {
	DB           txRunner
	Products     productFinder
	Ledgers      ledger.Repository
	Reservations Repository
	Logger       *logger.Logger
	Metrics      *metrics.ReservationMetrics
	Policy       ledger.RetryPolicy
	HoldDuration time.Duration
	Now          func() time.Time
}

// Engine debits ledgers and records time-boxed holds. Each line commits on
// its own; a later failing line leaves earlier lines reserved.
type Engine struct {
	db           txRunner
	products     productFinder
	ledgers      ledger.Repository
	reservations Repository
	logg         *logger.Logger
	metrics      *metrics.ReservationMetrics
	policy       ledger.RetryPolicy
	hold         time.Duration
	now          func() time.Time
	tracer       trace.Tracer
}

func NewEngine(params EngineParams) (*Engine, error) {
	if params.DB == nil {
		return nil, errors.New("transaction runner required")
	}
	if params.Products == nil {
		return nil, errors.New("product finder required")
	}
	if params.Ledgers == nil {
		return nil, errors.New("ledger repository required")
	}
	if params.Reservations == nil {
		return nil, errors.New("reservation repository required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	hold := params.HoldDuration
	if hold <= 0 {
		hold = DefaultHoldDuration
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	policy := params.Policy
	if policy.MaxAttempts <= 0 {
		policy = ledger.DefaultRetryPolicy()
	}
	return &Engine{
		db:           params.DB,
		products:     params.Products,
		ledgers:      params.Ledgers,
		reservations: params.Reservations,
		logg:         params.Logger,
		metrics:      params.Metrics,
		policy:       policy,
		hold:         hold,
		now:          now,
		tracer:       tracing.Tracer("reservations"),
	}, nil
}

// Reserve processes lines in order. It returns false as soon as a line lacks
// stock, leaving previously committed lines in place. NotFound and
// CONCURRENCY_CONFLICT abort the call with an error.
func (e *Engine) Reserve(ctx context.Context, orderNumber string, lines []Line) (bool, error) {
	orderNumber = strings.TrimSpace(orderNumber)
	ctx, span := e.tracer.Start(ctx, "reservations.Reserve", trace.WithAttributes(
		attribute.String("order.number", orderNumber),
		attribute.Int("order.lines", len(lines)),
	))
	defer span.End()

	if orderNumber == "" {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "order number is required")
	}
	if len(lines) == 0 {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "at least one line is required")
	}
	if err := ledger.ValidateLines(lines); err != nil {
		return false, err
	}

	ctx = e.logg.WithOrderNumber(ctx, orderNumber)
	for i, line := range lines {
		reserved, err := e.reserveLine(ctx, orderNumber, line)
		if err != nil {
			e.metrics.IncOutcome(outcomeFor(err))
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, err.Error())
			e.logg.Error(e.logg.WithFields(ctx, map[string]any{"sku": line.SKU, "line": i}), "reservation failed", err)
			return false, err
		}
		if !reserved {
			e.metrics.IncOutcome(metrics.OutcomeOutOfStock)
			span.SetAttributes(attribute.Bool("order.reserved", false))
			e.logg.Warn(e.logg.WithFields(ctx, map[string]any{
				"sku":       line.SKU,
				"requested": line.Quantity,
				"line":      i,
			}), "insufficient stock, reservation stopped")
			return false, nil
		}
	}

	e.metrics.IncOutcome(metrics.OutcomeReserved)
	span.SetAttributes(attribute.Bool("order.reserved", true))
	e.logg.Info(ctx, "inventory reserved")
	return true, nil
}

func (e *Engine) reserveLine(ctx context.Context, orderNumber string, line Line) (bool, error) {
	if _, err := e.products.FindBySKU(ctx, line.SKU); err != nil {
		return false, err
	}

	err := ledger.RetryConditional(ctx, e.policy, "reserve", e.metrics, func(ctx context.Context) error {
		return e.db.WithTx(ctx, func(tx *gorm.DB) error {
			current, err := e.ledgers.WithTx(tx).FindBySKU(ctx, line.SKU)
			if err != nil {
				return err
			}
			if current.Quantity < line.Quantity {
				return pkgerrors.New(pkgerrors.CodeOutOfStock, "insufficient stock for sku "+line.SKU).
					WithDetails(map[string]any{"available": current.Quantity, "requested": line.Quantity})
			}
			applied, err := e.ledgers.WithTx(tx).CompareAndSetQuantity(ctx, current.ID, current.Version, current.Quantity-line.Quantity)
			if err != nil {
				return err
			}
			if !applied {
				return ledger.ErrVersionConflict
			}
			now := e.now()
			return e.reservations.WithTx(tx).Create(ctx, &models.Reservation{
				OrderNumber: orderNumber,
				ProductID:   current.ProductID,
				Quantity:    line.Quantity,
				ExpiresAt:   now.Add(e.hold),
				CreatedAt:   now,
			})
		})
	})
	if pkgerrors.Is(err, pkgerrors.CodeOutOfStock) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// RestoreExpired deletes the hold and credits its quantity back to the ledger
// in one transaction. afterRestore runs inside that transaction. It returns
// false without touching the ledger when the row was already gone.
func (e *Engine) RestoreExpired(ctx context.Context, reservation models.Reservation, afterRestore func(ctx context.Context, tx *gorm.DB) error) (bool, error) {
	restored := false
	err := ledger.RetryConditional(ctx, e.policy, "restore", e.metrics, func(ctx context.Context) error {
		restored = false
		return e.db.WithTx(ctx, func(tx *gorm.DB) error {
			deleted, err := e.reservations.WithTx(tx).DeleteByID(ctx, reservation.ID)
			if err != nil {
				return err
			}
			if !deleted {
				return nil
			}
			current, err := e.ledgers.WithTx(tx).FindByProductID(ctx, reservation.ProductID)
			if err != nil {
				return err
			}
			applied, err := e.ledgers.WithTx(tx).CompareAndSetQuantity(ctx, current.ID, current.Version, current.Quantity+reservation.Quantity)
			if err != nil {
				return err
			}
			if !applied {
				return ledger.ErrVersionConflict
			}
			if afterRestore != nil {
				if err := afterRestore(ctx, tx); err != nil {
					return err
				}
			}
			restored = true
			return nil
		})
	})
	if err != nil {
		return false, fmt.Errorf("restore reservation %s: %w", reservation.ID, err)
	}
	return restored, nil
}

// FinalizeOrder retires every hold of a paid order. The stock stays debited.
func (e *Engine) FinalizeOrder(ctx context.Context, orderNumber string) (int64, error) {
	orderNumber = strings.TrimSpace(orderNumber)
	if orderNumber == "" {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "order number is required")
	}
	deleted, err := e.reservations.DeleteByOrderNumber(ctx, orderNumber)
	if err != nil {
		return 0, err
	}
	e.logg.Info(e.logg.WithFields(ctx, map[string]any{
		"order_number": orderNumber,
		"released":     deleted,
	}), "reservations finalized")
	return deleted, nil
}

// ListExpired exposes the sweep selection to the expiry job.
func (e *Engine) ListExpired(ctx context.Context, limit int, exclude ...uuid.UUID) ([]models.Reservation, error) {
	return e.reservations.ListExpired(ctx, e.now(), limit, exclude)
}

// ReservationsFor returns the active holds of an order.
func (e *Engine) ReservationsFor(ctx context.Context, orderNumber string) ([]models.Reservation, error) {
	return e.reservations.ListByOrderNumber(ctx, orderNumber)
}

func outcomeFor(err error) string {
	switch {
	case pkgerrors.Is(err, pkgerrors.CodeNotFound):
		return metrics.OutcomeNotFound
	case pkgerrors.Is(err, pkgerrors.CodeConcurrencyConflict):
		return metrics.OutcomeConflict
	default:
		return metrics.OutcomeError
	}
}

