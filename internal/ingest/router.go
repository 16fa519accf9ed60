package ingest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	pkgerrors "github.com/angelmondragon/inventory-backend/pkg/errors"
	"github.com/angelmondragon/inventory-backend/pkg/logger"
	"github.com/angelmondragon/inventory-backend/pkg/metrics"
	"github.com/angelmondragon/inventory-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/inventory-backend/pkg/tracing"
)

// Router dispatches messages to the handler registered for their route.
type Router struct {
	mu          sync.RWMutex
	handlers    map[string]Handler
	idempotency *idempotency.Manager
	logg        *logger.Logger
	metrics     *metrics.IngestMetrics
	tracer      trace.Tracer
}

type RouterParams struct {
	Logger      *logger.Logger
	Idempotency *idempotency.Manager
	Metrics     *metrics.IngestMetrics
}

func NewRouter(params RouterParams) (*Router, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Router{
		handlers:    map[string]Handler{},
		idempotency: params.Idempotency,
		logg:        params.Logger,
		metrics:     params.Metrics,
		tracer:      tracing.Tracer("ingest"),
	}, nil
}

func (r *Router) Register(route string, handler Handler) {
	route = strings.TrimSpace(route)
	if route == "" || handler == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[route] = handler
}

// Routes lists the registered routes.
func (r *Router) Routes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	routes := make([]string, 0, len(r.handlers))
	for route := range r.handlers {
		routes = append(routes, route)
	}
	return routes
}

// Dispatch handles msg and reports whether the source should redeliver it.
// The returned error is informational once retry is false: the message is
// settled and the stream moves on.
func (r *Router) Dispatch(ctx context.Context, msg Message) (retry bool, err error) {
	ctx = tracing.Extract(ctx, msg.Attributes)
	ctx, span := r.tracer.Start(ctx, "ingest "+msg.Route,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.destination.name", msg.Route),
			attribute.String("messaging.message.id", msg.ID),
		))
	defer span.End()

	logCtx := r.logg.WithFields(ctx, map[string]any{
		"route":      msg.Route,
		"message_id": msg.ID,
	})
	if traceID := tracing.TraceID(ctx); traceID != "" {
		logCtx = r.logg.WithTraceID(logCtx, traceID)
	}

	r.mu.RLock()
	handler, ok := r.handlers[msg.Route]
	r.mu.RUnlock()
	if !ok {
		err := pkgerrors.New(pkgerrors.CodeUnknownRoute, "no handler registered for route "+msg.Route)
		r.metrics.Inc(msg.Route, metrics.IngestDropped)
		span.SetStatus(otelcodes.Error, err.Error())
		r.logg.Error(logCtx, "dropping message for unknown route", err)
		return false, err
	}

	if r.idempotency != nil && msg.ID != "" {
		already, err := r.idempotency.CheckAndMarkProcessed(ctx, msg.Route, msg.ID)
		if err != nil {
			r.metrics.Inc(msg.Route, metrics.IngestRetry)
			r.logg.Error(logCtx, "idempotency check failed", err)
			return true, err
		}
		if already {
			r.metrics.Inc(msg.Route, metrics.IngestDuplicate)
			r.logg.Info(logCtx, "message already processed")
			return false, nil
		}
	}

	if err := handler.Handle(logCtx, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		if dropped(err) {
			r.metrics.Inc(msg.Route, metrics.IngestDropped)
			r.logg.Error(logCtx, "dropping message", err)
			return false, err
		}
		if r.idempotency != nil && msg.ID != "" {
			if delErr := r.idempotency.Delete(ctx, msg.Route, msg.ID); delErr != nil {
				r.logg.Error(logCtx, "failed to clear idempotency key", delErr)
			}
		}
		r.metrics.Inc(msg.Route, metrics.IngestRetry)
		r.logg.Error(logCtx, "message handling failed, will retry", err)
		return true, err
	}

	r.metrics.Inc(msg.Route, metrics.IngestHandled)
	return false, nil
}

func dropped(err error) bool {
	for _, code := range []pkgerrors.Code{
		pkgerrors.CodeDeserialization,
		pkgerrors.CodeUnknownRoute,
		pkgerrors.CodeValidation,
		pkgerrors.CodeNotFound,
	} {
		if pkgerrors.Is(err, code) {
			return true
		}
	}
	return false
}
