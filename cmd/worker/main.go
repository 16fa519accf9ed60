package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/inventory-backend/internal/ingest"
	"github.com/angelmondragon/inventory-backend/internal/ledger"
	product "github.com/angelmondragon/inventory-backend/internal/products"
	"github.com/angelmondragon/inventory-backend/internal/reservations"
	"github.com/angelmondragon/inventory-backend/pkg/config"
	"github.com/angelmondragon/inventory-backend/pkg/db"
	"github.com/angelmondragon/inventory-backend/pkg/instance"
	"github.com/angelmondragon/inventory-backend/pkg/kafka"
	"github.com/angelmondragon/inventory-backend/pkg/logger"
	"github.com/angelmondragon/inventory-backend/pkg/metrics"
	"github.com/angelmondragon/inventory-backend/pkg/migrate"
	"github.com/angelmondragon/inventory-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/inventory-backend/pkg/pubsub"
	"github.com/angelmondragon/inventory-backend/pkg/redis"
	"github.com/angelmondragon/inventory-backend/pkg/tracing"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	cfg.Service.Kind = "worker"

	logg = logger.New(logger.Options{
		ServiceName: "worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing, "worker", cfg.App.Env)
	requireResource(ctx, logg, "tracing", err)
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logg.Error(context.Background(), "error flushing traces", err)
		}
	}()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()

	requireResource(ctx, logg, "dev migrations", migrate.MaybeRunDev(ctx, cfg, logg, dbClient))

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer redisClient.Close()

	manager, err := idempotency.NewManager(redisClient, cfg.Eventing.InboundIdempotencyTTL)
	requireResource(ctx, logg, "idempotency manager", err)

	products := product.NewRepository(dbClient.DB())
	ledgerRepo := ledger.NewRepository(dbClient.DB())
	reservationRepo := reservations.NewRepository(dbClient.DB())

	catalog, err := product.NewCatalogService(product.CatalogParams{
		DB:           dbClient,
		Products:     products,
		Ledgers:      ledgerRepo,
		Reservations: reservationRepo,
		Logger:       logg,
	})
	requireResource(ctx, logg, "catalog service", err)

	engine, err := reservations.NewEngine(reservations.EngineParams{
		DB:           dbClient,
		Products:     products,
		Ledgers:      ledgerRepo,
		Reservations: reservationRepo,
		Logger:       logg,
		Metrics:      metrics.NewReservationMetrics(prometheus.DefaultRegisterer),
		Policy: ledger.RetryPolicy{
			MaxAttempts: cfg.Reservation.MaxAttempts,
			Backoff:     cfg.Reservation.RetryBackoff,
		},
		HoldDuration: cfg.Reservation.HoldDuration,
	})
	requireResource(ctx, logg, "reservation engine", err)

	catalogHandler, err := ingest.NewCatalogHandler(catalog, logg)
	requireResource(ctx, logg, "catalog handler", err)
	paymentHandler, err := ingest.NewPaymentHandler(engine, logg)
	requireResource(ctx, logg, "payment handler", err)

	router, err := ingest.NewRouter(ingest.RouterParams{
		Logger:      logg,
		Idempotency: manager,
		Metrics:     metrics.NewIngestMetrics(prometheus.DefaultRegisterer),
	})
	requireResource(ctx, logg, "ingest router", err)
	router.Register(cfg.Bus.CatalogTopic, catalogHandler)
	router.Register(cfg.Bus.PaymentTopic, paymentHandler)

	sources, busPing, closeBus, err := newSources(ctx, cfg, router, logg)
	requireResource(ctx, logg, "message sources", err)
	defer closeBus()

	service, err := NewService(ServiceParams{
		Config:  cfg,
		Logger:  logg,
		DB:      dbClient,
		Redis:   redisClient,
		BusPing: busPing,
		Sources: sources,
	})
	requireResource(ctx, logg, "worker service", err)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"bus":         cfg.Bus.NormalizedDriver(),
		"instance":    instance.ID(),
	})
	logg.Info(runCtx, "starting worker")

	if err := service.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(runCtx, "worker shutting down gracefully")
}

func newSources(ctx context.Context, cfg *config.Config, router *ingest.Router, logg *logger.Logger) ([]source, func(context.Context) error, func(), error) {
	switch cfg.Bus.NormalizedDriver() {
	case config.BusDriverKafka:
		reader, err := kafka.NewReader(cfg.Kafka, []string{cfg.Bus.CatalogTopic, cfg.Bus.PaymentTopic})
		if err != nil {
			return nil, nil, nil, err
		}
		src, err := ingest.NewKafkaSource(reader, router, logg, cfg.Kafka.RetryBackoff)
		if err != nil {
			_ = reader.Close()
			return nil, nil, nil, err
		}
		ping := func(ctx context.Context) error { return kafka.Ping(ctx, cfg.Kafka) }
		return []source{src}, ping, func() { _ = reader.Close() }, nil
	case config.BusDriverPubSub:
		client, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			return nil, nil, nil, err
		}
		catalogSrc, err := ingest.NewPubSubSource(client.CatalogSubscription(), cfg.Bus.CatalogTopic, router, logg)
		if err != nil {
			_ = client.Close()
			return nil, nil, nil, err
		}
		paymentSrc, err := ingest.NewPubSubSource(client.PaymentSubscription(), cfg.Bus.PaymentTopic, router, logg)
		if err != nil {
			_ = client.Close()
			return nil, nil, nil, err
		}
		return []source{catalogSrc, paymentSrc}, client.Ping, func() { _ = client.Close() }, nil
	default:
		return nil, nil, nil, fmt.Errorf("unsupported bus driver %q", cfg.Bus.Driver)
	}
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
