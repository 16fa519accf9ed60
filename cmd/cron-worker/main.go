package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/go-zookeeper/zk"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/inventory-backend/internal/cron"
	"github.com/angelmondragon/inventory-backend/internal/ledger"
	product "github.com/angelmondragon/inventory-backend/internal/products"
	"github.com/angelmondragon/inventory-backend/internal/reservations"
	"github.com/angelmondragon/inventory-backend/pkg/config"
	"github.com/angelmondragon/inventory-backend/pkg/db"
	"github.com/angelmondragon/inventory-backend/pkg/instance"
	"github.com/angelmondragon/inventory-backend/pkg/logger"
	"github.com/angelmondragon/inventory-backend/pkg/metrics"
	"github.com/angelmondragon/inventory-backend/pkg/migrate"
	"github.com/angelmondragon/inventory-backend/pkg/outbox"
	"github.com/angelmondragon/inventory-backend/pkg/redis"
	"github.com/angelmondragon/inventory-backend/pkg/tracing"
)

const lockName = "cron-worker"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	shutdownTracing, err := tracing.Init(context.Background(), cfg.Tracing, "cron-worker", cfg.App.Env)
	if err != nil {
		logg.Error(context.Background(), "failed to init tracing", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logg.Error(context.Background(), "error flushing traces", err)
		}
	}()

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	locks, closeLocks, err := newLocks(context.Background(), cfg, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron locks", err)
		os.Exit(1)
	}
	defer closeLocks()

	cronMetrics := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	reservationMetrics := metrics.NewReservationMetrics(prometheus.DefaultRegisterer)
	policy := ledger.RetryPolicy{
		MaxAttempts: cfg.Reservation.MaxAttempts,
		Backoff:     cfg.Reservation.RetryBackoff,
	}

	ledgerRepo := ledger.NewRepository(dbClient.DB())
	outboxRepo := outbox.NewRepository(dbClient.DB())
	outboxService := outbox.NewService(outboxRepo, logg)

	engine, err := reservations.NewEngine(reservations.EngineParams{
		DB:           dbClient,
		Products:     product.NewRepository(dbClient.DB()),
		Ledgers:      ledgerRepo,
		Reservations: reservations.NewRepository(dbClient.DB()),
		Logger:       logg,
		Metrics:      reservationMetrics,
		Policy:       policy,
		HoldDuration: cfg.Reservation.HoldDuration,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reservation engine", err)
		os.Exit(1)
	}

	expiryJob, err := cron.NewReservationExpiryJob(cron.ReservationExpiryJobParams{
		Logger:    logg,
		Engine:    engine,
		Outbox:    outboxService,
		Metrics:   cronMetrics,
		BatchSize: cfg.Cron.ExpiryBatch,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reservation expiry job", err)
		os.Exit(1)
	}

	stockLimitJob, err := cron.NewStockLimitJob(cron.StockLimitJobParams{
		Logger:    logg,
		DB:        dbClient,
		Ledgers:   ledgerRepo,
		Outbox:    outboxService,
		Policy:    policy,
		Metrics:   cronMetrics,
		Conflicts: reservationMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create stock limit job", err)
		os.Exit(1)
	}

	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: outboxRepo,
		Metrics:    cronMetrics,
		Retention:  cfg.Cron.OutboxRetentionDays,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox retention job", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry(expiryJob, stockLimitJob, retentionJob)
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Locks:    locks,
		Metrics:  cronMetrics,
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"lock":        cfg.Cron.LockBackend,
		"instance":    instance.ID(),
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func newLocks(ctx context.Context, cfg *config.Config, logg *logger.Logger) (cron.LockFactory, func(), error) {
	switch cfg.Cron.LockBackend {
	case config.CronLockZooKeeper:
		conn, _, err := zk.Connect(cfg.ZooKeeper.Servers, cfg.ZooKeeper.SessionTimeout)
		if err != nil {
			return nil, nil, fmt.Errorf("connect zookeeper: %w", err)
		}
		factory := func(job string) (cron.Lock, error) {
			return cron.NewZooKeeperLock(conn, cfg.ZooKeeper.LockRoot, lockNode(cfg.App.Env, job))
		}
		return factory, conn.Close, nil
	case config.CronLockRedis, "":
		redisClient, err := redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			return nil, nil, fmt.Errorf("bootstrap redis: %w", err)
		}
		factory := func(job string) (cron.Lock, error) {
			return cron.NewRedisLock(redisClient, redisClient.LockKey(lockNode(cfg.App.Env, job)), cfg.Cron.LockTTL)
		}
		return factory, func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported cron lock backend %q", cfg.Cron.LockBackend)
	}
}

func lockNode(env, job string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf("%s-%s-%s", lockName, env, job)
}
