package cron

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/angelmondragon/inventory-backend/pkg/logger"
	"github.com/angelmondragon/inventory-backend/pkg/metrics"
	"github.com/angelmondragon/inventory-backend/pkg/tracing"
)

const defaultInterval = 60 * time.Second

// LockFactory returns the distributed lock guarding one job.
type LockFactory func(job string) (Lock, error)

// ServiceParams configure the cron service.
type ServiceParams struct {
	Logger    *logger.Logger
	Registry  *Registry
	Locks     LockFactory
	Metrics   *metrics.CronJobMetrics
	Interval  time.Duration
	Intervals map[string]time.Duration
}

type schedule struct {
	job      Job
	lock     Lock
	interval time.Duration
}

// Service executes every registered job on its own ticker. A job never
// overlaps with itself but runs independently of the other jobs.
type Service struct {
	logg      *logger.Logger
	schedules []schedule
	metrics   *metrics.CronJobMetrics
	tracer    trace.Tracer
}

// NewService builds a cron service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Locks == nil {
		return nil, fmt.Errorf("lock factory required")
	}
	registry := params.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}

	schedules := make([]schedule, 0, len(registry.Jobs()))
	for _, job := range registry.Jobs() {
		lock, err := params.Locks(job.Name())
		if err != nil {
			return nil, fmt.Errorf("lock for %s: %w", job.Name(), err)
		}
		if lock == nil {
			return nil, fmt.Errorf("lock for %s required", job.Name())
		}
		every := interval
		if custom, ok := params.Intervals[job.Name()]; ok && custom > 0 {
			every = custom
		}
		schedules = append(schedules, schedule{job: job, lock: lock, interval: every})
	}

	return &Service{
		logg:      params.Logger,
		schedules: schedules,
		metrics:   params.Metrics,
		tracer:    tracing.Tracer("cron"),
	}, nil
}

// Run starts one loop per job and blocks until the context is canceled.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var wg sync.WaitGroup
	for _, sched := range s.schedules {
		wg.Add(1)
		go func(sched schedule) {
			defer wg.Done()
			s.loop(ctx, sched)
		}(sched)
	}
	wg.Wait()
	s.logg.Info(ctx, "cron service context canceled")
	return ctx.Err()
}

func (s *Service) loop(ctx context.Context, sched schedule) {
	jobCtx := s.logg.WithField(ctx, "job", sched.job.Name())
	if err := s.runScheduled(jobCtx, sched); err != nil {
		s.logg.Error(jobCtx, "scheduled run failed", err)
	}
	ticker := time.NewTicker(sched.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.runScheduled(jobCtx, sched); err != nil {
				s.logg.Error(jobCtx, "scheduled run failed", err)
			}
		}
	}
}

func (s *Service) runScheduled(ctx context.Context, sched schedule) error {
	locked, err := sched.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("lock acquire: %w", err)
	}
	if !locked {
		s.logg.Info(ctx, "another cron instance holds this job; skipping tick")
		return nil
	}
	defer func() {
		if relErr := sched.lock.Release(context.WithoutCancel(ctx)); relErr != nil {
			s.logg.Error(ctx, "failed to release cron lock", relErr)
		}
	}()

	s.runJob(ctx, sched.job)
	return nil
}

func (s *Service) runJob(ctx context.Context, job Job) {
	jobCtx := s.logg.WithField(ctx, "job", job.Name())
	jobCtx = s.logg.WithField(jobCtx, "event", "cron.job")
	jobCtx, span := s.tracer.Start(jobCtx, "cron."+job.Name(), trace.WithAttributes(
		attribute.String("cron.job", job.Name()),
	))
	defer span.End()

	s.logg.Info(jobCtx, "job start")
	start := time.Now()
	err := job.Run(jobCtx)
	duration := time.Since(start)
	s.observeDuration(job.Name(), duration)
	jobCtx = s.logg.WithField(jobCtx, "duration_ms", duration.Milliseconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		s.logg.Error(jobCtx, "job failed", err)
		s.recordFailure(job.Name())
		return
	}
	s.logg.Info(jobCtx, "job completed")
	s.recordSuccess(job.Name())
}

func (s *Service) observeDuration(job string, duration time.Duration) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveDuration(job, duration)
}

func (s *Service) recordSuccess(job string) {
	if s.metrics == nil {
		return
	}
	s.metrics.IncSuccess(job)
}

func (s *Service) recordFailure(job string) {
	if s.metrics == nil {
		return
	}
	s.metrics.IncFailure(job)
}
