package di

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/etfscope/internal/config"
	"github.com/aristath/etfscope/internal/scheduler"
)

// Wire initializes all dependencies and returns a fully configured container
// Order of operations:
// 1. Initialize storage (price cache backend)
// 2. Initialize services (source, builder, analysis, reports)
func Wire(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{Config: cfg}

	if err := InitializeStorage(ctx, container, cfg, log); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	if err := InitializeServices(container, cfg, log); err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	log.Info().
		Str("source", cfg.Source.Name).
		Str("cache", cfg.Cache.Backend).
		Msg("Dependency injection wiring completed successfully")

	return container, nil
}

// JobInstances holds the background jobs built from a container
type JobInstances struct {
	RefreshPrices *scheduler.RefreshPricesJob
	Analysis      *scheduler.AnalysisJob
}

// RegisterJobs builds the jobs and, when sched is not nil, schedules the
// analysis job on the configured refresh schedule.
func RegisterJobs(container *Container, sched *scheduler.Scheduler, log zerolog.Logger) (*JobInstances, error) {
	cfg := container.Config
	jobs := &JobInstances{
		RefreshPrices: scheduler.NewRefreshPricesJob(scheduler.RefreshPricesConfig{
			Builder:      container.PriceBuilder,
			Lister:       container.CacheLister,
			Tickers:      cfg.Analysis.Tickers,
			Start:        cfg.Analysis.Start,
			Pause:        cfg.Analysis.Pause,
			ForceRefresh: cfg.Analysis.ForceRefresh,
			Log:          log,
		}),
		Analysis: scheduler.NewAnalysisJob(container.AnalysisService, container.DefaultRequest(), container.Reports, log),
	}

	if sched != nil && cfg.RefreshSchedule != "" {
		if err := sched.AddJob(cfg.RefreshSchedule, jobs.Analysis); err != nil {
			return nil, fmt.Errorf("failed to schedule %s: %w", jobs.Analysis.Name(), err)
		}
	}
	return jobs, nil
}
