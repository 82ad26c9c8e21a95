package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/subcommands"

	"github.com/aristath/etfscope/internal/config"
	"github.com/aristath/etfscope/internal/di"
	"github.com/aristath/etfscope/internal/scheduler"
	"github.com/aristath/etfscope/internal/server"
)

type serveCmd struct {
	port       int
	noSchedule bool
	warm       bool
}

func (*serveCmd) Name() string     { return "serve" }
func (*serveCmd) Synopsis() string { return "serve the analysis API and run the scheduled analysis" }
func (*serveCmd) Usage() string {
	return `etfscope serve [-port n] [-no-schedule] [-warm]

  Starts the HTTP API. Unless -no-schedule is given, the analysis job runs on
  ETFSCOPE_REFRESH_SCHEDULE and writes fresh reports each time.
`
}

func (c *serveCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.port, "port", 0, "Listen port (defaults to GO_PORT)")
	f.BoolVar(&c.noSchedule, "no-schedule", false, "Do not start the cron scheduler")
	f.BoolVar(&c.warm, "warm", false, "Run one analysis at startup so /api/analysis/latest is populated")
}

func (c *serveCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	endFromEnv := os.Getenv("ETFSCOPE_END") != ""

	a, err := newApp(ctx, func(cfg *config.Config) error {
		if c.port > 0 {
			cfg.Port = c.port
		}
		return nil
	})
	if err != nil {
		fail("%v", err)
		return subcommands.ExitUsageError
	}
	defer a.Close()
	log := a.log

	// A long-running server resolves "today" per request
	if !endFromEnv {
		a.cfg.Analysis.End = time.Time{}
	}

	sched := scheduler.New(log)
	if c.noSchedule {
		sched = nil
	}
	jobs, err := di.RegisterJobs(a.container, sched, log)
	if err != nil {
		log.Error().Err(err).Msg("Failed to register jobs")
		return subcommands.ExitFailure
	}

	srv := server.New(server.Config{
		Log:         log,
		Port:        a.cfg.Port,
		DevMode:     a.cfg.DevMode,
		Container:   a.container,
		RefreshJob:  jobs.RefreshPrices,
		AnalysisJob: jobs.Analysis,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()
	log.Info().Int("port", a.cfg.Port).Msg("Server started successfully")

	if sched != nil {
		sched.Start()
		for _, e := range sched.Entries() {
			log.Info().Str("job", e.Job).Str("schedule", e.Schedule).Msg("Job scheduled")
		}
	}

	if c.warm {
		go func() {
			if err := jobs.Analysis.Run(); err != nil {
				log.Warn().Err(err).Msg("Startup analysis failed")
			}
		}()
	}

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	if sched != nil {
		sched.Stop()
		log.Info().Msg("Scheduler stopped")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
		return subcommands.ExitFailure
	}

	log.Info().Msg("Server stopped")
	return subcommands.ExitSuccess
}
