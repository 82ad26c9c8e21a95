package main

import (
	"context"
	"flag"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/etfscope/internal/config"
	"github.com/aristath/etfscope/internal/di"
	"github.com/aristath/etfscope/internal/domain"
	"github.com/aristath/etfscope/pkg/logger"
)

// analysisFlags are the per-run overrides shared by analyze, evaluate and refresh.
// Empty or negative values keep the configured setting.
type analysisFlags struct {
	tickers string
	start   string
	end     string
	force   bool
}

func (a *analysisFlags) register(f *flag.FlagSet) {
	f.StringVar(&a.tickers, "tickers", "", "Comma-separated tickers (defaults to ETFSCOPE_TICKERS)")
	f.StringVar(&a.start, "start", "", "First day, YYYY-MM-DD (defaults to ETFSCOPE_START)")
	f.StringVar(&a.end, "end", "", "Last day, YYYY-MM-DD (defaults to today)")
	f.BoolVar(&a.force, "force", false, "Ignore the price cache and download everything again")
}

func (a *analysisFlags) apply(cfg *config.AnalysisConfig) error {
	if a.tickers != "" {
		cfg.Tickers = config.SplitTickers(a.tickers)
	}
	if a.start != "" {
		d, err := domain.ParseDay(a.start)
		if err != nil {
			return fmt.Errorf("invalid -start %q: expected YYYY-MM-DD", a.start)
		}
		cfg.Start = d
	}
	if a.end != "" {
		d, err := domain.ParseDay(a.end)
		if err != nil {
			return fmt.Errorf("invalid -end %q: expected YYYY-MM-DD", a.end)
		}
		cfg.End = d
	}
	cfg.ForceRefresh = cfg.ForceRefresh || a.force
	return nil
}

// app bundles what every command needs once configuration is loaded
type app struct {
	cfg       *config.Config
	log       zerolog.Logger
	container *di.Container
}

// loadConfig reads the environment and applies command overrides. The
// overrides run before validation so a bad flag is reported like a bad
// environment value.
func loadConfig(override func(*config.Config) error) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, logger.New(logger.Config{Level: "info", Pretty: true}), fmt.Errorf("failed to load configuration: %w", err)
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: true})
	logger.SetGlobalLogger(log)

	if override != nil {
		if err := override(cfg); err != nil {
			return nil, log, err
		}
		if err := cfg.Validate(); err != nil {
			return nil, log, err
		}
	}
	return cfg, log, nil
}

// newApp loads configuration and wires the container. Callers must Close it.
func newApp(ctx context.Context, override func(*config.Config) error) (*app, error) {
	cfg, log, err := loadConfig(override)
	if err != nil {
		return nil, err
	}

	container, err := di.Wire(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to wire dependencies: %w", err)
	}
	return &app{cfg: cfg, log: log, container: container}, nil
}

func (a *app) Close() {
	if err := a.container.Close(); err != nil {
		a.log.Warn().Err(err).Msg("Failed to close container")
	}
}

// parseWeights reads "0.4,0.3,0.3" into a slice
func parseWeights(value string) ([]float64, error) {
	var out []float64
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		w, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid weight %q", part)
		}
		out = append(out, w)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no weights provided")
	}
	return out, nil
}

func fmtDay(t time.Time) string {
	return t.Format(domain.DateLayout)
}
