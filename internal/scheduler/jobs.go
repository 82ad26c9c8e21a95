package scheduler

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/etfscope/internal/domain"
	"github.com/aristath/etfscope/internal/modules/analysis"
	"github.com/aristath/etfscope/internal/modules/prices"
)

// TickerLister lists tickers already present in the price cache
type TickerLister interface {
	Tickers(ctx context.Context) ([]string, error)
}

// ReportWriter persists the tables of an analysis run
type ReportWriter interface {
	Write(res *analysis.Result) ([]string, error)
}

// RefreshPricesConfig configures RefreshPricesJob
type RefreshPricesConfig struct {
	Builder analysis.PriceBuilder
	Lister  TickerLister // optional; cached tickers are refreshed too
	Tickers []string
	Start   time.Time
	Pause   time.Duration
	Timeout time.Duration
	Log     zerolog.Logger

	// ForceRefresh downloads full histories instead of deltas
	ForceRefresh bool
}

// RefreshPricesJob brings the price cache up to date through today. Cached
// tickers only download the days they are missing.
type RefreshPricesJob struct {
	cfg RefreshPricesConfig
	now func() time.Time
	log zerolog.Logger
}

// NewRefreshPricesJob creates a new price refresh job
func NewRefreshPricesJob(cfg RefreshPricesConfig) *RefreshPricesJob {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Minute
	}
	return &RefreshPricesJob{
		cfg: cfg,
		now: time.Now,
		log: cfg.Log.With().Str("job", "refresh_prices").Logger(),
	}
}

// Name returns the job name
func (j *RefreshPricesJob) Name() string {
	return "refresh_prices"
}

// Run executes the refresh
func (j *RefreshPricesJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.cfg.Timeout)
	defer cancel()

	tickers := j.tickers(ctx)
	if len(tickers) == 0 {
		j.log.Info().Msg("No tickers to refresh")
		return nil
	}

	_, report, err := j.cfg.Builder.Build(ctx, prices.BuildRequest{
		Tickers:      tickers,
		Start:        j.cfg.Start,
		End:          domain.Day(j.now()),
		ForceRefresh: j.cfg.ForceRefresh,
		Pause:        j.cfg.Pause,
	})
	if err != nil {
		return fmt.Errorf("failed to refresh prices: %w", err)
	}

	j.log.Info().
		Int("refreshed", len(report.Loaded())).
		Int("skipped", len(report.Skipped())).
		Msg("Price cache refreshed")
	return nil
}

func (j *RefreshPricesJob) tickers(ctx context.Context) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(t string) {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t == "" {
			return
		}
		if _, ok := seen[t]; ok {
			return
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}

	for _, t := range j.cfg.Tickers {
		add(t)
	}
	if j.cfg.Lister != nil {
		cached, err := j.cfg.Lister.Tickers(ctx)
		if err != nil {
			j.log.Warn().Err(err).Msg("Failed to list cached tickers, refreshing configured tickers only")
		}
		sort.Strings(cached)
		for _, t := range cached {
			add(t)
		}
	}
	return out
}

// AnalysisJob runs the full analysis with today as the end date and writes
// the report files.
type AnalysisJob struct {
	service  *analysis.Service
	defaults analysis.Request
	reports  ReportWriter
	timeout  time.Duration
	now      func() time.Time
	log      zerolog.Logger
}

// NewAnalysisJob creates a new analysis job. reports may be nil.
func NewAnalysisJob(service *analysis.Service, defaults analysis.Request, reports ReportWriter, log zerolog.Logger) *AnalysisJob {
	return &AnalysisJob{
		service:  service,
		defaults: defaults,
		reports:  reports,
		timeout:  time.Hour,
		now:      time.Now,
		log:      log.With().Str("job", "analysis").Logger(),
	}
}

// Name returns the job name
func (j *AnalysisJob) Name() string {
	return "analysis"
}

// Run executes the analysis
func (j *AnalysisJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	req := j.defaults
	req.End = domain.Day(j.now())
	if req.End.Before(req.Start) {
		return fmt.Errorf("analysis window starts %s, after today", req.Start.Format(domain.DateLayout))
	}

	res, err := j.service.Run(ctx, req)
	if err != nil {
		return fmt.Errorf("analysis run failed: %w", err)
	}

	if j.reports != nil {
		paths, err := j.reports.Write(res)
		if err != nil {
			return fmt.Errorf("failed to write reports: %w", err)
		}
		j.log.Info().Str("run_id", res.RunID).Int("files", len(paths)).Msg("Scheduled analysis complete")
	}
	return nil
}
