// Package analysis runs the full pipeline: price table, metrics, correlation,
// rolling volatility and Monte Carlo sampling.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/etfscope/internal/domain"
	"github.com/aristath/etfscope/internal/modules/analytics"
	"github.com/aristath/etfscope/internal/modules/prices"
	"github.com/aristath/etfscope/internal/modules/simulation"
)

// PriceBuilder produces the aligned price table for a request.
type PriceBuilder interface {
	Build(ctx context.Context, req prices.BuildRequest) (*domain.Frame, *prices.BuildReport, error)
}

// Request describes one analysis run.
type Request struct {
	Tickers       []string
	Start         time.Time
	End           time.Time
	RiskFreeRate  float64
	Samples       int
	RollingWindow int
	ForceRefresh  bool
	Pause         time.Duration
}

// Result is everything one run produced. It is never mutated after Run returns.
type Result struct {
	RunID       string
	Request     Request
	StartedAt   time.Time
	CompletedAt time.Time

	Build             *prices.BuildReport
	Prices            *domain.Frame
	Returns           *domain.Frame
	Metrics           *domain.MetricsTable
	Correlation       *analytics.Matrix // nil with fewer than two return rows
	RollingVolatility *domain.Frame
	Simulation        *domain.SimulationResults // nil when sampling was skipped
	Summary           simulation.Summary
}

// Service orchestrates analysis runs and keeps the most recent result.
type Service struct {
	builder  PriceBuilder
	sampling simulation.SamplerConfig
	log      zerolog.Logger
	now      func() time.Time

	mu     sync.RWMutex
	latest *Result
}

// NewService creates an analysis service. The sampler configuration supplies
// worker count, seed and weighting method; the risk-free rate comes from each request.
func NewService(builder PriceBuilder, sampling simulation.SamplerConfig, log zerolog.Logger) *Service {
	return &Service{
		builder:  builder,
		sampling: sampling,
		log:      log.With().Str("service", "analysis").Logger(),
		now:      time.Now,
	}
}

// Run executes the pipeline and stores the result as the latest one.
func (s *Service) Run(ctx context.Context, req Request) (*Result, error) {
	if req.RollingWindow == 0 {
		req.RollingWindow = analytics.DefaultRollingWindow
	}
	if req.Samples < 0 {
		return nil, fmt.Errorf("sample count must not be negative, got %d", req.Samples)
	}

	res := &Result{
		RunID:     uuid.New().String(),
		Request:   req,
		StartedAt: s.now(),
	}
	log := s.log.With().Str("run_id", res.RunID).Logger()
	log.Info().
		Strs("tickers", req.Tickers).
		Str("start", req.Start.Format(domain.DateLayout)).
		Str("end", req.End.Format(domain.DateLayout)).
		Int("samples", req.Samples).
		Msg("Starting analysis run")

	priceTable, report, err := s.builder.Build(ctx, prices.BuildRequest{
		Tickers:      req.Tickers,
		Start:        req.Start,
		End:          req.End,
		ForceRefresh: req.ForceRefresh,
		Pause:        req.Pause,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build price table: %w", err)
	}
	res.Build = report
	res.Prices = priceTable
	for _, skipped := range report.Skipped() {
		log.Warn().Err(skipped.Err).Str("ticker", skipped.Ticker).Str("reason", string(skipped.Skip)).Msg("Ticker skipped")
	}

	res.Returns, res.Metrics, err = analytics.Compute(priceTable, req.RiskFreeRate)
	if err != nil {
		return nil, fmt.Errorf("failed to compute metrics: %w", err)
	}

	res.RollingVolatility, err = analytics.RollingVolatility(res.Returns, req.RollingWindow)
	if err != nil {
		return nil, fmt.Errorf("failed to compute rolling volatility: %w", err)
	}

	res.Correlation, err = analytics.CorrelationMatrix(res.Returns)
	if err != nil {
		if !errors.Is(err, domain.ErrInsufficientData) {
			return nil, fmt.Errorf("failed to compute correlation: %w", err)
		}
		log.Warn().Err(err).Msg("Skipping correlation matrix")
	}

	if req.Samples > 0 {
		cfg := s.sampling
		cfg.RiskFreeRate = req.RiskFreeRate
		res.Simulation, err = simulation.NewSampler(cfg, log).Simulate(ctx, res.Returns, req.Samples)
		if err != nil {
			if !errors.Is(err, domain.ErrInsufficientData) {
				return nil, fmt.Errorf("failed to run simulation: %w", err)
			}
			log.Warn().Err(err).Msg("Skipping Monte Carlo simulation")
		}
		res.Summary = simulation.Summarize(res.Simulation)
	}

	res.CompletedAt = s.now()
	s.mu.Lock()
	s.latest = res
	s.mu.Unlock()

	log.Info().
		Int("tickers", priceTable.Width()).
		Int("price_rows", priceTable.Len()).
		Int("return_rows", res.Returns.Len()).
		Dur("duration", res.CompletedAt.Sub(res.StartedAt)).
		Msg("Analysis run complete")

	return res, nil
}

// Latest returns the most recent successful run.
func (s *Service) Latest() (*Result, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, s.latest != nil
}

// Evaluate computes portfolio statistics against the latest run's returns.
// Weights follow the column order of the latest price table.
func (s *Service) Evaluate(weights []float64, riskFree float64) (simulation.Stats, error) {
	latest, ok := s.Latest()
	if !ok {
		return simulation.Stats{}, fmt.Errorf("no analysis has been run yet: %w", domain.ErrNoData)
	}
	return simulation.Evaluate(weights, latest.Returns, riskFree)
}
