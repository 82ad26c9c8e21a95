package simulation

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"
	"gonum.org/v1/gonum/stat/distmv"

	"github.com/aristath/etfscope/internal/domain"
)

// Method selects how random weight vectors are drawn.
type Method string

const (
	// MethodUniform draws k independent uniforms and divides by their sum.
	MethodUniform Method = "uniform"
	// MethodDirichlet draws from the flat Dirichlet distribution, which is
	// uniform over the weight simplex.
	MethodDirichlet Method = "dirichlet"
)

// ParseMethod validates a weighting method name. Empty means uniform.
func ParseMethod(s string) (Method, error) {
	switch m := Method(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return MethodUniform, nil
	case MethodUniform, MethodDirichlet:
		return m, nil
	}
	return "", fmt.Errorf("unknown weighting method %q (want uniform or dirichlet)", s)
}

// DefaultSamples is the number of Monte Carlo trials when none is configured.
const DefaultSamples = 3000

const cancelCheckInterval = 256

// SamplerConfig configures a Monte Carlo run.
type SamplerConfig struct {
	RiskFreeRate float64
	Workers      int    // 0 means runtime.NumCPU()
	Seed         uint64 // 0 means seeded from the clock
	Method       Method
}

// Sampler generates random portfolios and evaluates each one.
type Sampler struct {
	cfg SamplerConfig
	log zerolog.Logger
}

// NewSampler creates a sampler, filling in defaults for unset fields.
func NewSampler(cfg SamplerConfig, log zerolog.Logger) *Sampler {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.Method == "" {
		cfg.Method = MethodUniform
	}
	return &Sampler{
		cfg: cfg,
		log: log.With().Str("component", "monte_carlo").Logger(),
	}
}

// Simulate evaluates n random weightings of the assets in returns. Trials are
// spread over a bounded worker pool, each worker drawing from its own seeded
// generator, so row order carries no meaning.
func (s *Sampler) Simulate(ctx context.Context, returns *domain.Frame, n int) (*domain.SimulationResults, error) {
	if n < 0 {
		return nil, fmt.Errorf("sample count must not be negative, got %d", n)
	}
	if _, err := ParseMethod(string(s.cfg.Method)); err != nil {
		return nil, err
	}

	model, err := NewModel(returns)
	if err != nil {
		return nil, fmt.Errorf("failed to build portfolio model: %w", err)
	}

	results := &domain.SimulationResults{
		Tickers: model.Tickers(),
		Rows:    make([]domain.SimulationRow, 0, n),
	}
	if n == 0 {
		return results, nil
	}

	workers := s.cfg.Workers
	if workers > n {
		workers = n
	}
	seed := s.cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	started := time.Now()
	p := pool.NewWithResults[[]domain.SimulationRow]().
		WithContext(ctx).
		WithCancelOnError().
		WithMaxGoroutines(workers)

	per, extra := n/workers, n%workers
	for w := 0; w < workers; w++ {
		trials := per
		if w < extra {
			trials++
		}
		rng := rand.New(rand.NewPCG(seed, uint64(w)))
		p.Go(func(ctx context.Context) ([]domain.SimulationRow, error) {
			return s.run(ctx, model, s.newDraw(rng, model.Size()), trials)
		})
	}

	chunks, err := p.Wait()
	if err != nil {
		return nil, fmt.Errorf("simulation interrupted: %w", err)
	}
	for _, rows := range chunks {
		results.Rows = append(results.Rows, rows...)
	}

	s.log.Info().
		Int("trials", len(results.Rows)).
		Int("assets", model.Size()).
		Int("workers", workers).
		Str("method", string(s.cfg.Method)).
		Dur("duration", time.Since(started)).
		Msg("Monte Carlo simulation complete")

	return results, nil
}

func (s *Sampler) run(ctx context.Context, model *Model, draw func([]float64), trials int) ([]domain.SimulationRow, error) {
	rows := make([]domain.SimulationRow, 0, trials)
	for i := 0; i < trials; i++ {
		if i%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		weights := make([]float64, model.Size())
		draw(weights)

		st, err := model.Evaluate(weights, s.cfg.RiskFreeRate)
		if err != nil {
			return nil, err
		}
		rows = append(rows, domain.SimulationRow{
			Return:     st.Return,
			Volatility: st.Volatility,
			Sharpe:     st.Sharpe,
			Weights:    weights,
		})
	}
	return rows, nil
}

// newDraw returns a function filling a slice with non-negative weights summing to one.
func (s *Sampler) newDraw(rng *rand.Rand, k int) func([]float64) {
	if s.cfg.Method == MethodDirichlet {
		alpha := make([]float64, k)
		for i := range alpha {
			alpha[i] = 1
		}
		dist := distmv.NewDirichlet(alpha, rng)
		return func(dst []float64) {
			dist.Rand(dst)
		}
	}

	return func(dst []float64) {
		var sum float64
		for i := range dst {
			v := rng.Float64()
			for v == 0 {
				v = rng.Float64()
			}
			dst[i] = v
			sum += v
		}
		for i := range dst {
			dst[i] /= sum
		}
	}
}

// Summary points at the notable rows of a simulation. Either pointer is nil
// when no row qualifies.
type Summary struct {
	Trials        int
	MaxSharpe     *domain.SimulationRow
	MinVolatility *domain.SimulationRow
}

// Summarize picks the highest-Sharpe and lowest-volatility samples. Rows with
// an undefined Sharpe ratio or volatility are ignored for the respective pick.
func Summarize(results *domain.SimulationResults) Summary {
	sum := Summary{}
	if results == nil {
		return sum
	}
	sum.Trials = len(results.Rows)

	for i := range results.Rows {
		row := &results.Rows[i]
		if !math.IsNaN(row.Sharpe) && (sum.MaxSharpe == nil || row.Sharpe > sum.MaxSharpe.Sharpe) {
			sum.MaxSharpe = row
		}
		if !math.IsNaN(row.Volatility) && (sum.MinVolatility == nil || row.Volatility < sum.MinVolatility.Volatility) {
			sum.MinVolatility = row
		}
	}
	return sum
}
