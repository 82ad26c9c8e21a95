package simulation

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/etfscope/internal/domain"
	"github.com/aristath/etfscope/internal/modules/analytics"
)

func returnsFrame() *domain.Frame {
	start := time.Date(2024, 8, 2, 0, 0, 0, 0, time.UTC)
	rows := [][]float64{
		{0.010, 0.002, -0.004},
		{-0.012, 0.001, 0.006},
		{0.007, -0.003, 0.002},
		{0.004, 0.000, -0.001},
		{-0.006, 0.004, 0.003},
		{0.011, -0.001, -0.002},
	}
	f := &domain.Frame{Columns: []string{"SPY", "AGG", "EFA"}}
	for i, row := range rows {
		f.Dates = append(f.Dates, start.AddDate(0, 0, i))
		f.Values = append(f.Values, row)
	}
	return f
}

func TestEvaluate_OneHotMatchesAsset(t *testing.T) {
	returns := returnsFrame()
	rf := 0.02

	for i, ticker := range returns.Columns {
		t.Run(ticker, func(t *testing.T) {
			weights := make([]float64, returns.Width())
			weights[i] = 1

			st, err := Evaluate(weights, returns, rf)
			require.NoError(t, err)

			col := returns.ColumnAt(i)
			mean, std := stat.MeanStdDev(col, nil)
			assert.InDelta(t, mean*252, st.Return, 1e-12)
			assert.InDelta(t, std*math.Sqrt(252), st.Volatility, 1e-12)
			assert.InDelta(t, (mean*252-rf)/(std*math.Sqrt(252)), st.Sharpe, 1e-9)
		})
	}
}

func TestEvaluate_VolatilityMatchesAnalytics(t *testing.T) {
	returns := returnsFrame()
	prices := &domain.Frame{Columns: returns.Columns}
	level := []float64{100, 100, 100}
	prices.Dates = append(prices.Dates, returns.Dates[0].AddDate(0, 0, -1))
	prices.Values = append(prices.Values, append([]float64(nil), level...))
	for i, row := range returns.Values {
		for j, r := range row {
			level[j] *= 1 + r
		}
		prices.Dates = append(prices.Dates, returns.Dates[i])
		prices.Values = append(prices.Values, append([]float64(nil), level...))
	}

	rebuilt, metrics, err := analytics.Compute(prices, 0)
	require.NoError(t, err)

	st, err := Evaluate([]float64{0, 1, 0}, rebuilt, 0)
	require.NoError(t, err)
	assert.InDelta(t, metrics.Rows[1].AnnualizedVolatility, st.Volatility, 1e-9)
}

func TestEvaluate_Diversification(t *testing.T) {
	returns := returnsFrame()
	m, err := NewModel(returns)
	require.NoError(t, err)

	spy, err := m.Evaluate([]float64{1, 0, 0}, 0)
	require.NoError(t, err)
	efa, err := m.Evaluate([]float64{0, 0, 1}, 0)
	require.NoError(t, err)
	mix, err := m.Evaluate([]float64{0.5, 0, 0.5}, 0)
	require.NoError(t, err)

	// SPY and EFA move against each other in the fixture
	assert.Less(t, mix.Volatility, 0.5*spy.Volatility+0.5*efa.Volatility)
	assert.InDelta(t, 0.5*spy.Return+0.5*efa.Return, mix.Return, 1e-12)
}

func TestEvaluate_DimensionMismatch(t *testing.T) {
	_, err := Evaluate([]float64{0.5, 0.5}, returnsFrame(), 0)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)

	m, err := NewModel(returnsFrame())
	require.NoError(t, err)
	_, err = m.Evaluate([]float64{0.25, 0.25, 0.25, 0.25}, 0)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestEvaluate_WeightsUsedAsGiven(t *testing.T) {
	m, err := NewModel(returnsFrame())
	require.NoError(t, err)

	one, err := m.Evaluate([]float64{1, 0, 0}, 0)
	require.NoError(t, err)
	two, err := m.Evaluate([]float64{2, 0, 0}, 0)
	require.NoError(t, err)

	assert.InDelta(t, 2*one.Return, two.Return, 1e-12)
	assert.InDelta(t, 2*one.Volatility, two.Volatility, 1e-12)
}

func TestNewModel_InsufficientData(t *testing.T) {
	f := returnsFrame()
	f.Dates, f.Values = f.Dates[:1], f.Values[:1]

	_, err := NewModel(f)
	assert.ErrorIs(t, err, domain.ErrInsufficientData)

	_, err = NewModel(&domain.Frame{})
	assert.ErrorIs(t, err, domain.ErrNoData)
}

func TestSimulate_RowsAreValidPortfolios(t *testing.T) {
	for _, method := range []Method{MethodUniform, MethodDirichlet} {
		t.Run(string(method), func(t *testing.T) {
			s := NewSampler(SamplerConfig{RiskFreeRate: 0.02, Workers: 4, Seed: 7, Method: method}, zerolog.Nop())

			results, err := s.Simulate(context.Background(), returnsFrame(), 500)
			require.NoError(t, err)

			assert.Equal(t, []string{"SPY", "AGG", "EFA"}, results.Tickers)
			require.Len(t, results.Rows, 500)
			for _, row := range results.Rows {
				assert.GreaterOrEqual(t, row.Volatility, 0.0)
				require.Len(t, row.Weights, 3)

				var sum float64
				for _, w := range row.Weights {
					assert.GreaterOrEqual(t, w, 0.0)
					sum += w
				}
				assert.InDelta(t, 1.0, sum, 1e-9)
				assert.InDelta(t, (row.Return-0.02)/row.Volatility, row.Sharpe, 1e-9)
			}
		})
	}
}

func TestSimulate_SeededRunsMatch(t *testing.T) {
	cfg := SamplerConfig{Workers: 3, Seed: 42}

	a, err := NewSampler(cfg, zerolog.Nop()).Simulate(context.Background(), returnsFrame(), 100)
	require.NoError(t, err)
	b, err := NewSampler(cfg, zerolog.Nop()).Simulate(context.Background(), returnsFrame(), 100)
	require.NoError(t, err)

	assert.ElementsMatch(t, a.Rows, b.Rows)
}

func TestSimulate_MoreWorkersThanTrials(t *testing.T) {
	s := NewSampler(SamplerConfig{Workers: 16, Seed: 1}, zerolog.Nop())

	results, err := s.Simulate(context.Background(), returnsFrame(), 3)
	require.NoError(t, err)
	assert.Len(t, results.Rows, 3)

	results, err = s.Simulate(context.Background(), returnsFrame(), 0)
	require.NoError(t, err)
	assert.Empty(t, results.Rows)
}

func TestSimulate_Errors(t *testing.T) {
	s := NewSampler(SamplerConfig{Seed: 1}, zerolog.Nop())

	_, err := s.Simulate(context.Background(), returnsFrame(), -1)
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Simulate(ctx, returnsFrame(), 100)
	assert.ErrorIs(t, err, context.Canceled)

	bad := NewSampler(SamplerConfig{Method: "sobol"}, zerolog.Nop())
	_, err = bad.Simulate(context.Background(), returnsFrame(), 10)
	assert.Error(t, err)
}

func TestParseMethod(t *testing.T) {
	m, err := ParseMethod("")
	require.NoError(t, err)
	assert.Equal(t, MethodUniform, m)

	m, err = ParseMethod(" Dirichlet ")
	require.NoError(t, err)
	assert.Equal(t, MethodDirichlet, m)

	_, err = ParseMethod("halton")
	assert.Error(t, err)
}

func TestSummarize(t *testing.T) {
	results := &domain.SimulationResults{
		Tickers: []string{"SPY", "AGG"},
		Rows: []domain.SimulationRow{
			{Return: 0.10, Volatility: 0.15, Sharpe: 0.53},
			{Return: 0.04, Volatility: 0.05, Sharpe: 0.40},
			{Return: 0.12, Volatility: 0.12, Sharpe: 0.83},
			{Return: 0.00, Volatility: 0.00, Sharpe: math.NaN()},
		},
	}

	sum := Summarize(results)
	assert.Equal(t, 4, sum.Trials)
	require.NotNil(t, sum.MaxSharpe)
	assert.Equal(t, 0.83, sum.MaxSharpe.Sharpe)
	require.NotNil(t, sum.MinVolatility)
	assert.Equal(t, 0.0, sum.MinVolatility.Volatility)

	empty := Summarize(&domain.SimulationResults{})
	assert.Nil(t, empty.MaxSharpe)
	assert.Nil(t, empty.MinVolatility)
}
