package reporting

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/etfscope/internal/domain"
	"github.com/aristath/etfscope/internal/modules/analysis"
	"github.com/aristath/etfscope/internal/modules/analytics"
)

func TestFormatFloat(t *testing.T) {
	assert.Equal(t, "", FormatFloat(math.NaN()))
	assert.Equal(t, "inf", FormatFloat(math.Inf(1)))
	assert.Equal(t, "-inf", FormatFloat(math.Inf(-1)))
	assert.Equal(t, "0.125", FormatFloat(0.125))
	assert.Equal(t, "-0.25", FormatFloat(-0.25))
}

func TestWriteFrame(t *testing.T) {
	f := &domain.Frame{
		Dates:   []time.Time{time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 8, 2, 0, 0, 0, 0, time.UTC)},
		Columns: []string{"SPY", "AGG"},
		Values:  [][]float64{{540.5, math.NaN()}, {541, 98.25}},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, f))
	assert.Equal(t, "Date,SPY,AGG\n2024-08-01,540.5,\n2024-08-02,541,98.25\n", buf.String())
}

func TestWriteMetrics(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMetrics(&buf, &domain.MetricsTable{Rows: []domain.MetricsRow{
		{Ticker: "SPY", AnnualizedReturn: 0.1, AnnualizedVolatility: 0.2, Sharpe: 0.4, MaxDrawdown: -0.05},
		{Ticker: "CASH", AnnualizedReturn: 0, AnnualizedVolatility: 0, Sharpe: math.NaN(), MaxDrawdown: 0},
	}}))

	assert.Equal(t,
		"Ticker,AnnualizedReturn,AnnualizedVolatility,Sharpe,MaxDrawdown\nSPY,0.1,0.2,0.4,-0.05\nCASH,0,0,,0\n",
		buf.String())
}

func TestWriteSimulation(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSimulation(&buf, &domain.SimulationResults{
		Tickers: []string{"SPY", "AGG"},
		Rows:    []domain.SimulationRow{{Return: 0.08, Volatility: 0.1, Sharpe: 0.6, Weights: []float64{0.75, 0.25}}},
	}))
	assert.Equal(t, "Return,Volatility,Sharpe,w_SPY,w_AGG\n0.08,0.1,0.6,0.75,0.25\n", buf.String())
}

func TestWriteMatrix(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMatrix(&buf, &analytics.Matrix{
		Labels: []string{"SPY", "AGG"},
		Values: [][]float64{{1, -0.5}, {-0.5, 1}},
	}))
	assert.Equal(t, "Ticker,SPY,AGG\nSPY,1,-0.5\nAGG,-0.5,1\n", buf.String())
}

func TestWriter_Write(t *testing.T) {
	day := time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC)
	frame := &domain.Frame{Dates: []time.Time{day}, Columns: []string{"SPY"}, Values: [][]float64{{1}}}
	res := &analysis.Result{
		RunID:             "run-1",
		Prices:            frame,
		Returns:           frame,
		RollingVolatility: frame,
		Metrics:           &domain.MetricsTable{},
	}

	dir := filepath.Join(t.TempDir(), "out")
	paths, err := NewWriter(dir, zerolog.Nop()).Write(res)
	require.NoError(t, err)
	assert.Len(t, paths, 4)

	for _, name := range []string{FilePrices, FileReturns, FileMetrics, FileRollingVolatility} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}
	for _, name := range []string{FileCorrelation, FileSimulation} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.True(t, os.IsNotExist(err), name)
	}

	res.Correlation = &analytics.Matrix{Labels: []string{"SPY"}, Values: [][]float64{{1}}}
	res.Simulation = &domain.SimulationResults{Tickers: []string{"SPY"}}
	paths, err = NewWriter(dir, zerolog.Nop()).Write(res)
	require.NoError(t, err)
	assert.Len(t, paths, 6)
}
