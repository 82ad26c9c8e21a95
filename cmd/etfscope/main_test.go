package main

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/etfscope/internal/config"
	"github.com/aristath/etfscope/internal/domain"
	"github.com/aristath/etfscope/internal/modules/simulation"
)

func TestParseWeights(t *testing.T) {
	w, err := parseWeights(" 0.5, 0.25,0.25 ,")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 0.25, 0.25}, w)

	_, err = parseWeights("")
	assert.Error(t, err)

	_, err = parseWeights("0.5,half")
	assert.ErrorContains(t, err, "half")
}

func TestAnalysisFlags_Apply(t *testing.T) {
	cfg := config.AnalysisConfig{
		Tickers: []string{"SPY"},
		Start:   time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC),
		End:     time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC),
	}

	flags := analysisFlags{tickers: "qqq, agg", start: "2024-09-02", force: true}
	require.NoError(t, flags.apply(&cfg))
	assert.Equal(t, []string{"QQQ", "AGG"}, cfg.Tickers)
	assert.Equal(t, time.Date(2024, 9, 2, 0, 0, 0, 0, time.UTC), cfg.Start)
	assert.Equal(t, time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC), cfg.End, "unset flags keep the configured value")
	assert.True(t, cfg.ForceRefresh)

	bad := analysisFlags{end: "31/01/2025"}
	assert.Error(t, bad.apply(&cfg))
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "12.34%", pct(0.1234))
	assert.Equal(t, "n/a", pct(math.NaN()))
	assert.Equal(t, "-Inf", ratio(math.Inf(-1)))
	assert.Equal(t, "1.500", ratio(1.5))
}

func TestMetricsMarkdown(t *testing.T) {
	md := metricsMarkdown(&domain.MetricsTable{Rows: []domain.MetricsRow{
		{Ticker: "SPY", AnnualizedReturn: 0.1, AnnualizedVolatility: 0.2, Sharpe: 0.4, MaxDrawdown: -0.05},
		{Ticker: "CASH", AnnualizedReturn: 0, AnnualizedVolatility: 0, Sharpe: math.Inf(-1), MaxDrawdown: 0},
	}})

	assert.Contains(t, md, "| SPY | 10.00% | 20.00% | 0.400 | -5.00% |")
	assert.Contains(t, md, "| CASH | 0.00% | 0.00% | -Inf | 0.00% |")
}

func TestStatsMarkdown(t *testing.T) {
	md := statsMarkdown([]string{"SPY", "AGG"}, []float64{0.6, 0.4}, simulation.Stats{Return: 0.08, Volatility: 0.12, Sharpe: 0.5})

	assert.Contains(t, md, "| SPY | 60.00% |")
	assert.Contains(t, md, "| AGG | 40.00% |")
	assert.Contains(t, md, "Return 8.00%, volatility 12.00%, Sharpe 0.500")
}
