package main

import (
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/aristath/etfscope/internal/domain"
	"github.com/aristath/etfscope/internal/modules/analysis"
	"github.com/aristath/etfscope/internal/modules/simulation"
)

// printMarkdown renders md for the terminal, falling back to the raw text
func printMarkdown(md string) {
	out, err := glamour.Render(md, "auto")
	if err != nil {
		fmt.Print(md)
		return
	}
	fmt.Print(out)
}

func pct(v float64) string {
	if math.IsNaN(v) {
		return "n/a"
	}
	if math.IsInf(v, 0) {
		return fmt.Sprintf("%+.0f", v)
	}
	return fmt.Sprintf("%.2f%%", v*100)
}

func ratio(v float64) string {
	if math.IsNaN(v) {
		return "n/a"
	}
	if math.IsInf(v, 0) {
		return fmt.Sprintf("%+.0f", v)
	}
	return fmt.Sprintf("%.3f", v)
}

// resultMarkdown summarizes a run: coverage, per-asset metrics and the
// notable simulated portfolios.
func resultMarkdown(res *analysis.Result) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Analysis %s\n\n", res.RunID)
	fmt.Fprintf(&b, "Window **%s** to **%s**, %d price rows, %d return rows.\n\n",
		fmtDay(res.Request.Start), fmtDay(res.Request.End), res.Prices.Len(), res.Returns.Len())

	if skipped := res.Build.Skipped(); len(skipped) > 0 {
		b.WriteString("## Skipped tickers\n\n")
		for _, s := range skipped {
			fmt.Fprintf(&b, "- %s: %s\n", s.Ticker, s.Skip)
		}
		b.WriteString("\n")
	}

	b.WriteString(metricsMarkdown(res.Metrics))

	if res.Simulation != nil {
		fmt.Fprintf(&b, "## Monte Carlo (%d portfolios)\n\n", res.Summary.Trials)
		b.WriteString(portfolioMarkdown("Max Sharpe", res.Simulation.Tickers, res.Summary.MaxSharpe))
		b.WriteString(portfolioMarkdown("Min volatility", res.Simulation.Tickers, res.Summary.MinVolatility))
	}
	return b.String()
}

func metricsMarkdown(m *domain.MetricsTable) string {
	var b strings.Builder
	b.WriteString("## Metrics\n\n")
	b.WriteString("| Ticker | Ann. return | Ann. volatility | Sharpe | Max drawdown |\n")
	b.WriteString("|---|---:|---:|---:|---:|\n")
	for _, r := range m.Rows {
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
			r.Ticker, pct(r.AnnualizedReturn), pct(r.AnnualizedVolatility), ratio(r.Sharpe), pct(r.MaxDrawdown))
	}
	b.WriteString("\n")
	return b.String()
}

func portfolioMarkdown(title string, tickers []string, row *domain.SimulationRow) string {
	if row == nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "### %s\n\n", title)
	fmt.Fprintf(&b, "Return %s, volatility %s, Sharpe %s\n\n", pct(row.Return), pct(row.Volatility), ratio(row.Sharpe))
	b.WriteString(weightsMarkdown(tickers, row.Weights))
	return b.String()
}

func weightsMarkdown(tickers []string, weights []float64) string {
	var b strings.Builder
	b.WriteString("| Ticker | Weight |\n|---|---:|\n")
	for i, t := range tickers {
		if i < len(weights) {
			fmt.Fprintf(&b, "| %s | %s |\n", t, pct(weights[i]))
		}
	}
	b.WriteString("\n")
	return b.String()
}

func statsMarkdown(tickers []string, weights []float64, stats simulation.Stats) string {
	var b strings.Builder
	b.WriteString("# Portfolio\n\n")
	b.WriteString(weightsMarkdown(tickers, weights))
	fmt.Fprintf(&b, "Return %s, volatility %s, Sharpe %s\n", pct(stats.Return), pct(stats.Volatility), ratio(stats.Sharpe))
	return b.String()
}

func fail(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
