// Package analytics derives per-asset return and risk statistics from a price table.
package analytics

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/etfscope/internal/domain"
)

// DefaultRollingWindow is the trading-day window of the rolling volatility table.
const DefaultRollingWindow = 60

var annualizationFactor = math.Sqrt(domain.TradingDaysPerYear)

// Compute turns a price table into its daily returns table and per-ticker metrics.
//
// Returns are simple day-over-day ratios. A row where any column yields a
// non-finite return is dropped rather than filled, so the returns table has
// at most prices.Len()-1 rows. Max drawdown is measured on each price column
// with its missing values removed.
func Compute(prices *domain.Frame, riskFree float64) (*domain.Frame, *domain.MetricsTable, error) {
	if prices.Width() == 0 {
		return nil, nil, fmt.Errorf("cannot compute metrics: %w", domain.ErrNoData)
	}

	returns := DailyReturns(prices)

	metrics := &domain.MetricsTable{Rows: make([]domain.MetricsRow, prices.Width())}
	for j, ticker := range prices.Columns {
		annRet, annVol := annualize(returns.ColumnAt(j))
		metrics.Rows[j] = domain.MetricsRow{
			Ticker:               ticker,
			AnnualizedReturn:     annRet,
			AnnualizedVolatility: annVol,
			Sharpe:               (annRet - riskFree) / annVol,
			MaxDrawdown:          MaxDrawdown(prices.ColumnAt(j)),
		}
	}

	return returns, metrics, nil
}

// DailyReturns computes p[t]/p[t-1]-1 for every column.
func DailyReturns(prices *domain.Frame) *domain.Frame {
	out := &domain.Frame{Columns: append([]string(nil), prices.Columns...)}

	for i := 1; i < prices.Len(); i++ {
		prev, cur := prices.Values[i-1], prices.Values[i]
		row := make([]float64, len(cur))
		finite := true
		for j := range cur {
			row[j] = cur[j]/prev[j] - 1
			if math.IsNaN(row[j]) || math.IsInf(row[j], 0) {
				finite = false
				break
			}
		}
		if !finite {
			continue
		}
		out.Dates = append(out.Dates, prices.Dates[i])
		out.Values = append(out.Values, row)
	}

	return out
}

// annualize compounds the mean daily return over a year and scales the
// sample standard deviation by sqrt(252).
func annualize(returns []float64) (annRet, annVol float64) {
	if len(returns) == 0 {
		return math.NaN(), math.NaN()
	}

	mean, std := stat.MeanStdDev(returns, nil)
	annRet = math.Pow(1+mean, domain.TradingDaysPerYear) - 1

	switch {
	case len(returns) < 2:
		annVol = math.NaN()
	case constant(returns):
		annVol = 0
	default:
		annVol = std * annualizationFactor
	}
	return annRet, annVol
}

// constant reports whether every value is identical. Rounding in the mean
// would otherwise leave a tiny positive deviation.
func constant(values []float64) bool {
	for _, v := range values[1:] {
		if v != values[0] {
			return false
		}
	}
	return true
}

// MaxDrawdown returns the worst peak-to-trough decline of a price column as a
// non-positive fraction. Missing prices are skipped; an empty column yields NaN.
func MaxDrawdown(prices []float64) float64 {
	peak := math.NaN()
	worst := math.NaN()
	for _, p := range prices {
		if math.IsNaN(p) {
			continue
		}
		if math.IsNaN(peak) || p > peak {
			peak = p
		}
		dd := p/peak - 1
		if math.IsNaN(worst) || dd < worst {
			worst = dd
		}
	}
	return worst
}

// RollingVolatility computes the annualized sample standard deviation of each
// returns column over a trailing window. The first window-1 rows are NaN.
func RollingVolatility(returns *domain.Frame, window int) (*domain.Frame, error) {
	if window < 2 {
		return nil, fmt.Errorf("rolling window must be at least 2, got %d", window)
	}

	out := &domain.Frame{
		Dates:   append([]time.Time(nil), returns.Dates...),
		Columns: append([]string(nil), returns.Columns...),
		Values:  make([][]float64, returns.Len()),
	}
	for i := range out.Values {
		row := make([]float64, returns.Width())
		for j := range row {
			row[j] = math.NaN()
		}
		out.Values[i] = row
	}
	if returns.Len() < window {
		return out, nil
	}

	// talib's StdDev is the population estimator; rescale to N-1.
	sample := math.Sqrt(float64(window) / float64(window-1))
	for j := range returns.Columns {
		std := stdDev(returns.ColumnAt(j), window)
		for i := window - 1; i < len(std); i++ {
			out.Values[i][j] = std[i] * sample * annualizationFactor
		}
	}
	return out, nil
}

// Matrix is a square table labeled by ticker on both axes.
type Matrix struct {
	Labels []string
	Values [][]float64
}

// CorrelationMatrix computes the Pearson correlation of every pair of returns columns.
func CorrelationMatrix(returns *domain.Frame) (*Matrix, error) {
	if returns.Width() == 0 || returns.Len() < 2 {
		return nil, fmt.Errorf("correlation needs at least two return rows: %w", domain.ErrInsufficientData)
	}

	var corr mat.SymDense
	stat.CorrelationMatrix(&corr, ReturnsMatrix(returns), nil)

	n := returns.Width()
	out := &Matrix{
		Labels: append([]string(nil), returns.Columns...),
		Values: make([][]float64, n),
	}
	for i := 0; i < n; i++ {
		out.Values[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			out.Values[i][j] = corr.At(i, j)
		}
	}
	return out, nil
}

// ReturnsMatrix copies a returns table into a dense rows-by-tickers matrix.
// The table must have at least one row and one column.
func ReturnsMatrix(returns *domain.Frame) *mat.Dense {
	m := mat.NewDense(returns.Len(), returns.Width(), nil)
	for i, row := range returns.Values {
		m.SetRow(i, row)
	}
	return m
}
