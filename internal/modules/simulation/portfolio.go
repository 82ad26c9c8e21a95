// Package simulation evaluates weighted portfolios and samples random weightings.
package simulation

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/etfscope/internal/domain"
	"github.com/aristath/etfscope/internal/modules/analytics"
)

// Stats are the annualized figures of one weighted portfolio.
type Stats struct {
	Return     float64
	Volatility float64
	Sharpe     float64
}

// Model holds the per-asset mean daily returns and the annualized covariance
// matrix of a returns table, so repeated evaluations share one computation.
type Model struct {
	tickers []string
	means   []float64
	cov     *mat.SymDense
}

// NewModel estimates means and sample covariance from a returns table.
func NewModel(returns *domain.Frame) (*Model, error) {
	if returns.Width() == 0 {
		return nil, fmt.Errorf("cannot build portfolio model: %w", domain.ErrNoData)
	}
	if returns.Len() < 2 {
		return nil, fmt.Errorf("covariance needs at least two return rows, got %d: %w", returns.Len(), domain.ErrInsufficientData)
	}

	m := &Model{
		tickers: append([]string(nil), returns.Columns...),
		means:   make([]float64, returns.Width()),
		cov:     &mat.SymDense{},
	}
	for j := range m.means {
		m.means[j] = stat.Mean(returns.ColumnAt(j), nil)
	}

	stat.CovarianceMatrix(m.cov, analytics.ReturnsMatrix(returns), nil)
	m.cov.ScaleSym(domain.TradingDaysPerYear, m.cov)

	return m, nil
}

// Tickers returns the asset order weights are matched against.
func (m *Model) Tickers() []string {
	return append([]string(nil), m.tickers...)
}

// Size returns the number of assets.
func (m *Model) Size() int {
	return len(m.tickers)
}

// Evaluate computes return, volatility and Sharpe ratio for the given weights.
// Weights are used as given; they are not normalized.
func (m *Model) Evaluate(weights []float64, riskFree float64) (Stats, error) {
	if len(weights) != len(m.tickers) {
		return Stats{}, fmt.Errorf("got %d weights for %d assets: %w", len(weights), len(m.tickers), domain.ErrDimensionMismatch)
	}

	var ret float64
	for i, w := range weights {
		ret += m.means[i] * w
	}
	ret *= domain.TradingDaysPerYear

	w := mat.NewVecDense(len(weights), append([]float64(nil), weights...))
	variance := mat.Inner(w, m.cov, w)
	if variance < 0 {
		// Rounding on a positive semi-definite form
		variance = 0
	}
	vol := math.Sqrt(variance)

	return Stats{
		Return:     ret,
		Volatility: vol,
		Sharpe:     (ret - riskFree) / vol,
	}, nil
}

// Evaluate is the one-shot form of NewModel followed by Model.Evaluate.
func Evaluate(weights []float64, returns *domain.Frame, riskFree float64) (Stats, error) {
	if len(weights) != returns.Width() {
		return Stats{}, fmt.Errorf("got %d weights for %d assets: %w", len(weights), returns.Width(), domain.ErrDimensionMismatch)
	}

	m, err := NewModel(returns)
	if err != nil {
		return Stats{}, err
	}
	return m.Evaluate(weights, riskFree)
}
