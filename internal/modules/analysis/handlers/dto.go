package handlers

import (
	"math"
	"time"

	"github.com/aristath/etfscope/internal/domain"
	"github.com/aristath/etfscope/internal/modules/analysis"
	"github.com/aristath/etfscope/internal/modules/analytics"
	"github.com/aristath/etfscope/internal/modules/prices"
	"github.com/aristath/etfscope/internal/modules/simulation"
)

// num maps undefined results to JSON null. JSON has no infinity, so ±Inf
// (e.g. Sharpe over zero volatility) is null as well.
func num(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func nums(values []float64) []*float64 {
	out := make([]*float64, len(values))
	for i, v := range values {
		out[i] = num(v)
	}
	return out
}

// RunRequest overrides the configured analysis defaults. Every field is optional.
type RunRequest struct {
	Tickers       []string `json:"tickers,omitempty"`
	Start         string   `json:"start,omitempty"`
	End           string   `json:"end,omitempty"`
	RiskFreeRate  *float64 `json:"risk_free_rate,omitempty"`
	Samples       *int     `json:"samples,omitempty"`
	RollingWindow *int     `json:"rolling_window,omitempty"`
	ForceRefresh  bool     `json:"force_refresh,omitempty"`
}

// EvaluateRequest is the body of POST /api/portfolio/evaluate.
type EvaluateRequest struct {
	Weights      []float64 `json:"weights"`
	RiskFreeRate *float64  `json:"risk_free_rate,omitempty"`
}

// StatsResponse is a portfolio evaluation.
type StatsResponse struct {
	Tickers    []string  `json:"tickers"`
	Weights    []float64 `json:"weights"`
	Return     *float64  `json:"return"`
	Volatility *float64  `json:"volatility"`
	Sharpe     *float64  `json:"sharpe"`
}

// MetricsResponse is one row of the metrics table.
type MetricsResponse struct {
	Ticker               string   `json:"ticker"`
	AnnualizedReturn     *float64 `json:"annualized_return"`
	AnnualizedVolatility *float64 `json:"annualized_volatility"`
	Sharpe               *float64 `json:"sharpe"`
	MaxDrawdown          *float64 `json:"max_drawdown"`
}

func toMetrics(m *domain.MetricsTable) []MetricsResponse {
	out := make([]MetricsResponse, 0, len(m.Rows))
	for _, r := range m.Rows {
		out = append(out, MetricsResponse{
			Ticker:               r.Ticker,
			AnnualizedReturn:     num(r.AnnualizedReturn),
			AnnualizedVolatility: num(r.AnnualizedVolatility),
			Sharpe:               num(r.Sharpe),
			MaxDrawdown:          num(r.MaxDrawdown),
		})
	}
	return out
}

// FrameRow is one dated row of a table.
type FrameRow struct {
	Date   string     `json:"date"`
	Values []*float64 `json:"values"`
}

// FrameResponse is a date-indexed table.
type FrameResponse struct {
	Columns []string   `json:"columns"`
	Rows    []FrameRow `json:"rows"`
}

func toFrame(f *domain.Frame) FrameResponse {
	out := FrameResponse{Columns: f.Columns, Rows: make([]FrameRow, 0, f.Len())}
	for i, d := range f.Dates {
		out.Rows = append(out.Rows, FrameRow{Date: d.Format(domain.DateLayout), Values: nums(f.Values[i])})
	}
	return out
}

// MatrixResponse is a labeled square matrix.
type MatrixResponse struct {
	Labels []string     `json:"labels"`
	Values [][]*float64 `json:"values"`
}

func toMatrix(m *analytics.Matrix) *MatrixResponse {
	if m == nil {
		return nil
	}
	out := &MatrixResponse{Labels: m.Labels, Values: make([][]*float64, len(m.Values))}
	for i, row := range m.Values {
		out.Values[i] = nums(row)
	}
	return out
}

// PortfolioResponse is one sampled portfolio.
type PortfolioResponse struct {
	Return     *float64  `json:"return"`
	Volatility *float64  `json:"volatility"`
	Sharpe     *float64  `json:"sharpe"`
	Weights    []float64 `json:"weights"`
}

func toPortfolio(r *domain.SimulationRow) *PortfolioResponse {
	if r == nil {
		return nil
	}
	return &PortfolioResponse{
		Return:     num(r.Return),
		Volatility: num(r.Volatility),
		Sharpe:     num(r.Sharpe),
		Weights:    r.Weights,
	}
}

// SummaryResponse highlights the notable sampled portfolios.
type SummaryResponse struct {
	Trials        int                `json:"trials"`
	MaxSharpe     *PortfolioResponse `json:"max_sharpe"`
	MinVolatility *PortfolioResponse `json:"min_volatility"`
}

func toSummary(s simulation.Summary) SummaryResponse {
	return SummaryResponse{
		Trials:        s.Trials,
		MaxSharpe:     toPortfolio(s.MaxSharpe),
		MinVolatility: toPortfolio(s.MinVolatility),
	}
}

// SimulationResponse carries sampled portfolios.
type SimulationResponse struct {
	Tickers []string            `json:"tickers"`
	Total   int                 `json:"total"`
	Rows    []PortfolioResponse `json:"rows"`
	Summary SummaryResponse     `json:"summary"`
}

// TickerStatus reports how one ticker was loaded.
type TickerStatus struct {
	Ticker string `json:"ticker"`
	Origin string `json:"origin,omitempty"`
	Skip   string `json:"skip,omitempty"`
	Error  string `json:"error,omitempty"`
	Rows   int    `json:"rows"`
}

func toStatuses(r *prices.BuildReport) []TickerStatus {
	if r == nil {
		return nil
	}
	out := make([]TickerStatus, 0, len(r.Results))
	for _, res := range r.Results {
		st := TickerStatus{
			Ticker: res.Ticker,
			Origin: string(res.Origin),
			Skip:   string(res.Skip),
			Rows:   res.Series.Len(),
		}
		if res.Err != nil {
			st.Error = res.Err.Error()
		}
		out = append(out, st)
	}
	return out
}

// RunResponse summarizes an analysis run.
type RunResponse struct {
	RunID       string            `json:"run_id"`
	StartedAt   time.Time         `json:"started_at"`
	CompletedAt time.Time         `json:"completed_at"`
	Start       string            `json:"start"`
	End         string            `json:"end"`
	RiskFree    float64           `json:"risk_free_rate"`
	Tickers     []TickerStatus    `json:"tickers"`
	Columns     []string          `json:"columns"`
	PriceRows   int               `json:"price_rows"`
	ReturnRows  int               `json:"return_rows"`
	Metrics     []MetricsResponse `json:"metrics"`
	Correlation *MatrixResponse   `json:"correlation"`
	Summary     SummaryResponse   `json:"summary"`
}

func toRun(res *analysis.Result) RunResponse {
	return RunResponse{
		RunID:       res.RunID,
		StartedAt:   res.StartedAt,
		CompletedAt: res.CompletedAt,
		Start:       res.Request.Start.Format(domain.DateLayout),
		End:         res.Request.End.Format(domain.DateLayout),
		RiskFree:    res.Request.RiskFreeRate,
		Tickers:     toStatuses(res.Build),
		Columns:     res.Prices.Columns,
		PriceRows:   res.Prices.Len(),
		ReturnRows:  res.Returns.Len(),
		Metrics:     toMetrics(res.Metrics),
		Correlation: toMatrix(res.Correlation),
		Summary:     toSummary(res.Summary),
	}
}
