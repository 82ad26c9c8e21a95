// Package handlers provides HTTP handlers for analysis runs and their results.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/etfscope/internal/domain"
	"github.com/aristath/etfscope/internal/modules/analysis"
)

const defaultSimulationLimit = 500

// Handler handles analysis HTTP requests
type Handler struct {
	service  *analysis.Service
	defaults analysis.Request
	log      zerolog.Logger
	now      func() time.Time
}

// NewHandler creates a new analysis handler. defaults fill every field a
// run request leaves out; a zero default end date means today.
func NewHandler(service *analysis.Service, defaults analysis.Request, log zerolog.Logger) *Handler {
	return &Handler{
		service:  service,
		defaults: defaults,
		log:      log.With().Str("handler", "analysis").Logger(),
		now:      time.Now,
	}
}

// HandleRun handles POST /api/analysis/run
func (h *Handler) HandleRun(w http.ResponseWriter, r *http.Request) {
	var body RunRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	req, err := h.buildRequest(body)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.service.Run(r.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrNoData) {
			status = http.StatusUnprocessableEntity
		}
		h.log.Error().Err(err).Msg("Analysis run failed")
		h.writeError(w, status, "Analysis failed: "+err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, toRun(res))
}

func (h *Handler) buildRequest(body RunRequest) (analysis.Request, error) {
	req := h.defaults
	req.Tickers = append([]string(nil), h.defaults.Tickers...)

	if len(body.Tickers) > 0 {
		req.Tickers = req.Tickers[:0]
		for _, t := range body.Tickers {
			if t = strings.ToUpper(strings.TrimSpace(t)); t != "" {
				req.Tickers = append(req.Tickers, t)
			}
		}
	}
	if body.Start != "" {
		d, err := domain.ParseDay(body.Start)
		if err != nil {
			return req, errors.New("invalid start date, expected YYYY-MM-DD")
		}
		req.Start = d
	}
	if body.End != "" {
		d, err := domain.ParseDay(body.End)
		if err != nil {
			return req, errors.New("invalid end date, expected YYYY-MM-DD")
		}
		req.End = d
	}
	if req.End.IsZero() {
		req.End = domain.Day(h.now())
	}
	if body.RiskFreeRate != nil {
		req.RiskFreeRate = *body.RiskFreeRate
	}
	if body.Samples != nil {
		req.Samples = *body.Samples
	}
	if body.RollingWindow != nil {
		req.RollingWindow = *body.RollingWindow
	}
	req.ForceRefresh = req.ForceRefresh || body.ForceRefresh

	switch {
	case len(req.Tickers) == 0:
		return req, errors.New("no tickers provided")
	case req.End.Before(req.Start):
		return req, errors.New("end date is before start date")
	case req.Samples < 0 || req.Samples > 100000:
		return req, errors.New("samples must be between 0 and 100000")
	case req.RollingWindow < 2:
		return req, errors.New("rolling_window must be at least 2")
	}
	return req, nil
}

// HandleLatest handles GET /api/analysis/latest
func (h *Handler) HandleLatest(w http.ResponseWriter, r *http.Request) {
	res, ok := h.latest(w)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, toRun(res))
}

// HandleEvaluate handles POST /api/portfolio/evaluate
func (h *Handler) HandleEvaluate(w http.ResponseWriter, r *http.Request) {
	var body EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	res, ok := h.latest(w)
	if !ok {
		return
	}
	rf := res.Request.RiskFreeRate
	if body.RiskFreeRate != nil {
		rf = *body.RiskFreeRate
	}

	st, err := h.service.Evaluate(body.Weights, rf)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrDimensionMismatch) || errors.Is(err, domain.ErrInsufficientData) {
			status = http.StatusBadRequest
		}
		h.writeError(w, status, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, StatsResponse{
		Tickers:    res.Returns.Columns,
		Weights:    body.Weights,
		Return:     num(st.Return),
		Volatility: num(st.Volatility),
		Sharpe:     num(st.Sharpe),
	})
}

// HandlePrices handles GET /api/prices
func (h *Handler) HandlePrices(w http.ResponseWriter, r *http.Request) {
	h.writeFrame(w, r, func(res *analysis.Result) *domain.Frame { return res.Prices })
}

// HandleReturns handles GET /api/returns
func (h *Handler) HandleReturns(w http.ResponseWriter, r *http.Request) {
	h.writeFrame(w, r, func(res *analysis.Result) *domain.Frame { return res.Returns })
}

// HandleRollingVolatility handles GET /api/rolling-volatility
func (h *Handler) HandleRollingVolatility(w http.ResponseWriter, r *http.Request) {
	h.writeFrame(w, r, func(res *analysis.Result) *domain.Frame { return res.RollingVolatility })
}

// HandleMetrics handles GET /api/metrics
func (h *Handler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	res, ok := h.latest(w)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, toMetrics(res.Metrics))
}

// HandleSimulation handles GET /api/simulation
func (h *Handler) HandleSimulation(w http.ResponseWriter, r *http.Request) {
	res, ok := h.latest(w)
	if !ok {
		return
	}
	if res.Simulation == nil {
		h.writeError(w, http.StatusNotFound, "Latest run has no simulation")
		return
	}

	limit := defaultSimulationLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			h.writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	if limit > len(res.Simulation.Rows) {
		limit = len(res.Simulation.Rows)
	}

	rows := make([]PortfolioResponse, 0, limit)
	for i := 0; i < limit; i++ {
		rows = append(rows, *toPortfolio(&res.Simulation.Rows[i]))
	}

	h.writeJSON(w, http.StatusOK, SimulationResponse{
		Tickers: res.Simulation.Tickers,
		Total:   len(res.Simulation.Rows),
		Rows:    rows,
		Summary: toSummary(res.Summary),
	})
}

// writeFrame serves a table of the latest run, optionally narrowed with
// ?tickers=SPY,AGG&from=YYYY-MM-DD&to=YYYY-MM-DD
func (h *Handler) writeFrame(w http.ResponseWriter, r *http.Request, pick func(*analysis.Result) *domain.Frame) {
	res, ok := h.latest(w)
	if !ok {
		return
	}

	q := r.URL.Query()
	var from, to time.Time
	var err error
	if v := q.Get("from"); v != "" {
		if from, err = domain.ParseDay(v); err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid from date, expected YYYY-MM-DD")
			return
		}
	}
	if v := q.Get("to"); v != "" {
		if to, err = domain.ParseDay(v); err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid to date, expected YYYY-MM-DD")
			return
		}
	}

	frame := pick(res).Slice(from, to)
	if v := q.Get("tickers"); v != "" {
		frame, err = selectColumns(frame, strings.Split(v, ","))
		if err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	h.writeJSON(w, http.StatusOK, toFrame(frame))
}

func selectColumns(f *domain.Frame, tickers []string) (*domain.Frame, error) {
	var idx []int
	out := &domain.Frame{Dates: f.Dates}
	for _, t := range tickers {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		j := f.ColumnIndex(t)
		if j < 0 {
			return nil, errors.New("unknown ticker " + t)
		}
		idx = append(idx, j)
		out.Columns = append(out.Columns, t)
	}
	for _, row := range f.Values {
		picked := make([]float64, len(idx))
		for k, j := range idx {
			picked[k] = row[j]
		}
		out.Values = append(out.Values, picked)
	}
	return out, nil
}

func (h *Handler) latest(w http.ResponseWriter) (*analysis.Result, bool) {
	res, ok := h.service.Latest()
	if !ok {
		h.writeError(w, http.StatusNotFound, "No analysis has been run yet")
	}
	return res, ok
}

// Helper methods

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes an error response
func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{
		"error": message,
	})
}
