package server

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/rs/zerolog"

	"github.com/aristath/etfscope/internal/scheduler"
)

// SystemHandlers serves cache inspection and manual job triggers
type SystemHandlers struct {
	lister      scheduler.TickerLister
	refreshJob  scheduler.Job
	analysisJob scheduler.Job
	log         zerolog.Logger

	// run executes a triggered job; jobs run in the background by default
	run func(job scheduler.Job)
}

// NewSystemHandlers creates system handlers. Jobs may be nil when the
// server runs without a scheduler.
func NewSystemHandlers(lister scheduler.TickerLister, refreshJob, analysisJob scheduler.Job, log zerolog.Logger) *SystemHandlers {
	h := &SystemHandlers{
		lister:      lister,
		refreshJob:  refreshJob,
		analysisJob: analysisJob,
		log:         log.With().Str("handler", "system").Logger(),
	}
	h.run = func(job scheduler.Job) {
		go func() {
			if err := job.Run(); err != nil {
				h.log.Error().Err(err).Str("job", job.Name()).Msg("Triggered job failed")
			}
		}()
	}
	return h
}

// HandleCacheTickers lists the tickers present in the price cache
// GET /api/system/cache/tickers
func (h *SystemHandlers) HandleCacheTickers(w http.ResponseWriter, r *http.Request) {
	if h.lister == nil {
		h.writeJSON(w, http.StatusOK, map[string]interface{}{"tickers": []string{}, "count": 0})
		return
	}

	tickers, err := h.lister.Tickers(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list cached tickers")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if tickers == nil {
		tickers = []string{}
	}
	sort.Strings(tickers)

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"tickers": tickers,
		"count":   len(tickers),
	})
}

// HandleTriggerRefresh triggers the price refresh job immediately
// POST /api/system/jobs/refresh-prices
func (h *SystemHandlers) HandleTriggerRefresh(w http.ResponseWriter, r *http.Request) {
	h.trigger(w, h.refreshJob)
}

// HandleTriggerAnalysis triggers the scheduled analysis job immediately
// POST /api/system/jobs/analysis
func (h *SystemHandlers) HandleTriggerAnalysis(w http.ResponseWriter, r *http.Request) {
	h.trigger(w, h.analysisJob)
}

func (h *SystemHandlers) trigger(w http.ResponseWriter, job scheduler.Job) {
	if job == nil {
		h.log.Warn().Msg("Job not registered")
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":  "error",
			"message": "Job not registered",
		})
		return
	}

	h.log.Info().Str("job", job.Name()).Msg("Manual job triggered")
	h.run(job)

	h.writeJSON(w, http.StatusAccepted, map[string]string{
		"status":  "triggered",
		"job":     job.Name(),
		"message": "Job started in background",
	})
}

func (h *SystemHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
