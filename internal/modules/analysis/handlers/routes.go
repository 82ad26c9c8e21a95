package handlers

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// RunTimeout bounds POST /api/analysis/run, which downloads prices and samples portfolios.
const RunTimeout = 10 * time.Minute

// RegisterRoutes registers all analysis routes under /api
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			r.Get("/analysis/latest", h.HandleLatest)
			r.Post("/portfolio/evaluate", h.HandleEvaluate)
			r.Get("/prices", h.HandlePrices)
			r.Get("/returns", h.HandleReturns)
			r.Get("/rolling-volatility", h.HandleRollingVolatility)
			r.Get("/metrics", h.HandleMetrics)
			r.Get("/simulation", h.HandleSimulation)
		})

		r.With(middleware.Timeout(RunTimeout)).Post("/analysis/run", h.HandleRun)
	})
}
