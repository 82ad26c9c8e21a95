// Package di provides dependency injection wiring and initialization.
package di

import (
	"github.com/aristath/etfscope/internal/config"
	"github.com/aristath/etfscope/internal/database"
	"github.com/aristath/etfscope/internal/modules/analysis"
	"github.com/aristath/etfscope/internal/modules/prices"
	"github.com/aristath/etfscope/internal/reporting"
	"github.com/aristath/etfscope/internal/scheduler"
)

// Container holds all application dependencies. It is the single source of
// truth for service instances and is handed to the server and commands.
type Container struct {
	Config *config.Config

	// Storage
	CacheDB     *database.DB // only set for the sqlite cache backend
	PriceCache  prices.Cache
	CacheLister scheduler.TickerLister

	// Price acquisition
	PriceSource  prices.Source
	PriceBuilder *prices.Builder

	// Services
	AnalysisService *analysis.Service
	Reports         *reporting.Writer
}

// Close releases resources held by the container
func (c *Container) Close() error {
	if c.CacheDB != nil {
		return c.CacheDB.Close()
	}
	return nil
}

// DefaultRequest builds an analysis request from the configured defaults
func (c *Container) DefaultRequest() analysis.Request {
	a := c.Config.Analysis
	return analysis.Request{
		Tickers:       append([]string(nil), a.Tickers...),
		Start:         a.Start,
		End:           a.End,
		RiskFreeRate:  a.RiskFreeRate,
		Samples:       a.Samples,
		RollingWindow: a.RollingWindow,
		ForceRefresh:  a.ForceRefresh,
		Pause:         a.Pause,
	}
}
