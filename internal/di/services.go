package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/etfscope/internal/clients/alphavantage"
	"github.com/aristath/etfscope/internal/clients/yahoo"
	"github.com/aristath/etfscope/internal/config"
	"github.com/aristath/etfscope/internal/modules/analysis"
	"github.com/aristath/etfscope/internal/modules/prices"
	"github.com/aristath/etfscope/internal/modules/simulation"
	"github.com/aristath/etfscope/internal/reporting"
)

// InitializeServices creates the price source, builder and analysis service.
// Storage must be initialized first.
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container.PriceCache == nil {
		return fmt.Errorf("price cache not initialized")
	}

	source, err := newSource(cfg.Source, log)
	if err != nil {
		return err
	}
	container.PriceSource = source

	container.PriceBuilder = prices.NewBuilder(source, container.PriceCache, log)

	method, err := simulation.ParseMethod(cfg.Analysis.WeightsMethod)
	if err != nil {
		return err
	}
	container.AnalysisService = analysis.NewService(container.PriceBuilder, simulation.SamplerConfig{
		Workers: cfg.Analysis.Workers,
		Seed:    cfg.Analysis.Seed,
		Method:  method,
	}, log)

	container.Reports = reporting.NewWriter(cfg.OutputDir, log)

	return nil
}

func newSource(cfg config.SourceConfig, log zerolog.Logger) (prices.Source, error) {
	switch cfg.Name {
	case config.SourceYahoo:
		return yahoo.NewClient(log), nil
	case config.SourceAlphaVantage:
		if cfg.AlphaVantageAPIKey == "" {
			return nil, fmt.Errorf("alphavantage source requires an API key")
		}
		return alphavantage.NewClient(cfg.AlphaVantageAPIKey, log), nil
	}
	return nil, fmt.Errorf("unknown price source %q", cfg.Name)
}
