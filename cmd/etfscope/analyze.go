package main

import (
	"context"
	"flag"

	"github.com/google/subcommands"

	"github.com/aristath/etfscope/internal/config"
)

type analyzeCmd struct {
	flags    analysisFlags
	samples  int
	seed     uint64
	method   string
	riskFree float64
	out      string
	noReport bool
}

func (*analyzeCmd) Name() string     { return "analyze" }
func (*analyzeCmd) Synopsis() string { return "build the price table, compute metrics and sample portfolios" }
func (*analyzeCmd) Usage() string {
	return `etfscope analyze [-tickers SPY,AGG] [-start YYYY-MM-DD] [-end YYYY-MM-DD] [-samples n] [-seed n] [-method uniform|dirichlet] [-o dir]

  Runs the full analysis, writes the CSV reports and prints a summary.
`
}

func (c *analyzeCmd) SetFlags(f *flag.FlagSet) {
	c.flags.register(f)
	f.IntVar(&c.samples, "samples", -1, "Number of random portfolios (defaults to ETFSCOPE_SAMPLES)")
	f.Uint64Var(&c.seed, "seed", 0, "Random seed; 0 keeps ETFSCOPE_SEED")
	f.StringVar(&c.method, "method", "", "Weight sampling method: uniform or dirichlet")
	f.Float64Var(&c.riskFree, "risk-free", -1, "Annual risk-free rate (defaults to ETFSCOPE_RISK_FREE)")
	f.StringVar(&c.out, "o", "", "Report directory (defaults to ETFSCOPE_OUTPUT_DIR)")
	f.BoolVar(&c.noReport, "no-report", false, "Skip writing CSV reports")
}

func (c *analyzeCmd) override(cfg *config.Config) error {
	if err := c.flags.apply(&cfg.Analysis); err != nil {
		return err
	}
	if c.samples >= 0 {
		cfg.Analysis.Samples = c.samples
	}
	if c.seed != 0 {
		cfg.Analysis.Seed = c.seed
	}
	if c.method != "" {
		cfg.Analysis.WeightsMethod = c.method
	}
	if c.riskFree >= 0 {
		cfg.Analysis.RiskFreeRate = c.riskFree
	}
	if c.out != "" {
		cfg.OutputDir = c.out
	}
	return nil
}

func (c *analyzeCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	a, err := newApp(ctx, c.override)
	if err != nil {
		fail("%v", err)
		return subcommands.ExitUsageError
	}
	defer a.Close()

	res, err := a.container.AnalysisService.Run(ctx, a.container.DefaultRequest())
	if err != nil {
		a.log.Error().Err(err).Msg("Analysis failed")
		return subcommands.ExitFailure
	}

	if !c.noReport {
		files, err := a.container.Reports.Write(res)
		if err != nil {
			a.log.Error().Err(err).Msg("Failed to write reports")
			return subcommands.ExitFailure
		}
		a.log.Info().Strs("files", files).Msg("Reports written")
	}

	printMarkdown(resultMarkdown(res))
	return subcommands.ExitSuccess
}
