package main

import (
	"context"
	"flag"

	"github.com/google/subcommands"

	"github.com/aristath/etfscope/internal/config"
)

type evaluateCmd struct {
	flags    analysisFlags
	weights  string
	riskFree float64
}

func (*evaluateCmd) Name() string     { return "evaluate" }
func (*evaluateCmd) Synopsis() string { return "compute return, volatility and Sharpe for a fixed allocation" }
func (*evaluateCmd) Usage() string {
	return `etfscope evaluate -weights 0.4,0.3,0.3 [-tickers SPY,AGG,EFA] [-start YYYY-MM-DD] [-end YYYY-MM-DD]

  Weights follow the ticker order. Tickers without data are dropped from the
  price table, so the weight count must match the tickers that loaded.
`
}

func (c *evaluateCmd) SetFlags(f *flag.FlagSet) {
	c.flags.register(f)
	f.StringVar(&c.weights, "weights", "", "Comma-separated portfolio weights")
	f.Float64Var(&c.riskFree, "risk-free", -1, "Annual risk-free rate (defaults to ETFSCOPE_RISK_FREE)")
}

func (c *evaluateCmd) override(cfg *config.Config) error {
	if err := c.flags.apply(&cfg.Analysis); err != nil {
		return err
	}
	if c.riskFree >= 0 {
		cfg.Analysis.RiskFreeRate = c.riskFree
	}
	// Only the returns table is needed
	cfg.Analysis.Samples = 0
	return nil
}

func (c *evaluateCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	weights, err := parseWeights(c.weights)
	if err != nil {
		fail("%v", err)
		return subcommands.ExitUsageError
	}

	a, err := newApp(ctx, c.override)
	if err != nil {
		fail("%v", err)
		return subcommands.ExitUsageError
	}
	defer a.Close()

	res, err := a.container.AnalysisService.Run(ctx, a.container.DefaultRequest())
	if err != nil {
		a.log.Error().Err(err).Msg("Failed to build returns")
		return subcommands.ExitFailure
	}

	stats, err := a.container.AnalysisService.Evaluate(weights, a.cfg.Analysis.RiskFreeRate)
	if err != nil {
		fail("%v (loaded tickers: %v)", err, res.Returns.Columns)
		return subcommands.ExitFailure
	}

	printMarkdown(statsMarkdown(res.Returns.Columns, weights, stats))
	return subcommands.ExitSuccess
}
