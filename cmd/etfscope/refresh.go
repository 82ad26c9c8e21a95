package main

import (
	"context"
	"flag"

	"github.com/google/subcommands"

	"github.com/aristath/etfscope/internal/config"
	"github.com/aristath/etfscope/internal/di"
	"github.com/aristath/etfscope/internal/scheduler"
)

type refreshCmd struct {
	flags analysisFlags
}

func (*refreshCmd) Name() string     { return "refresh" }
func (*refreshCmd) Synopsis() string { return "bring the price cache up to date through today" }
func (*refreshCmd) Usage() string {
	return `etfscope refresh [-tickers SPY,AGG] [-start YYYY-MM-DD] [-force]

  Refreshes the configured tickers plus every ticker already in the cache.
`
}

func (c *refreshCmd) SetFlags(f *flag.FlagSet) {
	c.flags.register(f)
}

func (c *refreshCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	a, err := newApp(ctx, func(cfg *config.Config) error {
		return c.flags.apply(&cfg.Analysis)
	})
	if err != nil {
		fail("%v", err)
		return subcommands.ExitUsageError
	}
	defer a.Close()

	jobs, err := di.RegisterJobs(a.container, nil, a.log)
	if err != nil {
		a.log.Error().Err(err).Msg("Failed to create jobs")
		return subcommands.ExitFailure
	}

	if err := scheduler.New(a.log).RunNow(jobs.RefreshPrices); err != nil {
		a.log.Error().Err(err).Msg("Price refresh failed")
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
