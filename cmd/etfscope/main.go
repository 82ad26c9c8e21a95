// Package main is the etfscope command line. It downloads and caches daily ETF
// prices, computes per-asset risk/return metrics and samples random long-only
// portfolios to map the risk/return trade-off.
//
// Configuration comes from the environment (.env supported); see internal/config.
package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(commander.CommandsCommand(), "")

	commander.Register(&analyzeCmd{}, "analysis")
	commander.Register(&evaluateCmd{}, "analysis")
	commander.Register(&refreshCmd{}, "prices")
	commander.Register(&serveCmd{}, "server")

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}
