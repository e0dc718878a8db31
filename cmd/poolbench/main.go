// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Command poolbench drives a swarm of concurrent transactions through the
// object pool executor against an in-memory ledger.
//
// It exists to shake out contention bugs: every transaction draws its
// objects from a leased worker pool, so a correct run finishes with zero
// version conflicts and all value accounted for. Scenarios are YAML files;
// run with no flags for the built-in one.
package main

import (
	"context"
	"os"

	"github.com/maruel/subcommands"

	"go.chromium.org/luci/common/cli"
	"go.chromium.org/luci/common/flag/fixflagpos"
	"go.chromium.org/luci/common/logging/gologger"
)

func getApplication() *cli.Application {
	return &cli.Application{
		Name:  "poolbench",
		Title: "object pool executor bench",
		Context: func(ctx context.Context) context.Context {
			return gologger.StdConfig.Use(ctx)
		},
		Commands: []*subcommands.Command{
			subcommands.CmdHelp,
			cmdRun,
			cmdVersion,
		},
	}
}

func main() {
	os.Exit(subcommands.Run(getApplication(), fixflagpos.FixSubcommands(os.Args[1:])))
}
