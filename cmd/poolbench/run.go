// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package main

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/maruel/subcommands"
	"golang.org/x/sync/errgroup"

	"go.chromium.org/luci/common/cli"
	"go.chromium.org/luci/common/clock"
	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"

	"objpool/executor"
	"objpool/ledger"
	"objpool/ledger/ledgertest"
	"objpool/pool"
)

var cmdRun = &subcommands.Command{
	UsageLine: "run [-scenario FILE] [-v]",
	ShortDesc: "drive a swarm of transactions through the executor",
	LongDesc: `Drive a swarm of transactions through the executor.

Mints the scenario's coins and widgets on an in-memory ledger, then submits
transactions concurrently and reports throughput, failures, and whether all
value is still accounted for at the end.`,
	CommandRun: func() subcommands.CommandRun {
		c := &runCmd{}
		c.Flags.StringVar(&c.scenarioPath, "scenario", "", "YAML scenario file. Omit for the built-in scenario.")
		c.Flags.BoolVar(&c.verbose, "v", false, "Log per-attempt detail.")
		return c
	},
}

type runCmd struct {
	subcommands.CommandRunBase
	scenarioPath string
	verbose      bool
}

func (c *runCmd) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	ctx := cli.GetContext(a, c, env)
	if c.verbose {
		ctx = logging.SetLevel(ctx, logging.Debug)
	}
	if err := c.run(ctx); err != nil {
		logging.Errorf(ctx, "poolbench: %s", err)
		return 1
	}
	return 0
}

func (c *runCmd) run(ctx context.Context) error {
	sc, err := loadScenario(c.scenarioPath)
	if err != nil {
		return err
	}

	fake := ledgertest.New()
	minted := sc.materialize(fake)
	signer := ledgertest.Signer(sc.Owner)

	opts := executor.Options{
		Retries:        sc.Retries,
		AcquireTimeout: time.Duration(sc.AcquireTimeoutMs) * time.Millisecond,
		MaxWorkers:     sc.MaxWorkers,
		GasBudget:      sc.GasBudget,
	}
	if sc.MinBalance > 0 {
		opts.Strategy = func() pool.SplitStrategy {
			return pool.NewGasBalanceStrategy(sc.MinBalance)
		}
	}
	svc, err := executor.New(ctx, fake, signer, opts)
	if err != nil {
		return err
	}

	req := sc.request()
	logging.Infof(ctx, "submitting %d %q transactions, %d at a time", sc.Transactions, sc.Op, sc.Swarm)

	var succeeded, failed atomic.Int64
	start := clock.Now(ctx)
	eg, ectx := errgroup.WithContext(ctx)
	eg.SetLimit(sc.Swarm)
	for i := 0; i < sc.Transactions; i++ {
		eg.Go(func() error {
			// Failures are data here, not reasons to stop the swarm.
			if _, err := svc.Execute(ectx, req); err != nil {
				failed.Add(1)
				logging.Debugf(ectx, "transaction failed: %s", err)
			} else {
				succeeded.Add(1)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}
	elapsed := clock.Since(ctx, start)

	svc.Drain(ctx)
	stats := svc.Stats()
	logging.Infof(ctx, "done in %s: %d succeeded, %d failed (%.1f tx/s)",
		elapsed, succeeded.Load(), failed.Load(),
		float64(succeeded.Load())/elapsed.Seconds())
	logging.Infof(ctx, "ledger saw %d submissions, executed %d, burned %d gas",
		fake.SubmitCount(), fake.ExecutedCount(), fake.GasBurned())
	logging.Infof(ctx, "main pool holds %d objects (%d gas coins, balance %d), %d workers queued",
		stats.MainObjects, stats.MainGasCoins, stats.MainGasBalance, stats.QueuedWorkers)

	held := fake.TotalBalance(sc.Owner) + fake.TotalBalance(sc.Recipient)
	if held+fake.GasBurned() != minted {
		return errors.Reason("value not conserved: minted %d, held %d + burned %d", minted, held, fake.GasBurned()).Err()
	}
	logging.Infof(ctx, "all %d minted units accounted for", minted)
	return nil
}

// request builds the executor request for the scenario's op. Widget ops
// split worker pools that each hold one widget plus gas; create needs only
// gas.
func (sc *scenario) request() *executor.Request {
	req := &executor.Request{GasBudget: sc.GasBudget}
	switch sc.Op {
	case "create":
		req.Template = ledger.Template{
			Build: func(ctx context.Context, args []ledger.ObjectRef) (*ledger.Transaction, error) {
				return &ledger.Transaction{
					Commands: []ledger.Command{{Kind: ledger.CmdCreateObject, Type: widgetType, To: sc.Recipient}},
				}, nil
			},
		}
	case "transfer":
		req.Template = sc.widgetTemplate(ledger.CmdTransferObject)
		req.Strategy = sc.widgetStrategy()
	default:
		req.Template = sc.widgetTemplate(ledger.CmdMutateObject)
		req.Strategy = sc.widgetStrategy()
	}
	return req
}

func (sc *scenario) widgetTemplate(kind ledger.CommandKind) ledger.Template {
	return ledger.Template{
		Wants: []ledger.TypeTag{widgetType},
		Build: func(ctx context.Context, args []ledger.ObjectRef) (*ledger.Transaction, error) {
			return &ledger.Transaction{
				Inputs:   args,
				Commands: []ledger.Command{{Kind: kind, Input: 0, To: sc.Recipient}},
			}, nil
		},
	}
}

func (sc *scenario) widgetStrategy() executor.StrategyFactory {
	return func() pool.SplitStrategy {
		return pool.NewTaggedObjectStrategy(widgetType, sc.MinBalance)
	}
}
