// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package executor

import (
	"context"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	. "go.chromium.org/luci/common/testing/assertions"

	"golang.org/x/sync/errgroup"

	"go.chromium.org/luci/common/clock"
	"go.chromium.org/luci/common/clock/testclock"
	"go.chromium.org/luci/common/tsmon"

	"objpool/ledger"
	"objpool/ledger/ledgertest"
	"objpool/pool"
)

var widgetTag = ledger.MustParseTypeTag("0x7::bench::Widget")

// fastOpts keeps waits short enough for tests while leaving the acquire
// window wide enough for background splits to land.
func fastOpts() Options {
	return Options{
		Retries:        3,
		AcquireTimeout: 50 * time.Millisecond,
		RetryDelay:     time.Millisecond,
		MaxWorkers:     4,
		Strategy: func() pool.SplitStrategy {
			return pool.NewGasBalanceStrategy(150)
		},
	}
}

func createTemplate(to string) ledger.Template {
	return ledger.Template{
		Build: func(ctx context.Context, args []ledger.ObjectRef) (*ledger.Transaction, error) {
			return &ledger.Transaction{
				Commands: []ledger.Command{{Kind: ledger.CmdCreateObject, Type: widgetTag, To: to}},
			}, nil
		},
	}
}

func mutateTemplate() ledger.Template {
	return ledger.Template{
		Wants: []ledger.TypeTag{widgetTag},
		Build: func(ctx context.Context, args []ledger.ObjectRef) (*ledger.Transaction, error) {
			return &ledger.Transaction{
				Inputs:   args,
				Commands: []ledger.Command{{Kind: ledger.CmdMutateObject, Input: 0}},
			}, nil
		},
	}
}

func TestExecuteSplitsOnDemand(t *testing.T) {
	t.Parallel()
	Convey("With a service over five coins and an empty queue", t, func() {
		ctx, _ := tsmon.WithDummyInMemory(context.Background())
		f := ledgertest.New()
		f.MintGasCoins("0xa", 100, 100, 100, 100, 100)
		svc, err := New(ctx, f, ledgertest.Signer("0xa"), fastOpts())
		So(err, ShouldBeNil)

		Convey("the first call performs exactly one split and succeeds", func() {
			res, err := svc.Execute(ctx, &Request{Template: createTemplate("0xb")})
			So(err, ShouldBeNil)
			So(res.Effects.Status.Success, ShouldBeTrue)
			So(f.SubmitCount(), ShouldEqual, 1)
			So(splitCount.Get(ctx, true), ShouldEqual, 1)
			So(executeCount.Get(ctx, true), ShouldEqual, 1)
			So(acquireCount.Get(ctx, false), ShouldEqual, 1)
			So(acquireCount.Get(ctx, true), ShouldEqual, 1)
			So(svc.Stats().QueuedWorkers, ShouldEqual, 1)

			Convey("the second call reuses the queued worker", func() {
				_, err := svc.Execute(ctx, &Request{Template: createTemplate("0xb")})
				So(err, ShouldBeNil)
				So(f.SubmitCount(), ShouldEqual, 2)
				So(splitCount.Get(ctx, true), ShouldEqual, 1)

				Convey("and Drain folds the worker back into main", func() {
					svc.Drain(ctx)
					stats := svc.Stats()
					So(stats.QueuedWorkers, ShouldEqual, 0)
					So(stats.MainObjects, ShouldEqual, 4)
					So(stats.MainGasBalance, ShouldEqual, uint64(480))
				})
			})
		})
	})
}

func TestExecuteMergesFailedWorker(t *testing.T) {
	t.Parallel()
	Convey("With a single-attempt service and a pre-queued worker", t, func() {
		ctx, _ := tsmon.WithDummyInMemory(context.Background())
		f := ledgertest.New()
		f.MintGasCoins("0xa", 100, 100, 100, 100, 100)
		opts := fastOpts()
		opts.Retries = 1
		svc, err := New(ctx, f, ledgertest.Signer("0xa"), opts)
		So(err, ShouldBeNil)

		w, err := svc.main.Split(ctx, pool.NewGasBalanceStrategy(150))
		So(err, ShouldBeNil)
		svc.workers <- w

		Convey("a reported execution failure retires the worker", func() {
			f.FailExecutions(1)
			res, err := svc.Execute(ctx, &Request{Template: createTemplate("0xb")})
			So(res, ShouldBeNil)
			So(err, ShouldNotBeNil)
			So(RetriesExhausted.In(err), ShouldBeTrue)
			So(pool.ExecutionFailed.In(err), ShouldBeTrue)

			// The worker is out of the queue and its coins, minus the fee,
			// are back in the main pool.
			stats := svc.Stats()
			So(stats.QueuedWorkers, ShouldEqual, 0)
			So(stats.MainObjects, ShouldEqual, 4)
			So(stats.MainGasBalance, ShouldEqual, uint64(490))
			So(mergeCount.Get(ctx, "failure"), ShouldEqual, 1)
			So(f.SubmitCount(), ShouldEqual, 1)
		})
	})
}

func TestExecuteRecoversAfterFailure(t *testing.T) {
	t.Parallel()
	Convey("With one injected execution failure and retries to spare", t, func() {
		ctx, _ := tsmon.WithDummyInMemory(context.Background())
		f := ledgertest.New()
		f.MintGasCoins("0xa", 100, 100, 100, 100, 100, 100)
		svc, err := New(ctx, f, ledgertest.Signer("0xa"), fastOpts())
		So(err, ShouldBeNil)

		w, err := svc.main.Split(ctx, pool.NewGasBalanceStrategy(150))
		So(err, ShouldBeNil)
		svc.workers <- w

		f.FailExecutions(1)
		res, err := svc.Execute(ctx, &Request{Template: createTemplate("0xb")})
		So(err, ShouldBeNil)
		So(res.Effects.Status.Success, ShouldBeTrue)

		// Attempt one failed and merged its worker back; a later attempt
		// split a fresh worker and went through.
		So(mergeCount.Get(ctx, "failure"), ShouldEqual, 1)
		So(f.SubmitCount(), ShouldEqual, 2)
		So(f.ExecutedCount(), ShouldEqual, 2)
	})
}

func TestRetriesExhausted(t *testing.T) {
	t.Parallel()
	Convey("With every execution failing", t, func() {
		ctx, _ := tsmon.WithDummyInMemory(context.Background())
		f := ledgertest.New()
		f.MintGasCoins("0xa", 100, 100, 100, 100, 100, 100)
		f.FailExecutions(100)
		svc, err := New(ctx, f, ledgertest.Signer("0xa"), fastOpts())
		So(err, ShouldBeNil)

		res, err := svc.Execute(ctx, &Request{Template: createTemplate("0xb")})
		So(res, ShouldBeNil)
		So(err, ShouldNotBeNil)
		So(RetriesExhausted.In(err), ShouldBeTrue)
		So(err, ShouldErrLike, "after 3 attempts")

		attempts := attemptCount.Get(ctx, "ok") +
			attemptCount.Get(ctx, "error") +
			attemptCount.Get(ctx, "no_worker")
		So(attempts, ShouldEqual, 3)
		So(executeCount.Get(ctx, false), ShouldEqual, 1)
	})
}

func TestLastCauseAttached(t *testing.T) {
	t.Parallel()
	Convey("The final error wraps the last attempt's failure", t, func() {
		ctx, _ := tsmon.WithDummyInMemory(context.Background())
		f := ledgertest.New()
		f.MintGasCoins("0xa", 100, 100, 100, 100, 100)
		f.FailExecutions(100)
		opts := fastOpts()
		opts.Retries = 2
		svc, err := New(ctx, f, ledgertest.Signer("0xa"), opts)
		So(err, ShouldBeNil)

		// Attempt one times out and requests a split; attempt two leases
		// the split worker and hits the injected failure.
		_, err = svc.Execute(ctx, &Request{Template: createTemplate("0xb")})
		So(err, ShouldNotBeNil)
		So(RetriesExhausted.In(err), ShouldBeTrue)
		So(pool.ExecutionFailed.In(err), ShouldBeTrue)
		So(err, ShouldErrLike, "after 2 attempts")
		So(f.SubmitCount(), ShouldEqual, 1)
	})
}

func TestAcquireTimeout(t *testing.T) {
	t.Parallel()
	Convey("With a test clock that fires every timer as it is set", t, func() {
		ctx, _ := tsmon.WithDummyInMemory(context.Background())
		ctx, tc := testclock.UseTime(ctx, testclock.TestRecentTimeUTC)
		tc.SetTimerCallback(func(amt time.Duration, timer clock.Timer) {
			tc.Add(amt)
		})

		f := ledgertest.New()
		f.MintGasCoins("0xa", 100, 100)
		svc, err := New(ctx, f, ledgertest.Signer("0xa"), fastOpts())
		So(err, ShouldBeNil)

		Convey("acquire gives up after exactly the configured timeout", func() {
			start := clock.Now(ctx)
			So(svc.acquire(ctx), ShouldBeNil)
			So(clock.Now(ctx).Sub(start), ShouldEqual, fastOpts().AcquireTimeout)
			So(acquireCount.Get(ctx, false), ShouldEqual, 1)
		})

		Convey("a queued worker is handed out without consulting the clock", func() {
			w, err := svc.main.Split(ctx, pool.NewGasBalanceStrategy(150))
			So(err, ShouldBeNil)
			svc.workers <- w

			start := clock.Now(ctx)
			So(svc.acquire(ctx), ShouldEqual, w)
			So(clock.Now(ctx), ShouldResemble, start)
			So(acquireCount.Get(ctx, true), ShouldEqual, 1)
		})
	})
}

func TestPerRequestRetries(t *testing.T) {
	t.Parallel()
	Convey("A request can cap its own attempts", t, func() {
		ctx, _ := tsmon.WithDummyInMemory(context.Background())
		f := ledgertest.New()
		f.MintGasCoins("0xa", 100, 100, 100)
		opts := fastOpts()
		opts.AcquireTimeout = 5 * time.Millisecond
		svc, err := New(ctx, f, ledgertest.Signer("0xa"), opts)
		So(err, ShouldBeNil)

		// The queue starts empty, so a single-attempt request burns its
		// only try on the acquire timeout.
		_, err = svc.Execute(ctx, &Request{Template: createTemplate("0xb"), Retries: 1})
		So(err, ShouldNotBeNil)
		So(RetriesExhausted.In(err), ShouldBeTrue)
		So(err, ShouldErrLike, "after 1 attempts")
		So(f.SubmitCount(), ShouldEqual, 0)
		So(attemptCount.Get(ctx, "no_worker"), ShouldEqual, 1)
	})
}

func TestSplitFailureSurfaced(t *testing.T) {
	t.Parallel()
	Convey("When the owner has nothing to split", t, func() {
		ctx, _ := tsmon.WithDummyInMemory(context.Background())
		f := ledgertest.New()
		opts := fastOpts()
		opts.AcquireTimeout = 10 * time.Millisecond
		svc, err := New(ctx, f, ledgertest.Signer("0xa"), opts)
		So(err, ShouldBeNil)

		_, err = svc.Execute(ctx, &Request{Template: createTemplate("0xb")})
		So(err, ShouldNotBeNil)
		So(RetriesExhausted.In(err), ShouldBeTrue)
		So(err, ShouldErrLike, "last split failed")
		So(err, ShouldErrLike, "nothing to split")
	})
}

func TestStrategyOverride(t *testing.T) {
	t.Parallel()
	Convey("A request needing a widget brings its own strategy", t, func() {
		ctx, _ := tsmon.WithDummyInMemory(context.Background())
		f := ledgertest.New()
		f.MintGasCoins("0xa", 100, 100, 100)
		w1 := f.MintObject("0xa", widgetTag)
		w2 := f.MintObject("0xa", widgetTag)
		svc, err := New(ctx, f, ledgertest.Signer("0xa"), fastOpts())
		So(err, ShouldBeNil)

		res, err := svc.Execute(ctx, &Request{
			Template: mutateTemplate(),
			Strategy: func() pool.SplitStrategy {
				return pool.NewTaggedObjectStrategy(widgetTag, 150)
			},
		})
		So(err, ShouldBeNil)
		So(res.Effects.Status.Success, ShouldBeTrue)

		// Exactly one of the two widgets was leased out and mutated.
		mutated := 0
		for _, id := range []ledger.ObjectID{w1, w2} {
			rec, _, ok := f.Object(id)
			So(ok, ShouldBeTrue)
			if rec.Version > 1 {
				mutated++
			}
		}
		So(mutated, ShouldEqual, 1)
	})
}

func TestConcurrentExecutes(t *testing.T) {
	t.Parallel()
	Convey("Eight concurrent calls over twenty coins all succeed", t, func() {
		ctx, _ := tsmon.WithDummyInMemory(context.Background())
		f := ledgertest.New()
		f.PageSize = 10
		balances := make([]uint64, 20)
		for i := range balances {
			balances[i] = 100
		}
		f.MintGasCoins("0xa", balances...)

		opts := fastOpts()
		opts.Retries = 5
		opts.AcquireTimeout = 200 * time.Millisecond
		svc, err := New(ctx, f, ledgertest.Signer("0xa"), opts)
		So(err, ShouldBeNil)

		req := &Request{Template: createTemplate("0xb")}
		errs := make([]error, 8)
		var eg errgroup.Group
		for i := 0; i < len(errs); i++ {
			i := i
			eg.Go(func() error {
				_, err := svc.Execute(ctx, req)
				errs[i] = err
				return nil
			})
		}
		So(eg.Wait(), ShouldBeNil)

		for _, err := range errs {
			So(err, ShouldBeNil)
		}
		So(f.ExecutedCount(), ShouldEqual, 8)

		// No value leaked: what the owner still holds plus burned fees is
		// exactly what was minted.
		So(f.TotalBalance("0xa")+f.GasBurned(), ShouldEqual, uint64(2000))
	})
}
