// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package executor schedules transactions over a set of worker pools.
//
// A Service owns one main pool holding everything the credential owns, and
// a bounded queue of worker pools split off from it. Each call to Execute
// leases a worker for the duration of one transaction, so concurrent calls
// never touch the same objects. Workers that hit an error are merged back
// into the main pool rather than reused, since their records may no longer
// match the ledger; the next split hands out fresh ones.
package executor

import (
	"context"
	"sync"
	"time"

	"go.chromium.org/luci/common/clock"
	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"
	"go.chromium.org/luci/common/retry"
	"go.chromium.org/luci/common/retry/transient"

	"objpool/ledger"
	"objpool/pool"
)

// RetriesExhausted marks an Execute call that failed on every attempt.
// The wrapped error is the last attempt's failure.
var RetriesExhausted = errors.BoolTag{Key: errors.NewTagKey("all execution attempts exhausted")}

// errNoWorker reports an attempt that timed out waiting for a worker pool.
// A split has been requested; the retry loop tries again once it lands.
var errNoWorker = errors.Reason("no worker pool available").Tag(transient.Tag).Err()

const (
	// DefaultRetries is the total number of attempts per Execute call.
	DefaultRetries = 3
	// DefaultAcquireTimeout bounds the wait for a worker pool per attempt.
	DefaultAcquireTimeout = time.Second
	// DefaultRetryDelay separates consecutive attempts.
	DefaultRetryDelay = 100 * time.Millisecond
	// DefaultMaxWorkers caps the worker queue.
	DefaultMaxWorkers = 16
	// DefaultMinBalance is the gas balance the default split strategy
	// collects into each worker pool.
	DefaultMinBalance = 300
)

// StrategyFactory builds a fresh split strategy. Strategies are stateful
// and single-use, so the service needs a new one per split.
type StrategyFactory func() pool.SplitStrategy

// Options tunes a Service. The zero value gets defaults throughout.
type Options struct {
	// Retries is the total number of attempts per Execute call.
	Retries int
	// AcquireTimeout bounds how long one attempt waits for a worker pool
	// before requesting a split and retrying.
	AcquireTimeout time.Duration
	// RetryDelay separates consecutive attempts.
	RetryDelay time.Duration
	// MaxWorkers caps the worker queue. Splits that land on a full queue
	// are merged straight back into the main pool.
	MaxWorkers int
	// GasBudget applies to requests that do not set one.
	GasBudget uint64
	// Strategy builds the split strategy for new worker pools. Defaults
	// to a gas-only strategy collecting DefaultMinBalance.
	Strategy StrategyFactory
}

func (o *Options) normalize() {
	if o.Retries <= 0 {
		o.Retries = DefaultRetries
	}
	if o.AcquireTimeout <= 0 {
		o.AcquireTimeout = DefaultAcquireTimeout
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = DefaultRetryDelay
	}
	if o.MaxWorkers <= 0 {
		o.MaxWorkers = DefaultMaxWorkers
	}
	if o.Strategy == nil {
		o.Strategy = func() pool.SplitStrategy {
			return pool.NewGasBalanceStrategy(DefaultMinBalance)
		}
	}
}

// Request describes one transaction for the service to execute.
type Request struct {
	// Template builds the transaction from resolved placeholder objects.
	Template ledger.Template
	// GasBudget caps the fee. Zero falls back to the service's budget,
	// then the pool default.
	GasBudget uint64
	// Sponsor, if set, completes the transaction with third-party gas.
	Sponsor ledger.SponsorFunc
	// Strategy overrides the service's split strategy for splits this
	// request triggers. Requests whose templates need typed objects set
	// this so their worker pools actually hold one.
	Strategy StrategyFactory
	// Retries overrides the service's attempt count for this request.
	// Callers with non-idempotent templates set it to 1.
	Retries int
}

// Service executes transactions from one credential's objects, leasing a
// disjoint worker pool per in-flight transaction. Safe for concurrent use.
type Service struct {
	client ledger.Client
	signer ledger.Signer
	opts   Options

	// guard serializes everything that moves objects in or out of main:
	// splits and merges. Worker pools outside main are owned by whoever
	// holds them, either the queue or one Execute call.
	guard sync.Mutex
	main  *pool.Pool

	workers chan *pool.Pool

	mu           sync.Mutex
	lastSplitErr error
}

// New returns a Service whose main pool is seeded with the first page of
// the credential's owned objects.
func New(ctx context.Context, client ledger.Client, signer ledger.Signer, opts Options) (*Service, error) {
	opts.normalize()
	main, err := pool.New(ctx, client, signer)
	if err != nil {
		return nil, errors.Annotate(err, "seeding main pool").Err()
	}
	logging.Infof(ctx, "executor: main pool %s seeded with %d objects (%d gas)", main.ID(), main.Size(), main.GasSize())
	return &Service{
		client:  client,
		signer:  signer,
		opts:    opts,
		main:    main,
		workers: make(chan *pool.Pool, opts.MaxWorkers),
	}, nil
}

// Execute runs one transaction, retrying with fresh worker pools until it
// succeeds or attempts run out.
//
// Each attempt leases a worker pool from the queue; if none shows up
// within the acquire timeout, a split of the main pool is requested in the
// background and the attempt counts as failed. Attempts that fail after
// leasing a worker merge it back into the main pool first. When every
// attempt has failed the returned error carries RetriesExhausted and wraps
// the last failure.
func (s *Service) Execute(ctx context.Context, req *Request) (*ledger.ExecResult, error) {
	strategy := req.Strategy
	if strategy == nil {
		strategy = s.opts.Strategy
	}
	retries := req.Retries
	if retries <= 0 {
		retries = s.opts.Retries
	}
	var res *ledger.ExecResult
	noWorker := false
	err := retry.Retry(ctx, s.attemptIterator(retries), func() error {
		noWorker = false
		r, err := s.attempt(ctx, req, strategy)
		if err != nil {
			attemptCount.Add(ctx, 1, "error")
			return err
		}
		if r == nil {
			noWorker = true
			attemptCount.Add(ctx, 1, "no_worker")
			return errNoWorker
		}
		attemptCount.Add(ctx, 1, "ok")
		res = r
		return nil
	}, retry.LogCallback(ctx, "objpool.Execute"))
	if err != nil {
		executeCount.Add(ctx, 1, false)
		if splitErr := s.takeSplitErr(); splitErr != nil && noWorker {
			err = errors.Annotate(err, "last split failed: %s", splitErr).Err()
		}
		return nil, errors.Annotate(err, "after %d attempts", retries).Tag(RetriesExhausted).Err()
	}
	executeCount.Add(ctx, 1, true)
	return res, nil
}

// attemptIterator is the retry schedule for one Execute call: every error
// retries, not just transient ones, until attempts run out.
func (s *Service) attemptIterator(retries int) retry.Factory {
	return func() retry.Iterator {
		return &retry.Limited{
			Delay:   s.opts.RetryDelay,
			Retries: retries - 1,
		}
	}
}

// attempt runs one execution attempt. A nil, nil return means no worker
// was available and a split was requested.
func (s *Service) attempt(ctx context.Context, req *Request, strategy StrategyFactory) (*ledger.ExecResult, error) {
	w := s.acquire(ctx)
	if w == nil {
		s.requestSplit(ctx, strategy)
		return nil, nil
	}
	gasBudget := req.GasBudget
	if gasBudget == 0 {
		gasBudget = s.opts.GasBudget
	}
	res, err := w.Execute(ctx, &pool.Request{
		Template:  req.Template,
		GasBudget: gasBudget,
		Sponsor:   req.Sponsor,
	})
	if err != nil {
		// The worker's records may no longer match the ledger. Fold it
		// back into main; a later split re-derives a consistent worker.
		s.retire(ctx, w, "failure")
		return nil, err
	}
	s.release(ctx, w)
	return res, nil
}

// acquire leases a worker pool, waiting up to the acquire timeout. Returns
// nil if none became available.
func (s *Service) acquire(ctx context.Context) *pool.Pool {
	select {
	case w := <-s.workers:
		acquireCount.Add(ctx, 1, true)
		return w
	default:
	}
	select {
	case w := <-s.workers:
		acquireCount.Add(ctx, 1, true)
		return w
	case <-clock.After(ctx, s.opts.AcquireTimeout):
		acquireCount.Add(ctx, 1, false)
		return nil
	}
}

// requestSplit splits the main pool in the background and queues the
// result. Split failures are recorded for Execute to report if the whole
// call fails.
func (s *Service) requestSplit(ctx context.Context, strategy StrategyFactory) {
	go func() {
		s.guard.Lock()
		defer s.guard.Unlock()
		w, err := s.main.Split(ctx, strategy())
		if err != nil {
			splitCount.Add(ctx, 1, false)
			logging.Warningf(ctx, "executor: split of main pool failed: %s", err)
			s.mu.Lock()
			s.lastSplitErr = err
			s.mu.Unlock()
			return
		}
		splitCount.Add(ctx, 1, true)
		select {
		case s.workers <- w:
		default:
			// Queue filled up while splitting.
			s.main.Merge(w)
			mergeCount.Add(ctx, 1, "overflow")
		}
	}()
}

// release returns a healthy worker to the queue, or retires it if the
// queue is full.
func (s *Service) release(ctx context.Context, w *pool.Pool) {
	select {
	case s.workers <- w:
	default:
		s.retire(ctx, w, "overflow")
	}
}

// retire merges a worker back into the main pool.
func (s *Service) retire(ctx context.Context, w *pool.Pool, reason string) {
	s.guard.Lock()
	defer s.guard.Unlock()
	id, n := w.ID(), w.Size()
	s.main.Merge(w)
	mergeCount.Add(ctx, 1, reason)
	logging.Debugf(ctx, "executor: merged worker %s back into main (%d objects, %s)", id, n, reason)
}

// Drain merges every queued worker back into the main pool. In-flight
// workers are unaffected; callers wanting a full account should drain
// after their executions return.
func (s *Service) Drain(ctx context.Context) {
	for {
		select {
		case w := <-s.workers:
			s.retire(ctx, w, "drain")
		default:
			return
		}
	}
}

func (s *Service) takeSplitErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.lastSplitErr
	s.lastSplitErr = nil
	return err
}

// Stats is a point-in-time snapshot of the service.
type Stats struct {
	QueuedWorkers  int
	MainObjects    int
	MainGasCoins   int
	MainGasBalance uint64
}

// Stats snapshots queue depth and main pool contents.
func (s *Service) Stats() Stats {
	s.guard.Lock()
	defer s.guard.Unlock()
	return Stats{
		QueuedWorkers:  len(s.workers),
		MainObjects:    s.main.Size(),
		MainGasCoins:   s.main.GasSize(),
		MainGasBalance: s.main.GasBalance(),
	}
}
