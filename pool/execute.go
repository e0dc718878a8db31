// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package pool

import (
	"context"

	"go.chromium.org/luci/common/data/stringset"
	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"
	"go.chromium.org/luci/common/retry/transient"

	"objpool/ledger"
)

// DefaultGasBudget is attached to transactions whose request does not name
// a budget.
const DefaultGasBudget = 50

// Request describes one transaction to run out of a pool.
type Request struct {
	// Template builds the transaction from resolved placeholder objects.
	Template ledger.Template

	// GasBudget caps the fee. Zero means DefaultGasBudget.
	GasBudget uint64

	// Sponsor, if set, completes the transaction with third-party gas.
	// Sponsored transactions skip fee attachment and the dry run; the
	// sponsor vouches for the transaction it returns.
	Sponsor ledger.SponsorFunc
}

// Execute resolves the request's placeholders from this pool, builds and
// checks the transaction, and drives it through submission and effects
// reconciliation.
//
// Every transaction input must be held by this pool or confirmed immutable
// on the ledger; anything else risks a version conflict with a concurrent
// transaction and fails with NotOwned before submission. On success, and on
// execution failure (gas is charged either way), the pool's records are
// updated from the reported effects before Execute returns. A transaction
// the ledger accepted but reported as failed returns its result together
// with an ExecutionFailed error, so callers keep the digest and effects.
func (p *Pool) Execute(ctx context.Context, req *Request) (*ledger.ExecResult, error) {
	args, err := p.resolvePlaceholders(req.Template.Wants)
	if err != nil {
		return nil, err
	}
	tx, err := req.Template.Build(ctx, args)
	if err != nil {
		return nil, errors.Annotate(err, "building transaction").Err()
	}
	tx.Sender = p.signer.Address()
	if err := p.checkOwnership(ctx, tx); err != nil {
		return nil, err
	}

	if req.Sponsor != nil {
		tx, err = req.Sponsor(ctx, tx)
		if err != nil {
			return nil, errors.Annotate(err, "sponsoring transaction").Err()
		}
		return p.submit(ctx, tx)
	}

	tx.GasBudget = req.GasBudget
	if tx.GasBudget == 0 {
		tx.GasBudget = DefaultGasBudget
	}
	// A coin referenced as a transaction input cannot double as gas
	// payment; the ledger rejects transactions naming one object twice.
	inputs := stringset.New(len(tx.Inputs))
	for _, ref := range tx.Inputs {
		inputs.Add(string(ref.ID))
	}
	tx.GasPayment = tx.GasPayment[:0]
	for _, rec := range p.GasRecords() {
		if inputs.Has(string(rec.ID)) {
			continue
		}
		tx.GasPayment = append(tx.GasPayment, rec.Ref())
	}
	if len(tx.GasPayment) == 0 {
		return nil, errors.Reason("pool %s has no gas coins to pay with", p.id).Tag(NoGasCoins).Err()
	}

	sim, err := p.client.SimulateTransaction(ctx, tx)
	if err != nil {
		return nil, errors.Annotate(err, "simulating transaction").Tag(transient.Tag).Err()
	}
	if !sim.OK {
		return nil, errors.Reason("dry run rejected transaction: %s", sim.Error).Tag(DryRunRejected).Err()
	}
	return p.submit(ctx, tx)
}

// submit sends the transaction and reconciles the pool with whatever the
// ledger reports back.
func (p *Pool) submit(ctx context.Context, tx *ledger.Transaction) (*ledger.ExecResult, error) {
	res, err := p.client.SubmitTransaction(ctx, tx, p.signer)
	if err != nil {
		return nil, errors.Annotate(err, "submitting transaction from pool %s", p.id).Tag(SubmitFailed, transient.Tag).Err()
	}
	// Reconcile even when execution failed: gas smashing and the fee
	// charge mutated objects regardless of status.
	if rerr := p.applyEffects(ctx, &res.Effects); rerr != nil {
		logging.Warningf(ctx, "pool %s: reconciling effects of %s: %s", p.id, res.Digest, rerr)
	}
	if !res.Effects.Status.Success {
		// The network accepted the transaction and charged gas, so the
		// caller gets the result alongside the error.
		return res, errors.Reason("transaction %s failed on ledger: %s", res.Digest, res.Effects.Status.Error).Tag(ExecutionFailed, transient.Tag).Err()
	}
	logging.Debugf(ctx, "pool %s: executed %s, gas used %d", p.id, res.Digest, res.Effects.GasUsed)
	return res, nil
}

// resolvePlaceholders picks one held object per wanted type, newest first,
// never picking the same object twice.
func (p *Pool) resolvePlaceholders(wants []ledger.TypeTag) ([]ledger.ObjectRef, error) {
	if len(wants) == 0 {
		return nil, nil
	}
	args := make([]ledger.ObjectRef, 0, len(wants))
	picked := stringset.New(len(wants))
	for _, want := range wants {
		found := false
		for _, rec := range p.Records() {
			if picked.Has(string(rec.ID)) || !rec.Type.Matches(want) {
				continue
			}
			picked.Add(string(rec.ID))
			args = append(args, rec.Ref())
			found = true
			break
		}
		if !found {
			return nil, errors.Reason("pool %s holds no object of type %s", p.id, want).Tag(NoMatchingObject).Err()
		}
	}
	return args, nil
}

// checkOwnership verifies every transaction input is safe to use: held by
// this pool, or immutable per a fresh ledger read.
func (p *Pool) checkOwnership(ctx context.Context, tx *ledger.Transaction) error {
	for _, ref := range tx.Inputs {
		if p.Has(ref.ID) {
			continue
		}
		_, owner, err := p.client.GetObject(ctx, ref.ID)
		if err != nil {
			return errors.Annotate(err, "checking ownership of %s", ref.ID).Tag(transient.Tag).Err()
		}
		if owner.Kind != ledger.OwnerImmutable {
			return errors.Reason("object %s is not held by pool %s and not immutable", ref.ID, p.id).Tag(NotOwned).Err()
		}
	}
	return nil
}
