// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package pool

import (
	"context"

	"github.com/hashicorp/go-multierror"

	"go.chromium.org/luci/common/data/stringset"
	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"

	"objpool/ledger"
)

// applyEffects folds a transaction's reported effects into the pool.
//
// Records the ledger reports as created, unwrapped, or mutated under this
// pool's address are inserted or updated at their new version. Mutated
// records now owned by someone else left the credential's custody and are
// dropped, as are wrapped and deleted ones. Effects carry no balances, so
// gas coins that changed (and fresh records whose type is still unknown)
// are re-read from the ledger afterwards; read failures are collected and
// returned once the pool is otherwise consistent.
func (p *Pool) applyEffects(ctx context.Context, fx *ledger.Effects) error {
	self := ledger.AddressOwner(p.signer.Address())
	wasGas := stringset.NewFromSlice(p.gas.ToSlice()...)
	refresh := stringset.New(0)

	for _, or := range fx.Created {
		if or.Owner == self {
			p.insert(ledger.ObjectRecord{ID: or.Ref.ID, Version: or.Ref.Version, Digest: or.Ref.Digest})
			refresh.Add(string(or.Ref.ID))
		}
	}
	for _, or := range fx.Unwrapped {
		if or.Owner == self {
			p.insert(ledger.ObjectRecord{ID: or.Ref.ID, Version: or.Ref.Version, Digest: or.Ref.Digest})
			refresh.Add(string(or.Ref.ID))
		}
	}
	for _, or := range fx.Mutated {
		if or.Owner != self {
			// Transferred away; whoever holds it now tracks it.
			p.remove(or.Ref.ID)
			continue
		}
		rec, held := p.objects[or.Ref.ID]
		if !held {
			rec = ledger.ObjectRecord{ID: or.Ref.ID}
			refresh.Add(string(or.Ref.ID))
		}
		rec.Version = or.Ref.Version
		rec.Digest = or.Ref.Digest
		p.insert(rec)
		if wasGas.Has(string(or.Ref.ID)) {
			refresh.Add(string(or.Ref.ID))
		}
	}
	for _, ref := range fx.Wrapped {
		p.remove(ref.ID)
	}
	for _, ref := range fx.Deleted {
		p.remove(ref.ID)
	}

	var merr *multierror.Error
	for _, id := range refresh.ToSortedSlice() {
		oid := ledger.ObjectID(id)
		if !p.Has(oid) {
			continue
		}
		rec, owner, err := p.client.GetObject(ctx, oid)
		if err != nil {
			merr = multierror.Append(merr, errors.Annotate(err, "refreshing %s", oid).Err())
			continue
		}
		if owner != self {
			p.remove(oid)
			continue
		}
		p.insert(rec)
	}
	if n := refresh.Len(); n > 0 {
		logging.Debugf(ctx, "pool %s: refreshed %d records after %s", p.id, n, fx.TransactionDigest)
	}
	return merr.ErrorOrNil()
}
