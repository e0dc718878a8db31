// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package pool partitions one credential's ledger objects into disjoint
// working sets so concurrent transactions never contend for the same
// object version.
//
// A Pool holds object records the credential owns, tracks which of them are
// gas coins, and pages more in from the ledger on demand. Split carves off
// a child pool according to a SplitStrategy; Execute drives a transaction
// built from pooled objects through simulation, submission, and effects
// reconciliation. As long as every in-flight transaction draws from its own
// pool, no two of them can reference the same object and the ledger never
// sees conflicting versions from this process.
package pool

import (
	"context"

	"github.com/google/uuid"
	"github.com/tidwall/btree"

	"go.chromium.org/luci/common/data/stringset"
	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"

	"objpool/ledger"
)

// scanItem orders pool objects by insertion: higher seq means inserted (or
// last updated) more recently. The scan index stores one item per held
// object; less compares seq only, so Delete and Set key on seq alone.
type scanItem struct {
	seq uint64
	id  ledger.ObjectID
}

// Pool is one disjoint working set of owned objects.
//
// A Pool is not safe for concurrent use. The intended shape is one pool
// per in-flight transaction, with an external guard (see package executor)
// serializing splits and merges on the shared main pool.
type Pool struct {
	id     string
	client ledger.Client
	signer ledger.Signer

	objects map[ledger.ObjectID]ledger.ObjectRecord
	gas     stringset.Set
	seqs    map[ledger.ObjectID]uint64
	scan    *btree.BTreeG[scanItem]
	seq     uint64

	// Listing position. A split-off pool is born exhausted: its contents
	// came from its parent, and paging the owner listing independently
	// would pull in objects the parent still holds.
	cursor    ledger.Cursor
	exhausted bool
}

// New returns a pool seeded with the first page of the credential's owned
// objects.
func New(ctx context.Context, client ledger.Client, signer ledger.Signer) (*Pool, error) {
	p := NewEmpty(client, signer)
	if _, err := p.FetchMore(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

// NewEmpty returns a pool holding nothing, positioned at the start of the
// credential's owned-object listing.
func NewEmpty(client ledger.Client, signer ledger.Signer) *Pool {
	return &Pool{
		id:      uuid.New().String()[:8],
		client:  client,
		signer:  signer,
		objects: map[ledger.ObjectID]ledger.ObjectRecord{},
		gas:     stringset.New(0),
		seqs:    map[ledger.ObjectID]uint64{},
		scan: btree.NewBTreeG(func(a, b scanItem) bool {
			return a.seq < b.seq
		}),
	}
}

// ID returns the pool's short random identifier, used only for tracing.
func (p *Pool) ID() string {
	return p.id
}

// Owner returns the address whose objects this pool manages.
func (p *Pool) Owner() string {
	return p.signer.Address()
}

// Size returns the number of held objects.
func (p *Pool) Size() int {
	return len(p.objects)
}

// GasSize returns the number of held gas coins.
func (p *Pool) GasSize() int {
	return p.gas.Len()
}

// GasBalance returns the summed balance of all held gas coins.
func (p *Pool) GasBalance() uint64 {
	var sum uint64
	for _, id := range p.gas.ToSlice() {
		sum += p.objects[ledger.ObjectID(id)].Balance
	}
	return sum
}

// Has reports whether the pool holds the object.
func (p *Pool) Has(id ledger.ObjectID) bool {
	_, ok := p.objects[id]
	return ok
}

// Record returns the held record for id, if any.
func (p *Pool) Record(id ledger.ObjectID) (ledger.ObjectRecord, bool) {
	rec, ok := p.objects[id]
	return rec, ok
}

// Records returns all held records, most recently inserted first.
func (p *Pool) Records() []ledger.ObjectRecord {
	recs := make([]ledger.ObjectRecord, 0, len(p.objects))
	p.scan.Reverse(func(it scanItem) bool {
		recs = append(recs, p.objects[it.id])
		return true
	})
	return recs
}

// GasRecords returns all held gas coin records, most recently inserted
// first.
func (p *Pool) GasRecords() []ledger.ObjectRecord {
	recs := make([]ledger.ObjectRecord, 0, p.gas.Len())
	p.scan.Reverse(func(it scanItem) bool {
		if p.gas.Has(string(it.id)) {
			recs = append(recs, p.objects[it.id])
		}
		return true
	})
	return recs
}

// insert adds or refreshes a record. A refreshed record moves to the front
// of the scan order.
func (p *Pool) insert(rec ledger.ObjectRecord) {
	if old, ok := p.seqs[rec.ID]; ok {
		p.scan.Delete(scanItem{seq: old})
	}
	p.seq++
	p.seqs[rec.ID] = p.seq
	p.scan.Set(scanItem{seq: p.seq, id: rec.ID})
	p.objects[rec.ID] = rec
	if rec.IsGas() {
		p.gas.Add(string(rec.ID))
	} else {
		p.gas.Del(string(rec.ID))
	}
}

// remove drops a record, returning what was held.
func (p *Pool) remove(id ledger.ObjectID) (ledger.ObjectRecord, bool) {
	rec, ok := p.objects[id]
	if !ok {
		return ledger.ObjectRecord{}, false
	}
	delete(p.objects, id)
	p.scan.Delete(scanItem{seq: p.seqs[id]})
	delete(p.seqs, id)
	p.gas.Del(string(id))
	return rec, true
}

// FetchMore pulls the next page of the owner listing into the pool and
// reports whether it delivered any objects. Once the listing ends the pool
// is exhausted and FetchMore returns false without calling the ledger.
func (p *Pool) FetchMore(ctx context.Context) (bool, error) {
	if p.exhausted {
		return false, nil
	}
	recs, next, err := p.client.ListOwnedObjects(ctx, p.signer.Address(), p.cursor)
	if err != nil {
		return false, errors.Annotate(err, "listing objects owned by %s", p.signer.Address()).Err()
	}
	p.cursor = next
	if next == "" {
		p.exhausted = true
	}
	for _, rec := range recs {
		p.insert(rec)
	}
	logging.Debugf(ctx, "pool %s: fetched %d objects, holding %d (%d gas)", p.id, len(recs), len(p.objects), p.gas.Len())
	return len(recs) > 0, nil
}

// partition offers every held object to the strategy, newest first, and
// removes the ones it gives. Kept objects stay where they were; Stop
// leaves the rest of the scan untouched.
func (p *Pool) partition(s SplitStrategy) []ledger.ObjectRecord {
	items := make([]scanItem, 0, p.scan.Len())
	p.scan.Reverse(func(it scanItem) bool {
		items = append(items, it)
		return true
	})
	var given []ledger.ObjectRecord
	for _, it := range items {
		rec := p.objects[it.id]
		switch s.Decide(rec) {
		case Give:
			p.remove(it.id)
			given = append(given, rec)
		case Stop:
			return given
		}
	}
	return given
}

// Split carves a new pool out of this one according to the strategy.
//
// An empty pool fetches a page before anything else and fails outright if
// the listing has nothing; a pool cannot split from nothing. Held objects
// are then scanned; if that does not satisfy the strategy, Split alternates
// fetching a page and re-scanning until it does. If the listing runs out
// first, everything taken so far is returned to this pool and Split fails
// with StrategyUnsatisfied. On any error this pool holds exactly what it
// held before the call.
//
// The new pool does not page the ledger itself; it holds exactly what the
// strategy gave it.
func (p *Pool) Split(ctx context.Context, s SplitStrategy) (*Pool, error) {
	if p.Size() == 0 {
		got, err := p.FetchMore(ctx)
		if err != nil {
			return nil, errors.Annotate(err, "splitting pool %s", p.id).Err()
		}
		if !got {
			return nil, errors.Reason("pool %s: nothing to split, the owner listing is empty", p.id).Tag(StrategyUnsatisfied).Err()
		}
	}
	var given []ledger.ObjectRecord
	restore := func() {
		for _, rec := range given {
			p.insert(rec)
		}
	}
	for {
		given = append(given, p.partition(s)...)
		if s.Satisfied() {
			break
		}
		got, err := p.FetchMore(ctx)
		if err != nil {
			restore()
			return nil, errors.Annotate(err, "splitting pool %s", p.id).Err()
		}
		if !got {
			restore()
			return nil, errors.Reason("pool %s: strategy still unsatisfied after exhausting the ledger listing", p.id).Tag(StrategyUnsatisfied).Err()
		}
	}
	child := NewEmpty(p.client, p.signer)
	child.exhausted = true
	for _, rec := range given {
		child.insert(rec)
	}
	if child.Size() == 0 {
		logging.Warningf(ctx, "pool %s: split produced empty pool %s", p.id, child.id)
	} else if child.GasSize() == 0 {
		logging.Warningf(ctx, "pool %s: split pool %s holds no gas coins, sponsored use only", p.id, child.id)
	}
	logging.Debugf(ctx, "pool %s: split off pool %s with %d objects (%d gas), %d remain", p.id, child.id, child.Size(), child.GasSize(), p.Size())
	return child, nil
}

// Merge moves every object held by other into this pool and empties other.
// Colliding ids take other's record. This pool keeps its own listing
// position; other's resets along with the rest of its state, leaving the
// drained pool indistinguishable from a fresh empty one.
func (p *Pool) Merge(other *Pool) {
	other.scan.Scan(func(it scanItem) bool {
		p.insert(other.objects[it.id])
		return true
	})
	other.objects = map[ledger.ObjectID]ledger.ObjectRecord{}
	other.gas = stringset.New(0)
	other.seqs = map[ledger.ObjectID]uint64{}
	other.scan = btree.NewBTreeG(func(a, b scanItem) bool {
		return a.seq < b.seq
	})
	other.seq = 0
	other.cursor = ""
	other.exhausted = false
}
