// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package ledgertest implements an in-memory ledger.Client with the
// submission semantics the pool layers depend on: per-object versions,
// stale-ref rejection (equivocation), gas smashing and gas charging on
// failed executions. Tests and the bench tool drive it; nothing here talks
// to a real network.
package ledgertest

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"go.chromium.org/luci/common/errors"

	"objpool/ledger"
)

// Signer is a test credential: just an address, no key material.
type Signer string

// Address implements ledger.Signer.
func (s Signer) Address() string { return string(s) }

type entry struct {
	rec   ledger.ObjectRecord
	owner ledger.Owner
}

// Fake is an in-memory ledger. All methods are safe for concurrent use.
type Fake struct {
	mu sync.Mutex

	// PageSize bounds ListOwnedObjects pages. Set before use.
	PageSize int
	// GasPerTx is the flat gas charge per executed transaction.
	GasPerTx uint64

	objects map[ledger.ObjectID]*entry
	order   []ledger.ObjectID // creation order, backs listing pagination

	failSubmits  int
	failExecs    int
	simulateErr  error
	submitCalls  int
	executedTxns int
	gasBurned    uint64
}

// New returns an empty fake ledger with a 50-object page size and a flat
// 10 unit gas charge.
func New() *Fake {
	return &Fake{
		PageSize: 50,
		GasPerTx: 10,
		objects:  make(map[ledger.ObjectID]*entry),
	}
}

// MintGasCoin creates one fee coin owned by owner and returns its id.
func (f *Fake) MintGasCoin(owner string, balance uint64) ledger.ObjectID {
	return f.mint(owner, ledger.GasCoinType(), balance)
}

// MintGasCoins creates one fee coin per balance, all owned by owner.
func (f *Fake) MintGasCoins(owner string, balances ...uint64) []ledger.ObjectID {
	ids := make([]ledger.ObjectID, len(balances))
	for i, b := range balances {
		ids[i] = f.MintGasCoin(owner, b)
	}
	return ids
}

// MintObject creates one non-coin object of the given type owned by owner.
func (f *Fake) MintObject(owner string, typ ledger.TypeTag) ledger.ObjectID {
	return f.mint(owner, typ, 0)
}

func (f *Fake) mint(owner string, typ ledger.TypeTag, balance uint64) ledger.ObjectID {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := newID()
	f.objects[id] = &entry{
		rec: ledger.ObjectRecord{
			ID:      id,
			Version: 1,
			Digest:  newDigest(),
			Type:    typ,
			Balance: balance,
		},
		owner: ledger.AddressOwner(owner),
	}
	f.order = append(f.order, id)
	return id
}

// Freeze makes an existing object immutable.
func (f *Fake) Freeze(id ledger.ObjectID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.objects[id]; ok {
		e.owner = ledger.ImmutableOwner()
	}
}

// Object returns a copy of the object's record and owner, for assertions.
func (f *Fake) Object(id ledger.ObjectID) (ledger.ObjectRecord, ledger.Owner, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.objects[id]
	if !ok {
		return ledger.ObjectRecord{}, ledger.Owner{}, false
	}
	return e.rec, e.owner, true
}

// SubmitCount reports how many SubmitTransaction calls reached the fake.
func (f *Fake) SubmitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitCalls
}

// ExecutedCount reports how many transactions executed, successfully or not.
func (f *Fake) ExecutedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.executedTxns
}

// GasBurned reports the total gas charged across all executed transactions.
func (f *Fake) GasBurned() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gasBurned
}

// TotalBalance sums the coin balances currently owned by owner. Together
// with GasBurned it lets callers check that value was conserved.
func (f *Fake) TotalBalance(owner string) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var sum uint64
	for _, e := range f.objects {
		if e.owner == ledger.AddressOwner(owner) {
			sum += e.rec.Balance
		}
	}
	return sum
}

// FailSubmits makes the next n submissions fail at the transport level, with
// no state change and no verdict.
func (f *Fake) FailSubmits(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failSubmits = n
}

// FailExecutions makes the next n submissions execute with a failure status.
// Gas is still smashed and charged; no command is applied.
func (f *Fake) FailExecutions(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failExecs = n
}

// SimulateError makes SimulateTransaction return err until cleared with nil.
func (f *Fake) SimulateError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.simulateErr = err
}

// ListOwnedObjects implements ledger.Client. Pages walk the fake's creation
// order, so freshly minted objects land at the end of the listing.
func (f *Fake) ListOwnedObjects(ctx context.Context, owner string, cursor ledger.Cursor) ([]ledger.ObjectRecord, ledger.Cursor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	start := 0
	if cursor != "" {
		var err error
		start, err = strconv.Atoi(string(cursor))
		if err != nil || start < 0 {
			return nil, "", errors.Reason("invalid cursor %q", cursor).Err()
		}
	}

	var page []ledger.ObjectRecord
	i := start
	for ; i < len(f.order) && len(page) < f.PageSize; i++ {
		e, ok := f.objects[f.order[i]]
		if !ok || e.owner != ledger.AddressOwner(owner) {
			continue
		}
		page = append(page, e.rec)
	}
	if i >= len(f.order) {
		return page, "", nil
	}
	return page, ledger.Cursor(strconv.Itoa(i)), nil
}

// GetObject implements ledger.Client.
func (f *Fake) GetObject(ctx context.Context, id ledger.ObjectID) (ledger.ObjectRecord, ledger.Owner, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.objects[id]
	if !ok {
		return ledger.ObjectRecord{}, ledger.Owner{}, errors.Reason("object %s does not exist", id).Err()
	}
	return e.rec, e.owner, nil
}

// SimulateTransaction implements ledger.Client.
func (f *Fake) SimulateTransaction(ctx context.Context, tx *ledger.Transaction) (ledger.SimulationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.simulateErr != nil {
		return ledger.SimulationResult{}, f.simulateErr
	}
	if msg := f.validate(tx); msg != "" {
		return ledger.SimulationResult{OK: false, Error: msg}, nil
	}
	return ledger.SimulationResult{OK: true}, nil
}

// validate checks tx against current state. Returns a rejection message or
// empty. Caller holds f.mu.
func (f *Fake) validate(tx *ledger.Transaction) string {
	// One transaction may reference each object only once, counting
	// inputs and gas payment together.
	seen := make(map[ledger.ObjectID]bool, len(tx.Inputs)+len(tx.GasPayment))
	for _, ref := range tx.Inputs {
		if seen[ref.ID] {
			return fmt.Sprintf("object %s is referenced twice", ref.ID)
		}
		seen[ref.ID] = true
	}
	for _, ref := range tx.GasPayment {
		if seen[ref.ID] {
			return fmt.Sprintf("object %s is referenced twice", ref.ID)
		}
		seen[ref.ID] = true
	}
	for _, ref := range tx.Inputs {
		e, ok := f.objects[ref.ID]
		if !ok {
			return fmt.Sprintf("input %s does not exist", ref.ID)
		}
		if e.rec.Version != ref.Version {
			return fmt.Sprintf("input %s is at version %d, not %d", ref.ID, e.rec.Version, ref.Version)
		}
		if e.owner.Kind == ledger.OwnerAddress && e.owner.Address != tx.Sender {
			return fmt.Sprintf("input %s is owned by %s, not sender", ref.ID, e.owner.Address)
		}
	}
	payer := tx.Sender
	if tx.Sponsor != "" {
		payer = tx.Sponsor
	}
	if len(tx.GasPayment) == 0 {
		return "no gas payment attached"
	}
	var total uint64
	for _, ref := range tx.GasPayment {
		e, ok := f.objects[ref.ID]
		if !ok {
			return fmt.Sprintf("gas coin %s does not exist", ref.ID)
		}
		if e.rec.Version != ref.Version {
			return fmt.Sprintf("gas coin %s is at version %d, not %d", ref.ID, e.rec.Version, ref.Version)
		}
		if !e.rec.IsGas() {
			return fmt.Sprintf("gas payment %s is not a fee coin", ref.ID)
		}
		if e.owner != ledger.AddressOwner(payer) {
			return fmt.Sprintf("gas coin %s is not owned by payer %s", ref.ID, payer)
		}
		total += e.rec.Balance
	}
	if tx.GasBudget > total {
		return fmt.Sprintf("gas budget %d exceeds attached balance %d", tx.GasBudget, total)
	}
	return ""
}

// SubmitTransaction implements ledger.Client.
//
// A stale input version is rejected at the transport level with no verdict;
// that rejection is the equivocation this whole module exists to prevent.
func (f *Fake) SubmitTransaction(ctx context.Context, tx *ledger.Transaction, signer ledger.Signer) (*ledger.ExecResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.submitCalls++
	if f.failSubmits > 0 {
		f.failSubmits--
		return nil, errors.Reason("fake ledger: injected submission failure").Err()
	}
	if signer.Address() != tx.Sender {
		return nil, errors.Reason("signer %s cannot sign for sender %s", signer.Address(), tx.Sender).Err()
	}
	if msg := f.validate(tx); msg != "" {
		return nil, errors.Reason("rejected: %s", msg).Err()
	}

	// Lamport versioning: everything written by this transaction lands at
	// one version past the highest referenced version.
	next := uint64(0)
	for _, ref := range tx.Inputs {
		if ref.Version > next {
			next = ref.Version
		}
	}
	for _, ref := range tx.GasPayment {
		if ref.Version > next {
			next = ref.Version
		}
	}
	next++

	fx := ledger.Effects{TransactionDigest: newDigest()}

	// Smash gas: every payment coin merges into the first. This happens
	// before execution and sticks even when execution fails.
	primary := f.objects[tx.GasPayment[0].ID]
	payer := primary.owner
	var pot uint64
	for i, ref := range tx.GasPayment {
		e := f.objects[ref.ID]
		pot += e.rec.Balance
		if i == 0 {
			continue
		}
		fx.Deleted = append(fx.Deleted, e.rec.Ref())
		delete(f.objects, ref.ID)
	}
	gasUsed := f.GasPerTx
	execErr := ""
	if f.failExecs > 0 {
		f.failExecs--
		execErr = "fake ledger: injected execution failure"
	}
	if gasUsed > pot {
		gasUsed = pot
		if execErr == "" {
			execErr = "insufficient gas"
		}
	}
	primary.rec.Balance = pot - gasUsed
	primary.rec.Version = next
	primary.rec.Digest = newDigest()
	fx.GasObject = ledger.OwnedRef{Ref: primary.rec.Ref(), Owner: payer}
	fx.GasUsed = gasUsed
	fx.Mutated = append(fx.Mutated, fx.GasObject)
	f.gasBurned += gasUsed

	if execErr != "" {
		// Failed executions only charge gas; no command applies.
		fx.Status = ledger.ExecStatus{Success: false, Error: execErr}
		f.executedTxns++
		return &ledger.ExecResult{Digest: fx.TransactionDigest, Effects: fx}, nil
	}

	touched := make(map[ledger.ObjectID]bool)
	for _, cmd := range tx.Commands {
		switch cmd.Kind {
		case ledger.CmdCreateObject:
			id := newID()
			e := &entry{
				rec: ledger.ObjectRecord{
					ID:      id,
					Version: next,
					Digest:  newDigest(),
					Type:    cmd.Type,
				},
				owner: ledger.AddressOwner(cmd.To),
			}
			f.objects[id] = e
			f.order = append(f.order, id)
			fx.Created = append(fx.Created, ledger.OwnedRef{Ref: e.rec.Ref(), Owner: e.owner})
			continue
		}

		ref := tx.Inputs[cmd.Input]
		e, ok := f.objects[ref.ID]
		if !ok || touched[ref.ID] {
			continue // consumed earlier in this transaction
		}
		switch cmd.Kind {
		case ledger.CmdTransferObject:
			e.owner = ledger.AddressOwner(cmd.To)
			e.rec.Version = next
			e.rec.Digest = newDigest()
			fx.Mutated = append(fx.Mutated, ledger.OwnedRef{Ref: e.rec.Ref(), Owner: e.owner})
		case ledger.CmdMutateObject:
			e.rec.Version = next
			e.rec.Digest = newDigest()
			fx.Mutated = append(fx.Mutated, ledger.OwnedRef{Ref: e.rec.Ref(), Owner: e.owner})
		case ledger.CmdDeleteObject:
			fx.Deleted = append(fx.Deleted, e.rec.Ref())
			delete(f.objects, ref.ID)
			touched[ref.ID] = true
		case ledger.CmdWrapObject:
			fx.Wrapped = append(fx.Wrapped, e.rec.Ref())
			delete(f.objects, ref.ID)
			touched[ref.ID] = true
		}
	}

	fx.Status = ledger.ExecStatus{Success: true}
	f.executedTxns++
	return &ledger.ExecResult{Digest: fx.TransactionDigest, Effects: fx}, nil
}

func newID() ledger.ObjectID {
	u := uuid.New()
	return ledger.ObjectID(fmt.Sprintf("0x%x", u[:8]))
}

func newDigest() string {
	return uuid.New().String()
}
