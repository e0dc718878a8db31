// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package ledger defines the object model shared by the pool partitioner and
// the executor, together with the narrow client interface through which they
// talk to an object ledger.
//
// The ledger tracks owned objects: each object has a unique id, a version
// that the ledger bumps on every mutation, and a digest of its current
// content. A transaction that references an owned object at a stale version
// is rejected at submission time (equivocation), which is why exclusive
// ownership of every referenced object matters so much to the layers above.
package ledger

import "fmt"

// ObjectID uniquely identifies one on-ledger object.
type ObjectID string

// ObjectRef pins an object to a specific version. Transactions reference
// objects by ref, and execution effects enumerate refs.
type ObjectRef struct {
	ID      ObjectID
	Version uint64
	Digest  string
}

func (r ObjectRef) String() string {
	return fmt.Sprintf("%s@%d", r.ID, r.Version)
}

// OwnerKind describes who controls an object.
type OwnerKind int

const (
	// OwnerAddress marks an object exclusively controlled by one address.
	OwnerAddress OwnerKind = iota
	// OwnerShared marks an object usable by anyone via consensus.
	OwnerShared
	// OwnerImmutable marks an object frozen forever. Immutable objects can be
	// referenced by any transaction without ownership.
	OwnerImmutable
)

// Owner is the ownership record the ledger reports for an object.
type Owner struct {
	Kind OwnerKind
	// Address is set only for OwnerAddress.
	Address string
}

// AddressOwner is a convenience constructor for the common case.
func AddressOwner(addr string) Owner {
	return Owner{Kind: OwnerAddress, Address: addr}
}

// ImmutableOwner marks an object as frozen.
func ImmutableOwner() Owner {
	return Owner{Kind: OwnerImmutable}
}

// ObjectRecord is the locally-held view of one owned object.
//
// Balance is meaningful only for gas coins (see IsGasCoin); it is the coin's
// current fungible value and must be refreshed from the ledger after any
// mutation, since execution effects do not carry balances.
type ObjectRecord struct {
	ID      ObjectID
	Version uint64
	Digest  string
	Type    TypeTag
	Balance uint64
}

// Ref returns the record's object reference.
func (r *ObjectRecord) Ref() ObjectRef {
	return ObjectRef{ID: r.ID, Version: r.Version, Digest: r.Digest}
}

// IsGas reports whether the record is a fee-payment coin.
func (r *ObjectRecord) IsGas() bool {
	return IsGasCoin(r.Type)
}
