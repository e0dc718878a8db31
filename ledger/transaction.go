// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package ledger

import "context"

// CommandKind enumerates the small command vocabulary a built transaction
// carries. The pool layer never interprets commands; they exist so a ledger
// client (real or fake) knows what the transaction does.
type CommandKind int

const (
	// CmdTransferObject transfers the input to another address.
	CmdTransferObject CommandKind = iota
	// CmdMutateObject mutates the input in place.
	CmdMutateObject
	// CmdDeleteObject destroys the input.
	CmdDeleteObject
	// CmdWrapObject embeds the input into another object, removing it from
	// top-level ledger state.
	CmdWrapObject
	// CmdCreateObject creates a fresh object of Type owned by To.
	CmdCreateObject
)

// Command is one step of a transaction.
type Command struct {
	Kind CommandKind
	// Input indexes into Transaction.Inputs for commands that take an object.
	Input int
	// To is the recipient for transfers and creations.
	To string
	// Type is the created object's type for CmdCreateObject.
	Type TypeTag
}

// Transaction is a built, unsigned transaction. Building and signing belong
// to collaborators outside this module; the pool layer only reads Inputs,
// fills GasPayment and hands the result to a Client.
type Transaction struct {
	Sender    string
	GasBudget uint64
	// Inputs are the owned-object references the transaction operates on.
	// Every entry must be exclusively held by the submitting pool or be
	// independently immutable.
	Inputs []ObjectRef
	// GasPayment is the set of fee coins charged for execution. The ledger
	// smashes them into the first entry before charging.
	GasPayment []ObjectRef
	// Sponsor is the fee-paying address when someone other than Sender pays;
	// empty otherwise.
	Sponsor  string
	Commands []Command
}

// Template describes a transaction to build once its typed placeholders are
// resolved against a concrete pool. Wants lists the placeholder types in the
// order Build expects them; the executing pool picks one held object per
// entry (exact type match) and passes the refs through.
type Template struct {
	Wants []TypeTag
	Build func(ctx context.Context, args []ObjectRef) (*Transaction, error)
}

// Signer authorizes transactions for one address. Key material and signature
// schemes are the ledger client's concern; this layer only needs a stable
// address identity to partition ownership by.
type Signer interface {
	Address() string
}

// SponsorFunc completes a transaction for sponsored execution: it sets the
// sponsor and the sponsor-funded gas payment and performs whatever sponsor
// side signing the ledger requires. The pool submits the returned
// transaction as-is, with no local fee attachment and no dry run.
type SponsorFunc func(ctx context.Context, tx *Transaction) (*Transaction, error)
