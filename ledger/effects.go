// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package ledger

// ExecStatus is the ledger's verdict on an executed transaction. A
// transaction can be accepted by the network and still fail execution, in
// which case Success is false and gas was nonetheless charged.
type ExecStatus struct {
	Success bool
	// Error is the execution failure message, empty on success.
	Error string
}

// OwnedRef pairs an object reference with its (possibly new) owner.
type OwnedRef struct {
	Ref   ObjectRef
	Owner Owner
}

// Effects enumerates every object touched by one executed transaction.
//
// Created, Mutated and Unwrapped carry the post-execution ref and owner.
// Wrapped and Deleted carry the pre-execution ref of objects that no longer
// exist as top-level ledger entries. GasObject is the smashed fee coin after
// charging; it also appears in Mutated.
type Effects struct {
	Status            ExecStatus
	TransactionDigest string

	Created   []OwnedRef
	Mutated   []OwnedRef
	Unwrapped []OwnedRef
	Wrapped   []ObjectRef
	Deleted   []ObjectRef

	GasObject OwnedRef
	GasUsed   uint64
}

// ExecResult is what a submission returns once the ledger has a verdict.
type ExecResult struct {
	Digest  string
	Effects Effects
}

// SimulationResult is the outcome of a dry run. OK false means the
// transaction would be rejected; Error carries the simulator's reason.
type SimulationResult struct {
	OK    bool
	Error string
}
