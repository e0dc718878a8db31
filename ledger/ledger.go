// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package ledger

import "context"

// Cursor is an opaque position in an owner's object listing. The zero value
// starts from the beginning; an empty returned cursor means the listing is
// exhausted.
type Cursor string

// Client is the narrow ledger interface the pool and executor layers consume.
// Implementations wrap whatever RPC surface the target ledger exposes;
// ledgertest provides the in-memory implementation used by tests and the
// bench tool.
type Client interface {
	// ListOwnedObjects returns one page of objects owned by owner, starting
	// at cursor. The returned cursor resumes after the page; empty means no
	// more data.
	ListOwnedObjects(ctx context.Context, owner string, cursor Cursor) ([]ObjectRecord, Cursor, error)

	// GetObject fetches the current record and ownership of one object,
	// whether or not it is owned by any particular address.
	GetObject(ctx context.Context, id ObjectID) (ObjectRecord, Owner, error)

	// SimulateTransaction dry-runs tx against current ledger state without
	// executing it. A non-nil error is a transport failure; a rejection is
	// reported through the result.
	SimulateTransaction(ctx context.Context, tx *Transaction) (SimulationResult, error)

	// SubmitTransaction signs tx with signer, submits it and waits for the
	// ledger's verdict. A non-nil error means no verdict exists (the
	// transaction may or may not have landed); otherwise the result carries
	// the execution effects, including for failed executions.
	SubmitTransaction(ctx context.Context, tx *Transaction, signer Signer) (*ExecResult, error)
}
