// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package pool

import (
	"go.chromium.org/luci/common/errors"
)

var (
	// StrategyUnsatisfied marks a split that exhausted the ledger listing
	// without meeting its strategy. The source pool is left untouched.
	StrategyUnsatisfied = errors.BoolTag{Key: errors.NewTagKey("split strategy cannot be satisfied")}

	// NoMatchingObject marks a placeholder that resolved to nothing: the pool
	// holds no object of the requested type.
	NoMatchingObject = errors.BoolTag{Key: errors.NewTagKey("no object of the requested type in pool")}

	// NotOwned marks a transaction input that is neither held by the
	// executing pool nor confirmed immutable. Submitting it anyway is how
	// equivocation happens, so execution stops here.
	NotOwned = errors.BoolTag{Key: errors.NewTagKey("object not exclusively held by pool")}

	// NoGasCoins marks an execution that needed fee coins from a pool whose
	// fee set is empty.
	NoGasCoins = errors.BoolTag{Key: errors.NewTagKey("no gas coins in pool")}

	// DryRunRejected marks a transaction the simulator refused; submitting
	// it would burn a real attempt on a known-invalid transaction.
	DryRunRejected = errors.BoolTag{Key: errors.NewTagKey("dry run rejected transaction")}

	// SubmitFailed marks a submission with no verdict (transport or ledger
	// level). The transaction may or may not have landed.
	SubmitFailed = errors.BoolTag{Key: errors.NewTagKey("transaction submission failed")}

	// ExecutionFailed marks a transaction the ledger accepted and then
	// failed to execute. Gas was still charged, so the pool was reconciled
	// before this error surfaced.
	ExecutionFailed = errors.BoolTag{Key: errors.NewTagKey("execution reported failure")}
)
