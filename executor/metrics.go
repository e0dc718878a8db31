// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package executor

import (
	"go.chromium.org/luci/common/tsmon/field"
	"go.chromium.org/luci/common/tsmon/metric"
)

var (
	executeCount = metric.NewCounter(
		"objpool/executor/execute",
		"Transactions driven to a final verdict.",
		nil,
		field.Bool("success"),
	)
	attemptCount = metric.NewCounter(
		"objpool/executor/attempt",
		"Individual execution attempts by outcome.",
		nil,
		field.String("outcome"),
	)
	splitCount = metric.NewCounter(
		"objpool/executor/split",
		"Worker pools split off the main pool.",
		nil,
		field.Bool("success"),
	)
	mergeCount = metric.NewCounter(
		"objpool/executor/merge",
		"Worker pools merged back into the main pool, by reason.",
		nil,
		field.String("reason"),
	)
	acquireCount = metric.NewCounter(
		"objpool/executor/acquire",
		"Worker lease attempts; a miss means the acquire timeout expired.",
		nil,
		field.Bool("hit"),
	)
)
