// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package main

import (
	"os"

	"gopkg.in/yaml.v2"

	"go.chromium.org/luci/common/errors"

	"objpool/ledger"
	"objpool/ledger/ledgertest"
)

// widgetType is the tagged object the bench mutates or transfers.
var widgetType = ledger.MustParseTypeTag("0x7::bench::Widget")

// A scenario describes one bench run.
//
// Note that the YAML library unmarshals using the field name lowercased as
// the default key.
type scenario struct {
	// Owner is the address whose objects the executor manages.
	Owner string
	// Recipient receives transferred and created objects.
	Recipient string

	// CoinCount gas coins of CoinBalance each are minted up front.
	CoinCount   int
	CoinBalance uint64
	// Widgets is how many tagged objects to mint for mutate/transfer ops.
	Widgets int

	// PageSize bounds ledger listing pages; GasPerTx is the flat charge.
	PageSize int
	GasPerTx uint64

	// MinBalance is the gas each worker pool is split off with.
	MinBalance uint64
	GasBudget  uint64
	MaxWorkers int
	Retries    int
	// AcquireTimeoutMs bounds the per-attempt wait for a worker.
	AcquireTimeoutMs int `yaml:"acquireTimeoutMs"`

	// Swarm is how many transactions run concurrently; Transactions is the
	// total to submit.
	Swarm        int
	Transactions int

	// Op is what each transaction does to its widget: mutate, transfer,
	// or create (create needs no widget).
	Op string

	// Fault injection, applied before the swarm starts.
	FailSubmits    int
	FailExecutions int
}

func defaultScenario() scenario {
	return scenario{
		Owner:            "0xp00l",
		Recipient:        "0xfr1end",
		CoinCount:        40,
		CoinBalance:      100,
		Widgets:          20,
		PageSize:         25,
		GasPerTx:         5,
		MinBalance:       150,
		MaxWorkers:       8,
		Retries:          3,
		AcquireTimeoutMs: 200,
		Swarm:            8,
		Transactions:     50,
		Op:               "mutate",
	}
}

// loadScenario reads a YAML scenario, or returns the built-in one when
// path is empty. Missing fields keep their defaults.
func loadScenario(path string) (scenario, error) {
	sc := defaultScenario()
	if path == "" {
		return sc, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return sc, errors.Annotate(err, "reading scenario").Err()
	}
	if err := yaml.Unmarshal(b, &sc); err != nil {
		return sc, errors.Annotate(err, "parsing scenario").Err()
	}
	return sc, sc.validate()
}

func (sc *scenario) validate() error {
	switch sc.Op {
	case "mutate", "transfer", "create":
	default:
		return errors.Reason("op must be mutate, transfer, or create, not %q", sc.Op).Err()
	}
	if sc.Transactions <= 0 {
		return errors.Reason("transactions must be positive").Err()
	}
	if sc.Swarm <= 0 {
		return errors.Reason("swarm must be positive").Err()
	}
	if sc.CoinCount <= 0 {
		return errors.Reason("coinCount must be positive").Err()
	}
	if (sc.Op == "mutate" || sc.Op == "transfer") && sc.Widgets <= 0 {
		return errors.Reason("op %q needs widgets", sc.Op).Err()
	}
	return nil
}

// materialize mints the scenario's objects and returns the total minted
// coin balance, for the conservation check at the end of the run.
func (sc *scenario) materialize(fake *ledgertest.Fake) uint64 {
	if sc.PageSize > 0 {
		fake.PageSize = sc.PageSize
	}
	if sc.GasPerTx > 0 {
		fake.GasPerTx = sc.GasPerTx
	}
	var minted uint64
	for i := 0; i < sc.CoinCount; i++ {
		fake.MintGasCoin(sc.Owner, sc.CoinBalance)
		minted += sc.CoinBalance
	}
	for i := 0; i < sc.Widgets; i++ {
		fake.MintObject(sc.Owner, widgetType)
	}
	fake.FailSubmits(sc.FailSubmits)
	fake.FailExecutions(sc.FailExecutions)
	return minted
}
