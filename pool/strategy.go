// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package pool

import (
	"objpool/ledger"
)

// SplitDecision is a strategy's verdict on one offered object.
type SplitDecision int

const (
	// Keep leaves the object in the source pool.
	Keep SplitDecision = iota
	// Give moves the object to the split-off pool.
	Give
	// Stop ends the scan. The offered object and everything not yet
	// offered stay in the source pool.
	Stop
)

// SplitStrategy decides which objects a split hands to the new pool.
//
// A strategy is stateful and single-use: Split offers it objects one at a
// time, newest first, and it accumulates whatever it needs across calls.
// Unless the resulting pool is meant for sponsored transactions only, a
// strategy must eventually give at least one gas coin, or the pool it
// builds cannot pay for anything.
type SplitStrategy interface {
	// Decide is called once per offered object.
	Decide(rec ledger.ObjectRecord) SplitDecision

	// Satisfied reports whether the strategy has everything it asked for.
	// Split keeps fetching and re-scanning until this returns true or the
	// ledger listing runs out.
	Satisfied() bool
}

// GasBalanceStrategy takes gas coins, and nothing else, until their summed
// balance reaches a minimum.
type GasBalanceStrategy struct {
	min uint64
	sum uint64
}

// NewGasBalanceStrategy returns a strategy that collects gas coins worth at
// least min in total.
func NewGasBalanceStrategy(min uint64) *GasBalanceStrategy {
	return &GasBalanceStrategy{min: min}
}

func (s *GasBalanceStrategy) Decide(rec ledger.ObjectRecord) SplitDecision {
	if s.sum >= s.min {
		return Stop
	}
	if rec.IsGas() {
		s.sum += rec.Balance
		return Give
	}
	return Keep
}

func (s *GasBalanceStrategy) Satisfied() bool {
	return s.sum >= s.min
}

// TaggedObjectStrategy takes exactly one object of a given type, plus gas
// coins until their summed balance reaches a minimum. The first matching
// object wins; later matches stay in the source pool.
type TaggedObjectStrategy struct {
	tag      ledger.TypeTag
	min      uint64
	sum      uint64
	captured bool
}

// NewTaggedObjectStrategy returns a strategy that collects one object
// matching tag and gas coins worth at least min in total.
func NewTaggedObjectStrategy(tag ledger.TypeTag, min uint64) *TaggedObjectStrategy {
	return &TaggedObjectStrategy{tag: tag, min: min}
}

func (s *TaggedObjectStrategy) Decide(rec ledger.ObjectRecord) SplitDecision {
	if s.Satisfied() {
		return Stop
	}
	if !s.captured && rec.Type.Matches(s.tag) {
		s.captured = true
		return Give
	}
	if rec.IsGas() {
		s.sum += rec.Balance
		return Give
	}
	return Keep
}

func (s *TaggedObjectStrategy) Satisfied() bool {
	return s.captured && s.sum >= s.min
}

// SponsoredObjectStrategy takes exactly one object of a given type and no
// gas at all. Pools built with it can only run sponsored transactions,
// where someone else attaches and pays the fee.
type SponsoredObjectStrategy struct {
	tag      ledger.TypeTag
	captured bool
}

// NewSponsoredObjectStrategy returns a strategy that collects a single
// object matching tag.
func NewSponsoredObjectStrategy(tag ledger.TypeTag) *SponsoredObjectStrategy {
	return &SponsoredObjectStrategy{tag: tag}
}

func (s *SponsoredObjectStrategy) Decide(rec ledger.ObjectRecord) SplitDecision {
	if s.captured {
		return Stop
	}
	if rec.Type.Matches(s.tag) {
		s.captured = true
		return Give
	}
	return Keep
}

func (s *SponsoredObjectStrategy) Satisfied() bool {
	return s.captured
}
