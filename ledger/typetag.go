// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package ledger

import (
	"strings"

	"go.chromium.org/luci/common/errors"
)

// TypeTag is the decomposed form of a fully-qualified object type such as
// "0x2::coin::Coin<0x2::lux::LUX>". Matching is exact on the decomposed
// fields rather than a substring scan of the rendered string, so
// type-parameterized variants never over-match.
type TypeTag struct {
	Address string
	Module  string
	Name    string
	// TypeParam is the raw first type parameter, empty when the type takes
	// none. Nested parameters are kept verbatim inside the string.
	TypeParam string
}

// ParseTypeTag decomposes a rendered type tag.
//
// Accepted shape: address::module::Name or address::module::Name<param>.
func ParseTypeTag(s string) (TypeTag, error) {
	var t TypeTag
	rest := s
	if i := strings.IndexByte(rest, '<'); i >= 0 {
		if !strings.HasSuffix(rest, ">") {
			return t, errors.Reason("malformed type tag %q: unterminated type parameter", s).Err()
		}
		t.TypeParam = rest[i+1 : len(rest)-1]
		if t.TypeParam == "" {
			return t, errors.Reason("malformed type tag %q: empty type parameter", s).Err()
		}
		rest = rest[:i]
	}
	parts := strings.Split(rest, "::")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return t, errors.Reason("malformed type tag %q: want address::module::Name", s).Err()
	}
	t.Address, t.Module, t.Name = parts[0], parts[1], parts[2]
	return t, nil
}

// MustParseTypeTag is ParseTypeTag for static tags; it panics on error.
func MustParseTypeTag(s string) TypeTag {
	t, err := ParseTypeTag(s)
	if err != nil {
		panic(err)
	}
	return t
}

// String renders the tag back to its fully-qualified form.
func (t TypeTag) String() string {
	if t.TypeParam == "" {
		return t.Address + "::" + t.Module + "::" + t.Name
	}
	return t.Address + "::" + t.Module + "::" + t.Name + "<" + t.TypeParam + ">"
}

// IsZero reports whether the tag is entirely unset, which is how records
// created from bare execution effects look until their type is refetched.
func (t TypeTag) IsZero() bool {
	return t == TypeTag{}
}

// Matches reports whether t satisfies the query tag. The base identifier
// must match exactly; the type parameter is compared only when the query
// declares one, so a query of "0x2::coin::Coin" selects any coin while
// "0x2::coin::Coin<0x2::lux::LUX>" selects only the native coin.
func (t TypeTag) Matches(query TypeTag) bool {
	if t.Address != query.Address || t.Module != query.Module || t.Name != query.Name {
		return false
	}
	return query.TypeParam == "" || t.TypeParam == query.TypeParam
}

// gasCoinTag is the native currency: the only type accepted as transaction
// fee payment.
var gasCoinTag = TypeTag{Address: "0x2", Module: "coin", Name: "Coin", TypeParam: "0x2::lux::LUX"}

// GasCoinType returns the type tag of the native fee-payment coin.
func GasCoinType() TypeTag {
	return gasCoinTag
}

// IsGasCoin reports whether objects of type t can pay transaction fees.
func IsGasCoin(t TypeTag) bool {
	return t == gasCoinTag
}
