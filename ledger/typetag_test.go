// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package ledger

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	. "go.chromium.org/luci/common/testing/assertions"
)

func TestParseTypeTag(t *testing.T) {
	t.Parallel()
	Convey("ParseTypeTag", t, func() {
		Convey("decomposes a bare type", func() {
			tag, err := ParseTypeTag("0x7::bench::Widget")
			So(err, ShouldBeNil)
			So(tag, ShouldResemble, TypeTag{Address: "0x7", Module: "bench", Name: "Widget"})
			So(tag.String(), ShouldEqual, "0x7::bench::Widget")
		})
		Convey("decomposes a parameterized type", func() {
			tag, err := ParseTypeTag("0x2::coin::Coin<0x2::lux::LUX>")
			So(err, ShouldBeNil)
			So(tag.TypeParam, ShouldEqual, "0x2::lux::LUX")
			So(tag.String(), ShouldEqual, "0x2::coin::Coin<0x2::lux::LUX>")
		})
		Convey("keeps nested parameters verbatim", func() {
			tag, err := ParseTypeTag("0x2::table::Table<0x2::coin::Coin<0x2::lux::LUX>>")
			So(err, ShouldBeNil)
			So(tag.Module, ShouldEqual, "table")
			So(tag.TypeParam, ShouldEqual, "0x2::coin::Coin<0x2::lux::LUX>")
		})
		Convey("rejects malformed tags", func() {
			for _, bad := range []string{
				"",
				"coin",
				"0x2::coin",
				"0x2::coin::Coin<",
				"0x2::coin::Coin<>",
				"::coin::Coin",
			} {
				_, err := ParseTypeTag(bad)
				So(err, ShouldErrLike, "malformed type tag")
			}
		})
	})
}

func TestTypeTagMatching(t *testing.T) {
	t.Parallel()
	Convey("Matches", t, func() {
		lux := MustParseTypeTag("0x2::coin::Coin<0x2::lux::LUX>")
		usd := MustParseTypeTag("0x2::coin::Coin<0x9::usd::USD>")

		Convey("a bare query selects any parameterization", func() {
			anyCoin := MustParseTypeTag("0x2::coin::Coin")
			So(lux.Matches(anyCoin), ShouldBeTrue)
			So(usd.Matches(anyCoin), ShouldBeTrue)
		})
		Convey("a parameterized query selects exactly one variant", func() {
			So(lux.Matches(lux), ShouldBeTrue)
			So(usd.Matches(lux), ShouldBeFalse)
		})
		Convey("the base identifier must match in full, not by substring", func() {
			So(lux.Matches(MustParseTypeTag("0x2::coin::Coins")), ShouldBeFalse)
			So(lux.Matches(MustParseTypeTag("0x20::coin::Coin")), ShouldBeFalse)
			So(lux.Matches(MustParseTypeTag("0x2::coins::Coin")), ShouldBeFalse)
		})
		Convey("only the native coin pays fees", func() {
			So(IsGasCoin(lux), ShouldBeTrue)
			So(IsGasCoin(usd), ShouldBeFalse)
			So(GasCoinType(), ShouldResemble, lux)
		})
	})
}
