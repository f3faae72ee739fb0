// Copyright 2025 Zintix Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package money provides the arbitrary-precision ledger type used
// everywhere a balance, bet, or payout crosses a session boundary. No
// binary float may reach a ledger field; see FromFloatLossy for the one
// escape hatch, which tags its own lossiness.
package money

import (
	"github.com/shopspring/decimal"
)

// Precision is the minimum number of fractional digits money values carry.
const Precision = 12

func init() {
	decimal.DivisionPrecision = Precision + 4
}

// Money wraps decimal.Decimal. The zero value is zero.
type Money struct {
	d decimal.Decimal
}

// Zero returns the additive identity.
func Zero() Money { return Money{} }

// FromString parses a decimal literal (e.g. "0.00015"). This is the
// normal construction path for config-sourced values.
func FromString(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, err
	}
	return Money{d: d}, nil
}

// FromInt builds a money value representing whole minor units (e.g. cents
// if the caller's convention is cents) with no fractional part.
func FromInt(i int64) Money {
	return Money{d: decimal.NewFromInt(i)}
}

// LossyFloat carries a float64-derived money value plus the tag required
// by spec §4.1: constructing money from a float is either disallowed or
// produces a lossy conversion marked in metadata. This type is the
// "marked in metadata" form — callers must consult Lossy before treating
// Value as trustworthy for ledger arithmetic.
type LossyFloat struct {
	Value Money
	Lossy bool
}

// FromFloatLossy converts f into a Money value, flagging the result as
// lossy. It must never be used on a path that influences ledger balances
// (spec §3); it exists only for boundary conversions (e.g. ingesting an
// external config value someone wrote as a float) where the caller is
// expected to check Lossy and reject or re-derive from a decimal string.
func FromFloatLossy(f float64) LossyFloat {
	return LossyFloat{Value: Money{d: decimal.NewFromFloat(f)}, Lossy: true}
}

// String renders at full native precision.
func (m Money) String() string { return m.d.String() }

// StringFixed renders with exactly n fractional digits, half-to-even.
func (m Money) StringFixed(n int32) string {
	return m.d.RoundBank(n).StringFixed(n)
}

func (m Money) Add(o Money) Money { return Money{d: m.d.Add(o.d)} }
func (m Money) Sub(o Money) Money { return Money{d: m.d.Sub(o.d)} }
func (m Money) Neg() Money        { return Money{d: m.d.Neg()} }

// MulMoney multiplies by another money value, rounding half-to-even to
// Precision fractional digits. Use this for bet * multiplier-as-money;
// prefer MulRat for a raw multiplier literal.
func (m Money) MulMoney(o Money) Money {
	return Money{d: m.d.Mul(o.d).RoundBank(Precision)}
}

// MulRat multiplies by a rational literal parsed from a decimal string
// (e.g. a payout multiplier like "2.00"), rounding half-to-even to
// Precision fractional digits. This is the required path for
// "multiplication by a rational literal" in spec §4.1 — never multiply by
// a bare float64.
func (m Money) MulRat(literal string) (Money, error) {
	r, err := decimal.NewFromString(literal)
	if err != nil {
		return Money{}, err
	}
	return Money{d: m.d.Mul(r).RoundBank(Precision)}, nil
}

// MulFloatMultiplier multiplies by a float64 payout multiplier (e.g. the
// oracle's already-validated bet multiplier M), rounding half-to-even at
// Precision. Spec §3 permits floats for the threshold/multiplier
// computation itself; this is the single controlled boundary where that
// float crosses into a Money result, with rounding applied immediately so
// no raw float propagates further.
func (m Money) MulFloatMultiplier(multiplier float64) Money {
	return Money{d: m.d.Mul(decimal.NewFromFloat(multiplier)).RoundBank(Precision)}
}

// DivRound divides by a divisor, rounding half-to-even to n fractional
// digits. Division producing an unrounded money value is disallowed by
// spec §4.1; this is the only division entry point.
func (m Money) DivRound(divisor Money, n int32) (Money, error) {
	if divisor.d.IsZero() {
		return Money{}, ErrDivByZero
	}
	return Money{d: m.d.DivRound(divisor.d, n+2).RoundBank(n)}, nil
}

func (m Money) Cmp(o Money) int          { return m.d.Cmp(o.d) }
func (m Money) LessThan(o Money) bool    { return m.d.LessThan(o.d) }
func (m Money) GreaterThan(o Money) bool { return m.d.GreaterThan(o.d) }
func (m Money) Equal(o Money) bool       { return m.d.Equal(o.d) }
func (m Money) IsZero() bool             { return m.d.IsZero() }
func (m Money) IsNegative() bool         { return m.d.IsNegative() }
func (m Money) IsPositive() bool         { return m.d.IsPositive() }

// Min/Max are convenience clamps used by the bet-clamping step of the
// engine loop (spec §4.6).
func Min(a, b Money) Money {
	if a.LessThan(b) {
		return a
	}
	return b
}

func Max(a, b Money) Money {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// Clamp returns m bounded to [lo, hi].
func Clamp(m, lo, hi Money) Money {
	if m.LessThan(lo) {
		return lo
	}
	if m.GreaterThan(hi) {
		return hi
	}
	return m
}

// InexactFloat64 is an explicit, named escape hatch for reporting/telemetry
// contexts (e.g. a stats percentile computation) where a float is acceptable
// because the result never flows back into a ledger balance.
func (m Money) InexactFloat64() float64 {
	f, _ := m.d.Float64()
	return f
}

// MarshalJSON/UnmarshalJSON delegate to decimal.Decimal's string encoding
// so money values round-trip through the JSONL event log exactly.
func (m Money) MarshalJSON() ([]byte, error) { return m.d.MarshalJSON() }
func (m *Money) UnmarshalJSON(b []byte) error {
	return m.d.UnmarshalJSON(b)
}
