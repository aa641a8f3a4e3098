// Package core provides money parsing and handling utilities.
//
// Amounts are entered as decimal strings and stored as integer cents. Input is
// rejected when it is negative or carries more than two significant fractional
// digits; storage never re-validates.
package core

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

var maxCents = decimal.NewFromInt(math.MaxInt64)

// ParseAmount converts a user-entered decimal string to Money.
//
// Both dot (12.34) and comma (12,34) separators are accepted. Zero is allowed.
//
// Examples:
//
//	ParseAmount("12.34")  -> 1234 cents
//	ParseAmount("12,3")   -> 1230 cents
//	ParseAmount("12.345") -> ErrInvalidAmount
//	ParseAmount("-1")     -> ErrInvalidAmount
func ParseAmount(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.ContainsAny(s, "eE") {
		return Money{}, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if d.IsNegative() {
		return Money{}, fmt.Errorf("%w: negative value %q", ErrInvalidAmount, s)
	}
	cents := d.Shift(2)
	if !cents.IsInteger() {
		return Money{}, fmt.Errorf("%w: more than two fractional digits in %q", ErrInvalidAmount, s)
	}
	if cents.GreaterThan(maxCents) {
		return Money{}, fmt.Errorf("%w: %q out of range", ErrInvalidAmount, s)
	}
	return Money{Cents: cents.IntPart()}, nil
}

// Decimal returns the amount in currency units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// Euros returns the value as a float64 for display purposes.
// Use cents for calculations to avoid floating-point precision issues.
func (m Money) Euros() float64 {
	return float64(m.Cents) / 100.0
}

// String formats the amount with exactly two fractional digits ("12.30").
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

func (m Money) Add(o Money) Money {
	return Money{Cents: m.Cents + o.Cents}
}
