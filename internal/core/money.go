// Package core provides money parsing and handling utilities.
//
// Amounts are held as integer cents. Decimal input is parsed with
// shopspring/decimal and rounded to two places, half away from zero, so
// 12.345 becomes 12.35 and 12.344 becomes 12.34. Sums and comparisons never
// touch floating point.
package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type Money struct {
	Cents int64
}

var ErrInvalidAmount = fmt.Errorf("%w: invalid amount", ErrValidation)

var ErrTotalTooLarge = fmt.Errorf("%w: total exceeds limit", ErrValidation)

const (
	// maxCents caps a single amount.
	maxCents = int64(1e15)
	// maxTotalCents caps the sum of one kind for one owner, well inside int64.
	maxTotalCents = int64(1e17)

	// Amounts longer than maxAmountLength or with an exponent outside
	// [minExponent, maxExponent] are rejected before any decimal arithmetic,
	// since rescaling a value like 1e200000000 is unbounded work.
	maxAmountLength = 32
	minExponent     = -10
	maxExponent     = 15
)

// Cents builds a Money value from integer cents.
func Cents(c int64) Money {
	return Money{Cents: c}
}

// ParseMoney parses a decimal amount in either dot (12.34) or comma (12,34)
// notation. Signs are allowed here; positivity is checked by Validate.
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > maxAmountLength {
		return Money{}, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	if exp := d.Exponent(); exp < minExponent || exp > maxExponent {
		return Money{}, ErrInvalidAmount
	}
	return fromDecimal(d)
}

func fromDecimal(d decimal.Decimal) (Money, error) {
	cents := d.Round(2).Shift(2)
	if cents.Abs().GreaterThan(decimal.NewFromInt(maxCents)) {
		return Money{}, ErrInvalidAmount
	}
	return Money{Cents: cents.IntPart()}, nil
}

func (m Money) Validate() error {
	if m.Cents <= 0 || m.Cents > maxCents {
		return ErrInvalidAmount
	}
	return nil
}

// CheckedAdd adds o and fails with ErrTotalTooLarge when the sum leaves
// [-maxTotalCents, maxTotalCents] or would overflow int64.
func (m Money) CheckedAdd(o Money) (Money, error) {
	sum := m.Cents + o.Cents
	if (o.Cents > 0 && sum < m.Cents) || (o.Cents < 0 && sum > m.Cents) ||
		sum > maxTotalCents || sum < -maxTotalCents {
		return Money{}, ErrTotalTooLarge
	}
	return Money{Cents: sum}, nil
}

func (m Money) Sub(o Money) Money {
	return Money{Cents: m.Cents - o.Cents}
}

func (m Money) Neg() Money {
	return Money{Cents: -m.Cents}
}

func (m Money) IsNegative() bool {
	return m.Cents < 0
}

// Decimal returns the amount as a two-place decimal.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// String renders the amount with exactly two decimals, e.g. "120.50".
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

// MarshalJSON writes the amount as a JSON number with two decimals.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts a JSON number or a numeric string.
func (m *Money) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return ErrInvalidAmount
	}
	var s string
	if b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return ErrInvalidAmount
		}
	} else {
		s = string(b)
	}
	parsed, err := ParseMoney(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
