// Package core provides money parsing and handling utilities.
//
// Amounts are held as integer cents. The JSON form is a plain number with at
// most two decimals (e.g. 29.9), converted through shopspring/decimal so no
// float rounding leaks into stored values.
package core

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type Money struct {
	Cents int64
}

// ParseDecimalToCents converts a decimal string to cents with proper rounding.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and rounds
// half-up on the third decimal place. Zero, negative and malformed values are
// rejected with ErrInvalidAmount.
//
// Examples:
//
//	ParseDecimalToCents("12.34")  -> 1234, nil
//	ParseDecimalToCents("12,345") -> 1235, nil
//	ParseDecimalToCents("-1")     -> 0, ErrInvalidAmount
func ParseDecimalToCents(s string) (int64, error) {
	m, err := ParseMoney(s)
	if err != nil {
		return 0, err
	}
	if m.Cents <= 0 {
		return 0, ErrInvalidAmount
	}
	return m.Cents, nil
}

// ParseMoney parses a decimal amount, allowing zero.
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return Money{}, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.ContainsAny(s, "eE") {
		return Money{}, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	return FromDecimal(d)
}

// FromDecimal converts a decimal to cents, rounding half away from zero.
func FromDecimal(d decimal.Decimal) (Money, error) {
	if d.IsNegative() {
		return Money{}, ErrInvalidAmount
	}
	cents := d.Shift(2).Round(0)
	if !cents.BigInt().IsInt64() {
		return Money{}, ErrInvalidAmount
	}
	return Money{Cents: cents.IntPart()}, nil
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Decimal returns the amount in currency units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// Euros returns the value as a float64 for display purposes only.
func (m Money) Euros() float64 {
	return m.Decimal().InexactFloat64()
}

func (m Money) Add(o Money) Money { return Money{Cents: m.Cents + o.Cents} }

func (m Money) Sub(o Money) Money { return Money{Cents: m.Cents - o.Cents} }

// MulFloat multiplies by a quantity and rounds to the cent.
func (m Money) MulFloat(q float64) Money {
	v := decimal.New(m.Cents, 0).Mul(decimal.NewFromFloat(q)).Round(0)
	return Money{Cents: v.IntPart()}
}

// Split divides the amount into n parts of round(m/n, 2). The last part
// absorbs the rounding difference so the parts always sum to m. When
// rounding up would leave the last part below one cent, the parts are
// floored instead.
func (m Money) Split(n int) []Money {
	if n < 1 {
		return nil
	}
	each := m.Decimal().Div(decimal.NewFromInt(int64(n))).Round(2)
	part := Money{Cents: each.Shift(2).IntPart()}
	if m.Cents >= int64(n) && m.Cents-part.Cents*int64(n-1) < 1 {
		part.Cents = m.Cents / int64(n)
	}
	out := make([]Money, n)
	var sum int64
	for i := 0; i < n-1; i++ {
		out[i] = part
		sum += part.Cents
	}
	out[n-1] = Money{Cents: m.Cents - sum}
	return out
}

func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.Decimal().String()), nil
}

func (m *Money) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*m = Money{}
		return nil
	}
	raw := strings.Trim(string(data), `"`)
	raw = strings.ReplaceAll(raw, ",", ".")
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return fmt.Errorf("money %s: %w", data, ErrInvalidAmount)
	}
	v, err := FromDecimal(d)
	if err != nil {
		return fmt.Errorf("money %s: %w", data, err)
	}
	*m = v
	return nil
}
