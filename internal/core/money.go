// Package core provides the domain types of the bookkeeper: money, dates,
// expenses, recurrence periods and expense divisions.
//
// This file contains the Money value type. Money is stored as integer cents so
// every value is exactly representable at scale 2; arbitrary precision decimals
// only appear while parsing and while scaling by non integer factors, and each
// such result is truncated back to cents before it is returned.
package core

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is an exact amount with two fractional digits. The zero value is 0.00.
type Money struct {
	cents int64
}

var (
	Zero = Money{}
	Cent = Money{cents: 1}

	maxCents = decimal.NewFromInt(math.MaxInt64)
	minCents = decimal.NewFromInt(math.MinInt64 + 1)
)

// MoneyFromCents returns the amount of the given number of cents.
func MoneyFromCents(cents int64) Money {
	return Money{cents: cents}
}

// ParseMoney converts a decimal string to Money, truncating toward zero after
// the second fractional digit.
//
// Both dot (12.34) and comma (12,34) decimal separators are accepted.
//
// Examples:
//
//	ParseMoney("12.34")  -> 12.34
//	ParseMoney("12,349") -> 12.34
//	ParseMoney("-0.019") -> -0.01
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Zero, fmt.Errorf("%w: empty value", ErrInvalidMoneyFormat)
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, fmt.Errorf("%w: %q", ErrInvalidMoneyFormat, s)
	}
	return MoneyFromDecimal(d)
}

// MustParseMoney is ParseMoney for constants and tests; it panics on error.
func MustParseMoney(s string) Money {
	m, err := ParseMoney(s)
	if err != nil {
		panic(err)
	}
	return m
}

// MoneyFromDecimal truncates d to cents.
func MoneyFromDecimal(d decimal.Decimal) (Money, error) {
	c := d.Shift(2).Truncate(0)
	if c.GreaterThan(maxCents) || c.LessThan(minCents) {
		return Zero, fmt.Errorf("%w: %s out of range", ErrInvalidMoneyFormat, d.String())
	}
	return Money{cents: c.IntPart()}, nil
}

// Cents returns the amount in cents.
func (m Money) Cents() int64 {
	return m.cents
}

// Decimal returns the amount as a decimal with two fractional digits.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.cents, -2)
}

func (m Money) Plus(o Money) Money {
	return Money{cents: m.cents + o.cents}
}

func (m Money) Minus(o Money) Money {
	return Money{cents: m.cents - o.cents}
}

func (m Money) Negate() Money {
	return Money{cents: -m.cents}
}

func (m Money) Abs() Money {
	if m.cents < 0 {
		return m.Negate()
	}
	return m
}

// Multiply scales the amount by factor and truncates toward zero.
func (m Money) Multiply(factor decimal.Decimal) Money {
	return Money{cents: decimal.NewFromInt(m.cents).Mul(factor).Truncate(0).IntPart()}
}

// Times multiplies by an integer; the result is exact.
func (m Money) Times(n int64) Money {
	return Money{cents: m.cents * n}
}

// Divide divides the amount by divisor and truncates toward zero, so
// 7.00 / 3 is 2.33 and -7.00 / 3 is -2.33.
func (m Money) Divide(divisor decimal.Decimal) (Money, error) {
	if divisor.IsZero() {
		return Zero, ErrDivisionByZero
	}
	q, _ := decimal.NewFromInt(m.cents).QuoRem(divisor, 0)
	return Money{cents: q.IntPart()}, nil
}

func (m Money) Cmp(o Money) int {
	switch {
	case m.cents < o.cents:
		return -1
	case m.cents > o.cents:
		return 1
	default:
		return 0
	}
}

func (m Money) Equal(o Money) bool { return m.cents == o.cents }
func (m Money) Lt(o Money) bool    { return m.cents < o.cents }
func (m Money) Lte(o Money) bool   { return m.cents <= o.cents }
func (m Money) Gt(o Money) bool    { return m.cents > o.cents }
func (m Money) Gte(o Money) bool   { return m.cents >= o.cents }
func (m Money) IsZero() bool       { return m.cents == 0 }

// Sign returns -1, 0 or 1.
func (m Money) Sign() int {
	return m.Cmp(Zero)
}

// String renders the canonical two digit form, e.g. "47.22" or "-0.05".
func (m Money) String() string {
	c := m.cents
	sign := ""
	if c < 0 {
		sign = "-"
		c = -c
	}
	return sign + strconv.FormatInt(c/100, 10) + "." + fmt.Sprintf("%02d", c%100)
}

// Format renders the amount for display, e.g. "47.22 €".
func (m Money) Format() string {
	return m.String() + " €"
}

// Validate rejects amounts that are not strictly positive.
func (m Money) Validate() error {
	if m.cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Sum adds up all amounts.
func Sum(amounts ...Money) Money {
	total := Zero
	for _, a := range amounts {
		total = total.Plus(a)
	}
	return total
}

// MarshalJSON encodes the amount as a decimal string, e.g. "47.22".
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(m.String())), nil
}

// UnmarshalJSON accepts a decimal string or a JSON number.
func (m *Money) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	s := string(data)
	if strings.HasPrefix(s, `"`) {
		unq, err := strconv.Unquote(s)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidMoneyFormat, s)
		}
		s = unq
	}
	parsed, err := ParseMoney(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
