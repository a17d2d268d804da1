// Package money holds the currency codes and decimal helpers shared by the
// receipt and settlement code.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Currency is an ISO-4217 currency code such as "USD".
type Currency string

const (
	USD Currency = "USD"
	EUR Currency = "EUR"
	GBP Currency = "GBP"
	JPY Currency = "JPY"
	CAD Currency = "CAD"
	AUD Currency = "AUD"
	CHF Currency = "CHF"
	CNY Currency = "CNY"
	INR Currency = "INR"
	BRL Currency = "BRL"
)

// DefaultCurrencies is the set of currencies offered to users.
var DefaultCurrencies = []Currency{USD, EUR, GBP, JPY, CAD, AUD, CHF, CNY, INR, BRL}

// Cents is the number of decimal places amounts are rounded to.
const Cents int32 = 2

var hundred = decimal.NewFromInt(100)

// Normalize upper-cases and trims a currency code. It does not check support.
func Normalize(code string) Currency {
	return Currency(strings.ToUpper(strings.TrimSpace(code)))
}

// Set is a fixed set of supported currencies.
type Set struct {
	codes []Currency
	index map[Currency]struct{}
}

// NewSet builds a Set from the given codes. An empty list yields DefaultCurrencies.
func NewSet(codes []string) (*Set, error) {
	s := &Set{index: make(map[Currency]struct{})}
	if len(codes) == 0 {
		for _, c := range DefaultCurrencies {
			s.add(c)
		}
		return s, nil
	}
	for _, raw := range codes {
		c := Normalize(raw)
		if len(c) != 3 {
			return nil, fmt.Errorf("invalid currency code %q", raw)
		}
		s.add(c)
	}
	return s, nil
}

func (s *Set) add(c Currency) {
	if _, ok := s.index[c]; ok {
		return
	}
	s.index[c] = struct{}{}
	s.codes = append(s.codes, c)
}

// Contains reports whether c is in the set.
func (s *Set) Contains(c Currency) bool {
	_, ok := s.index[c]
	return ok
}

// Codes returns the currencies in configuration order.
func (s *Set) Codes() []Currency {
	out := make([]Currency, len(s.codes))
	copy(out, s.codes)
	return out
}

// Round rounds d to cents. Ties round away from zero, which is half-up for the
// non-negative amounts this package deals with.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Cents)
}

// Percent returns d/100.
func Percent(d decimal.Decimal) decimal.Decimal {
	return d.Div(hundred)
}

// ParseNonNegativeDecimalOrZero parses user-entered text as a decimal.
//
// Blank text, text that is not a number, and negative numbers all yield zero.
// It never returns an error: manual entry treats a bad tax, tip or fee field as
// "not entered" rather than rejecting the receipt.
func ParseNonNegativeDecimalOrZero(text string) decimal.Decimal {
	text = strings.TrimSpace(text)
	if text == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(strings.TrimPrefix(text, "$"))
	if err != nil || d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// NonNegative clamps d to zero from below.
func NonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
