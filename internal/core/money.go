// Package core provides money parsing and rounding utilities.
//
// Amounts are shopspring decimals kept at two decimal places. The helpers in
// this file are the only place where rounding policy lives.
package core

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

var (
	// ShareTolerance is the allowed gap between an entry amount and the sum of its custom shares.
	ShareTolerance = decimal.New(1, -2)

	// NoiseThreshold is the magnitude below which a balance or remainder counts as zero.
	NoiseThreshold = decimal.New(5, -3)
)

// Round2 rounds to two decimal places, half away from zero.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// IsNoise reports whether d is rounding noise (|d| < 0.005).
func IsNoise(d decimal.Decimal) bool {
	return d.Abs().LessThan(NoiseThreshold)
}

// ParseAmount converts a user supplied decimal string into a decimal amount.
//
// Both dot (12.34) and comma (12,34) separators are accepted and the result is
// rounded to two places. Signs, exponents and thousands separators are
// rejected; whether the amount is positive is checked by Entry.Validate.
//
// Examples:
//
//	ParseAmount("12.34")  -> 12.34
//	ParseAmount("12,345") -> 12.35
//	ParseAmount("-1")     -> ErrInvalidAmount
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return decimal.Zero, ErrInvalidAmount
	}
	digits := 0
	for _, p := range parts {
		for _, r := range p {
			if !unicode.IsDigit(r) {
				return decimal.Zero, ErrInvalidAmount
			}
			digits++
		}
	}
	if digits == 0 {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return Round2(d), nil
}

// FormatAmount renders d with exactly two decimals ("25.00").
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}
