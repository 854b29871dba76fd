// Package core provides the onboarding domain types and amount parsing.
//
// Amounts travel as decimal text, exactly as typed, and are only parsed
// into decimal.Decimal when validated or summed.
package core

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// DecimalInputPattern is the per-keystroke filter for signed decimal fields.
// The empty string matches.
var DecimalInputPattern = regexp.MustCompile(`^-?\d*(\.\d*)?$`)

var digitsPattern = regexp.MustCompile(`^\d*$`)

// MatchesDecimalInput reports whether s may be held in a decimal text field.
func MatchesDecimalInput(s string) bool {
	return DecimalInputPattern.MatchString(s)
}

// MatchesCountInput reports whether s may be held in a count field.
func MatchesCountInput(s string) bool {
	return digitsPattern.MatchString(s)
}

// ParseSignedAmount parses decimal text of any sign. Comma separators are
// accepted for pasted values.
//
// Examples:
//
//	ParseSignedAmount("150.5") -> 150.5, nil
//	ParseSignedAmount("-2")    -> -2, nil
//	ParseSignedAmount("")      -> 0, ErrEmptyAmount
func ParseSignedAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	if s == "" {
		return decimal.Zero, ErrEmptyAmount
	}
	if !MatchesDecimalInput(s) || s == "-" || s == "." || s == "-." {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(strings.TrimSuffix(s, "."))
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// ParseAmount parses decimal text that must be strictly positive.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := ParseSignedAmount(s)
	if err != nil {
		return decimal.Zero, err
	}
	if !d.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// IsPositiveAmount reports whether s parses to an amount greater than zero.
func IsPositiveAmount(s string) bool {
	_, err := ParseAmount(s)
	return err == nil
}

// MonthlyPayment splits total evenly over payments, rounded to cents.
func MonthlyPayment(total string, payments int) (decimal.Decimal, error) {
	if payments < 1 {
		return decimal.Zero, ErrInvalidPayments
	}
	amount, err := ParseAmount(total)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.DivRound(decimal.NewFromInt(int64(payments)), 2), nil
}

// SumAmounts totals the parseable amounts, skipping blanks and garbage.
func SumAmounts(amounts ...string) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		if d, err := ParseSignedAmount(a); err == nil {
			total = total.Add(d)
		}
	}
	return total
}
