// Package money holds fixed-point prices with two decimal places.
package money

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Amount is a price in cents. All arithmetic is integer-only.
type Amount int64

var (
	// ErrInvalidAmount indicates a price string that cannot be parsed.
	ErrInvalidAmount = errors.New("money: invalid amount")
	// ErrOverflow indicates arithmetic that does not fit in int64 cents.
	ErrOverflow = errors.New("money: amount overflows")
)

// FromCents wraps a cent count.
func FromCents(cents int64) Amount { return Amount(cents) }

// Cents returns the amount as a cent count.
func (a Amount) Cents() int64 { return int64(a) }

// Add returns a + other, or ErrOverflow when the sum leaves the int64 range.
func (a Amount) Add(other Amount) (Amount, error) {
	if (other > 0 && a > math.MaxInt64-other) || (other < 0 && a < math.MinInt64-other) {
		return 0, fmt.Errorf("%w: %s + %s", ErrOverflow, a, other)
	}
	return a + other, nil
}

// Mul multiplies the amount by a quantity, or returns ErrOverflow when the product leaves the int64 range.
func (a Amount) Mul(qty int64) (Amount, error) {
	if a == 0 || qty == 0 {
		return 0, nil
	}
	product := a * Amount(qty)
	if product/Amount(qty) != a || (a == -1 && qty == math.MinInt64) || (qty == -1 && a == math.MinInt64) {
		return 0, fmt.Errorf("%w: %s x %d", ErrOverflow, a, qty)
	}
	return product, nil
}

// IsNegative reports whether the amount is below zero.
func (a Amount) IsNegative() bool { return a < 0 }

// String formats the amount as major units, e.g. "250.00".
func (a Amount) String() string {
	cents := int64(a)
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

// MarshalJSON renders the amount as a decimal string.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(a.String())), nil
}

// Parse reads a non-negative decimal string with at most two fractional digits.
func Parse(raw string) (Amount, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || strings.HasPrefix(trimmed, "-") || strings.HasPrefix(trimmed, "+") {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	whole, frac, hasFrac := strings.Cut(trimmed, ".")
	if whole == "" {
		whole = "0"
	}
	if hasFrac && (frac == "" || len(frac) > 2) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	if !isDigits(whole) || (hasFrac && !isDigits(frac)) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	for len(frac) < 2 {
		frac += "0"
	}
	major, errMajor := strconv.ParseInt(whole, 10, 64)
	if errMajor != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	minor, errMinor := strconv.ParseInt(frac, 10, 64)
	if errMinor != nil || minor < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	if major > (1<<62)/100 {
		return 0, fmt.Errorf("%w: %q overflows", ErrInvalidAmount, raw)
	}
	return Amount(major*100 + minor), nil
}

// Sum adds a list of amounts, stopping at the first overflow.
func Sum(amounts ...Amount) (Amount, error) {
	var total Amount
	for _, amount := range amounts {
		next, errAdd := total.Add(amount)
		if errAdd != nil {
			return 0, errAdd
		}
		total = next
	}
	return total, nil
}

// isDigits reports whether s is non-empty and made of ASCII digits only.
func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
