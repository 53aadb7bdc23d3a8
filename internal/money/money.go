package money

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrTooManyDecimals = errors.New("amount has too many decimal places")
)

// Epsilon is the tolerance, in minor units, when checking that payer or payee
// shares sum to an expense total (0.01 currency units).
const Epsilon int64 = 1

// ParseMinor parses a decimal string like "12.34" into minor units (1234).
// At most two fractional digits are accepted.
func ParseMinor(input string) (int64, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return 0, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	if d.Exponent() < -2 {
		return 0, ErrTooManyDecimals
	}
	return d.Shift(2).IntPart(), nil
}

// FormatMinor renders minor units as a decimal string with two places.
func FormatMinor(value int64) string {
	return decimal.New(value, -2).StringFixed(2)
}

// Abs returns the magnitude of a signed minor-unit amount.
func Abs(value int64) int64 {
	if value < 0 {
		return -value
	}
	return value
}

// WithinEpsilon reports whether two minor-unit sums agree within Epsilon.
func WithinEpsilon(a, b int64) bool {
	return Abs(a-b) <= Epsilon
}

// SplitEven divides total into n shares that sum exactly to total, spreading
// any remainder cents across the first shares.
func SplitEven(total int64, n int) []int64 {
	if n <= 0 {
		return nil
	}
	base := total / int64(n)
	remainder := total - base*int64(n)
	shares := make([]int64, n)
	for i := range shares {
		shares[i] = base
		if int64(i) < remainder {
			shares[i]++
		}
	}
	return shares
}
