// Package fixedpoint provides the canonical scale-18 decimal arithmetic the
// core engine is built on. All pool, tick and swap-state quantities are
// fixedpoint.Decimal values; the f18 reduction (F18) truncates to the
// canonical scale so that trailing dust from division never leaks into a
// comparison against zero.
package fixedpoint

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Decimal is the engine's numeric type: an arbitrary-precision decimal
// truncated to Scale fractional digits at every reduction point.
type Decimal = decimal.Decimal

// Scale is the canonical number of fractional digits every persisted or
// compared quantity is reduced to.
const Scale = 18

var (
	Zero = decimal.Zero
	One  = decimal.NewFromInt(1)

	// Epsilon is the smallest representable quantity at the canonical
	// scale: 10^-18. Used to nudge an open bound (MinSqrtPrice,
	// MaxSqrtPrice) into a closed one when a caller omits an explicit
	// price limit.
	Epsilon = decimal.New(1, -Scale)
)

// F18 truncates d to the canonical scale, rounding toward zero. Every
// assignment to a SwapState or Pool field that results from a division goes
// through F18 first, per the fixed-point design note.
func F18(d Decimal) Decimal {
	return d.Truncate(Scale)
}

// IsZero18 reports whether d is zero once reduced to the canonical scale,
// absorbing trailing dust the way the swap loop's termination check must.
func IsZero18(d Decimal) bool {
	return F18(d).IsZero()
}

// RequireNonNegative replaces the source's variadic requirePositive(...)
// helper, which silently ignored non-decimal arguments. Each call site now
// names the value it is checking so the error carries a useful cause.
func RequireNonNegative(label string, d Decimal) error {
	if d.IsNegative() {
		return fmt.Errorf("%s must be non-negative, got %s", label, d)
	}
	return nil
}

// RequirePositive is RequireNonNegative's strict counterpart, for values
// that must never be zero (liquidity deltas on mint, fee tiers, ...).
func RequirePositive(label string, d Decimal) error {
	if !d.IsPositive() {
		return fmt.Errorf("%s must be positive, got %s", label, d)
	}
	return nil
}

// Min returns the smaller of a and b.
func Min(a, b Decimal) Decimal {
	if a.GreaterThan(b) {
		return b
	}
	return a
}

// Max returns the larger of a and b.
func Max(a, b Decimal) Decimal {
	if a.LessThan(b) {
		return b
	}
	return a
}
