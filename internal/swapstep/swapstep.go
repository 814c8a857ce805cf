// Package swapstep implements the pure swap-step primitive from §4.4: given
// a current and target sqrtPrice, the active liquidity, the remaining
// specified amount and the pool's fee tier, compute how far the price
// actually moves this step and the input/output/fee amounts that move it.
//
// computeSwapStep never touches the ledger or the pool — it is a closed-form
// function of its five arguments, which is what makes the swap engine's
// per-step work O(1) and the whole loop easy to reason about.
package swapstep

import (
	"github.com/dexlabs/clamm-core/internal/fixedpoint"
)

// ComputeSwapStep computes one swap step per §4.4. Direction is inferred
// from sqrtPriceTarget relative to sqrtPriceCurrent: price decreasing means
// zeroForOne. amountRemaining's sign selects exact-input (>= 0) vs
// exact-output (< 0), per the §3 sign convention.
//
// Fee is always assessed on amountIn, never on amountOut.
func ComputeSwapStep(
	sqrtPriceCurrent, sqrtPriceTarget, liquidity, amountRemaining, feePips fixedpoint.Decimal,
) (sqrtPriceNext, amountIn, amountOut, feeAmount fixedpoint.Decimal, err error) {
	zeroForOne := sqrtPriceCurrent.GreaterThanOrEqual(sqrtPriceTarget)
	exactIn := amountRemaining.GreaterThanOrEqual(fixedpoint.Zero)

	if liquidity.IsZero() || sqrtPriceCurrent.Equal(sqrtPriceTarget) {
		return sqrtPriceCurrent, fixedpoint.Zero, fixedpoint.Zero, fixedpoint.Zero, nil
	}

	var sqrtLo, sqrtHi fixedpoint.Decimal
	if zeroForOne {
		sqrtLo, sqrtHi = sqrtPriceTarget, sqrtPriceCurrent
	} else {
		sqrtLo, sqrtHi = sqrtPriceCurrent, sqrtPriceTarget
	}

	if exactIn {
		amountRemainingLessFee := fixedpoint.F18(amountRemaining.Mul(fixedpoint.One.Sub(feePips)))
		if zeroForOne {
			amountIn = amount0Delta(sqrtLo, sqrtHi, liquidity)
		} else {
			amountIn = amount1Delta(sqrtLo, sqrtHi, liquidity)
		}
		if amountRemainingLessFee.GreaterThanOrEqual(amountIn) {
			sqrtPriceNext = sqrtPriceTarget
		} else if zeroForOne {
			sqrtPriceNext = nextSqrtPriceFromAmount0(sqrtPriceCurrent, liquidity, amountRemainingLessFee, true)
		} else {
			sqrtPriceNext = nextSqrtPriceFromAmount1(sqrtPriceCurrent, liquidity, amountRemainingLessFee, true)
		}
	} else {
		if zeroForOne {
			amountOut = amount1Delta(sqrtLo, sqrtHi, liquidity)
		} else {
			amountOut = amount0Delta(sqrtLo, sqrtHi, liquidity)
		}
		amountOutNeeded := amountRemaining.Neg()
		if amountOutNeeded.GreaterThanOrEqual(amountOut) {
			sqrtPriceNext = sqrtPriceTarget
		} else if zeroForOne {
			sqrtPriceNext = nextSqrtPriceFromAmount1(sqrtPriceCurrent, liquidity, amountOutNeeded, false)
		} else {
			sqrtPriceNext = nextSqrtPriceFromAmount0(sqrtPriceCurrent, liquidity, amountOutNeeded, false)
		}
	}

	reachedTarget := sqrtPriceNext.Equal(sqrtPriceTarget)

	if zeroForOne {
		if !(reachedTarget && exactIn) {
			amountIn = amount0Delta(sqrtPriceNext, sqrtPriceCurrent, liquidity)
		}
		if !(reachedTarget && !exactIn) {
			amountOut = amount1Delta(sqrtPriceNext, sqrtPriceCurrent, liquidity)
		}
	} else {
		if !(reachedTarget && exactIn) {
			amountIn = amount1Delta(sqrtPriceCurrent, sqrtPriceNext, liquidity)
		}
		if !(reachedTarget && !exactIn) {
			amountOut = amount0Delta(sqrtPriceCurrent, sqrtPriceNext, liquidity)
		}
	}

	if !exactIn && amountOut.GreaterThan(amountRemaining.Neg()) {
		amountOut = amountRemaining.Neg()
	}

	if exactIn && !sqrtPriceNext.Equal(sqrtPriceTarget) {
		// Price couldn't reach the target with the full budget: whatever
		// is left of the specified amount after paying amountIn is fee.
		feeAmount = fixedpoint.F18(amountRemaining.Sub(amountIn))
	} else if feePips.Equal(fixedpoint.One) {
		return fixedpoint.Decimal{}, fixedpoint.Decimal{}, fixedpoint.Decimal{}, fixedpoint.Decimal{}, errFeePipsIsOne
	} else {
		feeAmount = fixedpoint.F18(amountIn.Mul(feePips).Div(fixedpoint.One.Sub(feePips)))
	}

	return sqrtPriceNext, fixedpoint.F18(amountIn), fixedpoint.F18(amountOut), feeAmount, nil
}

var errFeePipsIsOne = stepError("swapstep: feePips of 1 makes the fee formula divide by zero")

type stepError string

func (e stepError) Error() string { return string(e) }

// amount0Delta returns the token0 delta for a constant-liquidity move
// between sqrtLower and sqrtUpper (sqrtLower <= sqrtUpper):
// Δx = L*(sqrtUpper-sqrtLower)/(sqrtLower*sqrtUpper).
func amount0Delta(sqrtLower, sqrtUpper, liquidity fixedpoint.Decimal) fixedpoint.Decimal {
	if sqrtLower.IsZero() || sqrtUpper.IsZero() || liquidity.IsZero() {
		return fixedpoint.Zero
	}
	numerator := fixedpoint.F18(liquidity.Mul(sqrtUpper.Sub(sqrtLower)))
	denominator := fixedpoint.F18(sqrtLower.Mul(sqrtUpper))
	if denominator.IsZero() {
		return fixedpoint.Zero
	}
	return fixedpoint.F18(numerator.Div(denominator))
}

// amount1Delta returns the token1 delta for the same move:
// Δy = L*(sqrtUpper-sqrtLower).
func amount1Delta(sqrtLower, sqrtUpper, liquidity fixedpoint.Decimal) fixedpoint.Decimal {
	return fixedpoint.F18(liquidity.Mul(sqrtUpper.Sub(sqrtLower)))
}

// nextSqrtPriceFromAmount0 returns the sqrtPrice reached after adding (add)
// or removing (!add) amount of token0 at constant liquidity:
// sqrtPNext = L*sqrtP / (L ± amount*sqrtP).
func nextSqrtPriceFromAmount0(sqrtP, liquidity, amount fixedpoint.Decimal, add bool) fixedpoint.Decimal {
	if amount.IsZero() {
		return sqrtP
	}
	product := fixedpoint.F18(amount.Mul(sqrtP))
	var denom fixedpoint.Decimal
	if add {
		denom = fixedpoint.F18(liquidity.Add(product))
	} else {
		denom = fixedpoint.F18(liquidity.Sub(product))
	}
	if denom.IsZero() || denom.IsNegative() {
		return sqrtP
	}
	return fixedpoint.F18(liquidity.Mul(sqrtP).Div(denom))
}

// nextSqrtPriceFromAmount1 returns the sqrtPrice reached after adding (add)
// or removing (!add) amount of token1 at constant liquidity:
// sqrtPNext = sqrtP ± amount/L.
func nextSqrtPriceFromAmount1(sqrtP, liquidity, amount fixedpoint.Decimal, add bool) fixedpoint.Decimal {
	if liquidity.IsZero() {
		return sqrtP
	}
	quotient := fixedpoint.F18(amount.Div(liquidity))
	if add {
		return fixedpoint.F18(sqrtP.Add(quotient))
	}
	return fixedpoint.F18(sqrtP.Sub(quotient))
}
