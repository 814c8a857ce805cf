// Package tickmath implements the bidirectional mapping between signed tick
// indices and sqrtPrice values described in §4.2: tickToSqrtPrice(t) =
// 1.0001^(t/2), and its inverse via the monotonicity of that function.
//
// The source computes this with a precomputed lookup table of base
// multipliers combined by iterated squaring. This package gets the same
// "exact up to canonical scale, deterministic across platforms" property a
// different way: sqrt(1.0001) is computed once at fixed binary precision
// with math/big.Float.Sqrt, and tickToSqrtPrice raises that base to the
// tick via exponentiation by squaring — the textbook iterated-squaring
// technique, just built on an exact irrational base instead of hardcoded
// per-bit magic constants.
package tickmath

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/dexlabs/clamm-core/internal/fixedpoint"
)

const (
	// MinTick and MaxTick bound the representable tick range: the same
	// bounds used throughout the Uniswap v3 family, chosen so that
	// tickToSqrtPrice stays representable at this scale.
	MinTick int32 = -887272
	MaxTick int32 = 887272

	// precisionBits is the working precision for the big.Float base and
	// its powers. It is fixed (not derived from the host's float type),
	// so results are identical on every platform.
	precisionBits = 256
)

var (
	sqrtRatioPerTick    *big.Float
	sqrtRatioPerTickInv *big.Float

	// MinSqrtPrice and MaxSqrtPrice are tickToSqrtPrice(MinTick) and
	// tickToSqrtPrice(MaxTick), precomputed once.
	MinSqrtPrice fixedpoint.Decimal
	MaxSqrtPrice fixedpoint.Decimal
)

func init() {
	base := new(big.Float).SetPrec(precisionBits)
	if _, ok := base.SetString("1.0001"); !ok {
		panic("tickmath: failed to parse base literal")
	}
	sqrtRatioPerTick = new(big.Float).SetPrec(precisionBits).Sqrt(base)
	sqrtRatioPerTickInv = new(big.Float).SetPrec(precisionBits).Quo(big.NewFloat(1), sqrtRatioPerTick)

	var err error
	MinSqrtPrice, err = TickToSqrtPrice(MinTick)
	if err != nil {
		panic(err)
	}
	MaxSqrtPrice, err = TickToSqrtPrice(MaxTick)
	if err != nil {
		panic(err)
	}
}

// TickToSqrtPrice computes 1.0001^(tick/2) at canonical scale, per §4.2.
func TickToSqrtPrice(tick int32) (fixedpoint.Decimal, error) {
	if tick < MinTick || tick > MaxTick {
		return fixedpoint.Decimal{}, fmt.Errorf("tickmath: tick %d out of bounds [%d, %d]", tick, MinTick, MaxTick)
	}
	result := bigFloatPow(sqrtRatioPerTick, sqrtRatioPerTickInv, tick)
	d, err := bigFloatToDecimal(result)
	if err != nil {
		return fixedpoint.Decimal{}, fmt.Errorf("tickmath: converting tick %d result: %w", tick, err)
	}
	return fixedpoint.F18(d), nil
}

// SqrtPriceToTick computes floor(log base sqrt(1.0001) of p), per §4.2, via
// binary search over the monotonic TickToSqrtPrice — there is no
// scale-18-decimal logarithm in the pack, so the search replaces it.
func SqrtPriceToTick(p fixedpoint.Decimal) (int32, error) {
	if p.LessThan(MinSqrtPrice) || p.GreaterThan(MaxSqrtPrice) {
		return 0, fmt.Errorf("tickmath: sqrtPrice %s out of bounds [%s, %s]", p, MinSqrtPrice, MaxSqrtPrice)
	}
	lo, hi := MinTick, MaxTick
	for lo < hi {
		mid := lo + (hi-lo+1)/2 // bias upward so the search converges to the floor tick
		sp, err := TickToSqrtPrice(mid)
		if err != nil {
			return 0, err
		}
		if sp.LessThanOrEqual(p) {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo, nil
}

// bigFloatPow raises base (or baseInv, for negative exponents) to |exp| by
// repeated squaring.
func bigFloatPow(base, baseInv *big.Float, exp int32) *big.Float {
	result := new(big.Float).SetPrec(precisionBits).SetInt64(1)
	if exp == 0 {
		return result
	}
	b := base
	e := exp
	if e < 0 {
		b = baseInv
		e = -e
	}
	squarer := new(big.Float).SetPrec(precisionBits).Copy(b)
	for e > 0 {
		if e&1 == 1 {
			result = new(big.Float).SetPrec(precisionBits).Mul(result, squarer)
		}
		squarer = new(big.Float).SetPrec(precisionBits).Mul(squarer, squarer)
		e >>= 1
	}
	return result
}

func bigFloatToDecimal(f *big.Float) (fixedpoint.Decimal, error) {
	// A few guard digits beyond the canonical scale so truncation in F18
	// is the only rounding that ever happens.
	text := f.Text('f', fixedpoint.Scale+8)
	return decimal.NewFromString(text)
}
