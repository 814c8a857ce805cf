// Package pool implements the pool entity from §3 and §4.6: reserves, fee
// tier, protocol fee, fee-growth accumulators, tick spacing and the tick
// bitmap, plus the deterministic pool-hash derivation callers use as the
// ledger's composite-key identifier.
package pool

import (
	"encoding/hex"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/sha3"

	"github.com/dexlabs/clamm-core/internal/dexerrors"
	"github.com/dexlabs/clamm-core/internal/fixedpoint"
	"github.com/dexlabs/clamm-core/internal/tickbitmap"
	"github.com/dexlabs/clamm-core/internal/tickmath"
)

// TokenClassKey identifies a token class. Comparisons use ordinary string
// ordering, which is the canonical token ordering pools are keyed by.
type TokenClassKey string

// Pool is the per-market state described in §3.
type Pool struct {
	PoolHash    string
	Token0      TokenClassKey
	Token1      TokenClassKey
	FeeTier     fixedpoint.Decimal
	TickSpacing int32

	SqrtPrice fixedpoint.Decimal
	Tick      int32
	Liquidity fixedpoint.Decimal

	FeeGrowthGlobal0 fixedpoint.Decimal
	FeeGrowthGlobal1 fixedpoint.Decimal

	ProtocolFees       fixedpoint.Decimal
	ProtocolFeesToken0 fixedpoint.Decimal
	ProtocolFeesToken1 fixedpoint.Decimal

	Bitmap tickbitmap.Bitmap
}

// New constructs an uninitialized pool for (token0, token1, feeTier),
// enforcing the canonical token0 < token1 ordering invariant from §3.
func New(token0, token1 TokenClassKey, feeTier fixedpoint.Decimal, tickSpacing int32) (*Pool, error) {
	if token0 >= token1 {
		return nil, dexerrors.Validationf(
			"token0 (%s) must sort before token1 (%s) under the canonical token ordering", token0, token1)
	}
	if err := fixedpoint.RequirePositive("feeTier", feeTier); err != nil {
		return nil, dexerrors.Validation(err.Error())
	}
	if tickSpacing <= 0 {
		return nil, dexerrors.Validationf("tickSpacing must be positive, got %d", tickSpacing)
	}

	p := &Pool{
		Token0:             token0,
		Token1:             token1,
		FeeTier:            feeTier,
		TickSpacing:        tickSpacing,
		SqrtPrice:          fixedpoint.Zero,
		Liquidity:          fixedpoint.Zero,
		FeeGrowthGlobal0:   fixedpoint.Zero,
		FeeGrowthGlobal1:   fixedpoint.Zero,
		ProtocolFees:       fixedpoint.Zero,
		ProtocolFeesToken0: fixedpoint.Zero,
		ProtocolFeesToken1: fixedpoint.Zero,
		Bitmap:             tickbitmap.Bitmap{},
	}
	p.PoolHash = GenPoolHash(token0, token1, feeTier)
	return p, nil
}

// GenPoolHash deterministically derives the pool's identifier from
// (token0, token1, feeTier), per §4.6.
func GenPoolHash(token0, token1 TokenClassKey, feeTier fixedpoint.Decimal) string {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(token0))
	h.Write([]byte{'|'})
	h.Write([]byte(token1))
	h.Write([]byte{'|'})
	h.Write([]byte(feeTier.String()))
	return hex.EncodeToString(h.Sum(nil))
}

// Initialize sets the pool's starting price, per the teacher's
// CorePool.Initialize, generalized to the scale-18 tick math in this repo.
func (p *Pool) Initialize(sqrtPrice fixedpoint.Decimal) error {
	if !p.SqrtPrice.IsZero() {
		return dexerrors.Conflict("pool already initialized")
	}
	if err := fixedpoint.RequirePositive("sqrtPrice", sqrtPrice); err != nil {
		return dexerrors.Validation(err.Error())
	}
	tick, err := tickmath.SqrtPriceToTick(sqrtPrice)
	if err != nil {
		return dexerrors.Conflict(err.Error())
	}
	p.SqrtPrice = sqrtPrice
	p.Tick = tick
	return nil
}

// ConfigureProtocolFee validates and persists the protocol-fee fraction,
// per §4.6.
func (p *Pool) ConfigureProtocolFee(f fixedpoint.Decimal) error {
	if f.IsNegative() || f.GreaterThan(fixedpoint.One) {
		return dexerrors.Validationf("protocolFee must be within [0, 1], got %s", f)
	}
	p.ProtocolFees = fixedpoint.F18(f)
	return nil
}

// AddDelta adds a signed liquidity delta, failing with Conflict on
// underflow below zero. Used both for position mint/burn and for the swap
// engine's liquidity update on tick crossing.
func AddDelta(liquidity, delta fixedpoint.Decimal) (fixedpoint.Decimal, error) {
	result := fixedpoint.F18(liquidity.Add(delta))
	if result.IsNegative() {
		return fixedpoint.Decimal{}, dexerrors.Conflict("liquidity underflow")
	}
	return result, nil
}

// TickSpacingToMaxLiquidityPerTick derives the per-tick liquidity cap the
// way the teacher's Uniswap-v3-derived table does: the total tick range
// divided by tick spacing bounds how many ticks can reference a single
// liquidityGross value before it could overflow the chosen numeric type. At
// scale-18 decimal there's no hard overflow, but the cap is kept as the
// spec's MaxLiquidityPerTick knob so a misconfigured pool still gets a
// Conflict instead of unbounded liquidityGross growth.
func TickSpacingToMaxLiquidityPerTick(tickSpacing int32) fixedpoint.Decimal {
	minTick := int64(tickmath.MinTick) / int64(tickSpacing) * int64(tickSpacing)
	maxTick := int64(tickmath.MaxTick) / int64(tickSpacing) * int64(tickSpacing)
	numTicks := (maxTick-minTick)/int64(tickSpacing) + 1

	// A generous ceiling: a fixed liquidity budget spread evenly across every
	// tick slot that could exist at this spacing. This mirrors the shape of
	// the Uniswap v3 per-tick cap without depending on a uint128 bit width
	// that doesn't apply to a decimal type.
	budget := decimal.New(1, 36)
	return fixedpoint.F18(budget.Div(decimal.NewFromInt(numTicks)))
}
