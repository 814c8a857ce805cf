// Package tickstore implements the per-tick read/create/cross operations
// from §4.5 and the tick lifecycle from §3: created on first use, mutated on
// each crossing, cleared when liquidityGross returns to zero.
package tickstore

import (
	"context"

	"github.com/dexlabs/clamm-core/internal/dexerrors"
	"github.com/dexlabs/clamm-core/internal/fixedpoint"
)

// TickData is a single tick's per-pool record, per §3.
type TickData struct {
	LiquidityGross    fixedpoint.Decimal
	LiquidityNet      fixedpoint.Decimal
	FeeGrowthOutside0 fixedpoint.Decimal
	FeeGrowthOutside1 fixedpoint.Decimal
	Initialised       bool
}

// Store is the seam onto the ledger collaborator for tick records: load by
// (poolHash, tick), and persist. It is satisfied by dexapi's ledger-backed
// tickStore adapter in production and by in-memory fakes in tests.
type Store interface {
	GetTick(ctx context.Context, poolHash string, tick int32) (*TickData, bool, error)
	PutTick(ctx context.Context, poolHash string, tick int32, data *TickData) error
}

// FetchOrCreateAndCrossTick loads the tick record and updates its
// fee-growth-outside accumulators on crossing, per §4.5. It fails with
// Inconsistent only when the bitmap claims the tick is initialized but the
// backing record is missing — callers only invoke this once the swap
// engine's bitmap scan has already reported the tick as initialized.
func FetchOrCreateAndCrossTick(
	ctx context.Context, store Store, poolHash string, tick int32, feeGrowthGlobal0, feeGrowthGlobal1 fixedpoint.Decimal,
) (fixedpoint.Decimal, error) {
	data, ok, err := store.GetTick(ctx, poolHash, tick)
	if err != nil {
		return fixedpoint.Decimal{}, err
	}
	if !ok {
		return fixedpoint.Decimal{}, dexerrors.Inconsistentf(
			"tick %d is initialized in the bitmap for pool %s but has no tick record", tick, poolHash)
	}

	data.FeeGrowthOutside0 = fixedpoint.F18(feeGrowthGlobal0.Sub(data.FeeGrowthOutside0))
	data.FeeGrowthOutside1 = fixedpoint.F18(feeGrowthGlobal1.Sub(data.FeeGrowthOutside1))

	if err := store.PutTick(ctx, poolHash, tick, data); err != nil {
		return fixedpoint.Decimal{}, err
	}
	return data.LiquidityNet, nil
}

// Update applies a liquidity delta to tick (on mint or burn), per the
// standard tick-update rule: liquidityGross moves by the signed delta on
// either side (a burn shrinks it), liquidityNet by the signed delta negated
// for an upper-bound tick, and a freshly-initialized tick's fee-growth-outside is
// seeded as if all fees to date had accrued below it. Returns whether the
// tick's initialized state flipped, so the caller can flip its bitmap bit.
func Update(
	data *TickData, liquidityDelta fixedpoint.Decimal, tickCurrent, thisTick int32,
	feeGrowthGlobal0, feeGrowthGlobal1 fixedpoint.Decimal, upper bool, maxLiquidityPerTick fixedpoint.Decimal,
) (flipped bool, err error) {
	liquidityGrossBefore := data.LiquidityGross
	liquidityGrossAfter := fixedpoint.F18(liquidityGrossBefore.Add(liquidityDelta))
	if liquidityGrossAfter.IsNegative() {
		return false, dexerrors.Conflict("liquidity gross underflow")
	}
	if liquidityGrossAfter.GreaterThan(maxLiquidityPerTick) {
		return false, dexerrors.Conflictf("liquidity gross %s exceeds max liquidity per tick %s", liquidityGrossAfter, maxLiquidityPerTick)
	}

	flipped = liquidityGrossBefore.IsZero() != liquidityGrossAfter.IsZero()

	if liquidityGrossBefore.IsZero() {
		if thisTick <= tickCurrent {
			data.FeeGrowthOutside0 = feeGrowthGlobal0
			data.FeeGrowthOutside1 = feeGrowthGlobal1
		}
		data.Initialised = true
	}

	data.LiquidityGross = liquidityGrossAfter
	netDelta := liquidityDelta
	if upper {
		netDelta = netDelta.Neg()
	}
	data.LiquidityNet = fixedpoint.F18(data.LiquidityNet.Add(netDelta))

	return flipped, nil
}

// Clear resets a tick record to its zero value once liquidityGross returns
// to zero, per the §3 lifecycle note.
func Clear(data *TickData) {
	*data = TickData{}
}

// FeeGrowthInside computes the fee growth accrued inside [tickLower,
// tickUpper] from the pool's global accumulators and each boundary tick's
// feeGrowthOutside, the standard below/above decomposition: whichever side
// of a boundary the current tick sits on determines whether that tick's
// feeGrowthOutside already measures "below" or needs to be inverted against
// the global total first.
func FeeGrowthInside(
	lower, upper *TickData, tickCurrent, tickLower, tickUpper int32, feeGrowthGlobal0, feeGrowthGlobal1 fixedpoint.Decimal,
) (inside0, inside1 fixedpoint.Decimal) {
	var below0, below1 fixedpoint.Decimal
	if tickCurrent >= tickLower {
		below0, below1 = lower.FeeGrowthOutside0, lower.FeeGrowthOutside1
	} else {
		below0 = fixedpoint.F18(feeGrowthGlobal0.Sub(lower.FeeGrowthOutside0))
		below1 = fixedpoint.F18(feeGrowthGlobal1.Sub(lower.FeeGrowthOutside1))
	}

	var above0, above1 fixedpoint.Decimal
	if tickCurrent < tickUpper {
		above0, above1 = upper.FeeGrowthOutside0, upper.FeeGrowthOutside1
	} else {
		above0 = fixedpoint.F18(feeGrowthGlobal0.Sub(upper.FeeGrowthOutside0))
		above1 = fixedpoint.F18(feeGrowthGlobal1.Sub(upper.FeeGrowthOutside1))
	}

	inside0 = fixedpoint.F18(feeGrowthGlobal0.Sub(below0).Sub(above0))
	inside1 = fixedpoint.F18(feeGrowthGlobal1.Sub(below1).Sub(above1))
	return inside0, inside1
}
