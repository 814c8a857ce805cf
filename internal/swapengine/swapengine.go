// Package swapengine implements the §4.7 swap loop: the per-pool state
// machine that walks sqrtPrice across ticks, accumulating input, output and
// fee-growth, until the specified amount is exhausted or the caller's price
// limit is reached.
package swapengine

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/dexlabs/clamm-core/internal/dexerrors"
	"github.com/dexlabs/clamm-core/internal/fixedpoint"
	"github.com/dexlabs/clamm-core/internal/pool"
	"github.com/dexlabs/clamm-core/internal/swapstep"
	"github.com/dexlabs/clamm-core/internal/tickbitmap"
	"github.com/dexlabs/clamm-core/internal/tickmath"
	"github.com/dexlabs/clamm-core/internal/tickstore"
)

// Request is a single swap call's parameters, per §4.1/§4.7.
type Request struct {
	ZeroForOne       bool
	AmountSpecified  fixedpoint.Decimal // >= 0 exact-input, < 0 exact-output
	SqrtPriceLimit   fixedpoint.Decimal // read only when HasSqrtPriceLimit is set; otherwise the direction's bound is used
	HasSqrtPriceLimit bool
}

// Result is a completed swap's observable effect, per §4.1.
type Result struct {
	Amount0        fixedpoint.Decimal
	Amount1        fixedpoint.Decimal
	SqrtPriceAfter fixedpoint.Decimal
	TickAfter      int32
	LiquidityAfter fixedpoint.Decimal
}

type swapState struct {
	amountSpecifiedRemaining fixedpoint.Decimal
	amountCalculated         fixedpoint.Decimal
	sqrtPrice                fixedpoint.Decimal
	tick                     int32
	liquidity                fixedpoint.Decimal
	feeGrowthGlobal          fixedpoint.Decimal
	protocolFee              fixedpoint.Decimal
}

type stepComputations struct {
	sqrtPriceStart fixedpoint.Decimal
	tickNext       int32
	initialized    bool
	sqrtPriceNext  fixedpoint.Decimal
	amountIn       fixedpoint.Decimal
	amountOut      fixedpoint.Decimal
	feeAmount      fixedpoint.Decimal
}

// Execute runs the swap loop against p, mutating p and the tick store in
// place on success. Per §4.1 isStatic quoting is the caller's job: Execute
// always commits; callers that want a dry run should operate on a cloned
// pool plus a fake tickstore.Store, mirroring the teacher's isStatic flag
// generalized one level up into "which pool/store you pass in" rather than
// a boolean threaded through every call.
func Execute(ctx context.Context, store tickstore.Store, p *pool.Pool, req Request) (Result, error) {
	if err := fixedpoint.RequireNonNegative("liquidity", p.Liquidity); err != nil {
		return Result{}, dexerrors.Inconsistent(err.Error())
	}
	if p.SqrtPrice.IsZero() {
		return Result{}, dexerrors.Validation("pool is not initialized")
	}

	sqrtPriceLimit := req.SqrtPriceLimit
	if !req.HasSqrtPriceLimit {
		if req.ZeroForOne {
			sqrtPriceLimit = fixedpoint.F18(tickmath.MinSqrtPrice.Add(fixedpoint.Epsilon))
		} else {
			sqrtPriceLimit = fixedpoint.F18(tickmath.MaxSqrtPrice.Sub(fixedpoint.Epsilon))
		}
	}

	if req.ZeroForOne {
		if !sqrtPriceLimit.GreaterThan(tickmath.MinSqrtPrice) {
			return Result{}, dexerrors.Validationf("price limit %s below minimum allowed ratio %s", sqrtPriceLimit, tickmath.MinSqrtPrice)
		}
		if !sqrtPriceLimit.LessThan(p.SqrtPrice) {
			return Result{}, dexerrors.Validationf("price limit %s must be less than current price %s for a zeroForOne swap", sqrtPriceLimit, p.SqrtPrice)
		}
	} else {
		if !sqrtPriceLimit.LessThan(tickmath.MaxSqrtPrice) {
			return Result{}, dexerrors.Validationf("price limit %s above maximum allowed ratio %s", sqrtPriceLimit, tickmath.MaxSqrtPrice)
		}
		if !sqrtPriceLimit.GreaterThan(p.SqrtPrice) {
			return Result{}, dexerrors.Validationf("price limit %s must be greater than current price %s for a one-for-zero swap", sqrtPriceLimit, p.SqrtPrice)
		}
	}

	exactInput := req.AmountSpecified.GreaterThanOrEqual(fixedpoint.Zero)

	state := swapState{
		amountSpecifiedRemaining: req.AmountSpecified,
		amountCalculated:         fixedpoint.Zero,
		sqrtPrice:                p.SqrtPrice,
		tick:                     p.Tick,
		liquidity:                p.Liquidity,
	}
	if req.ZeroForOne {
		state.feeGrowthGlobal = p.FeeGrowthGlobal0
	} else {
		state.feeGrowthGlobal = p.FeeGrowthGlobal1
	}

	if logrus.GetLevel() >= logrus.DebugLevel {
		logrus.Debugf("swap start: pool=%s zeroForOne=%t exactInput=%t amountSpecified=%s price=%s limit=%s",
			p.PoolHash, req.ZeroForOne, exactInput, req.AmountSpecified, p.SqrtPrice, sqrtPriceLimit)
	}

	for !fixedpoint.IsZero18(state.amountSpecifiedRemaining) && !state.sqrtPrice.Equal(sqrtPriceLimit) {
		step := stepComputations{sqrtPriceStart: state.sqrtPrice}

		tickNext, initialized := tickbitmap.NextInitializedTickInSameWord(p.Bitmap, state.tick, p.TickSpacing, req.ZeroForOne, state.sqrtPrice)
		if tickNext < tickmath.MinTick || tickNext > tickmath.MaxTick {
			return Result{}, dexerrors.Conflict("Not enough liquidity available in pool")
		}
		step.tickNext, step.initialized = tickNext, initialized

		sqrtPriceNext, err := tickmath.TickToSqrtPrice(step.tickNext)
		if err != nil {
			return Result{}, dexerrors.Inconsistentf("sqrtPrice at tick %d: %v", step.tickNext, err)
		}
		step.sqrtPriceNext = sqrtPriceNext

		target := step.sqrtPriceNext
		if req.ZeroForOne {
			if step.sqrtPriceNext.LessThan(sqrtPriceLimit) {
				target = sqrtPriceLimit
			}
		} else {
			if step.sqrtPriceNext.GreaterThan(sqrtPriceLimit) {
				target = sqrtPriceLimit
			}
		}

		nextSqrtPrice, amountIn, amountOut, feeAmount, err := swapstep.ComputeSwapStep(
			state.sqrtPrice, target, state.liquidity, state.amountSpecifiedRemaining, p.FeeTier)
		if err != nil {
			return Result{}, dexerrors.Inconsistentf("computing swap step: %v", err)
		}
		state.sqrtPrice = nextSqrtPrice
		step.amountIn, step.amountOut, step.feeAmount = amountIn, amountOut, feeAmount

		// A step that neither consumed input nor produced output nor moved
		// the price would loop forever. The expected cause is active
		// liquidity dropping to zero with no further initialized tick to
		// cross — the pool genuinely has nothing left to trade against in
		// this direction. Anything else making no progress is a broken
		// invariant rather than something to retry forever.
		if step.amountIn.IsZero() && step.amountOut.IsZero() && state.sqrtPrice.Equal(step.sqrtPriceStart) {
			if state.liquidity.IsZero() {
				return Result{}, dexerrors.Conflict("Not enough liquidity available in pool")
			}
			return Result{}, dexerrors.Inconsistent("swap step made no progress")
		}

		if exactInput {
			state.amountSpecifiedRemaining = fixedpoint.F18(state.amountSpecifiedRemaining.Sub(step.amountIn).Sub(step.feeAmount))
			state.amountCalculated = fixedpoint.F18(state.amountCalculated.Sub(step.amountOut))
		} else {
			state.amountSpecifiedRemaining = fixedpoint.F18(state.amountSpecifiedRemaining.Add(step.amountOut))
			state.amountCalculated = fixedpoint.F18(state.amountCalculated.Add(step.amountIn).Add(step.feeAmount))
		}

		if p.ProtocolFees.IsPositive() {
			delta := fixedpoint.F18(step.feeAmount.Mul(p.ProtocolFees))
			step.feeAmount = fixedpoint.F18(step.feeAmount.Sub(delta))
			if req.ZeroForOne {
				p.ProtocolFeesToken0 = fixedpoint.F18(p.ProtocolFeesToken0.Add(delta))
			} else {
				p.ProtocolFeesToken1 = fixedpoint.F18(p.ProtocolFeesToken1.Add(delta))
			}
		}

		if state.liquidity.IsPositive() {
			feeGrowthDelta := fixedpoint.F18(step.feeAmount.Div(state.liquidity))
			state.feeGrowthGlobal = fixedpoint.F18(state.feeGrowthGlobal.Add(feeGrowthDelta))
		}

		if state.sqrtPrice.Equal(step.sqrtPriceNext) {
			if step.initialized {
				var feeGrowthGlobal0, feeGrowthGlobal1 fixedpoint.Decimal
				if req.ZeroForOne {
					feeGrowthGlobal0, feeGrowthGlobal1 = state.feeGrowthGlobal, p.FeeGrowthGlobal1
				} else {
					feeGrowthGlobal0, feeGrowthGlobal1 = p.FeeGrowthGlobal0, state.feeGrowthGlobal
				}
				liquidityNet, err := tickstore.FetchOrCreateAndCrossTick(ctx, store, p.PoolHash, step.tickNext, feeGrowthGlobal0, feeGrowthGlobal1)
				if err != nil {
					return Result{}, err
				}
				if req.ZeroForOne {
					liquidityNet = liquidityNet.Neg()
				}
				newLiquidity, err := pool.AddDelta(state.liquidity, liquidityNet)
				if err != nil {
					return Result{}, err
				}
				state.liquidity = newLiquidity
			}
			if req.ZeroForOne {
				state.tick = step.tickNext - 1
			} else {
				state.tick = step.tickNext
			}
		} else if !state.sqrtPrice.Equal(step.sqrtPriceStart) {
			tick, err := tickmath.SqrtPriceToTick(state.sqrtPrice)
			if err != nil {
				return Result{}, dexerrors.Inconsistentf("tick at price %s: %v", state.sqrtPrice, err)
			}
			state.tick = tick
		}

		if logrus.GetLevel() >= logrus.TraceLevel {
			logrus.Tracef("swap step: tick=%d price=%s amountIn=%s amountOut=%s fee=%s liquidity=%s",
				state.tick, state.sqrtPrice, step.amountIn, step.amountOut, step.feeAmount, state.liquidity)
		}
	}

	p.SqrtPrice = state.sqrtPrice
	p.Tick = state.tick
	p.Liquidity = state.liquidity
	if req.ZeroForOne {
		p.FeeGrowthGlobal0 = state.feeGrowthGlobal
	} else {
		p.FeeGrowthGlobal1 = state.feeGrowthGlobal
	}

	var amount0, amount1 fixedpoint.Decimal
	if req.ZeroForOne == exactInput {
		amount0 = fixedpoint.F18(req.AmountSpecified.Sub(state.amountSpecifiedRemaining))
		amount1 = state.amountCalculated
	} else {
		amount0 = state.amountCalculated
		amount1 = fixedpoint.F18(req.AmountSpecified.Sub(state.amountSpecifiedRemaining))
	}

	if logrus.GetLevel() >= logrus.DebugLevel {
		logrus.Debugf("swap done: pool=%s amount0=%s amount1=%s tick=%d price=%s", p.PoolHash, amount0, amount1, p.Tick, p.SqrtPrice)
	}

	return Result{
		Amount0:        amount0,
		Amount1:        amount1,
		SqrtPriceAfter: p.SqrtPrice,
		TickAfter:      p.Tick,
		LiquidityAfter: p.Liquidity,
	}, nil
}
