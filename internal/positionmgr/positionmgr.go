// Package positionmgr implements the thin liquidity-position wrapper noted
// in the scope: minting, burning and fee collection over the same
// pool/tick primitives, generalized from the teacher's TokenPosition.
package positionmgr

import (
	"strconv"

	"github.com/google/uuid"

	"github.com/dexlabs/clamm-core/internal/dexerrors"
	"github.com/dexlabs/clamm-core/internal/fixedpoint"
)

// Position is one owner's liquidity range within a pool.
type Position struct {
	ID        string
	Owner     string
	PoolHash  string
	TickLower int32
	TickUpper int32

	Liquidity fixedpoint.Decimal

	FeeGrowthInside0Last fixedpoint.Decimal
	FeeGrowthInside1Last fixedpoint.Decimal

	TokensOwed0 fixedpoint.Decimal
	TokensOwed1 fixedpoint.Decimal
}

// New creates an empty position with a fresh identifier.
func New(owner, poolHash string, tickLower, tickUpper int32) *Position {
	return &Position{
		ID:                   uuid.NewString(),
		Owner:                owner,
		PoolHash:             poolHash,
		TickLower:            tickLower,
		TickUpper:            tickUpper,
		Liquidity:            fixedpoint.Zero,
		FeeGrowthInside0Last: fixedpoint.Zero,
		FeeGrowthInside1Last: fixedpoint.Zero,
		TokensOwed0:          fixedpoint.Zero,
		TokensOwed1:          fixedpoint.Zero,
	}
}

// Update applies a signed liquidity delta (positive: mint, negative: burn)
// against the tick range's current fee-growth-inside snapshot, settling
// fees earned since the last update into TokensOwed before moving the
// snapshot forward.
func (p *Position) Update(liquidityDelta, feeGrowthInside0, feeGrowthInside1 fixedpoint.Decimal) error {
	if liquidityDelta.IsZero() && p.Liquidity.IsZero() {
		return dexerrors.Validation("position has no liquidity to update")
	}
	if liquidityDelta.IsNegative() && p.Liquidity.LessThan(liquidityDelta.Abs()) {
		return dexerrors.Conflict("liquidity underflow")
	}

	tokensOwed0 := fixedpoint.F18(feeGrowthInside0.Sub(p.FeeGrowthInside0Last).Mul(p.Liquidity))
	tokensOwed1 := fixedpoint.F18(feeGrowthInside1.Sub(p.FeeGrowthInside1Last).Mul(p.Liquidity))

	p.Liquidity = fixedpoint.F18(p.Liquidity.Add(liquidityDelta))
	p.FeeGrowthInside0Last = feeGrowthInside0
	p.FeeGrowthInside1Last = feeGrowthInside1

	if tokensOwed0.IsPositive() || tokensOwed1.IsPositive() {
		p.TokensOwed0 = fixedpoint.F18(p.TokensOwed0.Add(tokensOwed0))
		p.TokensOwed1 = fixedpoint.F18(p.TokensOwed1.Add(tokensOwed1))
	}
	return nil
}

// Collect withdraws up to the requested amounts from TokensOwed, per §4's
// position-collection wrapper.
func (p *Position) Collect(amount0Requested, amount1Requested fixedpoint.Decimal) (amount0, amount1 fixedpoint.Decimal) {
	amount0 = fixedpoint.Min(amount0Requested, p.TokensOwed0)
	amount1 = fixedpoint.Min(amount1Requested, p.TokensOwed1)

	p.TokensOwed0 = fixedpoint.F18(p.TokensOwed0.Sub(amount0))
	p.TokensOwed1 = fixedpoint.F18(p.TokensOwed1.Sub(amount1))
	return amount0, amount1
}

// Manager indexes positions by (owner, poolHash, tickLower, tickUpper) in
// process memory. The ledger's DexPositionOwner record is keyed by (owner,
// poolHash) only and holds the tick ranges inside it.
type Manager struct {
	byKey map[string]*Position
}

func NewManager() *Manager {
	return &Manager{byKey: map[string]*Position{}}
}

func key(owner, poolHash string, tickLower, tickUpper int32) string {
	return owner + "|" + poolHash + "|" + strconv.FormatInt(int64(tickLower), 10) + "|" + strconv.FormatInt(int64(tickUpper), 10)
}

func (m *Manager) GetOrCreate(owner, poolHash string, tickLower, tickUpper int32) *Position {
	k := key(owner, poolHash, tickLower, tickUpper)
	if p, ok := m.byKey[k]; ok {
		return p
	}
	p := New(owner, poolHash, tickLower, tickUpper)
	m.byKey[k] = p
	return p
}

func (m *Manager) Get(owner, poolHash string, tickLower, tickUpper int32) (*Position, bool) {
	p, ok := m.byKey[key(owner, poolHash, tickLower, tickUpper)]
	return p, ok
}
