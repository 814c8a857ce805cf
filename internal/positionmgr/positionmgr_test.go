package positionmgr

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dexlabs/clamm-core/internal/fixedpoint"
)

func TestNewAssignsDistinctIDs(t *testing.T) {
	a := New("alice", "pool1", -60, 60)
	b := New("alice", "pool1", -60, 60)
	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.True(t, a.Liquidity.IsZero())
}

func TestUpdateMintAccruesNoFeesOnFirstCall(t *testing.T) {
	p := New("alice", "pool1", -60, 60)
	err := p.Update(fixedpoint.F18(decimal.NewFromInt(100)), decimal.NewFromFloat(0.01), decimal.NewFromFloat(0.02))
	require.NoError(t, err)

	assert.True(t, p.Liquidity.Equal(decimal.NewFromInt(100)))
	assert.True(t, p.TokensOwed0.IsZero(), "fee growth delta against zero starting liquidity can't owe anything")
	assert.True(t, p.FeeGrowthInside0Last.Equal(decimal.NewFromFloat(0.01)))
}

func TestUpdateAccruesFeesSinceLastSnapshot(t *testing.T) {
	p := New("alice", "pool1", -60, 60)
	require.NoError(t, p.Update(fixedpoint.F18(decimal.NewFromInt(100)), decimal.Zero, decimal.Zero))

	require.NoError(t, p.Update(fixedpoint.Zero, decimal.NewFromFloat(0.5), decimal.NewFromFloat(0.25)))

	assert.True(t, p.TokensOwed0.Equal(decimal.NewFromInt(50)), "100 liquidity * 0.5 growth = 50, got %s", p.TokensOwed0)
	assert.True(t, p.TokensOwed1.Equal(decimal.NewFromInt(25)))
}

func TestUpdateRejectsBurnBeyondLiquidity(t *testing.T) {
	p := New("alice", "pool1", -60, 60)
	require.NoError(t, p.Update(fixedpoint.F18(decimal.NewFromInt(10)), decimal.Zero, decimal.Zero))

	err := p.Update(fixedpoint.F18(decimal.NewFromInt(-20)), decimal.Zero, decimal.Zero)
	assert.Error(t, err)
}

func TestUpdateRejectsNoOpOnEmptyPosition(t *testing.T) {
	p := New("alice", "pool1", -60, 60)
	err := p.Update(fixedpoint.Zero, decimal.Zero, decimal.Zero)
	assert.Error(t, err)
}

func TestCollectCapsAtOwedBalance(t *testing.T) {
	p := New("alice", "pool1", -60, 60)
	require.NoError(t, p.Update(fixedpoint.F18(decimal.NewFromInt(100)), decimal.Zero, decimal.Zero))
	require.NoError(t, p.Update(fixedpoint.Zero, decimal.NewFromFloat(1), decimal.NewFromFloat(2)))

	amount0, amount1 := p.Collect(decimal.NewFromInt(1000), decimal.NewFromInt(5))
	assert.True(t, amount0.Equal(decimal.NewFromInt(100)), "requested beyond owed caps at the owed balance")
	assert.True(t, amount1.Equal(decimal.NewFromInt(5)))
	assert.True(t, p.TokensOwed0.IsZero())
	assert.True(t, p.TokensOwed1.Equal(decimal.NewFromInt(195)))
}

func TestManagerGetOrCreateIsStableByCompositeKey(t *testing.T) {
	m := NewManager()
	p1 := m.GetOrCreate("alice", "pool1", -60, 60)
	p2 := m.GetOrCreate("alice", "pool1", -60, 60)
	assert.Same(t, p1, p2)

	p3 := m.GetOrCreate("alice", "pool1", -120, 120)
	assert.NotSame(t, p1, p3)

	_, ok := m.Get("bob", "pool1", -60, 60)
	assert.False(t, ok)

	found, ok := m.Get("alice", "pool1", -60, 60)
	require.True(t, ok)
	assert.Same(t, p1, found)
}
