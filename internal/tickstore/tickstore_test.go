package tickstore

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dexlabs/clamm-core/internal/dexerrors"
	"github.com/dexlabs/clamm-core/internal/fixedpoint"
)

type memStore struct {
	ticks map[int32]*TickData
}

func newMemStore() *memStore { return &memStore{ticks: map[int32]*TickData{}} }

func (m *memStore) GetTick(_ context.Context, _ string, tick int32) (*TickData, bool, error) {
	d, ok := m.ticks[tick]
	if !ok {
		return &TickData{}, false, nil
	}
	return d, true, nil
}

func (m *memStore) PutTick(_ context.Context, _ string, tick int32, data *TickData) error {
	m.ticks[tick] = data
	return nil
}

func TestFetchOrCreateAndCrossTickMissingRecordIsInconsistent(t *testing.T) {
	store := newMemStore()
	_, err := FetchOrCreateAndCrossTick(context.Background(), store, "pool1", 60, decimal.Zero, decimal.Zero)
	require.Error(t, err)
	assert.True(t, dexerrors.Is(err, dexerrors.KindInconsistent))
}

func TestFetchOrCreateAndCrossTickFlipsFeeGrowthOutside(t *testing.T) {
	store := newMemStore()
	store.ticks[60] = &TickData{
		LiquidityNet:      decimal.NewFromInt(500),
		FeeGrowthOutside0: decimal.NewFromFloat(0.2),
		FeeGrowthOutside1: decimal.NewFromFloat(0.1),
		Initialised:       true,
	}

	liquidityNet, err := FetchOrCreateAndCrossTick(context.Background(), store, "pool1", 60, decimal.NewFromFloat(1), decimal.NewFromFloat(0.5))
	require.NoError(t, err)
	assert.True(t, liquidityNet.Equal(decimal.NewFromInt(500)))

	got := store.ticks[60]
	assert.True(t, got.FeeGrowthOutside0.Equal(decimal.NewFromFloat(0.8)), "1 - 0.2 = 0.8, got %s", got.FeeGrowthOutside0)
	assert.True(t, got.FeeGrowthOutside1.Equal(decimal.NewFromFloat(0.4)), "0.5 - 0.1 = 0.4, got %s", got.FeeGrowthOutside1)
}

func TestUpdateFlipsOnFirstLiquidity(t *testing.T) {
	data := &TickData{}
	maxPerTick := decimal.New(1, 30)

	flipped, err := Update(data, fixedpoint.F18(decimal.NewFromInt(100)), 0, 60, decimal.NewFromFloat(1), decimal.NewFromFloat(2), false, maxPerTick)
	require.NoError(t, err)
	assert.True(t, flipped)
	assert.True(t, data.Initialised)
	assert.True(t, data.LiquidityGross.Equal(decimal.NewFromInt(100)))
	assert.True(t, data.LiquidityNet.Equal(decimal.NewFromInt(100)))
	// thisTick (60) > tickCurrent (0): fee growth outside is not seeded yet.
	assert.True(t, data.FeeGrowthOutside0.IsZero())
}

func TestUpdateSeedsFeeGrowthOutsideBelowCurrentTick(t *testing.T) {
	data := &TickData{}
	maxPerTick := decimal.New(1, 30)

	_, err := Update(data, fixedpoint.F18(decimal.NewFromInt(100)), 120, 60, decimal.NewFromFloat(1), decimal.NewFromFloat(2), false, maxPerTick)
	require.NoError(t, err)
	assert.True(t, data.FeeGrowthOutside0.Equal(decimal.NewFromFloat(1)))
	assert.True(t, data.FeeGrowthOutside1.Equal(decimal.NewFromFloat(2)))
}

func TestUpdateNegatesNetDeltaForUpperTick(t *testing.T) {
	data := &TickData{}
	maxPerTick := decimal.New(1, 30)

	_, err := Update(data, fixedpoint.F18(decimal.NewFromInt(100)), 0, 60, decimal.Zero, decimal.Zero, true, maxPerTick)
	require.NoError(t, err)
	assert.True(t, data.LiquidityGross.Equal(decimal.NewFromInt(100)))
	assert.True(t, data.LiquidityNet.Equal(decimal.NewFromInt(-100)))
}

func TestUpdateRejectsGrossUnderflow(t *testing.T) {
	data := &TickData{LiquidityGross: decimal.NewFromInt(10)}
	maxPerTick := decimal.New(1, 30)

	_, err := Update(data, fixedpoint.F18(decimal.NewFromInt(-20)), 0, 60, decimal.Zero, decimal.Zero, false, maxPerTick)
	assert.True(t, dexerrors.Is(err, dexerrors.KindConflict))
}

func TestUpdateRejectsExceedingMaxLiquidityPerTick(t *testing.T) {
	data := &TickData{}
	maxPerTick := decimal.NewFromInt(50)

	_, err := Update(data, fixedpoint.F18(decimal.NewFromInt(100)), 0, 60, decimal.Zero, decimal.Zero, false, maxPerTick)
	assert.True(t, dexerrors.Is(err, dexerrors.KindConflict))
}

func TestUpdateUnflipsWhenLiquidityReturnsToZero(t *testing.T) {
	data := &TickData{LiquidityGross: decimal.NewFromInt(100), LiquidityNet: decimal.NewFromInt(100), Initialised: true}
	maxPerTick := decimal.New(1, 30)

	flipped, err := Update(data, fixedpoint.F18(decimal.NewFromInt(-100)), 0, 60, decimal.Zero, decimal.Zero, false, maxPerTick)
	require.NoError(t, err)
	assert.True(t, flipped)
	assert.True(t, data.LiquidityGross.IsZero())
}

func TestClearResetsRecord(t *testing.T) {
	data := &TickData{LiquidityGross: decimal.NewFromInt(100), Initialised: true}
	Clear(data)
	assert.True(t, data.LiquidityGross.IsZero())
	assert.False(t, data.Initialised)
}

func TestFeeGrowthInsideCurrentTickWithinRange(t *testing.T) {
	lower := &TickData{FeeGrowthOutside0: decimal.NewFromInt(10), FeeGrowthOutside1: decimal.NewFromInt(1)}
	upper := &TickData{FeeGrowthOutside0: decimal.NewFromInt(30), FeeGrowthOutside1: decimal.NewFromInt(3)}

	inside0, inside1 := FeeGrowthInside(lower, upper, 0, -60, 60, decimal.NewFromInt(100), decimal.NewFromInt(10))
	// below = lower.outside (tickCurrent >= tickLower); above = upper.outside (tickCurrent < tickUpper)
	// inside = global - below - above = 100 - 10 - 30 = 60
	assert.True(t, inside0.Equal(decimal.NewFromInt(60)), "got %s", inside0)
	assert.True(t, inside1.Equal(decimal.NewFromInt(6)), "got %s", inside1)
}

func TestFeeGrowthInsideCurrentTickBelowRange(t *testing.T) {
	lower := &TickData{FeeGrowthOutside0: decimal.NewFromInt(90)}
	upper := &TickData{FeeGrowthOutside0: decimal.NewFromInt(5)}

	inside0, _ := FeeGrowthInside(lower, upper, -120, -60, 60, decimal.NewFromInt(100), decimal.Zero)
	// below = global - lower.outside = 10 (tickCurrent < tickLower); above = upper.outside = 5
	// inside = 100 - 10 - 5 = 85
	assert.True(t, inside0.Equal(decimal.NewFromInt(85)), "got %s", inside0)
}

func TestFeeGrowthInsideCurrentTickAboveRange(t *testing.T) {
	lower := &TickData{FeeGrowthOutside0: decimal.NewFromInt(5)}
	upper := &TickData{FeeGrowthOutside0: decimal.NewFromInt(90)}

	inside0, _ := FeeGrowthInside(lower, upper, 120, -60, 60, decimal.NewFromInt(100), decimal.Zero)
	// below = lower.outside = 5 (tickCurrent >= tickLower); above = global - upper.outside = 10
	// inside = 100 - 5 - 10 = 85
	assert.True(t, inside0.Equal(decimal.NewFromInt(85)), "got %s", inside0)
}
