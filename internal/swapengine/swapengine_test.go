package swapengine

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dexlabs/clamm-core/internal/dexerrors"
	"github.com/dexlabs/clamm-core/internal/fixedpoint"
	"github.com/dexlabs/clamm-core/internal/pool"
	"github.com/dexlabs/clamm-core/internal/tickbitmap"
	"github.com/dexlabs/clamm-core/internal/tickmath"
	"github.com/dexlabs/clamm-core/internal/tickstore"
)

type memStore struct {
	ticks map[int32]*tickstore.TickData
}

func newMemStore() *memStore { return &memStore{ticks: map[int32]*tickstore.TickData{}} }

func (m *memStore) GetTick(_ context.Context, _ string, tick int32) (*tickstore.TickData, bool, error) {
	d, ok := m.ticks[tick]
	if !ok {
		return &tickstore.TickData{}, false, nil
	}
	return d, true, nil
}

func (m *memStore) PutTick(_ context.Context, _ string, tick int32, data *tickstore.TickData) error {
	m.ticks[tick] = data
	return nil
}

func newTestPool(t *testing.T, liquidity decimal.Decimal) *pool.Pool {
	t.Helper()
	p, err := pool.New("A", "B", decimal.NewFromFloat(0.003), 60)
	require.NoError(t, err)
	// Not exactly 1: a price sitting precisely on a tick's lower boundary
	// would make the first bitmap-word-boundary step a zero-progress no-op.
	require.NoError(t, p.Initialize(decimal.NewFromFloat(1.00002)))
	p.Liquidity = liquidity
	return p
}

func TestSingleTickSwapExactInputNoCrossing(t *testing.T) {
	p := newTestPool(t, decimal.RequireFromString("1000000000000000000"))
	store := newMemStore()

	result, err := Execute(context.Background(), store, p, Request{
		ZeroForOne:        true,
		AmountSpecified:   fixedpoint.F18(decimal.NewFromInt(1000)),
		SqrtPriceLimit:    decimal.NewFromFloat(0.9),
		HasSqrtPriceLimit: true,
	})
	require.NoError(t, err)

	assert.True(t, result.Amount0.IsPositive())
	assert.True(t, result.Amount1.IsNegative())
	assert.Equal(t, int32(0), result.TickAfter, "price move within the 0/-1 tick band shouldn't cross")
	assert.True(t, p.FeeGrowthGlobal0.IsPositive())
}

func TestCrossOneInitializedTick(t *testing.T) {
	p := newTestPool(t, decimal.RequireFromString("1000000000000000000"))
	store := newMemStore()

	tickbitmap.FlipTick(p.Bitmap, -60, p.TickSpacing)
	store.ticks[-60] = &tickstore.TickData{
		LiquidityGross: decimal.RequireFromString("500000000000000000"),
		LiquidityNet:   decimal.RequireFromString("500000000000000000"),
		Initialised:    true,
	}

	// Pin the limit exactly at the tick being crossed so the loop stops
	// right there; otherwise a lone initialized tick in the bitmap leaves
	// nothing to arrest the price on the way toward MinSqrtPrice.
	limit, err := tickmath.TickToSqrtPrice(-60)
	require.NoError(t, err)

	result, err := Execute(context.Background(), store, p, Request{
		ZeroForOne:        true,
		AmountSpecified:   fixedpoint.F18(decimal.RequireFromString("10000000000000000")),
		SqrtPriceLimit:    limit,
		HasSqrtPriceLimit: true,
	})
	require.NoError(t, err)

	assert.Equal(t, int32(-61), result.TickAfter)
	assert.True(t, result.LiquidityAfter.Equal(decimal.RequireFromString("500000000000000000")),
		"crossing downward negates the tick's stored liquidityNet: 1e18 - 5e17 = 5e17, got %s", result.LiquidityAfter)
}

func TestHitPriceLimitBeforeExhaustingAmount(t *testing.T) {
	p := newTestPool(t, decimal.RequireFromString("1000000000000000000"))
	store := newMemStore()

	amountSpecified := decimal.RequireFromString("10000000000000000000") // far more than the ~1e15 needed to reach the limit at this liquidity
	result, err := Execute(context.Background(), store, p, Request{
		ZeroForOne:        true,
		AmountSpecified:   fixedpoint.F18(amountSpecified),
		SqrtPriceLimit:    decimal.NewFromFloat(0.999),
		HasSqrtPriceLimit: true,
	})
	require.NoError(t, err)
	assert.True(t, p.SqrtPrice.Equal(decimal.NewFromFloat(0.999)))
	assert.True(t, result.Amount0.LessThan(amountSpecified))
}

func TestInsufficientLiquidity(t *testing.T) {
	p := newTestPool(t, decimal.Zero)
	store := newMemStore()

	_, err := Execute(context.Background(), store, p, Request{
		ZeroForOne:      true,
		AmountSpecified: fixedpoint.F18(decimal.NewFromInt(1000)),
	})
	require.Error(t, err)
	assert.True(t, dexerrors.Is(err, dexerrors.KindConflict))
}

func TestProtocolFeeDiversion(t *testing.T) {
	p := newTestPool(t, decimal.RequireFromString("1000000000000000000"))
	require.NoError(t, p.ConfigureProtocolFee(decimal.NewFromFloat(0.25)))
	store := newMemStore()

	_, err := Execute(context.Background(), store, p, Request{
		ZeroForOne:        true,
		AmountSpecified:   fixedpoint.F18(decimal.NewFromInt(1000)),
		SqrtPriceLimit:    decimal.NewFromFloat(0.9),
		HasSqrtPriceLimit: true,
	})
	require.NoError(t, err)
	assert.True(t, p.ProtocolFeesToken0.IsPositive())
}
