package ledgerreplica

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/dexlabs/clamm-core/internal/pool"
	"github.com/dexlabs/clamm-core/internal/tickstore"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&PoolRow{}, &TickRow{}))
	return New(db)
}

func newFlushTestPool(t *testing.T) *pool.Pool {
	t.Helper()
	p, err := pool.New("A", "B", decimal.NewFromFloat(0.003), 60)
	require.NoError(t, err)
	require.NoError(t, p.Initialize(decimal.NewFromInt(1)))
	return p
}

func TestFlushPoolCreatesThenUpdates(t *testing.T) {
	store := newTestStore(t)
	p := newFlushTestPool(t)

	require.NoError(t, store.FlushPool(p))

	loaded, ok, err := store.LoadPool(p.PoolHash)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, loaded.SqrtPrice.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, int32(0), loaded.Tick)

	p.Tick = 60
	p.SqrtPrice = decimal.NewFromFloat(1.00005)
	p.Liquidity = decimal.NewFromInt(500)
	require.NoError(t, store.FlushPool(p))

	loaded, ok, err = store.LoadPool(p.PoolHash)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int32(60), loaded.Tick)
	assert.True(t, loaded.Liquidity.Equal(decimal.NewFromInt(500)))
}

func TestLoadPoolMissingReturnsNotFound(t *testing.T) {
	store := newTestStore(t)
	_, ok, err := store.LoadPool("nonexistent")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFlushTickCreatesThenUpdates(t *testing.T) {
	store := newTestStore(t)

	data := &tickstore.TickData{
		LiquidityGross: decimal.NewFromInt(100),
		LiquidityNet:   decimal.NewFromInt(100),
		Initialised:    true,
	}
	require.NoError(t, store.FlushTick("pool1", 60, data))

	loaded, ok, err := store.LoadTick("pool1", 60)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, loaded.LiquidityGross.Equal(decimal.NewFromInt(100)))

	data.LiquidityGross = decimal.NewFromInt(250)
	require.NoError(t, store.FlushTick("pool1", 60, data))

	loaded, ok, err = store.LoadTick("pool1", 60)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, loaded.LiquidityGross.Equal(decimal.NewFromInt(250)))
}

func TestLoadTickMissingReturnsNotFound(t *testing.T) {
	store := newTestStore(t)
	_, ok, err := store.LoadTick("pool1", 999)
	require.NoError(t, err)
	assert.False(t, ok)
}
