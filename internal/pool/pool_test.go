package pool

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dexlabs/clamm-core/internal/dexerrors"
)

func TestNewRejectsWrongTokenOrder(t *testing.T) {
	_, err := New("B", "A", decimal.NewFromFloat(0.003), 60)
	require.Error(t, err)
	kind, ok := dexerrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, dexerrors.KindValidation, kind)
}

func TestNewAndInitialize(t *testing.T) {
	p, err := New("A", "B", decimal.NewFromFloat(0.003), 60)
	require.NoError(t, err)
	assert.NotEmpty(t, p.PoolHash)

	require.NoError(t, p.Initialize(decimal.NewFromInt(1)))
	assert.Equal(t, int32(0), p.Tick)

	err = p.Initialize(decimal.NewFromInt(2))
	assert.True(t, dexerrors.Is(err, dexerrors.KindConflict))
}

func TestGenPoolHashDeterministic(t *testing.T) {
	h1 := GenPoolHash("A", "B", decimal.NewFromFloat(0.003))
	h2 := GenPoolHash("A", "B", decimal.NewFromFloat(0.003))
	h3 := GenPoolHash("A", "B", decimal.NewFromFloat(0.005))
	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
}

func TestConfigureProtocolFeeBounds(t *testing.T) {
	p, err := New("A", "B", decimal.NewFromFloat(0.003), 60)
	require.NoError(t, err)

	require.NoError(t, p.ConfigureProtocolFee(decimal.NewFromFloat(0.1)))
	assert.True(t, p.ProtocolFees.Equal(decimal.NewFromFloat(0.1)))

	err = p.ConfigureProtocolFee(decimal.NewFromFloat(1.1))
	assert.True(t, dexerrors.Is(err, dexerrors.KindValidation))
}

func TestAddDeltaUnderflow(t *testing.T) {
	_, err := AddDelta(decimal.NewFromInt(10), decimal.NewFromInt(-20))
	assert.True(t, dexerrors.Is(err, dexerrors.KindConflict))

	v, err := AddDelta(decimal.NewFromInt(10), decimal.NewFromInt(-5))
	require.NoError(t, err)
	assert.True(t, v.Equal(decimal.NewFromInt(5)))
}
