package fixedpoint

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestF18TruncatesTowardZero(t *testing.T) {
	v := decimal.RequireFromString("1.23456789012345678901234")
	got := F18(v)
	assert.Equal(t, "1.234567890123456789", got.String())

	neg := decimal.RequireFromString("-1.23456789012345678901234")
	assert.Equal(t, "-1.234567890123456789", F18(neg).String())
}

func TestIsZero18AbsorbsDust(t *testing.T) {
	dust := decimal.RequireFromString("0.0000000000000000001") // 1e-19, below scale 18
	assert.True(t, IsZero18(dust))
	assert.False(t, IsZero18(decimal.RequireFromString("0.000000000000000001"))) // 1e-18
}

func TestMinMax(t *testing.T) {
	a, b := decimal.NewFromInt(3), decimal.NewFromInt(7)
	assert.True(t, Min(a, b).Equal(a))
	assert.True(t, Max(a, b).Equal(b))
}

func TestRequireNonNegativeAndPositive(t *testing.T) {
	assert.NoError(t, RequireNonNegative("x", decimal.Zero))
	assert.Error(t, RequireNonNegative("x", decimal.NewFromInt(-1)))

	assert.NoError(t, RequirePositive("x", decimal.NewFromInt(1)))
	assert.Error(t, RequirePositive("x", decimal.Zero))
}
