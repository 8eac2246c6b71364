package program

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayout(t *testing.T) {
	tests := []struct {
		name       string
		amount     uint64
		rate       uint64
		winning    bool
		wantPayout uint64
		wantFee    uint64
	}{
		{"win with fee", 1000, 5, true, 950, 50},
		{"win rounds fee down", 999, 5, true, 950, 49},
		{"win without fee", 1000, 0, true, 1000, 0},
		{"win with full fee", 1000, 100, true, 0, 1000},
		{"loss", 1000, 5, false, 0, 0},
		{"tiny stake", 1, 50, true, 1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payout, fee, err := Payout(tt.amount, tt.rate, tt.winning)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPayout, payout)
			assert.Equal(t, tt.wantFee, fee)
		})
	}
}

func TestFeeOverflow(t *testing.T) {
	_, err := Fee(math.MaxUint64, 2)
	assert.ErrorIs(t, err, ErrArithmeticOverflow)

	fee, err := Fee(math.MaxUint64, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64/100), fee)
}

func TestCheckedArithmetic(t *testing.T) {
	_, err := checkedAdd(math.MaxUint64, 1)
	assert.ErrorIs(t, err, ErrArithmeticOverflow)
	_, err = checkedSub(1, 2)
	assert.ErrorIs(t, err, ErrArithmeticUnderflow)

	v, err := checkedSub(5, 5)
	require.NoError(t, err)
	assert.Zero(t, v)
}

func TestIsWinning(t *testing.T) {
	assert.True(t, IsWinning(PredictionUp, 100, 120))
	assert.True(t, IsWinning(PredictionUp, 100, 100), "flat price resolves up")
	assert.False(t, IsWinning(PredictionUp, 100, 99))
	assert.True(t, IsWinning(PredictionDown, 100, 99))
	assert.False(t, IsWinning(PredictionDown, 100, 100))
	assert.False(t, IsWinning(PredictionType(9), 100, 50))
}

func TestParsePredictionType(t *testing.T) {
	up, err := ParsePredictionType("up")
	require.NoError(t, err)
	assert.Equal(t, PredictionUp, up)

	down, err := ParsePredictionType("DOWN")
	require.NoError(t, err)
	assert.Equal(t, PredictionDown, down)

	_, err = ParsePredictionType("sideways")
	assert.ErrorIs(t, err, ErrInvalidPredictionType)
}

func TestErrorByCode(t *testing.T) {
	e, ok := ErrorByCode(6003)
	require.True(t, ok)
	assert.Same(t, ErrNotYetExpired, e)
	assert.Contains(t, e.Error(), "NotYetExpired")

	_, ok = ErrorByCode(42)
	assert.False(t, ok)
}
