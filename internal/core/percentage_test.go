package core

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decimals(values ...string) []decimal.Decimal {
	out := make([]decimal.Decimal, len(values))
	for i, v := range values {
		out[i] = decimal.RequireFromString(v)
	}
	return out
}

func assertDecimals(t *testing.T, want, got []decimal.Decimal) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.Truef(t, want[i].Equal(got[i]), "index %d: want %s, got %s", i, want[i], got[i])
	}
}

func TestToPercentageDistribution(t *testing.T) {
	tests := []struct {
		name string
		in   []float64
		want []decimal.Decimal
	}{
		{"uneven", []float64{50, 150}, decimals("0.25", "0.75")},
		{"negative clamps to zero", []float64{1, -1}, decimals("1", "0")},
		{"empty", []float64{}, decimals()},
		{"all zero", []float64{0, 0}, decimals("0", "0")},
		{"all negative", []float64{-5, -1}, decimals("0", "0")},
		{"order preserved", []float64{3, 0, 1}, decimals("0.75", "0", "0.25")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertDecimals(t, tt.want, ToPercentageDistribution(tt.in))
		})
	}
}

func TestToPercentageDistributionSumsToOne(t *testing.T) {
	inputs := [][]float64{
		{1, 1, 1},
		{1, 2, 3, 4, 5, 6, 7},
		{0.1, 0.2, -3, 0.7},
		{33.3, 33.3, 33.3},
	}
	for _, in := range inputs {
		out := ToPercentageDistribution(in)
		require.Len(t, out, len(in))
		total := decimal.Zero
		for i, s := range out {
			assert.False(t, s.IsNegative())
			if in[i] <= 0 {
				assert.True(t, s.IsZero())
			}
			total = total.Add(s)
		}
		assert.Truef(t, total.Equal(decimal.NewFromInt(1)), "%v sums to %s", in, total)
	}
}
