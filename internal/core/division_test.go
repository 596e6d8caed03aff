package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func item(user int64, sum string, typ DivisionType) DivisionItem {
	return DivisionItem{UserID: user, Sum: MustParseMoney(sum), Type: typ}
}

func TestValidateDivision(t *testing.T) {
	total := MustParseMoney("100.00")

	require.NoError(t, ValidateDivision(total, []DivisionItem{
		item(1, "60.00", DivisionExpense),
		item(2, "40.00", DivisionExpense),
	}))

	// Income rows count negatively.
	require.NoError(t, ValidateDivision(total, []DivisionItem{
		item(1, "120.00", DivisionSplit),
		item(2, "20.00", DivisionIncome),
	}))

	err := ValidateDivision(total, []DivisionItem{
		item(1, "60.00", DivisionExpense),
		item(2, "40.01", DivisionExpense),
	})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
	assert.Contains(t, err.Error(), "off by -0.01")

	err = ValidateDivision(total, []DivisionItem{item(1, "100.00", "gift")})
	assert.True(t, IsValidationError(err))

	err = ValidateDivision(total, []DivisionItem{
		item(1, "50.00", DivisionExpense),
		item(1, "50.00", DivisionExpense),
	})
	assert.True(t, IsValidationError(err))

	assert.True(t, IsValidationError(ValidateDivision(total, nil)))
}

func TestValidateDivisionRejectsOneCentOver(t *testing.T) {
	total := MustParseMoney("47.22")
	over := []DivisionItem{item(1, total.Plus(Cent).String(), DivisionExpense)}
	assert.True(t, IsValidationError(ValidateDivision(total, over)))

	exact := []DivisionItem{item(1, total.String(), DivisionExpense)}
	assert.NoError(t, ValidateDivision(total, exact))
}

func TestDivideByWeights(t *testing.T) {
	tests := []struct {
		name   string
		total  string
		shares []Share
		want   []DivisionItem
	}{
		{
			name:   "thirds put the residual on the first largest share",
			total:  "100.00",
			shares: []Share{{1, 1}, {2, 1}, {3, 1}},
			want:   []DivisionItem{item(1, "33.34", DivisionExpense), item(2, "33.33", DivisionExpense), item(3, "33.33", DivisionExpense)},
		},
		{
			name:   "uneven",
			total:  "10.00",
			shares: []Share{{1, 50}, {2, 150}},
			want:   []DivisionItem{item(1, "2.50", DivisionExpense), item(2, "7.50", DivisionExpense)},
		},
		{
			name:   "residual goes to the largest share",
			total:  "0.10",
			shares: []Share{{1, 1}, {2, 2}},
			want:   []DivisionItem{item(1, "0.03", DivisionExpense), item(2, "0.07", DivisionExpense)},
		},
		{
			name:   "non positive weights are left out",
			total:  "12.34",
			shares: []Share{{1, 1}, {2, -1}, {3, 0}},
			want:   []DivisionItem{item(1, "12.34", DivisionExpense)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			total := MustParseMoney(tt.total)
			got, err := DivideByWeights(total, tt.shares, DivisionExpense)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.NoError(t, ValidateDivision(total, got))
		})
	}
}

func TestDivideByWeightsIncome(t *testing.T) {
	total := MustParseMoney("99.99")
	got, err := DivideEvenly(total, []int64{1, 2}, DivisionIncome)
	require.NoError(t, err)
	assert.Equal(t, []DivisionItem{item(1, "50.00", DivisionIncome), item(2, "49.99", DivisionIncome)}, got)
	assert.NoError(t, ValidateDivision(total.Negate(), got))
}

func TestDivideByWeightsErrors(t *testing.T) {
	total := MustParseMoney("10.00")

	_, err := DivideByWeights(total, nil, DivisionExpense)
	assert.True(t, IsValidationError(err))

	_, err = DivideByWeights(total, []Share{{1, 0}, {2, -2}}, DivisionExpense)
	assert.True(t, IsValidationError(err))

	_, err = DivideByWeights(total, []Share{{1, 1}}, "gift")
	assert.True(t, IsValidationError(err))
}
