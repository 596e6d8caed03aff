package core

import "github.com/shopspring/decimal"

// ToPercentageDistribution turns weights into shares of one.
//
// Negative weights are treated as zero. When at least one weight is positive the
// shares sum to exactly 1: the remainder of the decimal division is added to the
// largest share (the first one on ties). When no weight is positive every share
// is zero. The output has the same length and order as the input.
func ToPercentageDistribution(values []float64) []decimal.Decimal {
	shares := make([]decimal.Decimal, len(values))
	weights := make([]decimal.Decimal, len(values))
	total := decimal.Zero
	for i, v := range values {
		w := decimal.Zero
		if v > 0 {
			w = decimal.NewFromFloat(v)
		}
		weights[i] = w
		total = total.Add(w)
	}
	if total.IsZero() {
		for i := range shares {
			shares[i] = decimal.Zero
		}
		return shares
	}

	sum := decimal.Zero
	largest := -1
	for i, w := range weights {
		if w.IsZero() {
			shares[i] = decimal.Zero
			continue
		}
		shares[i] = w.Div(total)
		sum = sum.Add(shares[i])
		if largest < 0 || shares[i].GreaterThan(shares[largest]) {
			largest = i
		}
	}
	if residual := decimal.NewFromInt(1).Sub(sum); !residual.IsZero() {
		shares[largest] = shares[largest].Add(residual)
	}
	return shares
}
