package core

import "fmt"

const (
	DivisionExpense DivisionType = "expense"
	DivisionIncome  DivisionType = "income"
	DivisionSplit   DivisionType = "split"
)

// DivisionType tells how a division row counts toward the expense sum.
type DivisionType string

// DivisionItem is one user's share of an expense.
type DivisionItem struct {
	UserID int64        `json:"userId"`
	Sum    Money        `json:"sum"`
	Type   DivisionType `json:"type"`
}

// Share is a user's weight in an uneven split.
type Share struct {
	UserID int64   `json:"userId"`
	Weight float64 `json:"weight"`
}

// Signed returns the item's contribution to the expense total: expense and
// split rows add, income rows subtract.
func (d DivisionItem) Signed() Money {
	if d.Type == DivisionIncome {
		return d.Sum.Negate()
	}
	return d.Sum
}

func (t DivisionType) Valid() bool {
	switch t {
	case DivisionExpense, DivisionIncome, DivisionSplit:
		return true
	default:
		return false
	}
}

// ValidateDivision checks that the signed sum of items is exactly total.
// A mismatch is reported with the residual; it is never corrected here.
func ValidateDivision(total Money, items []DivisionItem) error {
	if len(items) == 0 {
		return NewValidationError("division", "division has no items")
	}
	type key struct {
		user int64
		typ  DivisionType
	}
	seen := make(map[key]struct{}, len(items))
	signed := Zero
	for i, item := range items {
		if !item.Type.Valid() {
			return NewValidationErrorf(fmt.Sprintf("division[%d].type", i), "invalid division type %q", item.Type)
		}
		k := key{item.UserID, item.Type}
		if _, dup := seen[k]; dup {
			return NewValidationErrorf(fmt.Sprintf("division[%d]", i), "duplicate %s row for user %d", item.Type, item.UserID)
		}
		seen[k] = struct{}{}
		signed = signed.Plus(item.Signed())
	}
	if residual := total.Minus(signed); !residual.IsZero() {
		return NewValidationErrorf("division", "division is off by %s (items sum to %s, expected %s)", residual, signed, total)
	}
	return nil
}

// DivideByWeights splits total among users in proportion to their weights.
//
// Each item is the truncated product of total and the user's share. The cents
// lost to truncation are added to the item with the largest share, and the
// result is validated exactly before it is returned.
func DivideByWeights(total Money, shares []Share, typ DivisionType) ([]DivisionItem, error) {
	if len(shares) == 0 {
		return nil, NewValidationError("benefit", "no users to divide between")
	}
	if !typ.Valid() {
		return nil, NewValidationErrorf("type", "invalid division type %q", typ)
	}
	weights := make([]float64, len(shares))
	for i, s := range shares {
		weights[i] = s.Weight
	}
	pct := ToPercentageDistribution(weights)

	items := make([]DivisionItem, 0, len(shares))
	indexOf := make([]int, 0, len(shares))
	largest := -1
	allocated := Zero
	for i, p := range pct {
		if p.IsZero() {
			continue
		}
		sum := total.Multiply(p)
		items = append(items, DivisionItem{UserID: shares[i].UserID, Sum: sum, Type: typ})
		indexOf = append(indexOf, i)
		allocated = allocated.Plus(sum)
		if largest < 0 || p.GreaterThan(pct[indexOf[largest]]) {
			largest = len(items) - 1
		}
	}
	if len(items) == 0 {
		return nil, NewValidationError("benefit", "at least one weight must be positive")
	}
	if residual := total.Minus(allocated); !residual.IsZero() {
		items[largest].Sum = items[largest].Sum.Plus(residual)
	}

	if err := validateSigned(total, items, typ); err != nil {
		return nil, err
	}
	return items, nil
}

// DivideEvenly splits total equally among users.
func DivideEvenly(total Money, users []int64, typ DivisionType) ([]DivisionItem, error) {
	shares := make([]Share, len(users))
	for i, u := range users {
		shares[i] = Share{UserID: u, Weight: 1}
	}
	return DivideByWeights(total, shares, typ)
}

// validateSigned validates items whose rows all share one type; income rows are
// checked against the negated total.
func validateSigned(total Money, items []DivisionItem, typ DivisionType) error {
	if typ == DivisionIncome {
		return ValidateDivision(total.Negate(), items)
	}
	return ValidateDivision(total, items)
}
