package recurring

import (
	"bookkeeper/internal/core"
)

// ExpenseChanges is a partial edit of a posting. Nil fields are left as they are.
type ExpenseChanges struct {
	Date       *core.Date             `json:"date,omitempty"`
	Title      *string                `json:"title,omitempty"`
	Receiver   *string                `json:"receiver,omitempty"`
	CategoryID *int64                 `json:"categoryId,omitempty"`
	SourceID   *int64                 `json:"sourceId,omitempty"`
	Type       *core.ExpenseType      `json:"type,omitempty"`
	Sum        *core.Money            `json:"sum,omitempty"`
	Division   []core.DivisionItem    `json:"division,omitempty"`
	Period     *core.RecurrencePeriod `json:"period,omitempty"`
}

// IsEmpty reports whether the changes touch nothing.
func (c ExpenseChanges) IsEmpty() bool {
	return c.Date == nil && c.Title == nil && c.Receiver == nil && c.CategoryID == nil &&
		c.SourceID == nil && c.Type == nil && c.Sum == nil && c.Division == nil && c.Period == nil
}

// Apply returns a validated copy of e with the changes applied. Date and
// Period are not applied here; the engine decides where they go.
//
// When only the sum changes and the posting has a single-typed division, the
// division is redistributed in the proportions of the old rows so that it still
// reconciles to the cent.
func (c ExpenseChanges) Apply(e core.Expense) (core.Expense, error) {
	out := e.Clone()
	if c.Title != nil {
		out.Title = *c.Title
	}
	if c.Receiver != nil {
		out.Receiver = *c.Receiver
	}
	if c.CategoryID != nil {
		out.CategoryID = *c.CategoryID
	}
	if c.SourceID != nil {
		out.SourceID = *c.SourceID
	}
	if c.Type != nil {
		out.Type = *c.Type
	}
	if c.Sum != nil {
		out.Sum = *c.Sum
	}
	if c.Division != nil {
		out.Division = append([]core.DivisionItem(nil), c.Division...)
	} else if (c.Sum != nil || c.Type != nil) && len(out.Division) > 0 {
		rebalanced, err := rebalance(out)
		if err != nil {
			return core.Expense{}, err
		}
		out.Division = rebalanced
	}
	if err := out.Validate(); err != nil {
		return core.Expense{}, err
	}
	return out, nil
}

// rebalance spreads e.Sum over the users of its current division, weighted by
// their old amounts.
func rebalance(e core.Expense) ([]core.DivisionItem, error) {
	typ := e.Division[0].Type
	shares := make([]core.Share, len(e.Division))
	for i, item := range e.Division {
		if item.Type != typ {
			return nil, core.NewValidationError("division", "sum changed on a mixed division: send the new division too")
		}
		shares[i] = core.Share{UserID: item.UserID, Weight: float64(item.Sum.Abs().Cents())}
	}
	if e.Type == core.ExpenseTypeIncome {
		typ = core.DivisionIncome
	} else if typ == core.DivisionIncome {
		typ = core.DivisionExpense
	}
	return core.DivideByWeights(e.Sum, shares, typ)
}
