package core

import "sort"

// CategoryAmount is the signed total of a month's postings in one category.
type CategoryAmount struct {
	CategoryID int64 `json:"categoryId"`
	Amount     Money `json:"amount"`
}

// MonthOverview is the listing of a specific year+month.
type MonthOverview struct {
	Year       int              `json:"year"`
	Month      int              `json:"month"` // 1-12
	Expenses   []Expense        `json:"expenses"`
	Spent      Money            `json:"spent"`
	Earned     Money            `json:"earned"`
	ByCategory []CategoryAmount `json:"byCategory"`
}

// NewMonthOverview sorts expenses by date and id and totals them. Transfers
// are listed but count toward neither spent nor earned.
func NewMonthOverview(year, month int, expenses []Expense) MonthOverview {
	sorted := append([]Expense(nil), expenses...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Date.Equal(sorted[j].Date) {
			return sorted[i].Date.Before(sorted[j].Date)
		}
		return sorted[i].ID < sorted[j].ID
	})

	ov := MonthOverview{Year: year, Month: month, Expenses: sorted}
	byCat := map[int64]Money{}
	for _, e := range sorted {
		switch e.Type {
		case ExpenseTypeExpense:
			ov.Spent = ov.Spent.Plus(e.Sum)
			byCat[e.CategoryID] = byCat[e.CategoryID].Plus(e.Sum)
		case ExpenseTypeIncome:
			ov.Earned = ov.Earned.Plus(e.Sum)
			byCat[e.CategoryID] = byCat[e.CategoryID].Minus(e.Sum)
		}
	}
	for id, amount := range byCat {
		ov.ByCategory = append(ov.ByCategory, CategoryAmount{CategoryID: id, Amount: amount})
	}
	sort.Slice(ov.ByCategory, func(i, j int) bool {
		return ov.ByCategory[i].CategoryID < ov.ByCategory[j].CategoryID
	})
	return ov
}

// MonthBounds returns the first and last day of a month.
func MonthBounds(year, month int) (Date, Date) {
	first := NewDate(year, month, 1)
	return first, first.EndOfMonth()
}
