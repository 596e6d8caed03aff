package core

import "testing"

func TestNewMonthOverview(t *testing.T) {
	expenses := []Expense{
		{ID: 3, Date: NewDate(2024, 2, 10), Type: ExpenseTypeExpense, Sum: MustParseMoney("10.00"), CategoryID: 1},
		{ID: 1, Date: NewDate(2024, 2, 29), Type: ExpenseTypeIncome, Sum: MustParseMoney("100.00"), CategoryID: 2},
		{ID: 2, Date: NewDate(2024, 2, 10), Type: ExpenseTypeExpense, Sum: MustParseMoney("0.99"), CategoryID: 1},
		{ID: 4, Date: NewDate(2024, 2, 1), Type: ExpenseTypeTransfer, Sum: MustParseMoney("50.00"), CategoryID: 3},
	}

	ov := NewMonthOverview(2024, 2, expenses)

	wantOrder := []int64{4, 2, 3, 1}
	for i, id := range wantOrder {
		if ov.Expenses[i].ID != id {
			t.Fatalf("position %d: expected id %d, got %d", i, id, ov.Expenses[i].ID)
		}
	}
	if ov.Spent.String() != "10.99" || ov.Earned.String() != "100.00" {
		t.Fatalf("unexpected totals spent=%s earned=%s", ov.Spent, ov.Earned)
	}
	if len(ov.ByCategory) != 2 {
		t.Fatalf("expected 2 categories, got %d", len(ov.ByCategory))
	}
	if ov.ByCategory[0].CategoryID != 1 || ov.ByCategory[0].Amount.String() != "10.99" {
		t.Fatalf("unexpected category %+v", ov.ByCategory[0])
	}
	if ov.ByCategory[1].Amount.String() != "-100.00" {
		t.Fatalf("income must count negatively, got %s", ov.ByCategory[1].Amount)
	}
	if expenses[0].ID != 3 {
		t.Fatalf("input slice must not be reordered")
	}
}

func TestMonthBounds(t *testing.T) {
	first, last := MonthBounds(2024, 2)
	if first.String() != "2024-02-01" || last.String() != "2024-02-29" {
		t.Fatalf("unexpected bounds %s %s", first, last)
	}
}
