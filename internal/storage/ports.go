package storage

import (
	"context"
	"fmt"

	"bookkeeper/internal/core"
	"bookkeeper/internal/recurring"
)

// Ports implemented by the sqlite repository and the memory store.
type (
	// Store runs units of work. Everything fn does through tx is committed
	// together or not at all.
	Store interface {
		WithTx(ctx context.Context, fn func(tx Tx) error) error
		Close() error
	}

	// Tx is the view of the store inside one transaction. Lookups of missing
	// rows return an error wrapping core.ErrNotFound.
	Tx interface {
		// IDs hands out ids that are never reused.
		IDs() core.IDProvider

		GetExpense(ctx context.Context, id int64) (core.Expense, error)
		// ListExpenses returns the postings of a group dated in [from, to].
		ListExpenses(ctx context.Context, groupID int64, from, to core.Date) ([]core.Expense, error)
		// ListAttached returns the postings attached to a recurrence.
		ListAttached(ctx context.Context, recurringID int64) ([]core.Expense, error)
		// InsertExpense stores e, assigning an id when e has none.
		InsertExpense(ctx context.Context, e core.Expense) (core.Expense, error)
		UpdateExpense(ctx context.Context, e core.Expense) error
		DeleteExpense(ctx context.Context, id int64) error

		GetRecurring(ctx context.Context, id int64) (core.RecurringExpense, error)
		ListRecurring(ctx context.Context, groupID int64) ([]core.RecurringExpense, error)
		// ListPending returns every recurrence with an occurrence missing on or
		// before upTo, across all groups.
		ListPending(ctx context.Context, upTo core.Date) ([]core.RecurringExpense, error)
		SaveRecurring(ctx context.Context, def core.RecurringExpense) error
		// DeleteRecurring removes a recurrence; postings still attached to it
		// are detached, never deleted.
		DeleteRecurring(ctx context.Context, id int64) error
	}
)

// Apply writes plan through tx. Definitions are saved first so new occurrences
// can reference them, and deleted last.
func Apply(ctx context.Context, tx Tx, plan recurring.Plan) error {
	for _, def := range plan.SaveDefinitions {
		if err := tx.SaveRecurring(ctx, def); err != nil {
			return fmt.Errorf("save recurring %d: %w", def.ID, err)
		}
	}
	for _, e := range plan.CreateOccurrences {
		if _, err := tx.InsertExpense(ctx, e); err != nil {
			return fmt.Errorf("create occurrence %s of recurring %d: %w", e.Date, e.RecurringExpenseID, err)
		}
	}
	for _, e := range plan.UpdateOccurrences {
		if err := tx.UpdateExpense(ctx, e); err != nil {
			return fmt.Errorf("update expense %d: %w", e.ID, err)
		}
	}
	for _, id := range plan.DeleteOccurrences {
		if err := tx.DeleteExpense(ctx, id); err != nil {
			return fmt.Errorf("delete expense %d: %w", id, err)
		}
	}
	for _, id := range plan.DeleteDefinitions {
		if err := tx.DeleteRecurring(ctx, id); err != nil {
			return fmt.Errorf("delete recurring %d: %w", id, err)
		}
	}
	return nil
}
