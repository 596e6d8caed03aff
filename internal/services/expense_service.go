package services

import (
	"context"
	"fmt"
	"log/slog"

	"bookkeeper/internal/amqp"
	"bookkeeper/internal/core"
	applog "bookkeeper/internal/log"
	"bookkeeper/internal/storage"
)

// ExpenseService handles plain postings.
type ExpenseService struct {
	store     storage.Store
	publisher Publisher
}

func NewExpenseService(store storage.Store, publisher Publisher) *ExpenseService {
	return &ExpenseService{store: store, publisher: publisher}
}

// CreateExpense stores e. When e has no division it is built from benefit
// weights, or charged entirely to e.UserID when benefit is empty as well.
func (s *ExpenseService) CreateExpense(ctx context.Context, e core.Expense, benefit []core.Share) (core.Expense, error) {
	if e.RecurringExpenseID != 0 {
		return core.Expense{}, core.NewValidationError("recurringExpenseId", "occurrences are created by their recurrence")
	}
	e.ID = 0
	if len(e.Division) == 0 {
		division, err := divide(e, benefit)
		if err != nil {
			return core.Expense{}, err
		}
		e.Division = division
	}
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}

	var saved core.Expense
	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		var err error
		saved, err = tx.InsertExpense(ctx, e)
		return err
	})
	if err != nil {
		return core.Expense{}, fmt.Errorf("save expense: %w", err)
	}

	slog.InfoContext(ctx, "Expense created",
		applog.NewFields().
			WithGroup(saved.GroupID).
			WithExpense(saved.ID, saved.Sum.Cents()).
			WithOperation(applog.OpCreate).
			ToSlice()...)

	ev := amqp.NewChangeEvent(amqp.EventExpenseCreated, saved.GroupID)
	ev.ExpenseIDs = []int64{saved.ID}
	publish(ctx, s.publisher, ev)
	return saved, nil
}

// divide builds a single-typed division of e.Sum. Income postings get income
// rows.
func divide(e core.Expense, benefit []core.Share) ([]core.DivisionItem, error) {
	typ := core.DivisionExpense
	if e.Type == core.ExpenseTypeIncome {
		typ = core.DivisionIncome
	}
	if len(benefit) == 0 {
		return core.DivideEvenly(e.Sum, []int64{e.UserID}, typ)
	}
	return core.DivideByWeights(e.Sum, benefit, typ)
}

// GetExpense returns a posting of groupID.
func (s *ExpenseService) GetExpense(ctx context.Context, groupID, id int64) (core.Expense, error) {
	var e core.Expense
	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		var err error
		e, err = tx.GetExpense(ctx, id)
		if err != nil {
			return err
		}
		if e.GroupID != groupID {
			return fmt.Errorf("expense %d: %w", id, core.ErrForbidden)
		}
		return nil
	})
	return e, err
}

// DeleteExpense removes one posting. Deleting an attached occurrence this way
// has the same effect as terminating it with the single target.
func (s *ExpenseService) DeleteExpense(ctx context.Context, groupID, id int64) error {
	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		e, err := tx.GetExpense(ctx, id)
		if err != nil {
			return err
		}
		if e.GroupID != groupID {
			return fmt.Errorf("expense %d: %w", id, core.ErrForbidden)
		}
		return tx.DeleteExpense(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}

	slog.InfoContext(ctx, "Expense deleted",
		applog.NewFields().WithGroup(groupID).WithExpense(id, 0).WithOperation(applog.OpDelete).ToSlice()...)

	ev := amqp.NewChangeEvent(amqp.EventExpenseDeleted, groupID)
	ev.ExpenseIDs = []int64{id}
	publish(ctx, s.publisher, ev)
	return nil
}
