// Package memory is an in-process Store, used by tests and by the memory
// data backend.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"bookkeeper/internal/core"
	"bookkeeper/internal/storage"
)

type Store struct {
	mu            sync.Mutex
	expenses      map[int64]core.Expense
	recurring     map[int64]core.RecurringExpense
	lastExpense   int64
	lastRecurring int64
}

func New() *Store {
	return &Store{
		expenses:  map[int64]core.Expense{},
		recurring: map[int64]core.RecurringExpense{},
	}
}

// WithTx runs fn against a private copy of the data and publishes the copy
// only when fn succeeds. Transactions are serialized.
func (s *Store) WithTx(_ context.Context, fn func(storage.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := &tx{
		expenses:  make(map[int64]core.Expense, len(s.expenses)),
		recurring: make(map[int64]core.RecurringExpense, len(s.recurring)),
		seq:       core.NewSequence(s.lastExpense, s.lastRecurring),
	}
	for id, e := range s.expenses {
		work.expenses[id] = e.Clone()
	}
	for id, r := range s.recurring {
		work.recurring[id] = r.Clone()
	}

	if err := fn(work); err != nil {
		return err
	}

	s.expenses, s.recurring = work.expenses, work.recurring
	s.lastExpense, s.lastRecurring = work.seq.Last()
	return nil
}

func (s *Store) Close() error { return nil }

type tx struct {
	expenses  map[int64]core.Expense
	recurring map[int64]core.RecurringExpense
	seq       *core.Sequence
}

func (t *tx) IDs() core.IDProvider { return t.seq }

func (t *tx) GetExpense(_ context.Context, id int64) (core.Expense, error) {
	e, ok := t.expenses[id]
	if !ok {
		return core.Expense{}, fmt.Errorf("expense %d: %w", id, core.ErrNotFound)
	}
	return e.Clone(), nil
}

func (t *tx) ListExpenses(_ context.Context, groupID int64, from, to core.Date) ([]core.Expense, error) {
	return t.filter(func(e core.Expense) bool {
		return e.GroupID == groupID && !e.Date.Before(from) && !e.Date.After(to)
	}), nil
}

func (t *tx) ListAttached(_ context.Context, recurringID int64) ([]core.Expense, error) {
	return t.filter(func(e core.Expense) bool {
		return e.RecurringExpenseID == recurringID
	}), nil
}

func (t *tx) InsertExpense(_ context.Context, e core.Expense) (core.Expense, error) {
	if e.ID == 0 {
		e.ID = t.seq.NextExpenseID()
	}
	if _, exists := t.expenses[e.ID]; exists {
		return core.Expense{}, fmt.Errorf("expense %d already exists", e.ID)
	}
	if e.RecurringExpenseID != 0 {
		if _, ok := t.recurring[e.RecurringExpenseID]; !ok {
			return core.Expense{}, fmt.Errorf("recurring expense %d: %w", e.RecurringExpenseID, core.ErrNotFound)
		}
	}
	t.expenses[e.ID] = e.Clone()
	return e, nil
}

func (t *tx) UpdateExpense(_ context.Context, e core.Expense) error {
	if _, ok := t.expenses[e.ID]; !ok {
		return fmt.Errorf("expense %d: %w", e.ID, core.ErrNotFound)
	}
	t.expenses[e.ID] = e.Clone()
	return nil
}

func (t *tx) DeleteExpense(_ context.Context, id int64) error {
	if _, ok := t.expenses[id]; !ok {
		return fmt.Errorf("expense %d: %w", id, core.ErrNotFound)
	}
	delete(t.expenses, id)
	return nil
}

func (t *tx) GetRecurring(_ context.Context, id int64) (core.RecurringExpense, error) {
	r, ok := t.recurring[id]
	if !ok {
		return core.RecurringExpense{}, fmt.Errorf("recurring expense %d: %w", id, core.ErrNotFound)
	}
	return r.Clone(), nil
}

func (t *tx) ListRecurring(_ context.Context, groupID int64) ([]core.RecurringExpense, error) {
	return t.filterRecurring(func(r core.RecurringExpense) bool { return r.GroupID == groupID }), nil
}

func (t *tx) ListPending(_ context.Context, upTo core.Date) ([]core.RecurringExpense, error) {
	return t.filterRecurring(func(r core.RecurringExpense) bool { return r.HasPending(upTo) }), nil
}

func (t *tx) SaveRecurring(_ context.Context, def core.RecurringExpense) error {
	t.recurring[def.ID] = def.Clone()
	return nil
}

func (t *tx) DeleteRecurring(_ context.Context, id int64) error {
	if _, ok := t.recurring[id]; !ok {
		return fmt.Errorf("recurring expense %d: %w", id, core.ErrNotFound)
	}
	for eid, e := range t.expenses {
		if e.RecurringExpenseID == id {
			e.RecurringExpenseID = 0
			t.expenses[eid] = e
		}
	}
	delete(t.recurring, id)
	return nil
}

func (t *tx) filter(keep func(core.Expense) bool) []core.Expense {
	var out []core.Expense
	for _, e := range t.expenses {
		if keep(e) {
			out = append(out, e.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (t *tx) filterRecurring(keep func(core.RecurringExpense) bool) []core.RecurringExpense {
	var out []core.RecurringExpense
	for _, r := range t.recurring {
		if keep(r) {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].GroupID != out[j].GroupID {
			return out[i].GroupID < out[j].GroupID
		}
		return out[i].ID < out[j].ID
	})
	return out
}
