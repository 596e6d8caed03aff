package services

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"bookkeeper/internal/amqp"
	"bookkeeper/internal/cache"
	"bookkeeper/internal/core"
	applog "bookkeeper/internal/log"
	"bookkeeper/internal/recurring"
	"bookkeeper/internal/storage"
)

// RecurringService runs every recurrence operation as one transaction: load
// the rows, ask the engine for a plan, apply the plan.
//
// horizons remembers, per group, a date up to which every recurrence is known
// to be materialized so that repeated month reads skip the pending scan. Any
// mutation of a group's recurrences forgets its horizon. The cache is per
// process, so one API instance owns a database.
type RecurringService struct {
	store     storage.Store
	publisher Publisher
	horizons  *cache.LRUCache[int64, core.Date]
	now       func() time.Time
}

// maxReadAheadMonths bounds how far past today a month read materializes.
// Months beyond it show only the rows already stored.
const maxReadAheadMonths = 5 * 12

// NewRecurringService builds the service. horizons and publisher may be nil.
func NewRecurringService(store storage.Store, publisher Publisher, horizons *cache.LRUCache[int64, core.Date]) *RecurringService {
	return &RecurringService{
		store:     store,
		publisher: publisher,
		horizons:  horizons,
		now:       time.Now,
	}
}

// WithClock replaces the time source used to decide what "today" is.
func (s *RecurringService) WithClock(now func() time.Time) *RecurringService {
	s.now = now
	return s
}

func (s *RecurringService) today() core.Date {
	return core.DateOf(s.now())
}

// CreateRecurring promotes expense expenseID into a recurrence and
// materializes it up to the end of the current month.
func (s *RecurringService) CreateRecurring(ctx context.Context, groupID, expenseID int64, period core.RecurrencePeriod, first core.Date) (core.RecurringExpense, error) {
	var (
		def     core.RecurringExpense
		touched []int64
	)
	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		template, err := tx.GetExpense(ctx, expenseID)
		if err != nil {
			return err
		}
		engine := recurring.New(tx.IDs())

		var plan, more recurring.Plan
		def, plan, err = engine.Create(groupID, template, period, first)
		if err != nil {
			return err
		}
		def, more = engine.Materialize(def, s.today().EndOfMonth())
		plan.Merge(more)

		touched = touchedIDs(plan)
		return storage.Apply(ctx, tx, plan)
	})
	if err != nil {
		return core.RecurringExpense{}, fmt.Errorf("create recurring: %w", err)
	}
	s.forget(groupID)

	slog.InfoContext(ctx, "Recurring expense created",
		applog.NewFields().
			WithGroup(groupID).
			WithRecurring(def.ID, "").
			WithExpense(expenseID, def.Template.Sum.Cents()).
			WithOperation(applog.OpCreate).
			ToSlice()...)

	ev := amqp.NewChangeEvent(amqp.EventRecurringCreated, groupID)
	ev.RecurringID = def.ID
	ev.ExpenseIDs = touched
	publish(ctx, s.publisher, ev)
	return def, nil
}

// UpdateRecurring applies changes to the occurrences of expenseID's recurrence
// selected by target.
func (s *RecurringService) UpdateRecurring(ctx context.Context, groupID, expenseID int64, target core.Target, changes recurring.ExpenseChanges) error {
	if changes.IsEmpty() {
		return core.NewValidationError("", "no changes")
	}
	var (
		recurringID int64
		touched     []int64
	)
	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		rows, err := loadTarget(ctx, tx, expenseID)
		if err != nil {
			return err
		}
		recurringID = rows.occurrence.RecurringExpenseID

		plan, err := recurring.New(tx.IDs()).Update(recurring.UpdateRequest{
			GroupID:    groupID,
			Target:     target,
			Definition: rows.definition,
			Occurrence: rows.occurrence,
			Attached:   rows.attached,
			Changes:    changes,
			AsOf:       s.today(),
		})
		if err != nil {
			return err
		}
		touched = touchedIDs(plan)
		return storage.Apply(ctx, tx, plan)
	})
	if err != nil {
		return fmt.Errorf("update recurring: %w", err)
	}
	s.forget(groupID)

	slog.InfoContext(ctx, "Recurring expense updated",
		applog.NewFields().
			WithGroup(groupID).
			WithRecurring(recurringID, string(target)).
			WithExpense(expenseID, 0).
			WithOperation(applog.OpUpdate).
			ToSlice()...)

	ev := amqp.NewChangeEvent(amqp.EventRecurringUpdated, groupID)
	ev.RecurringID = recurringID
	ev.Target = string(target)
	ev.ExpenseIDs = touched
	publish(ctx, s.publisher, ev)
	return nil
}

// DeleteRecurring removes the occurrences of expenseID's recurrence selected
// by target.
func (s *RecurringService) DeleteRecurring(ctx context.Context, groupID, expenseID int64, target core.Target) error {
	var (
		recurringID int64
		deleted     []int64
	)
	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		rows, err := loadTarget(ctx, tx, expenseID)
		if err != nil {
			return err
		}
		recurringID = rows.occurrence.RecurringExpenseID

		plan, err := recurring.New(tx.IDs()).Terminate(recurring.TerminateRequest{
			GroupID:    groupID,
			Target:     target,
			Definition: rows.definition,
			Occurrence: rows.occurrence,
			Attached:   rows.attached,
		})
		if err != nil {
			return err
		}
		deleted = plan.DeleteOccurrences
		return storage.Apply(ctx, tx, plan)
	})
	if err != nil {
		return fmt.Errorf("delete recurring: %w", err)
	}
	s.forget(groupID)

	slog.InfoContext(ctx, "Recurring expense terminated",
		applog.NewFields().
			WithGroup(groupID).
			WithRecurring(recurringID, string(target)).
			WithExpense(expenseID, 0).
			WithOperation(applog.OpDelete).
			ToSlice()...,
	)

	ev := amqp.NewChangeEvent(amqp.EventRecurringDeleted, groupID)
	ev.RecurringID = recurringID
	ev.Target = string(target)
	ev.ExpenseIDs = deleted
	publish(ctx, s.publisher, ev)
	return nil
}

// MaterializeGroup creates every missing occurrence of groupID dated on or
// before upTo and returns how many were created.
func (s *RecurringService) MaterializeGroup(ctx context.Context, groupID int64, upTo core.Date) (int, error) {
	var created []int64
	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		var err error
		created, err = materializeGroup(ctx, tx, groupID, upTo)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("materialize group %d: %w", groupID, err)
	}
	s.remember(groupID, upTo)
	s.announceMaterialized(ctx, groupID, upTo, created)
	return len(created), nil
}

// MaterializeAll does what MaterializeGroup does for every group at once.
func (s *RecurringService) MaterializeAll(ctx context.Context, upTo core.Date) (int, error) {
	var created map[int64][]int64
	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		pending, err := tx.ListPending(ctx, upTo)
		if err != nil {
			return err
		}
		created = make(map[int64][]int64)
		engine := recurring.New(tx.IDs())
		var plan recurring.Plan
		for _, def := range pending {
			_, more := engine.Materialize(def, upTo)
			for _, occ := range more.CreateOccurrences {
				created[def.GroupID] = append(created[def.GroupID], occ.ID)
			}
			plan.Merge(more)
		}
		return storage.Apply(ctx, tx, plan)
	})
	if err != nil {
		return 0, fmt.Errorf("materialize recurring expenses: %w", err)
	}

	total := 0
	for _, groupID := range slices.Sorted(maps.Keys(created)) {
		s.remember(groupID, upTo)
		s.announceMaterialized(ctx, groupID, upTo, created[groupID])
		total += len(created[groupID])
	}
	return total, nil
}

// ExpensesForMonth materializes groupID's recurrences up to the end of the
// month and returns the month's postings with their totals.
func (s *RecurringService) ExpensesForMonth(ctx context.Context, groupID int64, year, month int) (core.MonthOverview, error) {
	if month < 1 || month > 12 {
		return core.MonthOverview{}, core.ErrInvalidMonth
	}
	from, to := core.MonthBounds(year, month)
	upTo := to
	if limit := s.today().AddMonthsClamped(maxReadAheadMonths); limit.Before(upTo) {
		upTo = limit
	}
	materialize := !s.covered(groupID, upTo)

	var (
		expenses []core.Expense
		created  []int64
	)
	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		var err error
		if materialize {
			if created, err = materializeGroup(ctx, tx, groupID, upTo); err != nil {
				return err
			}
		}
		expenses, err = tx.ListExpenses(ctx, groupID, from, to)
		return err
	})
	if err != nil {
		return core.MonthOverview{}, fmt.Errorf("list expenses for %d-%02d: %w", year, month, err)
	}
	if materialize {
		s.remember(groupID, upTo)
		s.announceMaterialized(ctx, groupID, upTo, created)
	}
	return core.NewMonthOverview(year, month, expenses), nil
}

// GetRecurring returns one recurrence of groupID.
func (s *RecurringService) GetRecurring(ctx context.Context, groupID, recurringID int64) (core.RecurringExpense, error) {
	var def core.RecurringExpense
	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		var err error
		def, err = tx.GetRecurring(ctx, recurringID)
		if err != nil {
			return err
		}
		if def.GroupID != groupID {
			return fmt.Errorf("recurring expense %d: %w", recurringID, core.ErrForbidden)
		}
		return nil
	})
	return def, err
}

// ListRecurring returns the recurrences of groupID, ended ones included.
func (s *RecurringService) ListRecurring(ctx context.Context, groupID int64) ([]core.RecurringExpense, error) {
	var defs []core.RecurringExpense
	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		var err error
		defs, err = tx.ListRecurring(ctx, groupID)
		return err
	})
	return defs, err
}

// Totals returns what a recurrence costs per month and per year.
func (s *RecurringService) Totals(ctx context.Context, groupID, recurringID int64) (core.RecurrenceTotals, error) {
	def, err := s.GetRecurring(ctx, groupID, recurringID)
	if err != nil {
		return core.RecurrenceTotals{}, err
	}
	return def.Totals(), nil
}

type targetRows struct {
	occurrence core.Expense
	definition *core.RecurringExpense
	attached   []core.Expense
}

// loadTarget reads the posting an edit addresses and, when it is attached, its
// recurrence with every attached posting.
func loadTarget(ctx context.Context, tx storage.Tx, expenseID int64) (targetRows, error) {
	occ, err := tx.GetExpense(ctx, expenseID)
	if err != nil {
		return targetRows{}, err
	}
	rows := targetRows{occurrence: occ}
	if !occ.IsOccurrence() {
		return rows, nil
	}
	def, err := tx.GetRecurring(ctx, occ.RecurringExpenseID)
	if err != nil {
		return targetRows{}, err
	}
	attached, err := tx.ListAttached(ctx, def.ID)
	if err != nil {
		return targetRows{}, err
	}
	rows.definition = &def
	rows.attached = attached
	return rows, nil
}

func materializeGroup(ctx context.Context, tx storage.Tx, groupID int64, upTo core.Date) ([]int64, error) {
	defs, err := tx.ListRecurring(ctx, groupID)
	if err != nil {
		return nil, err
	}
	engine := recurring.New(tx.IDs())
	var plan recurring.Plan
	for _, def := range defs {
		if !def.HasPending(upTo) {
			continue
		}
		_, more := engine.Materialize(def, upTo)
		plan.Merge(more)
	}
	if plan.IsEmpty() {
		return nil, nil
	}
	created := make([]int64, 0, len(plan.CreateOccurrences))
	for _, occ := range plan.CreateOccurrences {
		created = append(created, occ.ID)
	}
	return created, storage.Apply(ctx, tx, plan)
}

func (s *RecurringService) announceMaterialized(ctx context.Context, groupID int64, upTo core.Date, created []int64) {
	if len(created) == 0 {
		return
	}
	slog.InfoContext(ctx, "Materialized recurring expenses",
		applog.FieldGroupID, groupID,
		applog.FieldUpTo, upTo.String(),
		applog.FieldCount, len(created),
		applog.FieldOperation, applog.OpMaterialize)

	ev := amqp.NewChangeEvent(amqp.EventExpenseMaterialized, groupID)
	ev.ExpenseIDs = created
	publish(ctx, s.publisher, ev)
}

func (s *RecurringService) covered(groupID int64, upTo core.Date) bool {
	if s.horizons == nil {
		return false
	}
	h, ok := s.horizons.Get(groupID)
	return ok && !h.Before(upTo)
}

func (s *RecurringService) remember(groupID int64, upTo core.Date) {
	if s.horizons == nil || s.covered(groupID, upTo) {
		return
	}
	s.horizons.Set(groupID, upTo)
}

func (s *RecurringService) forget(groupID int64) {
	if s.horizons != nil {
		s.horizons.Delete(groupID)
	}
}

// touchedIDs lists the postings a plan creates or rewrites.
func touchedIDs(plan recurring.Plan) []int64 {
	ids := make([]int64, 0, len(plan.CreateOccurrences)+len(plan.UpdateOccurrences))
	for _, e := range plan.CreateOccurrences {
		ids = append(ids, e.ID)
	}
	for _, e := range plan.UpdateOccurrences {
		ids = append(ids, e.ID)
	}
	return ids
}
