package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"bookkeeper/internal/core"

	_ "modernc.org/sqlite"
)

const (
	seqExpenses  = "expenses"
	seqRecurring = "recurring_expenses"
)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Run migrations
	if _, err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One connection serializes every transaction, which is the only locking
	// the recurrence engine relies on.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteRepository{db: db, queries: New(db)}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// WithTx implements Store.
func (r *SQLiteRepository) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	q := r.queries.WithTx(sqlTx)
	lastExpense, err := q.GetLastID(ctx, seqExpenses)
	if err != nil {
		return fmt.Errorf("read expense sequence: %w", err)
	}
	lastRecurring, err := q.GetLastID(ctx, seqRecurring)
	if err != nil {
		return fmt.Errorf("read recurring sequence: %w", err)
	}
	tx := &sqliteTx{q: q, seq: core.NewSequence(lastExpense, lastRecurring)}

	if err := fn(tx); err != nil {
		return err
	}

	lastExpense, lastRecurring = tx.seq.Last()
	if err := q.SetLastID(ctx, seqExpenses, lastExpense); err != nil {
		return fmt.Errorf("store expense sequence: %w", err)
	}
	if err := q.SetLastID(ctx, seqRecurring, lastRecurring); err != nil {
		return fmt.Errorf("store recurring sequence: %w", err)
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type sqliteTx struct {
	q   *Queries
	seq *core.Sequence
}

func (t *sqliteTx) IDs() core.IDProvider { return t.seq }

func (t *sqliteTx) GetExpense(ctx context.Context, id int64) (core.Expense, error) {
	row, err := t.q.GetExpense(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, fmt.Errorf("expense %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense %d: %w", id, err)
	}
	expenses, err := t.withDivisions(ctx, []ExpenseRow{row})
	if err != nil {
		return core.Expense{}, err
	}
	return expenses[0], nil
}

func (t *sqliteTx) ListExpenses(ctx context.Context, groupID int64, from, to core.Date) ([]core.Expense, error) {
	rows, err := t.q.ListExpensesByGroupAndDate(ctx, groupID, from.String(), to.String())
	if err != nil {
		return nil, fmt.Errorf("list expenses of group %d: %w", groupID, err)
	}
	return t.withDivisions(ctx, rows)
}

func (t *sqliteTx) ListAttached(ctx context.Context, recurringID int64) ([]core.Expense, error) {
	rows, err := t.q.ListExpensesByRecurring(ctx, recurringID)
	if err != nil {
		return nil, fmt.Errorf("list occurrences of recurring %d: %w", recurringID, err)
	}
	return t.withDivisions(ctx, rows)
}

func (t *sqliteTx) InsertExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	if e.ID == 0 {
		e.ID = t.seq.NextExpenseID()
	}
	if err := t.q.InsertExpense(ctx, toExpenseRow(e)); err != nil {
		return core.Expense{}, fmt.Errorf("insert expense: %w", err)
	}
	if err := t.insertDivision(ctx, e); err != nil {
		return core.Expense{}, err
	}
	return e, nil
}

func (t *sqliteTx) UpdateExpense(ctx context.Context, e core.Expense) error {
	n, err := t.q.UpdateExpense(ctx, toExpenseRow(e))
	if err != nil {
		return fmt.Errorf("update expense: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("expense %d: %w", e.ID, core.ErrNotFound)
	}
	if err := t.q.DeleteDivision(ctx, e.ID); err != nil {
		return fmt.Errorf("clear division: %w", err)
	}
	return t.insertDivision(ctx, e)
}

func (t *sqliteTx) DeleteExpense(ctx context.Context, id int64) error {
	if err := t.q.DeleteDivision(ctx, id); err != nil {
		return fmt.Errorf("clear division: %w", err)
	}
	n, err := t.q.DeleteExpense(ctx, id)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("expense %d: %w", id, core.ErrNotFound)
	}
	return nil
}

func (t *sqliteTx) GetRecurring(ctx context.Context, id int64) (core.RecurringExpense, error) {
	row, err := t.q.GetRecurring(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.RecurringExpense{}, fmt.Errorf("recurring expense %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.RecurringExpense{}, fmt.Errorf("get recurring expense %d: %w", id, err)
	}
	return fromRecurringRow(row)
}

func (t *sqliteTx) ListRecurring(ctx context.Context, groupID int64) ([]core.RecurringExpense, error) {
	rows, err := t.q.ListRecurringByGroup(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("list recurring expenses of group %d: %w", groupID, err)
	}
	return fromRecurringRows(rows)
}

func (t *sqliteTx) ListPending(ctx context.Context, upTo core.Date) ([]core.RecurringExpense, error) {
	rows, err := t.q.ListPendingRecurring(ctx, upTo.String())
	if err != nil {
		return nil, fmt.Errorf("list pending recurring expenses: %w", err)
	}
	return fromRecurringRows(rows)
}

func (t *sqliteTx) SaveRecurring(ctx context.Context, def core.RecurringExpense) error {
	row, err := toRecurringRow(def)
	if err != nil {
		return err
	}
	if err := t.q.UpsertRecurring(ctx, row); err != nil {
		return fmt.Errorf("upsert recurring expense: %w", err)
	}
	return nil
}

func (t *sqliteTx) DeleteRecurring(ctx context.Context, id int64) error {
	if err := t.q.DetachRecurring(ctx, id); err != nil {
		return fmt.Errorf("detach occurrences: %w", err)
	}
	n, err := t.q.DeleteRecurring(ctx, id)
	if err != nil {
		return fmt.Errorf("delete recurring expense: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("recurring expense %d: %w", id, core.ErrNotFound)
	}
	slog.InfoContext(ctx, "Recurring expense deleted", "recurring_id", id)
	return nil
}

func (t *sqliteTx) insertDivision(ctx context.Context, e core.Expense) error {
	for i, item := range e.Division {
		err := t.q.InsertDivision(ctx, DivisionRow{
			ExpenseID: e.ID,
			Position:  int64(i),
			UserID:    item.UserID,
			Type:      string(item.Type),
			SumCents:  item.Sum.Cents(),
		})
		if err != nil {
			return fmt.Errorf("insert division of expense %d: %w", e.ID, err)
		}
	}
	return nil
}

// withDivisions converts rows and loads their divisions in one query.
func (t *sqliteTx) withDivisions(ctx context.Context, rows []ExpenseRow) ([]core.Expense, error) {
	ids := make([]int64, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	divisions, err := t.q.ListDivisions(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list divisions: %w", err)
	}
	byExpense := make(map[int64][]core.DivisionItem, len(rows))
	for _, d := range divisions {
		byExpense[d.ExpenseID] = append(byExpense[d.ExpenseID], core.DivisionItem{
			UserID: d.UserID,
			Sum:    core.MoneyFromCents(d.SumCents),
			Type:   core.DivisionType(d.Type),
		})
	}

	expenses := make([]core.Expense, len(rows))
	for i, r := range rows {
		e, err := fromExpenseRow(r)
		if err != nil {
			return nil, err
		}
		e.Division = byExpense[r.ID]
		expenses[i] = e
	}
	return expenses, nil
}

func toExpenseRow(e core.Expense) ExpenseRow {
	row := ExpenseRow{
		ID:         e.ID,
		GroupID:    e.GroupID,
		UserID:     e.UserID,
		Date:       e.Date.String(),
		Title:      e.Title,
		Receiver:   e.Receiver,
		CategoryID: e.CategoryID,
		SourceID:   e.SourceID,
		Type:       string(e.Type),
		SumCents:   e.Sum.Cents(),
	}
	if e.RecurringExpenseID != 0 {
		row.RecurringExpenseID = sql.NullInt64{Int64: e.RecurringExpenseID, Valid: true}
	}
	return row
}

func fromExpenseRow(r ExpenseRow) (core.Expense, error) {
	date, err := core.ParseDate(r.Date)
	if err != nil {
		return core.Expense{}, fmt.Errorf("expense %d has a corrupt date %q: %w", r.ID, r.Date, err)
	}
	return core.Expense{
		ID:                 r.ID,
		GroupID:            r.GroupID,
		UserID:             r.UserID,
		Date:               date,
		Title:              r.Title,
		Receiver:           r.Receiver,
		CategoryID:         r.CategoryID,
		SourceID:           r.SourceID,
		Type:               core.ExpenseType(r.Type),
		Sum:                core.MoneyFromCents(r.SumCents),
		RecurringExpenseID: r.RecurringExpenseID.Int64,
	}, nil
}

func toRecurringRow(def core.RecurringExpense) (RecurringRow, error) {
	template, err := json.Marshal(def.Template)
	if err != nil {
		return RecurringRow{}, fmt.Errorf("encode template of recurring %d: %w", def.ID, err)
	}
	row := RecurringRow{
		ID:              def.ID,
		GroupID:         def.GroupID,
		TemplateJSON:    string(template),
		PeriodUnit:      string(def.Period.Unit),
		PeriodAmount:    int64(def.Period.Amount),
		FirstOccurrence: def.FirstOccurrence.String(),
		NextMissing:     def.NextMissing.String(),
	}
	if !def.CadenceAnchor.IsEmpty() {
		row.CadenceAnchor = def.CadenceAnchor.String()
	}
	if def.OccursUntil != nil {
		row.OccursUntil = sql.NullString{String: def.OccursUntil.String(), Valid: true}
	}
	return row, nil
}

func fromRecurringRow(r RecurringRow) (core.RecurringExpense, error) {
	def := core.RecurringExpense{
		ID:      r.ID,
		GroupID: r.GroupID,
		Period:  core.RecurrencePeriod{Unit: core.PeriodUnit(r.PeriodUnit), Amount: int(r.PeriodAmount)},
	}
	if err := json.Unmarshal([]byte(r.TemplateJSON), &def.Template); err != nil {
		return core.RecurringExpense{}, fmt.Errorf("decode template of recurring %d: %w", r.ID, err)
	}
	var err error
	if def.FirstOccurrence, err = core.ParseDate(r.FirstOccurrence); err != nil {
		return core.RecurringExpense{}, fmt.Errorf("recurring %d first occurrence: %w", r.ID, err)
	}
	if r.CadenceAnchor != "" {
		if def.CadenceAnchor, err = core.ParseDate(r.CadenceAnchor); err != nil {
			return core.RecurringExpense{}, fmt.Errorf("recurring %d cadence anchor: %w", r.ID, err)
		}
	}
	if def.NextMissing, err = core.ParseDate(r.NextMissing); err != nil {
		return core.RecurringExpense{}, fmt.Errorf("recurring %d next missing: %w", r.ID, err)
	}
	if r.OccursUntil.Valid {
		until, err := core.ParseDate(r.OccursUntil.String)
		if err != nil {
			return core.RecurringExpense{}, fmt.Errorf("recurring %d occurs until: %w", r.ID, err)
		}
		def.OccursUntil = &until
	}
	return def, nil
}

func fromRecurringRows(rows []RecurringRow) ([]core.RecurringExpense, error) {
	defs := make([]core.RecurringExpense, 0, len(rows))
	for _, r := range rows {
		def, err := fromRecurringRow(r)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}
