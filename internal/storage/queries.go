package storage

import (
	"context"
	"database/sql"
	"strings"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type ExpenseRow struct {
	ID                 int64
	GroupID            int64
	UserID             int64
	Date               string
	Title              string
	Receiver           string
	CategoryID         int64
	SourceID           int64
	Type               string
	SumCents           int64
	RecurringExpenseID sql.NullInt64
}

type DivisionRow struct {
	ExpenseID int64
	Position  int64
	UserID    int64
	Type      string
	SumCents  int64
}

type RecurringRow struct {
	ID              int64
	GroupID         int64
	TemplateJSON    string
	PeriodUnit      string
	PeriodAmount    int64
	FirstOccurrence string
	CadenceAnchor   string
	OccursUntil     sql.NullString
	NextMissing     string
}

const getLastID = `SELECT last_id FROM id_sequences WHERE name = ?`

func (q *Queries) GetLastID(ctx context.Context, name string) (int64, error) {
	var id int64
	err := q.db.QueryRowContext(ctx, getLastID, name).Scan(&id)
	return id, err
}

const setLastID = `UPDATE id_sequences SET last_id = ? WHERE name = ? AND last_id < ?`

func (q *Queries) SetLastID(ctx context.Context, name string, id int64) error {
	_, err := q.db.ExecContext(ctx, setLastID, id, name, id)
	return err
}

const expenseColumns = `id, group_id, user_id, date, title, receiver, category_id, source_id, type, sum_cents, recurring_expense_id`

func scanExpense(s interface{ Scan(...interface{}) error }) (ExpenseRow, error) {
	var r ExpenseRow
	err := s.Scan(&r.ID, &r.GroupID, &r.UserID, &r.Date, &r.Title, &r.Receiver,
		&r.CategoryID, &r.SourceID, &r.Type, &r.SumCents, &r.RecurringExpenseID)
	return r, err
}

func (q *Queries) queryExpenses(ctx context.Context, query string, args ...interface{}) ([]ExpenseRow, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ExpenseRow
	for rows.Next() {
		r, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getExpense = `SELECT ` + expenseColumns + ` FROM expenses WHERE id = ?`

func (q *Queries) GetExpense(ctx context.Context, id int64) (ExpenseRow, error) {
	return scanExpense(q.db.QueryRowContext(ctx, getExpense, id))
}

const listExpensesByGroupAndDate = `SELECT ` + expenseColumns + ` FROM expenses
WHERE group_id = ? AND date >= ? AND date <= ?
ORDER BY date, id`

func (q *Queries) ListExpensesByGroupAndDate(ctx context.Context, groupID int64, from, to string) ([]ExpenseRow, error) {
	return q.queryExpenses(ctx, listExpensesByGroupAndDate, groupID, from, to)
}

const listExpensesByRecurring = `SELECT ` + expenseColumns + ` FROM expenses
WHERE recurring_expense_id = ?
ORDER BY date, id`

func (q *Queries) ListExpensesByRecurring(ctx context.Context, recurringID int64) ([]ExpenseRow, error) {
	return q.queryExpenses(ctx, listExpensesByRecurring, recurringID)
}

const insertExpense = `INSERT INTO expenses (` + expenseColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) InsertExpense(ctx context.Context, r ExpenseRow) error {
	_, err := q.db.ExecContext(ctx, insertExpense, r.ID, r.GroupID, r.UserID, r.Date, r.Title, r.Receiver,
		r.CategoryID, r.SourceID, r.Type, r.SumCents, r.RecurringExpenseID)
	return err
}

const updateExpense = `UPDATE expenses
SET group_id = ?, user_id = ?, date = ?, title = ?, receiver = ?, category_id = ?, source_id = ?,
    type = ?, sum_cents = ?, recurring_expense_id = ?
WHERE id = ?`

func (q *Queries) UpdateExpense(ctx context.Context, r ExpenseRow) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateExpense, r.GroupID, r.UserID, r.Date, r.Title, r.Receiver,
		r.CategoryID, r.SourceID, r.Type, r.SumCents, r.RecurringExpenseID, r.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const deleteExpense = `DELETE FROM expenses WHERE id = ?`

func (q *Queries) DeleteExpense(ctx context.Context, id int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteExpense, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const insertDivision = `INSERT INTO expense_division (expense_id, position, user_id, type, sum_cents)
VALUES (?, ?, ?, ?, ?)`

func (q *Queries) InsertDivision(ctx context.Context, r DivisionRow) error {
	_, err := q.db.ExecContext(ctx, insertDivision, r.ExpenseID, r.Position, r.UserID, r.Type, r.SumCents)
	return err
}

const deleteDivision = `DELETE FROM expense_division WHERE expense_id = ?`

func (q *Queries) DeleteDivision(ctx context.Context, expenseID int64) error {
	_, err := q.db.ExecContext(ctx, deleteDivision, expenseID)
	return err
}

// ListDivisions returns the division rows of the given expenses ordered by
// expense and position.
func (q *Queries) ListDivisions(ctx context.Context, expenseIDs []int64) ([]DivisionRow, error) {
	if len(expenseIDs) == 0 {
		return nil, nil
	}
	args := make([]interface{}, len(expenseIDs))
	for i, id := range expenseIDs {
		args[i] = id
	}
	query := `SELECT expense_id, position, user_id, type, sum_cents FROM expense_division
WHERE expense_id IN (` + strings.TrimSuffix(strings.Repeat("?,", len(expenseIDs)), ",") + `)
ORDER BY expense_id, position`

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []DivisionRow
	for rows.Next() {
		var r DivisionRow
		if err := rows.Scan(&r.ExpenseID, &r.Position, &r.UserID, &r.Type, &r.SumCents); err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const recurringColumns = `id, group_id, template_json, period_unit, period_amount, first_occurrence, cadence_anchor, occurs_until, next_missing`

func scanRecurring(s interface{ Scan(...interface{}) error }) (RecurringRow, error) {
	var r RecurringRow
	err := s.Scan(&r.ID, &r.GroupID, &r.TemplateJSON, &r.PeriodUnit, &r.PeriodAmount,
		&r.FirstOccurrence, &r.CadenceAnchor, &r.OccursUntil, &r.NextMissing)
	return r, err
}

func (q *Queries) queryRecurring(ctx context.Context, query string, args ...interface{}) ([]RecurringRow, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []RecurringRow
	for rows.Next() {
		r, err := scanRecurring(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getRecurring = `SELECT ` + recurringColumns + ` FROM recurring_expenses WHERE id = ?`

func (q *Queries) GetRecurring(ctx context.Context, id int64) (RecurringRow, error) {
	return scanRecurring(q.db.QueryRowContext(ctx, getRecurring, id))
}

const listRecurringByGroup = `SELECT ` + recurringColumns + ` FROM recurring_expenses
WHERE group_id = ?
ORDER BY id`

func (q *Queries) ListRecurringByGroup(ctx context.Context, groupID int64) ([]RecurringRow, error) {
	return q.queryRecurring(ctx, listRecurringByGroup, groupID)
}

const listPendingRecurring = `SELECT ` + recurringColumns + ` FROM recurring_expenses
WHERE next_missing <= ? AND (occurs_until IS NULL OR next_missing <= occurs_until)
ORDER BY group_id, id`

func (q *Queries) ListPendingRecurring(ctx context.Context, upTo string) ([]RecurringRow, error) {
	return q.queryRecurring(ctx, listPendingRecurring, upTo)
}

const upsertRecurring = `INSERT INTO recurring_expenses (` + recurringColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    group_id = excluded.group_id,
    template_json = excluded.template_json,
    period_unit = excluded.period_unit,
    period_amount = excluded.period_amount,
    first_occurrence = excluded.first_occurrence,
    cadence_anchor = excluded.cadence_anchor,
    occurs_until = excluded.occurs_until,
    next_missing = excluded.next_missing,
    updated_at = CURRENT_TIMESTAMP`

func (q *Queries) UpsertRecurring(ctx context.Context, r RecurringRow) error {
	_, err := q.db.ExecContext(ctx, upsertRecurring, r.ID, r.GroupID, r.TemplateJSON, r.PeriodUnit,
		r.PeriodAmount, r.FirstOccurrence, r.CadenceAnchor, r.OccursUntil, r.NextMissing)
	return err
}

const detachRecurring = `UPDATE expenses SET recurring_expense_id = NULL WHERE recurring_expense_id = ?`

func (q *Queries) DetachRecurring(ctx context.Context, recurringID int64) error {
	_, err := q.db.ExecContext(ctx, detachRecurring, recurringID)
	return err
}

const deleteRecurring = `DELETE FROM recurring_expenses WHERE id = ?`

func (q *Queries) DeleteRecurring(ctx context.Context, id int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteRecurring, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
