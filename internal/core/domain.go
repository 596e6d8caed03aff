package core

import (
	"encoding/json"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

const (
	ExpenseTypeExpense  ExpenseType = "expense"
	ExpenseTypeIncome   ExpenseType = "income"
	ExpenseTypeTransfer ExpenseType = "transfer"
)

const (
	TargetSingle Target = "single"
	TargetAll    Target = "all"
	TargetAfter  Target = "after"
)

const (
	StateActive     RecurrenceState = "active"
	StateTerminated RecurrenceState = "terminated"
)

type (
	ExpenseType string

	// Target selects which occurrences of a recurrence an edit or delete affects.
	Target string

	RecurrenceState string

	// Date is a calendar day at UTC midnight.
	Date struct {
		time.Time
	}

	// Expense is one posting. RecurringExpenseID is set when the posting is an
	// occurrence generated from (or attached to) a recurring definition.
	Expense struct {
		ID                 int64          `json:"id"`
		GroupID            int64          `json:"groupId"`
		UserID             int64          `json:"userId"`
		Date               Date           `json:"date"`
		Title              string         `json:"title"`
		Receiver           string         `json:"receiver"`
		CategoryID         int64          `json:"categoryId"`
		SourceID           int64          `json:"sourceId"`
		Type               ExpenseType    `json:"type"`
		Sum                Money          `json:"sum"`
		Division           []DivisionItem `json:"division"`
		RecurringExpenseID int64          `json:"recurringExpenseId,omitempty"`
	}

	// RecurringExpense is a recurring definition. NextMissing is the earliest
	// occurrence date not yet materialized; a nil OccursUntil means open ended.
	//
	// Occurrence dates are stepped from CadenceAnchor, which is zero when the
	// schedule starts at FirstOccurrence. A series split off an earlier one
	// keeps the earlier anchor so clamped month ends do not drift.
	RecurringExpense struct {
		ID              int64            `json:"id"`
		GroupID         int64            `json:"groupId"`
		Template        Expense          `json:"template"`
		Period          RecurrencePeriod `json:"period"`
		FirstOccurrence Date             `json:"firstOccurrence"`
		CadenceAnchor   Date             `json:"cadenceAnchor"`
		OccursUntil     *Date            `json:"occursUntil"`
		NextMissing     Date             `json:"nextMissing"`
	}
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, NewValidationErrorf("date", "invalid date %q", s)
	}
	return Date{Time: t}, nil
}

// MustParseDate is ParseDate for tests and constants.
func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrZeroDate
	}
	_, month, day := d.Time.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// Day returns the day of the month
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year
func (d Date) Year() int {
	return d.Time.Year()
}

// IsEmpty returns true if the date is zero (for optional dates)
func (d Date) IsEmpty() bool {
	return d.IsZero()
}

func (d Date) String() string {
	return d.Format(dateLayout)
}

func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

// AddMonthsClamped adds n months, moving to the last day of the target month
// when the day does not exist there.
func (d Date) AddMonthsClamped(n int) Date {
	y, m, day := d.Time.Date()
	target := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	if last := daysIn(target.Year(), target.Month()); day > last {
		day = last
	}
	return NewDate(target.Year(), int(target.Month()), day)
}

// EndOfMonth returns the last day of d's month.
func (d Date) EndOfMonth() Date {
	return NewDate(d.Year(), d.Month(), daysIn(d.Year(), d.Time.Month()))
}

func (d Date) Before(o Date) bool { return d.Time.Before(o.Time) }
func (d Date) After(o Date) bool  { return d.Time.After(o.Time) }
func (d Date) Equal(o Date) bool  { return d.Time.Equal(o.Time) }

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return NewValidationError("date", "date must be a YYYY-MM-DD string")
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (t ExpenseType) Valid() bool {
	switch t {
	case ExpenseTypeExpense, ExpenseTypeIncome, ExpenseTypeTransfer:
		return true
	default:
		return false
	}
}

// IsOccurrence reports whether the expense is attached to a recurrence.
func (e Expense) IsOccurrence() bool {
	return e.RecurringExpenseID != 0
}

// SignedSum is the total the division rows must reconcile to: income postings
// are divided into income rows, which count negatively.
func (e Expense) SignedSum() Money {
	if e.Type == ExpenseTypeIncome {
		return e.Sum.Negate()
	}
	return e.Sum
}

// Clone returns a copy that shares no slices with e.
func (e Expense) Clone() Expense {
	c := e
	if e.Division != nil {
		c.Division = append([]DivisionItem(nil), e.Division...)
	}
	return c
}

func (e Expense) Validate() error {
	if err := e.Date.Validate(); err != nil {
		return err
	}
	if len(strings.TrimSpace(e.Title)) == 0 {
		return ErrEmptyTitle
	}
	if len(e.Title) > 200 {
		return ErrTitleTooLong
	}
	if !e.Type.Valid() {
		return NewValidationErrorf("type", "invalid expense type %q", e.Type)
	}
	if err := e.Sum.Validate(); err != nil {
		return err
	}
	if len(e.Division) > 0 {
		if err := ValidateDivision(e.SignedSum(), e.Division); err != nil {
			return err
		}
	}
	return nil
}

// ParseTarget validates a target selector coming from outside the system.
func ParseTarget(s string) (Target, error) {
	switch t := Target(strings.ToLower(strings.TrimSpace(s))); t {
	case TargetSingle, TargetAll, TargetAfter:
		return t, nil
	default:
		return "", NewValidationErrorf("target", "invalid target %q: must be single, all or after", s)
	}
}

// Clone returns a copy that shares no pointers or slices with r.
func (r RecurringExpense) Clone() RecurringExpense {
	c := r
	c.Template = r.Template.Clone()
	if r.OccursUntil != nil {
		until := *r.OccursUntil
		c.OccursUntil = &until
	}
	return c
}

// State is Active while OccursUntil is unset.
func (r RecurringExpense) State() RecurrenceState {
	if r.OccursUntil == nil {
		return StateActive
	}
	return StateTerminated
}

// IsFullyTerminated reports whether the definition ended before today and has
// nothing left to materialize.
func (r RecurringExpense) IsFullyTerminated(today Date) bool {
	if r.OccursUntil == nil {
		return false
	}
	return r.OccursUntil.Before(today) && r.NextMissing.After(*r.OccursUntil)
}

// HasPending reports whether an occurrence on or before upTo is still missing.
func (r RecurringExpense) HasPending(upTo Date) bool {
	if r.NextMissing.After(upTo) {
		return false
	}
	return r.OccursUntil == nil || !r.NextMissing.After(*r.OccursUntil)
}

// Cadence is the date occurrences are stepped from.
func (r RecurringExpense) Cadence() Date {
	if r.CadenceAnchor.IsEmpty() {
		return r.FirstOccurrence
	}
	return r.CadenceAnchor
}

// OccurrenceOnOrAfter returns the first scheduled date that is neither before
// d nor before FirstOccurrence.
func (r RecurringExpense) OccurrenceOnOrAfter(d Date) Date {
	if d.Before(r.FirstOccurrence) {
		d = r.FirstOccurrence
	}
	anchor := r.Cadence()
	return r.Period.Occurrence(anchor, r.Period.IndexOnOrAfter(anchor, d))
}

// LastOccurrenceBefore returns the last scheduled date strictly before d. It
// reports false when the schedule starts on or after d.
func (r RecurringExpense) LastOccurrenceBefore(d Date) (Date, bool) {
	anchor := r.Cadence()
	k := r.Period.LastIndexBefore(anchor, d)
	if k < 0 {
		return Date{}, false
	}
	last := r.Period.Occurrence(anchor, k)
	if last.Before(r.FirstOccurrence) {
		return Date{}, false
	}
	return last, true
}

// Totals returns the per month and per year view of the template sum.
func (r RecurringExpense) Totals() RecurrenceTotals {
	return r.Period.Totals(r.Template.Sum)
}

// IDProvider hands out identifiers for new rows.
type IDProvider interface {
	NextExpenseID() int64
	NextRecurringID() int64
}

// Sequence is an IDProvider counting up from the last ids in use. It is owned
// by a single transaction and is not safe for concurrent use.
type Sequence struct {
	expense   int64
	recurring int64
}

func NewSequence(lastExpenseID, lastRecurringID int64) *Sequence {
	return &Sequence{expense: lastExpenseID, recurring: lastRecurringID}
}

func (s *Sequence) NextExpenseID() int64 {
	s.expense++
	return s.expense
}

func (s *Sequence) NextRecurringID() int64 {
	s.recurring++
	return s.recurring
}

// Last returns the last issued expense and recurring ids.
func (s *Sequence) Last() (expenseID, recurringID int64) {
	return s.expense, s.recurring
}
