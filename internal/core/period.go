package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Days     PeriodUnit = "days"
	Weeks    PeriodUnit = "weeks"
	Months   PeriodUnit = "months"
	Quarters PeriodUnit = "quarters"
	Years    PeriodUnit = "years"
)

// PeriodUnit is the calendar unit of a recurrence period.
type PeriodUnit string

// ParsePeriodUnit validates a unit name coming from outside the system.
func ParsePeriodUnit(s string) (PeriodUnit, error) {
	u := PeriodUnit(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := steppers[u]; !ok {
		return "", NewValidationErrorf("period.unit", "unknown period unit %q", s)
	}
	return u, nil
}

func (u *PeriodUnit) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return NewValidationError("period.unit", "period unit must be a string")
	}
	parsed, err := ParsePeriodUnit(s)
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

// Stepper moves a date forward by n whole units using calendar arithmetic.
// Each unit has its own implementation.
type Stepper interface {
	Step(d Date, n int) Date
}

// DayStepper adds a fixed number of days per unit.
type DayStepper struct {
	DaysPerUnit int
}

func (s DayStepper) Step(d Date, n int) Date {
	return d.AddDays(n * s.DaysPerUnit)
}

// MonthStepper adds whole months per unit, clamping to the last day of the
// target month: Jan 31 + 1 month is Feb 28 (Feb 29 on leap years).
type MonthStepper struct {
	MonthsPerUnit int
}

func (s MonthStepper) Step(d Date, n int) Date {
	return d.AddMonthsClamped(n * s.MonthsPerUnit)
}

// steppers maps units to their stepping strategy.
var steppers = map[PeriodUnit]Stepper{
	Days:     DayStepper{DaysPerUnit: 1},
	Weeks:    DayStepper{DaysPerUnit: 7},
	Months:   MonthStepper{MonthsPerUnit: 1},
	Quarters: MonthStepper{MonthsPerUnit: 3},
	Years:    MonthStepper{MonthsPerUnit: 12},
}

// unitsPerYear is the average number of units in a calendar year.
var unitsPerYear = map[PeriodUnit]decimal.Decimal{
	Days:     decimal.RequireFromString("365.25"),
	Weeks:    decimal.RequireFromString("52.1786"),
	Months:   decimal.NewFromInt(12),
	Quarters: decimal.NewFromInt(4),
	Years:    decimal.NewFromInt(1),
}

// averageDaysPerUnit is used only to pick a starting index before an exact search.
var averageDaysPerUnit = map[PeriodUnit]float64{
	Days:     1,
	Weeks:    7,
	Months:   30.436875,
	Quarters: 91.310625,
	Years:    365.2425,
}

// RecurrencePeriod means "every Amount Units".
type RecurrencePeriod struct {
	Unit   PeriodUnit `json:"unit"`
	Amount int        `json:"amount"`
}

func (p RecurrencePeriod) Validate() error {
	if _, ok := steppers[p.Unit]; !ok {
		return NewValidationErrorf("period.unit", "unknown period unit %q", p.Unit)
	}
	if p.Amount < 1 {
		return NewValidationErrorf("period.amount", "period amount must be at least 1, got %d", p.Amount)
	}
	return nil
}

func (p RecurrencePeriod) String() string {
	return fmt.Sprintf("every %d %s", p.Amount, p.Unit)
}

// Add moves d forward by n periods (backward for negative n).
func (p RecurrencePeriod) Add(d Date, n int) Date {
	stepper, ok := steppers[p.Unit]
	if !ok {
		panic(fmt.Sprintf("unvalidated period unit %q", p.Unit))
	}
	return stepper.Step(d, n*p.Amount)
}

// Occurrence returns the k-th occurrence date of a schedule anchored at first.
// Dates are always computed from the anchor, so a clamped month does not shift
// later occurrences (Jan 31, Feb 28, Mar 31, ...).
func (p RecurrencePeriod) Occurrence(first Date, k int) Date {
	return p.Add(first, k)
}

// IndexOnOrAfter returns the smallest k >= 0 whose occurrence is not before d.
func (p RecurrencePeriod) IndexOnOrAfter(first, d Date) int {
	if !d.After(first) {
		return 0
	}
	k := p.estimateIndex(first, d)
	for k > 0 && !p.Occurrence(first, k-1).Before(d) {
		k--
	}
	for p.Occurrence(first, k).Before(d) {
		k++
	}
	return k
}

// LastIndexBefore returns the largest k whose occurrence is strictly before d,
// or -1 when the schedule starts on or after d.
func (p RecurrencePeriod) LastIndexBefore(first, d Date) int {
	return p.IndexOnOrAfter(first, d) - 1
}

func (p RecurrencePeriod) estimateIndex(first, d Date) int {
	days := d.Sub(first.Time).Hours() / 24
	k := int(days/(averageDaysPerUnit[p.Unit]*float64(p.Amount))) - 1
	if k < 0 {
		return 0
	}
	return k
}

// PeriodsPerYear is the average number of occurrences in a year.
func (p RecurrencePeriod) PeriodsPerYear() decimal.Decimal {
	return unitsPerYear[p.Unit].Div(decimal.NewFromInt(int64(p.Amount)))
}

// RecurrenceTotals is the budgeting view of a recurring sum.
//
// The figures are approximations built on average calendar lengths
// (365.25 days and 52.1786 weeks per year); they are meant for display and
// are never used to create postings.
type RecurrenceTotals struct {
	PerMonth Money `json:"recurrencePerMonth"`
	PerYear  Money `json:"recurrencePerYear"`
}

// Totals normalizes sum, charged once per period, to month and year figures.
// Both figures are computed directly from the cents and truncated once.
func (p RecurrencePeriod) Totals(sum Money) RecurrenceTotals {
	if p.Validate() != nil {
		return RecurrenceTotals{}
	}
	perYearNumerator := decimal.NewFromInt(sum.Cents()).Mul(unitsPerYear[p.Unit])
	amount := decimal.NewFromInt(int64(p.Amount))
	perYear, _ := perYearNumerator.QuoRem(amount, 0)
	perMonth, _ := perYearNumerator.QuoRem(amount.Mul(decimal.NewFromInt(12)), 0)
	return RecurrenceTotals{
		PerMonth: MoneyFromCents(perMonth.IntPart()),
		PerYear:  MoneyFromCents(perYear.IntPart()),
	}
}

// daysIn returns the number of days of the given month.
func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
