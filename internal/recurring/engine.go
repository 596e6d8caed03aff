// Package recurring schedules recurring expenses and turns target-scoped edits
// into plans. It performs no I/O: every mutating call returns a Plan that the
// caller applies atomically.
package recurring

import (
	"fmt"

	"bookkeeper/internal/core"
)

// Plan lists the row changes produced by one engine call.
type Plan struct {
	SaveDefinitions   []core.RecurringExpense
	DeleteDefinitions []int64
	CreateOccurrences []core.Expense
	UpdateOccurrences []core.Expense
	DeleteOccurrences []int64
}

// IsEmpty reports whether applying the plan would change nothing.
func (p Plan) IsEmpty() bool {
	return len(p.SaveDefinitions) == 0 && len(p.DeleteDefinitions) == 0 &&
		len(p.CreateOccurrences) == 0 && len(p.UpdateOccurrences) == 0 && len(p.DeleteOccurrences) == 0
}

// Merge appends o to p. A definition saved twice keeps its last version.
func (p *Plan) Merge(o Plan) {
	for _, def := range o.SaveDefinitions {
		p.saveDefinition(def)
	}
	p.DeleteDefinitions = append(p.DeleteDefinitions, o.DeleteDefinitions...)
	p.CreateOccurrences = append(p.CreateOccurrences, o.CreateOccurrences...)
	p.UpdateOccurrences = append(p.UpdateOccurrences, o.UpdateOccurrences...)
	p.DeleteOccurrences = append(p.DeleteOccurrences, o.DeleteOccurrences...)
}

func (p *Plan) saveDefinition(def core.RecurringExpense) {
	for i := range p.SaveDefinitions {
		if p.SaveDefinitions[i].ID == def.ID {
			p.SaveDefinitions[i] = def
			return
		}
	}
	p.SaveDefinitions = append(p.SaveDefinitions, def)
}

// UpdateRequest addresses one occurrence of a recurrence.
type UpdateRequest struct {
	GroupID int64
	Target  core.Target
	// Definition is the recurrence Occurrence is attached to; nil when it is
	// not attached to any.
	Definition *core.RecurringExpense
	Occurrence core.Expense
	// Attached holds every posting currently attached to Definition.
	Attached []core.Expense
	Changes  ExpenseChanges
	// AsOf splits frozen history from rows a TargetAll edit rewrites.
	AsOf core.Date
}

// Engine is the recurrence state machine. It is not safe for concurrent use;
// create one per transaction.
type Engine struct {
	ids core.IDProvider
}

func New(ids core.IDProvider) *Engine {
	return &Engine{ids: ids}
}

// Create turns template into an Active recurrence starting at first. A zero
// first starts the recurrence at the template's own date.
//
// A stored template dated on first is attached as occurrence #0; otherwise the
// template only seeds the definition and the first occurrence is still missing.
// A stored template dated after first is rejected, as the schedule would
// generate a second posting next to it.
func (e *Engine) Create(groupID int64, template core.Expense, period core.RecurrencePeriod, first core.Date) (core.RecurringExpense, Plan, error) {
	if template.GroupID != groupID {
		return core.RecurringExpense{}, Plan{}, fmt.Errorf("create recurring from expense %d: %w", template.ID, core.ErrForbidden)
	}
	if template.IsOccurrence() {
		return core.RecurringExpense{}, Plan{}, core.ErrAlreadyRecurring
	}
	if err := period.Validate(); err != nil {
		return core.RecurringExpense{}, Plan{}, err
	}
	if first.IsEmpty() {
		first = template.Date
	}
	if err := first.Validate(); err != nil {
		return core.RecurringExpense{}, Plan{}, err
	}
	if template.ID != 0 && first.Before(template.Date) {
		return core.RecurringExpense{}, Plan{}, core.NewValidationErrorf("firstOccurrence",
			"first occurrence %s is before the expense date %s", first, template.Date)
	}
	if err := template.Validate(); err != nil {
		return core.RecurringExpense{}, Plan{}, err
	}

	def := core.RecurringExpense{
		ID:              e.ids.NextRecurringID(),
		GroupID:         groupID,
		Template:        templateOf(template, first),
		Period:          period,
		FirstOccurrence: first,
		NextMissing:     first,
	}

	var plan Plan
	if template.ID != 0 && template.Date.Equal(first) {
		attached := template.Clone()
		attached.RecurringExpenseID = def.ID
		plan.UpdateOccurrences = append(plan.UpdateOccurrences, attached)
		def.NextMissing = period.Occurrence(first, 1)
	}
	plan.SaveDefinitions = append(plan.SaveDefinitions, def)
	return def, plan, nil
}

// Materialize creates the missing occurrences dated on or before upTo.
// Occurrences are frozen copies of the template; later template edits never
// reach them unless an edit targets them explicitly.
func (e *Engine) Materialize(def core.RecurringExpense, upTo core.Date) (core.RecurringExpense, Plan) {
	if !def.HasPending(upTo) {
		return def, Plan{}
	}
	var plan Plan
	anchor := def.Cadence()
	k := def.Period.IndexOnOrAfter(anchor, def.NextMissing)
	for {
		d := def.Period.Occurrence(anchor, k)
		if d.After(upTo) || (def.OccursUntil != nil && d.After(*def.OccursUntil)) {
			def.NextMissing = d
			break
		}
		plan.CreateOccurrences = append(plan.CreateOccurrences, e.occurrence(def, d))
		k++
	}
	plan.SaveDefinitions = append(plan.SaveDefinitions, def)
	return def, plan
}

// Update applies req.Changes to the occurrences selected by req.Target.
func (e *Engine) Update(req UpdateRequest) (Plan, error) {
	def, err := checkTarget(req.GroupID, req.Definition, req.Occurrence)
	if err != nil {
		return Plan{}, err
	}
	switch req.Target {
	case core.TargetSingle:
		return e.updateSingle(req)
	case core.TargetAll:
		return e.updateAll(def, req)
	case core.TargetAfter:
		return e.updateAfter(def, req)
	default:
		return Plan{}, core.NewValidationErrorf("target", "invalid target %q", req.Target)
	}
}

func (e *Engine) updateSingle(req UpdateRequest) (Plan, error) {
	if req.Changes.Period != nil {
		return Plan{}, core.NewValidationError("period", "the period of a single occurrence cannot be changed")
	}
	updated, err := req.Changes.Apply(req.Occurrence)
	if err != nil {
		return Plan{}, err
	}
	if req.Changes.Date != nil {
		updated.Date = *req.Changes.Date
		if err := updated.Date.Validate(); err != nil {
			return Plan{}, err
		}
	}
	// The edited occurrence leaves the recurrence, so later series edits
	// never overwrite it.
	updated.RecurringExpenseID = 0
	return Plan{UpdateOccurrences: []core.Expense{updated}}, nil
}

func (e *Engine) updateAll(def core.RecurringExpense, req UpdateRequest) (Plan, error) {
	if err := rejectDateChange(req); err != nil {
		return Plan{}, err
	}
	template, period, err := applyToTemplate(def, req.Changes)
	if err != nil {
		return Plan{}, err
	}
	periodChanged := period != def.Period
	def.Template = template
	def.Period = period
	if periodChanged {
		def.CadenceAnchor = core.Date{}
	}

	var plan Plan
	var horizon *core.Date
	for _, occ := range req.Attached {
		if occ.Date.Before(req.AsOf) {
			continue
		}
		if periodChanged {
			plan.DeleteOccurrences = append(plan.DeleteOccurrences, occ.ID)
			horizon = later(horizon, occ.Date)
			continue
		}
		updated, err := req.Changes.Apply(occ)
		if err != nil {
			return Plan{}, err
		}
		plan.UpdateOccurrences = append(plan.UpdateOccurrences, updated)
	}
	if periodChanged {
		// Rows from AsOf on regenerate on the new cadence.
		rewindFrom := def.NextMissing
		if req.AsOf.Before(rewindFrom) {
			rewindFrom = req.AsOf
		}
		def.NextMissing = def.OccurrenceOnOrAfter(rewindFrom)
		if horizon != nil {
			var regenerated Plan
			def, regenerated = e.Materialize(def, *horizon)
			plan.CreateOccurrences = append(plan.CreateOccurrences, regenerated.CreateOccurrences...)
		}
	}
	plan.SaveDefinitions = append(plan.SaveDefinitions, def)
	return plan, nil
}

func (e *Engine) updateAfter(def core.RecurringExpense, req UpdateRequest) (Plan, error) {
	if err := rejectDateChange(req); err != nil {
		return Plan{}, err
	}
	from := req.Occurrence.Date
	if def.OccursUntil != nil && def.OccursUntil.Before(from) {
		return Plan{}, core.NewValidationErrorf("date", "recurrence already ends on %s", def.OccursUntil)
	}
	template, period, err := applyToTemplate(def, req.Changes)
	if err != nil {
		return Plan{}, err
	}
	periodChanged := period != def.Period

	// With an unchanged period the new recurrence keeps the old cadence, so a
	// clamped start (Feb 29 of a Jan 31 schedule) does not shift later dates.
	newFirst := def.OccurrenceOnOrAfter(from)
	next := core.RecurringExpense{
		ID:              e.ids.NextRecurringID(),
		GroupID:         def.GroupID,
		Template:        templateOf(template, newFirst),
		Period:          period,
		FirstOccurrence: newFirst,
		NextMissing:     newFirst,
	}
	if !periodChanged {
		next.CadenceAnchor = def.Cadence()
		if def.NextMissing.After(newFirst) {
			next.NextMissing = def.NextMissing
		}
	}
	if def.OccursUntil != nil {
		until := *def.OccursUntil
		next.OccursUntil = &until
	}

	plan := Plan{SaveDefinitions: []core.RecurringExpense{endBefore(def, from)}}

	var horizon *core.Date
	for _, occ := range req.Attached {
		if occ.Date.Before(from) {
			continue
		}
		if periodChanged {
			plan.DeleteOccurrences = append(plan.DeleteOccurrences, occ.ID)
			horizon = later(horizon, occ.Date)
			continue
		}
		updated, err := req.Changes.Apply(occ)
		if err != nil {
			return Plan{}, err
		}
		updated.RecurringExpenseID = next.ID
		plan.UpdateOccurrences = append(plan.UpdateOccurrences, updated)
	}

	if horizon != nil {
		var regenerated Plan
		next, regenerated = e.Materialize(next, *horizon)
		plan.CreateOccurrences = append(plan.CreateOccurrences, regenerated.CreateOccurrences...)
	}
	plan.SaveDefinitions = append(plan.SaveDefinitions, next)
	return plan, nil
}

// TerminateRequest addresses the occurrences to remove.
type TerminateRequest struct {
	GroupID    int64
	Target     core.Target
	Definition *core.RecurringExpense
	Occurrence core.Expense
	Attached   []core.Expense
}

// Terminate removes the occurrences selected by req.Target.
func (e *Engine) Terminate(req TerminateRequest) (Plan, error) {
	def, err := checkTarget(req.GroupID, req.Definition, req.Occurrence)
	if err != nil {
		return Plan{}, err
	}
	switch req.Target {
	case core.TargetSingle:
		return Plan{DeleteOccurrences: []int64{req.Occurrence.ID}}, nil
	case core.TargetAll:
		return deleteSeries(def, req.Attached), nil
	case core.TargetAfter:
		from := req.Occurrence.Date
		plan := Plan{SaveDefinitions: []core.RecurringExpense{endBefore(def, from)}}
		for _, occ := range req.Attached {
			if !occ.Date.Before(from) {
				plan.DeleteOccurrences = append(plan.DeleteOccurrences, occ.ID)
			}
		}
		return plan, nil
	default:
		return Plan{}, core.NewValidationErrorf("target", "invalid target %q", req.Target)
	}
}

// endBefore terminates def on its last occurrence before d. A definition with
// no occurrence before d is kept with an end date the day before it starts.
func endBefore(def core.RecurringExpense, d core.Date) core.RecurringExpense {
	until, ok := def.LastOccurrenceBefore(d)
	if !ok {
		until = def.FirstOccurrence.AddDays(-1)
	}
	if def.OccursUntil == nil || until.Before(*def.OccursUntil) {
		def.OccursUntil = &until
	}
	return def
}

func deleteSeries(def core.RecurringExpense, attached []core.Expense) Plan {
	plan := Plan{DeleteDefinitions: []int64{def.ID}}
	for _, occ := range attached {
		plan.DeleteOccurrences = append(plan.DeleteOccurrences, occ.ID)
	}
	return plan
}

func checkTarget(groupID int64, def *core.RecurringExpense, occ core.Expense) (core.RecurringExpense, error) {
	if occ.GroupID != groupID {
		return core.RecurringExpense{}, fmt.Errorf("expense %d: %w", occ.ID, core.ErrForbidden)
	}
	if def == nil || !occ.IsOccurrence() || occ.RecurringExpenseID != def.ID {
		return core.RecurringExpense{}, fmt.Errorf("expense %d: %w", occ.ID, core.ErrNotRecurring)
	}
	if def.GroupID != groupID {
		return core.RecurringExpense{}, fmt.Errorf("recurring expense %d: %w", def.ID, core.ErrForbidden)
	}
	return def.Clone(), nil
}

func rejectDateChange(req UpdateRequest) error {
	if req.Changes.Date != nil && !req.Changes.Date.Equal(req.Occurrence.Date) {
		return core.NewValidationError("date", "only a single occurrence can be moved to another date")
	}
	return nil
}

func applyToTemplate(def core.RecurringExpense, changes ExpenseChanges) (core.Expense, core.RecurrencePeriod, error) {
	period := def.Period
	if changes.Period != nil {
		if err := changes.Period.Validate(); err != nil {
			return core.Expense{}, core.RecurrencePeriod{}, err
		}
		period = *changes.Period
	}
	template, err := changes.Apply(def.Template)
	if err != nil {
		return core.Expense{}, core.RecurrencePeriod{}, err
	}
	return template, period, nil
}

func later(cur *core.Date, d core.Date) *core.Date {
	if cur == nil || d.After(*cur) {
		return &d
	}
	return cur
}

func templateOf(e core.Expense, date core.Date) core.Expense {
	t := e.Clone()
	t.ID = 0
	t.RecurringExpenseID = 0
	t.Date = date
	return t
}

func (e *Engine) occurrence(def core.RecurringExpense, d core.Date) core.Expense {
	occ := def.Template.Clone()
	occ.ID = e.ids.NextExpenseID()
	occ.GroupID = def.GroupID
	occ.Date = d
	occ.RecurringExpenseID = def.ID
	return occ
}
