package http

import (
	"net/http"

	"bookkeeper/internal/core"
	"bookkeeper/internal/recurring"
)

// handleCreateRecurring turns the posting {id} into a recurrence.
func (s *Server) handleCreateRecurring(w http.ResponseWriter, r *http.Request) {
	gid, err := groupID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var in recurringInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	if err := in.validate(); err != nil {
		writeError(w, r, err)
		return
	}

	def, err := s.recurring.CreateRecurring(r.Context(), gid, id, in.Period, in.FirstOccurrence)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, def)
}

// handleUpdateRecurring edits the occurrence {id} and, depending on
// ?target=, its siblings.
func (s *Server) handleUpdateRecurring(w http.ResponseWriter, r *http.Request) {
	gid, err := groupID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	target, err := parseTarget(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var changes recurring.ExpenseChanges
	if err := decodeJSON(r, &changes); err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.recurring.UpdateRecurring(r.Context(), gid, id, target, changes); err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteRecurring(w http.ResponseWriter, r *http.Request) {
	gid, err := groupID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	target, err := parseTarget(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.recurring.DeleteRecurring(r.Context(), gid, id, target); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetRecurring(w http.ResponseWriter, r *http.Request) {
	gid, err := groupID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	def, err := s.recurring.GetRecurring(r.Context(), gid, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, def)
}

// recurringSummary is one row of the recurrence listing.
type recurringSummary struct {
	core.RecurringExpense
	State core.RecurrenceState `json:"state"`
}

func (s *Server) handleListRecurring(w http.ResponseWriter, r *http.Request) {
	gid, err := groupID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	defs, err := s.recurring.ListRecurring(r.Context(), gid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]recurringSummary, 0, len(defs))
	for _, def := range defs {
		out = append(out, recurringSummary{RecurringExpense: def, State: def.State()})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleTotals reports what recurrence {id} costs per month and per year.
func (s *Server) handleTotals(w http.ResponseWriter, r *http.Request) {
	gid, err := groupID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	totals, err := s.recurring.Totals(r.Context(), gid, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, totals)
}
