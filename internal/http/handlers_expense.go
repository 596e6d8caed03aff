package http

import (
	"log/slog"
	"net/http"

	"bookkeeper/internal/core"
	"bookkeeper/internal/log"
)

// handleCreateExpense stores a one-off posting. The sum is charged to the
// payer unless a division or benefit weights say otherwise.
func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	gid, err := groupID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	uid, err := parseHeaderID(r, HeaderUserID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var in expenseInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}

	created, err := s.expenses.CreateExpense(r.Context(), in.toExpense(gid, uid), in.Benefit)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
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

	e, err := s.expenses.GetExpense(r.Context(), gid, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// handleDeleteExpense removes a posting. Deleting an occurrence only removes
// that occurrence; use the recurring routes to end a series.
func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
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

	e, err := s.expenses.GetExpense(r.Context(), gid, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if e.IsOccurrence() {
		err = s.recurring.DeleteRecurring(r.Context(), gid, id, core.TargetSingle)
	} else {
		err = s.expenses.DeleteExpense(r.Context(), gid, id)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleMonth lists a month's postings, materializing due occurrences first.
func (s *Server) handleMonth(w http.ResponseWriter, r *http.Request) {
	gid, err := groupID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	params, err := ParseMonthParams(r.URL.Query(), s.now())
	if err != nil {
		writeError(w, r, err)
		return
	}

	overview, err := s.recurring.ExpensesForMonth(r.Context(), gid, params.Year, params.Month)
	if err != nil {
		writeError(w, r, err)
		return
	}

	log.FromContext(r.Context()).DebugContext(r.Context(), "Month overview served",
		slog.Int64(log.FieldGroupID, gid),
		slog.Int(log.FieldYear, params.Year),
		slog.Int(log.FieldMonth, params.Month),
		slog.Int(log.FieldCount, len(overview.Expenses)))
	writeJSON(w, http.StatusOK, overview)
}
