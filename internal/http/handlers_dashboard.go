package http

import (
	"net/http"

	"tucano/internal/core"
)

// handleDashboard aggregates the caller's transactions and completed
// shopping lists for the requested period.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	period, err := ParsePeriod(query)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ref, err := ParseReferenceDate(query, s.today())
	if err != nil {
		writeError(w, r, err)
		return
	}

	snap, err := s.snapshot(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, core.BuildDashboard(snap.Transactions, snap.ShoppingLists, period, ref))
}
