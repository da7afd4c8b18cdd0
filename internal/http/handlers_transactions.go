package http

import (
	"net/http"

	"tucano/internal/core"
	"tucano/internal/log"
	"tucano/internal/services"
)

type transactionList struct {
	Month        string             `json:"month,omitempty"`
	Transactions []core.Transaction `json:"transactions"`
	TotalIncome  core.Money         `json:"totalIncome"`
	TotalExpense core.Money         `json:"totalExpense"`
}

// handleListTransactions lists the caller's transactions, optionally
// narrowed to one month and one type.
func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	month, err := ParseMonthParam(query)
	if err != nil {
		writeError(w, r, err)
		return
	}
	typ, err := ParseTransactionType(query)
	if err != nil {
		writeError(w, r, err)
		return
	}

	snap, err := s.snapshot(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	txs := snap.Transactions
	if month != "" {
		txs = core.FilterByMonth(txs, month)
	}
	out := make([]core.Transaction, 0, len(txs))
	for _, t := range txs {
		if typ == "" || t.Type == typ {
			out = append(out, t)
		}
	}
	income, expense := core.Totals(out)
	writeJSON(w, http.StatusOK, transactionList{
		Month:        month,
		Transactions: out,
		TotalIncome:  income,
		TotalExpense: expense,
	})
}

// handleCreateTransaction stores a single transaction or starts a
// recurrence, answering with every instance written.
func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var t core.Transaction
	if err := decodeJSON(w, r, &t); err != nil {
		writeError(w, r, err)
		return
	}
	t.Name = sanitizeInput(t.Name)

	created, err := s.deps.Transactions.Create(r.Context(), userID(r), t)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// handleUpdateTransaction applies an edit to one instance, the future of its
// group or the whole group.
func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	var e services.Edit
	if err := decodeJSON(w, r, &e); err != nil {
		writeError(w, r, err)
		return
	}
	e.Name = sanitizeInput(e.Name)

	updated, err := s.deps.Transactions.Update(r.Context(), userID(r), pathVar(r, "id"), e, ParseScope(r.URL.Query()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	scope := ParseScope(r.URL.Query())
	n, err := s.deps.Transactions.Delete(r.Context(), userID(r), pathVar(r, "id"), scope)
	if err != nil {
		// a partial delete already removed n instances
		if n > 0 {
			log.FromContext(r.Context()).ErrorContext(r.Context(), "Delete partially applied",
				log.FieldTransactionID, pathVar(r, "id"),
				log.FieldCount, n,
				log.FieldError, err)
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

func (s *Server) handleTogglePaid(w http.ResponseWriter, r *http.Request) {
	t, err := s.deps.Transactions.TogglePaid(r.Context(), userID(r), pathVar(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}
