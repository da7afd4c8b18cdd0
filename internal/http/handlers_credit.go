package http

import (
	"net/http"
	"strings"

	"tucano/internal/core"
	"tucano/internal/services"
)

type creditStatement struct {
	Month   string             `json:"month,omitempty"`
	Entries []core.CreditEntry `json:"entries"`
	Total   core.Money         `json:"total"`
}

// handleCreditStatement lists credit card charges with their installment
// numbers. month, category and search narrow the list; the total covers the
// whole month regardless of category and search.
func (s *Server) handleCreditStatement(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	month, err := ParseMonthParam(query)
	if err != nil {
		writeError(w, r, err)
		return
	}
	snap, err := s.snapshot(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	entries, total := core.CreditStatement(snap.Transactions, core.CreditFilter{
		Month:    month,
		Category: strings.TrimSpace(query.Get("category")),
		Search:   sanitizeInput(query.Get("search")),
	})
	writeJSON(w, http.StatusOK, creditStatement{Month: month, Entries: entries, Total: total})
}

// handleCreditPurchase schedules an installment purchase or a subscription.
func (s *Server) handleCreditPurchase(w http.ResponseWriter, r *http.Request) {
	var p services.Purchase
	if err := decodeJSON(w, r, &p); err != nil {
		writeError(w, r, err)
		return
	}
	p.Name = sanitizeInput(p.Name)

	txs, err := s.deps.Credit.Purchase(r.Context(), userID(r), p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, txs)
}

func (s *Server) handleGetCreditSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.deps.Repo.GetCreditSettings(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handleSaveCreditSettings(w http.ResponseWriter, r *http.Request) {
	var settings core.CreditCardSettings
	if err := decodeJSON(w, r, &settings); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.deps.Repo.SaveCreditSettings(r.Context(), userID(r), settings); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}
