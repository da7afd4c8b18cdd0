package http

import (
	"net/http"

	"tucano/internal/core"
)

// handleListShoppingLists lists the caller's lists with their items,
// optionally narrowed to one month.
func (s *Server) handleListShoppingLists(w http.ResponseWriter, r *http.Request) {
	month, err := ParseMonthParam(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	snap, err := s.snapshot(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]core.ShoppingListDetail, 0, len(snap.ShoppingLists))
	for _, l := range snap.ShoppingLists {
		if month == "" || l.MonthKey() == month {
			out = append(out, l)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateShoppingList(w http.ResponseWriter, r *http.Request) {
	var l core.ShoppingList
	if err := decodeJSON(w, r, &l); err != nil {
		writeError(w, r, err)
		return
	}
	l.Name = sanitizeInput(l.Name)
	created, err := s.deps.Repo.CreateShoppingList(r.Context(), userID(r), l)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, core.ShoppingListDetail{ShoppingList: created, Items: []core.ShoppingListItem{}})
}

func (s *Server) handleGetShoppingList(w http.ResponseWriter, r *http.Request) {
	l, err := s.deps.Repo.GetShoppingList(r.Context(), userID(r), pathVar(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

// handleUpdateShoppingList changes name, month, year and budget.
func (s *Server) handleUpdateShoppingList(w http.ResponseWriter, r *http.Request) {
	var l core.ShoppingList
	if err := decodeJSON(w, r, &l); err != nil {
		writeError(w, r, err)
		return
	}
	l.ID = pathVar(r, "id")
	l.Name = sanitizeInput(l.Name)
	updated, err := s.deps.Repo.UpdateShoppingList(r.Context(), userID(r), l)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteShoppingList(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Repo.DeleteShoppingList(r.Context(), userID(r), pathVar(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Item handlers answer with the whole list so clients get the recomputed
// spent, item count and completion flag.

func (s *Server) handleAddItem(w http.ResponseWriter, r *http.Request) {
	var it core.ShoppingListItem
	if err := decodeJSON(w, r, &it); err != nil {
		writeError(w, r, err)
		return
	}
	it.Name = sanitizeInput(it.Name)
	l, err := s.deps.Repo.AddItem(r.Context(), userID(r), pathVar(r, "id"), it)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, l)
}

func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	var it core.ShoppingListItem
	if err := decodeJSON(w, r, &it); err != nil {
		writeError(w, r, err)
		return
	}
	it.ID = pathVar(r, "itemId")
	it.Name = sanitizeInput(it.Name)
	l, err := s.deps.Repo.UpdateItem(r.Context(), userID(r), pathVar(r, "id"), it)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (s *Server) handleToggleItem(w http.ResponseWriter, r *http.Request) {
	l, err := s.deps.Repo.ToggleItem(r.Context(), userID(r), pathVar(r, "id"), pathVar(r, "itemId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	l, err := s.deps.Repo.DeleteItem(r.Context(), userID(r), pathVar(r, "id"), pathVar(r, "itemId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}
