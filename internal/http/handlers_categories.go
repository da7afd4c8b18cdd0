package http

import (
	"net/http"

	"tucano/internal/core"
)

type categoryName struct {
	Name string `json:"name"`
}

// handleListCategories lists the categories of a type, seeding the defaults
// the first time a user has none.
func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	typ, err := ParseCategoryType(pathVar(r, "type"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	cats, err := s.deps.Repo.EnsureDefaultCategories(r.Context(), userID(r), typ)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if cats == nil {
		cats = []core.Category{}
	}
	writeJSON(w, http.StatusOK, cats)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	typ, err := ParseCategoryType(pathVar(r, "type"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	var body categoryName
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := s.deps.Repo.CreateCategory(r.Context(), userID(r), core.Category{
		Name: sanitizeInput(body.Name),
		Type: typ,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleRenameCategory(w http.ResponseWriter, r *http.Request) {
	typ, err := ParseCategoryType(pathVar(r, "type"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	var body categoryName
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := s.deps.Repo.RenameCategory(r.Context(), userID(r), typ, pathVar(r, "id"), sanitizeInput(body.Name))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	typ, err := ParseCategoryType(pathVar(r, "type"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.deps.Repo.DeleteCategory(r.Context(), userID(r), typ, pathVar(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
