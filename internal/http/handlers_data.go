package http

import (
	"fmt"
	"net/http"
)

// handleExport downloads the caller's categories, shopping lists and
// transactions as one JSON document.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	doc, err := s.deps.Repo.Export(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().
		Header("Content-Disposition", fmt.Sprintf(`attachment; filename="tucano-%s.json"`, s.today())).
		Body(doc).
		Write(w)
}

// handleImport replaces the partitions present in the uploaded document.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(w, r, maxImportBytes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.deps.Repo.Import(r.Context(), userID(r), data); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleDeleteAll removes every partition of the caller.
func (s *Server) handleDeleteAll(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Repo.DeleteAll(r.Context(), userID(r)); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
