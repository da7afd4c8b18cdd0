package http

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"tucano/internal/middleware/auth"
)

// userID is the authenticated caller.
func userID(r *http.Request) string {
	return auth.UserID(r.Context())
}

// pathVar returns a route variable.
func pathVar(r *http.Request, name string) string {
	return mux.Vars(r)[name]
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
