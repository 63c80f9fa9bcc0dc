package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/samikhan1239/Fiver/internal/domain"
	"github.com/samikhan1239/Fiver/wire"
)

// handleGetUser serves GET /api/users/{userID} with the display info the
// chat frontend shows for a counterpart.
func handleGetUser(users domain.UserRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "userID")
		if !wire.IsHexID(id) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid user id"})
			return
		}
		u, err := users.GetByID(r.Context(), id)
		if err != nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "user not found"})
			return
		}
		writeJSON(w, http.StatusOK, wire.Sender{ID: u.ID, Name: u.Name, Avatar: u.Avatar})
	}
}
