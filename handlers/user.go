package handlers

import (
	"net/http"

	"github.com/GitDonce/TwoGuys/middleware"
)

// GetUserCities lists the cities owned by the signed-in user.
func (h *Handlers) GetUserCities(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}
	cities, err := h.Store.ListCitiesByUser(r.Context(), user.UserID)
	if err != nil {
		h.storeFailure(w, r, err, "", "Internal server error")
		return
	}
	respondWithList(w, cities)
}

// Root reports that the API is up.
func (h *Handlers) Root(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Two Guys Backend API is running!"})
}

// Health is the liveness probe.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "OK", "timestamp": h.timestamp()})
}
