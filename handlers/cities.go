package handlers

import (
	"net/http"
	"strings"
	"unicode"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/GitDonce/TwoGuys/middleware"
	"github.com/GitDonce/TwoGuys/models"
)

// GetCities retrieves all cities, optionally filtered by ?q=.
func (h *Handlers) GetCities(w http.ResponseWriter, r *http.Request) {
	cities, err := h.Store.ListCities(r.Context())
	if err != nil {
		h.storeFailure(w, r, err, "", "Failed to retrieve cities")
		return
	}
	if q := strings.TrimSpace(r.URL.Query().Get("q")); q != "" {
		cities = filterCities(cities, q)
	}
	respondWithList(w, cities)
}

// GetCity retrieves a single city by its ID.
func (h *Handlers) GetCity(w http.ResponseWriter, r *http.Request) {
	city, err := h.Store.GetCity(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.storeFailure(w, r, err, "City not found", "Failed to retrieve city")
		return
	}
	respondWithData(w, http.StatusOK, city, "")
}

// CreateCity creates a new city. When the caller is signed in the city is
// owned by them.
func (h *Handlers) CreateCity(w http.ResponseWriter, r *http.Request) {
	var req models.CityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if err := validate.Struct(req); err != nil {
		respondWithError(w, http.StatusBadRequest, validationMessage(err, ruleMessages{
			"required": "Name, country, and description are required",
		}))
		return
	}

	city := models.City{
		Name:        req.Name,
		Country:     req.Country,
		Description: req.Description,
		Population:  req.Population,
		Highlights:  req.Highlights,
		Icon:        req.Icon,
		Path:        req.Path,
		Sections:    req.Sections,
	}
	if city.Path == "" {
		city.Path = cityPath(city.Name)
	}
	if user, ok := middleware.UserFromContext(r.Context()); ok {
		city.UserID = user.UserID
	}
	city.Normalize()

	created, err := h.Store.CreateCity(r.Context(), city)
	if err != nil {
		h.storeFailure(w, r, err, "", "Failed to create city")
		return
	}
	h.Log.Debug("city created", zap.String("id", created.ID), zap.String("owner", created.UserID))
	respondWithData(w, http.StatusCreated, created, "City created successfully")
}

// UpdateCity merges the provided fields into an existing city.
func (h *Handlers) UpdateCity(w http.ResponseWriter, r *http.Request) {
	var req models.CityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	id := mux.Vars(r)["id"]
	if !h.authorizeCityChange(w, r, id, "Failed to update city") {
		return
	}

	city, err := h.Store.UpdateCity(r.Context(), id, req.Patch())
	if err != nil {
		h.storeFailure(w, r, err, "City not found", "Failed to update city")
		return
	}
	respondWithData(w, http.StatusOK, city, "City updated successfully")
}

// DeleteCity deletes a city by its ID and returns the deleted record.
func (h *Handlers) DeleteCity(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !h.authorizeCityChange(w, r, id, "Failed to delete city") {
		return
	}

	city, err := h.Store.DeleteCity(r.Context(), id)
	if err != nil {
		h.storeFailure(w, r, err, "City not found", "Failed to delete city")
		return
	}
	respondWithData(w, http.StatusOK, city, "City deleted successfully")
}

// authorizeCityChange enforces ownership: an owned city may only be changed by
// its owner. Unowned cities are open to everyone. It writes the error response
// and returns false when the change is not allowed.
func (h *Handlers) authorizeCityChange(w http.ResponseWriter, r *http.Request, id, failure string) bool {
	city, err := h.Store.GetCity(r.Context(), id)
	if err != nil {
		h.storeFailure(w, r, err, "City not found", failure)
		return false
	}
	if city.UserID == "" {
		return true
	}
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		if tokenErr := middleware.TokenErrorFromContext(r.Context()); tokenErr != nil {
			code, message := middleware.TokenFailure(tokenErr)
			respondWithError(w, code, message)
			return false
		}
		respondWithError(w, http.StatusUnauthorized, "Access token is required")
		return false
	}
	if user.UserID != city.UserID {
		h.Log.Info("rejected city change by non-owner",
			zap.String("city", id),
			zap.String("owner", city.UserID),
			zap.String("caller", user.UserID),
		)
		respondWithError(w, http.StatusForbidden, "You do not have permission to modify this city")
		return false
	}
	return true
}

// filterCities keeps cities whose name, country or any highlight contains q,
// ignoring case.
func filterCities(cities []models.City, q string) []models.City {
	fold := cases.Fold()
	needle := fold.String(q)
	matches := func(s string) bool {
		return strings.Contains(fold.String(s), needle)
	}

	filtered := make([]models.City, 0, len(cities))
	for _, c := range cities {
		if matches(c.Name) || matches(c.Country) {
			filtered = append(filtered, c)
			continue
		}
		for _, hl := range c.Highlights {
			if matches(hl) {
				filtered = append(filtered, c)
				break
			}
		}
	}
	return filtered
}

// cityPath derives the default page path from a city name: lower-cased,
// diacritics stripped, whitespace runs collapsed to dashes.
func cityPath(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}
	return "/" + strings.Join(strings.Fields(strings.ToLower(folded)), "-")
}
