package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/GitDonce/TwoGuys/auth"
	"github.com/GitDonce/TwoGuys/database"
	"github.com/GitDonce/TwoGuys/models"
)

const maxBodyBytes = 1 << 20

// Handlers holds the storage backend and token issuer shared by every endpoint.
type Handlers struct {
	Store  database.Store
	Tokens *auth.TokenIssuer
	Log    *zap.Logger
	Now    func() time.Time
}

// NewHandlers is a constructor for the Handlers struct.
func NewHandlers(store database.Store, tokens *auth.TokenIssuer, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		Store:  store,
		Tokens: tokens,
		Log:    logger.Named("handlers"),
		Now:    time.Now,
	}
}

// respondWithJSON is a helper function to format and send JSON responses.
func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		code = http.StatusInternalServerError
		response = []byte(`{"success":false,"message":"Internal server error"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, models.Response{Success: false, Message: message})
}

func respondWithData(w http.ResponseWriter, code int, data any, message string) {
	respondWithJSON(w, code, models.Response{Success: true, Data: data, Message: message})
}

func respondWithList[T any](w http.ResponseWriter, list []T) {
	if list == nil {
		list = []T{}
	}
	count := len(list)
	respondWithJSON(w, http.StatusOK, models.Response{Success: true, Data: list, Count: &count})
}

// decodeJSON reads a JSON body into dst. An empty body leaves dst untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	defer r.Body.Close()
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

// storeFailure logs a storage error and answers with the given message, or 404
// when the record does not exist.
func (h *Handlers) storeFailure(w http.ResponseWriter, r *http.Request, err error, notFound, failure string) {
	if errors.Is(err, database.ErrNotFound) && notFound != "" {
		respondWithError(w, http.StatusNotFound, notFound)
		return
	}
	h.Log.Error(failure,
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	respondWithError(w, http.StatusInternalServerError, failure)
}

func (h *Handlers) timestamp() string {
	return h.Now().UTC().Format(models.TimestampLayout)
}
