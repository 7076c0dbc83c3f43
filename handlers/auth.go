package handlers

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/GitDonce/TwoGuys/auth"
	"github.com/GitDonce/TwoGuys/database"
	"github.com/GitDonce/TwoGuys/models"
)

var (
	registerMessages = ruleMessages{
		"required":     "Email and password are required",
		emailFormatTag: "Invalid email format",
		"min":          "Password must be at least 6 characters long",
	}
	loginMessages = ruleMessages{
		"required": "Email and password are required",
	}
)

// RegisterUser handles a new user registration and signs the user in.
func (h *Handlers) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if err := validate.Struct(req); err != nil {
		respondWithError(w, http.StatusBadRequest, validationMessage(err, registerMessages))
		return
	}

	// Check if the email is already registered.
	_, err := h.Store.GetUserByEmail(r.Context(), req.Email)
	if err == nil {
		respondWithError(w, http.StatusConflict, "User with this email already exists")
		return
	}
	if !errors.Is(err, database.ErrNotFound) {
		h.storeFailure(w, r, err, "", "Internal server error")
		return
	}

	hashedPassword, err := auth.HashPassword(req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooLong) {
			respondWithError(w, http.StatusBadRequest, "Password must be at most 72 bytes long")
			return
		}
		h.Log.Error("password hashing error", zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	user, err := h.Store.CreateUser(r.Context(), models.User{
		Email:    strings.ToLower(req.Email),
		Password: hashedPassword,
	})
	if errors.Is(err, database.ErrAlreadyExists) {
		respondWithError(w, http.StatusConflict, "User with this email already exists")
		return
	}
	if err != nil {
		h.storeFailure(w, r, err, "", "Internal server error")
		return
	}

	h.respondWithToken(w, http.StatusCreated, user, "User registered successfully")
}

// LoginUser handles user authentication and returns a JWT.
func (h *Handlers) LoginUser(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if err := validate.Struct(req); err != nil {
		respondWithError(w, http.StatusBadRequest, validationMessage(err, loginMessages))
		return
	}

	user, err := h.Store.GetUserByEmail(r.Context(), req.Email)
	if errors.Is(err, database.ErrNotFound) {
		respondWithError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	if err != nil {
		h.storeFailure(w, r, err, "", "Internal server error")
		return
	}

	if !auth.CheckPasswordHash(req.Password, user.Password) {
		respondWithError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	h.respondWithToken(w, http.StatusOK, user, "Login successful")
}

// LogoutUser acknowledges a logout. Tokens are stateless, so the client just
// discards its copy.
func (h *Handlers) LogoutUser(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, models.Response{Success: true, Message: "Logout successful"})
}

func (h *Handlers) respondWithToken(w http.ResponseWriter, code int, user models.User, message string) {
	token, err := h.Tokens.Issue(user.ID, user.Email)
	if err != nil {
		h.Log.Error("error signing token", zap.String("user", user.ID), zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	respondWithJSON(w, code, models.AuthResponse{
		Success: true,
		Message: message,
		Token:   token,
		User:    user.Public(),
	})
}
