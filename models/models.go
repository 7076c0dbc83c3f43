package models

import "github.com/golang-jwt/jwt/v5"

// User represents a registered account. Password holds the bcrypt hash and is
// persisted, but never sent to clients; use Public for responses.
type User struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Public returns the client-facing projection of the user.
func (u User) Public() UserInfo {
	return UserInfo{ID: u.ID, Email: u.Email}
}

// UserInfo is the user as returned by the auth endpoints.
type UserInfo struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// LoginRequest defines the structure for user login requests.
type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// RegisterRequest is the registration payload. Password length counts
// characters, not bytes.
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email_format"`
	Password string `json:"password" validate:"required,min=6"`
}

// Claims defines the information stored in the JWT.
type Claims struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// AuthUser is the authenticated caller attached to a request context.
type AuthUser struct {
	UserID string
	Email  string
}

// Response is the envelope returned by every resource endpoint.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Count   *int   `json:"count,omitempty"`
}

// AuthResponse is returned by register and login.
type AuthResponse struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Token   string   `json:"token"`
	User    UserInfo `json:"user"`
}
