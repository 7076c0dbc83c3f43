package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/GitDonce/TwoGuys/auth"
	"github.com/GitDonce/TwoGuys/models"
)

// ContextKey is a custom type to avoid context key collisions.
type ContextKey string

// UserKey is the key we'll use to store the authenticated user in the request context.
const UserKey ContextKey = "user"

// TokenErrorKey holds the verification error of a token Optional let through.
const TokenErrorKey ContextKey = "tokenError"

// TokenParser verifies a bearer token and returns its claims.
type TokenParser interface {
	Parse(token string) (*models.Claims, error)
}

// Auth checks bearer tokens and attaches the caller to the request context.
type Auth struct {
	tokens TokenParser
	log    *zap.Logger
}

// NewAuth returns auth middleware backed by tokens.
func NewAuth(tokens TokenParser, logger *zap.Logger) *Auth {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Auth{tokens: tokens, log: logger.Named("auth")}
}

// WithUser stores user in ctx.
func WithUser(ctx context.Context, user models.AuthUser) context.Context {
	return context.WithValue(ctx, UserKey, user)
}

// UserFromContext returns the authenticated user, if any.
func UserFromContext(ctx context.Context) (models.AuthUser, bool) {
	user, ok := ctx.Value(UserKey).(models.AuthUser)
	return user, ok && user.UserID != ""
}

// WithTokenError stores the reason a presented token was rejected.
func WithTokenError(ctx context.Context, err error) context.Context {
	return context.WithValue(ctx, TokenErrorKey, err)
}

// TokenErrorFromContext returns the error recorded by Optional, if any.
func TokenErrorFromContext(ctx context.Context) error {
	err, _ := ctx.Value(TokenErrorKey).(error)
	return err
}

// TokenFailure maps a token verification error to a status and client message.
func TokenFailure(err error) (int, string) {
	switch {
	case errors.Is(err, auth.ErrTokenExpired):
		return http.StatusUnauthorized, "Access token has expired"
	case errors.Is(err, auth.ErrTokenInvalid):
		return http.StatusUnauthorized, "Invalid access token"
	default:
		return http.StatusInternalServerError, "Token verification failed"
	}
}

// Require rejects requests without a valid bearer token.
func (a *Auth) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := BearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "Access token is required")
			return
		}

		claims, err := a.tokens.Parse(token)
		if err != nil {
			a.log.Info("token verification failed", zap.String("path", r.URL.Path), zap.Error(err))
			code, message := TokenFailure(err)
			writeError(w, code, message)
			return
		}

		ctx := WithUser(r.Context(), models.AuthUser{UserID: claims.UserID, Email: claims.Email})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Optional attaches the caller when a valid token is present and otherwise
// lets the request through anonymously. A rejected token is recorded with
// WithTokenError so handlers that end up needing a caller can say why.
func (a *Auth) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := BearerToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}
		claims, err := a.tokens.Parse(token)
		if err != nil {
			a.log.Warn("optional token verification failed", zap.String("path", r.URL.Path), zap.Error(err))
			next.ServeHTTP(w, r.WithContext(WithTokenError(r.Context(), err)))
			return
		}
		ctx := WithUser(r.Context(), models.AuthUser{UserID: claims.UserID, Email: claims.Email})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// BearerToken returns the second space-separated part of the Authorization
// header. The scheme word is not checked, so "Basic abc" yields "abc" and then
// fails verification as an invalid token.
func BearerToken(r *http.Request) string {
	parts := strings.Split(r.Header.Get("Authorization"), " ")
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

func writeError(w http.ResponseWriter, code int, message string) {
	response, _ := json.Marshal(models.Response{Success: false, Message: message})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}
