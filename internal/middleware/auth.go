package middleware

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/crucial707/spendflow/internal/auth"
	"github.com/crucial707/spendflow/internal/models"
)

type key string

const (
	UserIDKey   key = "user_id"
	UsernameKey key = "username"
)

// UserFinder looks up the account a token was issued for.
type UserFinder interface {
	GetByID(ctx context.Context, id int) (*models.User, error)
}

// Auth requires a valid "Bearer <token>" header whose user still exists.
// The user id and username are stored on the request context.
func Auth(issuer *auth.Issuer, users UserFinder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				writeError(w, "no token provided", http.StatusUnauthorized)
				return
			}

			claims, err := issuer.Verify(strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer ")))
			if err != nil {
				writeError(w, "invalid token", http.StatusUnauthorized)
				return
			}

			user, err := users.GetByID(r.Context(), claims.UserID)
			if errors.Is(err, sql.ErrNoRows) {
				writeError(w, "account deleted, please login again", http.StatusUnauthorized)
				return
			}
			if err != nil {
				slog.ErrorContext(r.Context(), "auth: load user", "user_id", claims.UserID, "error", err)
				writeError(w, "internal server error", http.StatusInternalServerError)
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, user.ID)
			ctx = context.WithValue(ctx, UsernameKey, user.Username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUserID returns the authenticated user's id set by Auth.
func GetUserID(ctx context.Context) (int, bool) {
	id, ok := ctx.Value(UserIDKey).(int)
	return id, ok
}

// GetUsername returns the authenticated user's username set by Auth.
func GetUsername(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(UsernameKey).(string)
	return name, ok
}

// WithUserID returns a context carrying id, as Auth would set it. Useful for handler tests.
func WithUserID(ctx context.Context, id int) context.Context {
	return context.WithValue(ctx, UserIDKey, id)
}

func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
