package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/crucial707/spendflow/internal/auth"
	"github.com/crucial707/spendflow/internal/events"
	"github.com/crucial707/spendflow/internal/metrics"
	"github.com/crucial707/spendflow/internal/middleware"
	"github.com/crucial707/spendflow/internal/models"
	"github.com/crucial707/spendflow/internal/repo"
	"golang.org/x/crypto/bcrypt"
)

// BcryptCost is the work factor for stored password hashes.
const BcryptCost = 10

const maxPasswordBytes = 72

var usernamePattern = regexp.MustCompile(`^[a-z0-9_]{3,20}$`)

// NormalizeUsername trims and lowercases a username as it is stored.
func NormalizeUsername(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ValidUsername reports whether a normalized username is 3-20 lowercase letters, digits or underscores.
func ValidUsername(s string) bool {
	return usernamePattern.MatchString(s)
}

// ==========================
// Auth Handler
// ==========================
type AuthHandler struct {
	UserRepo *repo.UserRepo
	Tokens   *auth.Issuer
	Events   events.Publisher
}

type authResponse struct {
	Token string         `json:"token"`
	User  models.Profile `json:"user"`
}

// ==========================
// Register
// ==========================
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Name     string `json:"name" validate:"required,max=100"`
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required,max=72"`
	}

	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		JSONError(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	input.Name = strings.TrimSpace(input.Name)
	input.Username = NormalizeUsername(input.Username)

	if err := validate.Struct(input); err != nil {
		fields, required := validationFields(err)
		msg := "validation failed"
		if required {
			msg = "all fields are required"
		}
		JSONValidationError(w, msg, fields, http.StatusBadRequest)
		return
	}
	if !ValidUsername(input.Username) {
		JSONValidationError(w, "validation failed", map[string]string{
			"username": "must be 3-20 characters: lowercase letters, digits or underscore",
		}, http.StatusBadRequest)
		return
	}
	// validator's max counts runes; bcrypt rejects anything over 72 bytes.
	if len(input.Password) > maxPasswordBytes {
		JSONValidationError(w, "validation failed", map[string]string{
			"password": "must be at most 72 bytes",
		}, http.StatusBadRequest)
		return
	}

	exists, err := h.UserRepo.Exists(r.Context(), input.Username)
	if err != nil {
		slog.ErrorContext(r.Context(), "register: check username", "error", err)
		JSONError(w, ErrMessageInternal, http.StatusInternalServerError)
		return
	}
	if exists {
		JSONError(w, "username already exists", http.StatusBadRequest)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), BcryptCost)
	if err != nil {
		slog.ErrorContext(r.Context(), "register: hash password", "error", err)
		JSONError(w, ErrMessageInternal, http.StatusInternalServerError)
		return
	}

	user, err := h.UserRepo.Create(r.Context(), input.Name, input.Username, string(hash))
	if errors.Is(err, repo.ErrUsernameTaken) {
		JSONError(w, "username already exists", http.StatusBadRequest)
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "register: create user", "error", err)
		JSONError(w, ErrMessageInternal, http.StatusInternalServerError)
		return
	}

	token, err := h.Tokens.Issue(user.ID, user.Username)
	if err != nil {
		slog.ErrorContext(r.Context(), "register: issue token", "error", err)
		JSONError(w, "failed to issue token", http.StatusInternalServerError)
		return
	}

	slog.InfoContext(r.Context(), "user registered", "user_id", user.ID)
	writeJSON(w, http.StatusCreated, authResponse{Token: token, User: user.Profile()})
}

// ==========================
// Login
// ==========================
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		JSONError(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	username := NormalizeUsername(input.Username)
	if username == "" || input.Password == "" {
		JSONError(w, "all fields are required", http.StatusBadRequest)
		return
	}

	user, err := h.UserRepo.GetByUsername(r.Context(), username)
	if errors.Is(err, sql.ErrNoRows) {
		JSONError(w, "invalid credentials", http.StatusBadRequest)
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "login: load user", "error", err)
		JSONError(w, ErrMessageInternal, http.StatusInternalServerError)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		JSONError(w, "invalid credentials", http.StatusBadRequest)
		return
	}

	token, err := h.Tokens.Issue(user.ID, user.Username)
	if err != nil {
		slog.ErrorContext(r.Context(), "login: issue token", "error", err)
		JSONError(w, "failed to issue token", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, authResponse{Token: token, User: user.Profile()})
}

// ==========================
// Me
// ==========================
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		JSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	user, err := h.UserRepo.GetByID(r.Context(), userID)
	if errors.Is(err, sql.ErrNoRows) {
		JSONError(w, "user not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "me: load user", "user_id", userID, "error", err)
		JSONError(w, ErrMessageInternal, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, user.Profile())
}

// ==========================
// Delete Account
// ==========================
// DeleteAccount removes the caller and, in the same transaction, all of their expenses.
func (h *AuthHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		JSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	removed, err := h.UserRepo.DeleteCascade(r.Context(), userID)
	if errors.Is(err, sql.ErrNoRows) {
		JSONError(w, "user not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "delete account", "user_id", userID, "error", err)
		JSONError(w, ErrMessageInternal, http.StatusInternalServerError)
		return
	}

	metrics.IncAccountsDeleted()
	ev := events.New(events.AccountDeleted, userID)
	ev.Count = int(removed)
	publish(r, h.Events, ev)

	slog.InfoContext(r.Context(), "account deleted", "user_id", userID, "expenses_removed", removed)
	writeJSON(w, http.StatusOK, map[string]string{"message": "account deleted successfully"})
}

// ==========================
// Check Username
// ==========================
func (h *AuthHandler) CheckUsername(w http.ResponseWriter, r *http.Request) {
	username := NormalizeUsername(r.URL.Query().Get("username"))
	if username == "" {
		JSONError(w, "username required", http.StatusBadRequest)
		return
	}

	if !ValidUsername(username) {
		writeJSON(w, http.StatusOK, map[string]any{"available": false, "reason": "invalid"})
		return
	}

	exists, err := h.UserRepo.Exists(r.Context(), username)
	if err != nil {
		slog.ErrorContext(r.Context(), "check username", "error", err)
		JSONError(w, ErrMessageInternal, http.StatusInternalServerError)
		return
	}
	if exists {
		writeJSON(w, http.StatusOK, map[string]any{"available": false, "reason": "taken"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"available": true})
}

// ==========================
// Users Count
// ==========================
func (h *AuthHandler) UsersCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.UserRepo.Count(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "users count", "error", err)
		JSONError(w, ErrMessageInternal, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": n})
}

// publish sends ev if a publisher is configured. Failures are logged and counted, never returned.
func publish(r *http.Request, p events.Publisher, ev events.Event) {
	if p == nil {
		return
	}
	if err := p.Publish(r.Context(), ev); err != nil {
		metrics.IncEventPublishFailures()
		slog.WarnContext(r.Context(), "publish event failed", "type", ev.Type, "user_id", ev.UserID, "error", err)
	}
}
