package handlers

import (
	"log/slog"
	"net/http"

	"github.com/crucial707/spendflow/internal/repo"
)

// ActivityHandler serves the caller's activity trail.
type ActivityHandler struct {
	Repo *repo.ActivityRepo
}

// ListActivity returns the caller's recent entries. Query: limit (default 50, max 200), offset (default 0).
func (h *ActivityHandler) ListActivity(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	limit, offset := pagination(r, 50, 200)

	entries, err := h.Repo.ListByUser(r.Context(), userID, limit, offset)
	if err != nil {
		slog.ErrorContext(r.Context(), "list activity", "user_id", userID, "error", err)
		JSONError(w, ErrMessageInternal, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, entries)
}
