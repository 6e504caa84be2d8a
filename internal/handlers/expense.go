package handlers

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/crucial707/spendflow/internal/events"
	"github.com/crucial707/spendflow/internal/expensefile"
	"github.com/crucial707/spendflow/internal/metrics"
	"github.com/crucial707/spendflow/internal/middleware"
	"github.com/crucial707/spendflow/internal/models"
	"github.com/crucial707/spendflow/internal/repo"
	"github.com/go-chi/chi/v5"
)

// DefaultImportMaxBytes caps CSV uploads when ExpenseHandler.ImportMaxBytes is unset.
const DefaultImportMaxBytes = 5 << 20

type ExpenseHandler struct {
	Repo     *repo.ExpenseRepo
	Activity *repo.ActivityRepo
	Events   events.Publisher

	ImportMaxBytes int64
	// Now defaults to time.Now; tests pin it.
	Now func() time.Time
}

type expenseInput struct {
	Title    string   `json:"title" validate:"required,max=200"`
	Amount   *float64 `json:"amount" validate:"required"`
	Category string   `json:"category" validate:"required,max=100"`
	Date     string   `json:"date"`
}

func (h *ExpenseHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// decodeExpense reads and validates the request body. On failure it writes the 400 response and returns false.
func decodeExpense(w http.ResponseWriter, r *http.Request) (expenseInput, *time.Time, bool) {
	var input expenseInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		JSONError(w, "invalid JSON", http.StatusBadRequest)
		return input, nil, false
	}
	input.Title = strings.TrimSpace(input.Title)
	input.Category = strings.TrimSpace(input.Category)

	if err := validate.Struct(input); err != nil {
		fields, required := validationFields(err)
		msg := "validation failed"
		if required {
			msg = "title, amount and category are required"
		}
		JSONValidationError(w, msg, fields, http.StatusBadRequest)
		return input, nil, false
	}

	if d := strings.TrimSpace(input.Date); d != "" {
		date, err := expensefile.ParseDate(d)
		if err != nil {
			JSONValidationError(w, "validation failed", map[string]string{
				"date": "must be YYYY-MM-DD or RFC 3339",
			}, http.StatusBadRequest)
			return input, nil, false
		}
		return input, &date, true
	}
	return input, nil, true
}

// parseFilter reads date, from, to and category query params.
// date selects one whole UTC day; from/to bound a range (inclusive) and take precedence over date.
// A bare-date "to" covers that entire day.
func parseFilter(r *http.Request) (models.ExpenseFilter, error) {
	q := r.URL.Query()
	f := models.ExpenseFilter{Category: strings.TrimSpace(q.Get("category"))}

	if d := q.Get("date"); d != "" {
		day, err := time.Parse(models.DateLayout, d)
		if err != nil {
			return f, fmt.Errorf("date must be YYYY-MM-DD")
		}
		f.From = day
		f.To = endOfDay(day)
	}

	from, to := q.Get("from"), q.Get("to")
	if from != "" || to != "" {
		f.From, f.To = time.Time{}, time.Time{}
	}
	if from != "" {
		t, err := expensefile.ParseDate(from)
		if err != nil {
			return f, fmt.Errorf("from must be YYYY-MM-DD or RFC 3339")
		}
		f.From = t
	}
	if to != "" {
		t, err := expensefile.ParseDate(to)
		if err != nil {
			return f, fmt.Errorf("to must be YYYY-MM-DD or RFC 3339")
		}
		if _, bare := time.Parse(models.DateLayout, to); bare == nil {
			t = endOfDay(t)
		}
		f.To = t
	}

	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return f, fmt.Errorf("from must not be after to")
	}
	return f, nil
}

func endOfDay(day time.Time) time.Time {
	return day.Add(24*time.Hour - time.Nanosecond)
}

func expenseID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		JSONError(w, "invalid expense id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func currentUser(w http.ResponseWriter, r *http.Request) (int, bool) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		JSONError(w, "unauthorized", http.StatusUnauthorized)
	}
	return userID, ok
}

// record writes an activity entry when an ActivityRepo is configured. Failures are logged only.
func (h *ExpenseHandler) record(r *http.Request, userID int, action string, expenseID int, details string) {
	if h.Activity == nil {
		return
	}
	if err := h.Activity.Log(r.Context(), userID, action, "expense", expenseID, details); err != nil {
		slog.WarnContext(r.Context(), "activity log failed", "action", action, "user_id", userID, "error", err)
	}
}

// ==========================
// Create Expense
// ==========================
func (h *ExpenseHandler) CreateExpense(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	input, date, ok := decodeExpense(w, r)
	if !ok {
		return
	}
	when := h.now()
	if date != nil {
		when = *date
	}

	expense, err := h.Repo.Create(r.Context(), userID, input.Title, *input.Amount, input.Category, when)
	if err != nil {
		slog.ErrorContext(r.Context(), "create expense", "user_id", userID, "error", err)
		JSONError(w, "failed to create expense", http.StatusInternalServerError)
		return
	}

	metrics.AddExpensesCreated("api", 1)
	h.record(r, userID, "create", expense.ID, expense.Title)
	ev := events.New(events.ExpenseCreated, userID)
	ev.ExpenseID = expense.ID
	publish(r, h.Events, ev)

	writeJSON(w, http.StatusCreated, expense)
}

// ==========================
// List Expenses
// ==========================
func (h *ExpenseHandler) ListExpenses(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	filter, err := parseFilter(r)
	if err != nil {
		JSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	expenses, err := h.Repo.List(r.Context(), userID, filter)
	if err != nil {
		slog.ErrorContext(r.Context(), "list expenses", "user_id", userID, "error", err)
		JSONError(w, "failed to fetch expenses", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, expenses)
}

// ==========================
// Summary
// ==========================
func (h *ExpenseHandler) Summary(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	filter, err := parseFilter(r)
	if err != nil {
		JSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	sum, err := h.Repo.Summary(r.Context(), userID, filter)
	if err != nil {
		slog.ErrorContext(r.Context(), "expense summary", "user_id", userID, "error", err)
		JSONError(w, ErrMessageInternal, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, sum)
}

// ==========================
// Update Expense
// ==========================
func (h *ExpenseHandler) UpdateExpense(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := expenseID(w, r)
	if !ok {
		return
	}
	input, date, ok := decodeExpense(w, r)
	if !ok {
		return
	}

	expense, err := h.Repo.Update(r.Context(), userID, id, input.Title, *input.Amount, input.Category, date)
	if errors.Is(err, sql.ErrNoRows) {
		JSONError(w, "expense not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "update expense", "user_id", userID, "expense_id", id, "error", err)
		JSONError(w, "failed to update expense", http.StatusInternalServerError)
		return
	}

	h.record(r, userID, "update", expense.ID, expense.Title)
	ev := events.New(events.ExpenseUpdated, userID)
	ev.ExpenseID = expense.ID
	publish(r, h.Events, ev)

	writeJSON(w, http.StatusOK, expense)
}

// ==========================
// Delete Expense
// ==========================
func (h *ExpenseHandler) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := expenseID(w, r)
	if !ok {
		return
	}

	deleted, err := h.Repo.Delete(r.Context(), userID, id)
	if errors.Is(err, sql.ErrNoRows) {
		JSONError(w, "expense not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "delete expense", "user_id", userID, "expense_id", id, "error", err)
		JSONError(w, "failed to delete expense", http.StatusInternalServerError)
		return
	}

	h.record(r, userID, "delete", deleted.ID, deleted.Title)
	ev := events.New(events.ExpenseDeleted, userID)
	ev.ExpenseID = deleted.ID
	publish(r, h.Events, ev)

	writeJSON(w, http.StatusOK, map[string]any{"message": "expense deleted", "deleted": deleted})
}

// ==========================
// Export
// ==========================
// ExportExpenses writes the filtered listing as CSV (default) or XLSX (?format=xlsx).
func (h *ExpenseHandler) ExportExpenses(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	filter, err := parseFilter(r)
	if err != nil {
		JSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	format := strings.ToLower(r.URL.Query().Get("format"))
	var (
		write       func(io.Writer, []models.Expense) error
		contentType string
	)
	switch format {
	case "", "csv":
		format, write, contentType = "csv", expensefile.WriteCSV, "text/csv; charset=utf-8"
	case "xlsx":
		write, contentType = expensefile.WriteXLSX, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		JSONError(w, "format must be csv or xlsx", http.StatusBadRequest)
		return
	}

	expenses, err := h.Repo.List(r.Context(), userID, filter)
	if err != nil {
		slog.ErrorContext(r.Context(), "export expenses", "user_id", userID, "error", err)
		JSONError(w, "failed to fetch expenses", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := write(&buf, expenses); err != nil {
		slog.ErrorContext(r.Context(), "encode export", "format", format, "error", err)
		JSONError(w, ErrMessageInternal, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "expenses."+format))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// ==========================
// Import
// ==========================
// ImportExpenses stores every valid row of an uploaded CSV in one transaction.
// The body is either raw CSV or multipart/form-data with the file in field "file".
func (h *ExpenseHandler) ImportExpenses(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	limit := h.ImportMaxBytes
	if limit <= 0 {
		limit = DefaultImportMaxBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	src := io.Reader(r.Body)
	if mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mediaType == "multipart/form-data" {
		file, _, err := r.FormFile("file")
		if err != nil {
			if isTooLarge(err) {
				JSONError(w, "file too large", http.StatusRequestEntityTooLarge)
				return
			}
			JSONError(w, "missing file field", http.StatusBadRequest)
			return
		}
		defer file.Close()
		src = file
	}

	res, err := expensefile.ReadCSV(src, h.now())
	if err != nil {
		if isTooLarge(err) {
			JSONError(w, "file too large", http.StatusRequestEntityTooLarge)
			return
		}
		JSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	out := map[string]any{"imported": 0, "skipped": res.Skipped, "expenses": []models.Expense{}}
	if len(res.Rows) == 0 {
		writeJSON(w, http.StatusOK, out)
		return
	}

	created, err := h.Repo.CreateMany(r.Context(), userID, res.Rows)
	if err != nil {
		slog.ErrorContext(r.Context(), "import expenses", "user_id", userID, "rows", len(res.Rows), "error", err)
		JSONError(w, "failed to import expenses", http.StatusInternalServerError)
		return
	}

	metrics.AddExpensesCreated("import", len(created))
	h.record(r, userID, "import", 0, fmt.Sprintf("%d expenses", len(created)))
	ev := events.New(events.ExpenseImported, userID)
	ev.Count = len(created)
	publish(r, h.Events, ev)

	out["imported"] = len(created)
	out["expenses"] = created
	writeJSON(w, http.StatusCreated, out)
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}
