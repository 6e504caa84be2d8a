package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/crucial707/spendflow/internal/models"
)

const expenseColumns = `id, user_id, title, amount, category, date, created_at`

// ========================
// REPOSITORY STRUCT
// ========================

// ExpenseRepo reads and writes expenses. Every query is scoped by the owner's user id.
type ExpenseRepo struct {
	DB *sql.DB
}

func NewExpenseRepo(db *sql.DB) *ExpenseRepo {
	return &ExpenseRepo{DB: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExpense(row rowScanner) (models.Expense, error) {
	var e models.Expense
	err := row.Scan(&e.ID, &e.UserID, &e.Title, &e.Amount, &e.Category, &e.Date, &e.CreatedAt)
	return e, err
}

// whereClause builds the WHERE clause for a user's filtered listing.
func whereClause(userID int, f models.ExpenseFilter) (string, []any) {
	conds := []string{"user_id = $1"}
	args := []any{userID}

	if !f.From.IsZero() {
		args = append(args, f.From)
		conds = append(conds, fmt.Sprintf("date >= $%d", len(args)))
	}
	if !f.To.IsZero() {
		args = append(args, f.To)
		conds = append(conds, fmt.Sprintf("date <= $%d", len(args)))
	}
	if f.Category != "" {
		args = append(args, f.Category)
		conds = append(conds, fmt.Sprintf("category = $%d", len(args)))
	}

	return " WHERE " + strings.Join(conds, " AND "), args
}

// ========================
// CREATE EXPENSE
// ========================

func (r *ExpenseRepo) Create(ctx context.Context, userID int, title string, amount float64, category string, date time.Time) (models.Expense, error) {
	row := r.DB.QueryRowContext(ctx,
		`INSERT INTO expenses (user_id, title, amount, category, date)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+expenseColumns,
		userID, title, amount, category, date,
	)
	return scanExpense(row)
}

// ========================
// CREATE MANY (IMPORT)
// ========================

// CreateMany inserts all expenses for userID in one transaction; either every row is stored or none.
func (r *ExpenseRepo) CreateMany(ctx context.Context, userID int, expenses []models.Expense) ([]models.Expense, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO expenses (user_id, title, amount, category, date)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+expenseColumns,
	)
	if err != nil {
		return nil, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	created := make([]models.Expense, 0, len(expenses))
	for i, e := range expenses {
		saved, err := scanExpense(stmt.QueryRowContext(ctx, userID, e.Title, e.Amount, e.Category, e.Date))
		if err != nil {
			return nil, fmt.Errorf("insert row %d: %w", i+1, err)
		}
		created = append(created, saved)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return created, nil
}

// ========================
// LIST EXPENSES
// ========================

// List returns the user's expenses matching f, newest date first.
func (r *ExpenseRepo) List(ctx context.Context, userID int, f models.ExpenseFilter) ([]models.Expense, error) {
	where, args := whereClause(userID, f)
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+expenseColumns+" FROM expenses"+where+" ORDER BY date DESC, id DESC",
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	expenses := []models.Expense{}
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, e)
	}
	return expenses, rows.Err()
}

// ========================
// SUMMARY BY CATEGORY
// ========================

// Summary totals the user's expenses matching f, per category, largest category first.
func (r *ExpenseRepo) Summary(ctx context.Context, userID int, f models.ExpenseFilter) (models.Summary, error) {
	where, args := whereClause(userID, f)
	rows, err := r.DB.QueryContext(ctx,
		"SELECT category, COALESCE(SUM(amount), 0), COUNT(*) FROM expenses"+where+
			" GROUP BY category ORDER BY 2 DESC, category",
		args...,
	)
	if err != nil {
		return models.Summary{}, err
	}
	defer rows.Close()

	sum := models.Summary{Categories: []models.CategoryTotal{}}
	for rows.Next() {
		var c models.CategoryTotal
		if err := rows.Scan(&c.Category, &c.Total, &c.Count); err != nil {
			return models.Summary{}, err
		}
		sum.Total += c.Total
		sum.Count += c.Count
		sum.Categories = append(sum.Categories, c)
	}
	return sum, rows.Err()
}

// ========================
// UPDATE EXPENSE
// ========================

// Update rewrites an expense owned by userID. A nil date keeps the stored one.
// Returns sql.ErrNoRows when the expense does not exist or belongs to someone else.
func (r *ExpenseRepo) Update(ctx context.Context, userID, id int, title string, amount float64, category string, date *time.Time) (models.Expense, error) {
	var dateArg any
	if date != nil {
		dateArg = *date
	}
	row := r.DB.QueryRowContext(ctx,
		`UPDATE expenses
		 SET title = $1, amount = $2, category = $3, date = COALESCE($4, date)
		 WHERE id = $5 AND user_id = $6
		 RETURNING `+expenseColumns,
		title, amount, category, dateArg, id, userID,
	)
	return scanExpense(row)
}

// ========================
// DELETE EXPENSE
// ========================

// Delete removes an expense owned by userID and returns the removed row.
// Returns sql.ErrNoRows when the expense does not exist or belongs to someone else.
func (r *ExpenseRepo) Delete(ctx context.Context, userID, id int) (models.Expense, error) {
	row := r.DB.QueryRowContext(ctx,
		`DELETE FROM expenses WHERE id = $1 AND user_id = $2 RETURNING `+expenseColumns,
		id, userID,
	)
	return scanExpense(row)
}
