package models

import "time"

// DateLayout is the calendar-date form used in query filters and CSV files.
const DateLayout = "2006-01-02"

type Expense struct {
	ID        int       `json:"id"`
	Title     string    `json:"title"`
	Amount    float64   `json:"amount"`
	Category  string    `json:"category"`
	Date      time.Time `json:"date"`
	UserID    int       `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// ExpenseFilter narrows a listing. Zero values mean "no constraint".
// From and To are inclusive bounds.
type ExpenseFilter struct {
	From     time.Time
	To       time.Time
	Category string
}

// CategoryTotal is one slice of the category breakdown.
type CategoryTotal struct {
	Category string  `json:"category"`
	Total    float64 `json:"total"`
	Count    int     `json:"count"`
}

// Summary holds the totals for a filtered listing.
type Summary struct {
	Total      float64         `json:"total"`
	Count      int             `json:"count"`
	Categories []CategoryTotal `json:"categories"`
}
