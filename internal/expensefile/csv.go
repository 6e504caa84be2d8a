// Package expensefile reads and writes expense listings as CSV and XLSX.
//
// Both formats use the four columns Title, Amount, Category, Date. Dates are
// calendar days (YYYY-MM-DD, UTC) and amounts use the shortest decimal form that
// parses back to the same value, so an exported file imports to identical rows.
package expensefile

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/crucial707/spendflow/internal/models"
)

// Header is the column order written on export.
var Header = []string{"Title", "Amount", "Category", "Date"}

// ErrMissingColumns is returned when the header lacks a title, amount or category column.
var ErrMissingColumns = errors.New("csv header must contain title, amount and category columns")

// ErrEmpty is returned for input without a header row.
var ErrEmpty = errors.New("csv is empty")

// Result is the outcome of decoding an import file.
type Result struct {
	Rows    []models.Expense
	Skipped int
}

// Row renders one expense as export cells.
func Row(e models.Expense) []string {
	return []string{
		e.Title,
		FormatAmount(e.Amount),
		e.Category,
		e.Date.UTC().Format(models.DateLayout),
	}
}

// FormatAmount prints amount in its shortest round-tripping decimal form.
func FormatAmount(amount float64) string {
	return strconv.FormatFloat(amount, 'f', -1, 64)
}

// WriteCSV writes the header and one record per expense. Fields containing
// commas, quotes or newlines are quoted with doubled inner quotes.
func WriteCSV(w io.Writer, expenses []models.Expense) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, e := range expenses {
		if err := cw.Write(Row(e)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV decodes an import file. Columns are located by header name,
// case-insensitively and in any order. Rows with a missing title, amount or
// category, or a non-numeric amount, are counted in Skipped. A missing or
// unparseable date becomes now.
func ReadCSV(r io.Reader, now time.Time) (Result, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return Result{}, ErrEmpty
	}
	if err != nil {
		return Result{}, fmt.Errorf("read header: %w", err)
	}

	idx := columnIndex(header)
	if idx.title < 0 || idx.amount < 0 || idx.category < 0 {
		return Result{}, ErrMissingColumns
	}

	res := Result{Rows: []models.Expense{}}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Result{}, fmt.Errorf("read record: %w", err)
		}

		e, ok := parseRecord(rec, idx, now)
		if !ok {
			res.Skipped++
			continue
		}
		res.Rows = append(res.Rows, e)
	}
	return res, nil
}

type columns struct {
	title, amount, category, date int
}

func columnIndex(header []string) columns {
	idx := columns{title: -1, amount: -1, category: -1, date: -1}
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))) {
		case "title":
			idx.title = i
		case "amount":
			idx.amount = i
		case "category":
			idx.category = i
		case "date":
			idx.date = i
		}
	}
	return idx
}

func cell(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func parseRecord(rec []string, idx columns, now time.Time) (models.Expense, bool) {
	title := cell(rec, idx.title)
	amountStr := cell(rec, idx.amount)
	category := cell(rec, idx.category)
	if title == "" || amountStr == "" || category == "" {
		return models.Expense{}, false
	}

	amount, err := strconv.ParseFloat(amountStr, 64)
	if err != nil || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return models.Expense{}, false
	}

	date, err := ParseDate(cell(rec, idx.date))
	if err != nil {
		date = now
	}

	return models.Expense{Title: title, Amount: amount, Category: category, Date: date}, true
}

// ParseDate accepts a calendar day (YYYY-MM-DD, read as UTC midnight) or an RFC 3339 timestamp.
func ParseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("empty date")
	}
	if t, err := time.Parse(models.DateLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
