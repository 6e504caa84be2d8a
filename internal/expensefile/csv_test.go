package expensefile

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/crucial707/spendflow/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestCSV_RoundTrip(t *testing.T) {
	now := day(2030, 1, 1)
	in := []models.Expense{
		{Title: "Lunch", Amount: 12.5, Category: "Food", Date: day(2026, 3, 4)},
		{Title: `Dinner, "fancy"`, Amount: 0.1 + 0.2, Category: "Food & Drink", Date: day(2026, 3, 5)},
		{Title: "Multi\nline", Amount: 1e-7, Category: "Misc", Date: day(2025, 12, 31)},
		{Title: "Refund", Amount: -40, Category: "Shopping", Date: day(2026, 1, 15)},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, in))

	res, err := ReadCSV(&buf, now)
	require.NoError(t, err)
	assert.Zero(t, res.Skipped)
	require.Len(t, res.Rows, len(in))

	for i := range in {
		assert.Equal(t, in[i].Title, res.Rows[i].Title)
		assert.Equal(t, in[i].Amount, res.Rows[i].Amount)
		assert.Equal(t, in[i].Category, res.Rows[i].Category)
		assert.True(t, in[i].Date.Equal(res.Rows[i].Date), "row %d date: %v vs %v", i, in[i].Date, res.Rows[i].Date)
	}
}

func TestWriteCSV_Format(t *testing.T) {
	var buf bytes.Buffer
	err := WriteCSV(&buf, []models.Expense{
		{Title: `Say "hi", bob`, Amount: 3, Category: "Gifts", Date: time.Date(2026, 7, 8, 23, 30, 0, 0, time.UTC)},
	})
	require.NoError(t, err)

	assert.Equal(t, "Title,Amount,Category,Date\n\"Say \"\"hi\"\", bob\",3,Gifts,2026-07-08\n", buf.String())
}

func TestReadCSV_HeaderAnyOrderAndCase(t *testing.T) {
	input := "\ufeffDATE, category ,Amount,title\n2026-02-01,Transport,2.75,Bus\n"

	res, err := ReadCSV(strings.NewReader(input), day(2030, 1, 1))
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, models.Expense{Title: "Bus", Amount: 2.75, Category: "Transport", Date: day(2026, 2, 1)}, res.Rows[0])
}

func TestReadCSV_SkipsIncompleteRows(t *testing.T) {
	input := strings.Join([]string{
		"Title,Amount,Category,Date",
		"Coffee,3,Food,2026-01-01",
		",5,Food,2026-01-01",        // no title
		"Tea,,Food,2026-01-01",      // no amount
		"Cake,4,,2026-01-01",        // no category
		"Juice,abc,Food,2026-01-01", // bad amount
		"Water,NaN,Food,2026-01-01", // not a number
		"",
		"Soda,0,Food,2026-01-02",
	}, "\r\n")

	res, err := ReadCSV(strings.NewReader(input), day(2030, 1, 1))
	require.NoError(t, err)
	assert.Equal(t, 5, res.Skipped)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, "Coffee", res.Rows[0].Title)
	assert.Equal(t, "Soda", res.Rows[1].Title)
	assert.Zero(t, res.Rows[1].Amount)
}

func TestReadCSV_DateFallsBackToNow(t *testing.T) {
	now := time.Date(2026, 9, 9, 9, 9, 9, 0, time.UTC)
	input := "Title,Amount,Category,Date\nA,1,X,\nB,2,Y,not-a-date\nC,3,Z,2026-04-05T10:00:00+02:00\n"

	res, err := ReadCSV(strings.NewReader(input), now)
	require.NoError(t, err)
	require.Len(t, res.Rows, 3)
	assert.Equal(t, now, res.Rows[0].Date)
	assert.Equal(t, now, res.Rows[1].Date)
	assert.True(t, res.Rows[2].Date.Equal(time.Date(2026, 4, 5, 8, 0, 0, 0, time.UTC)))
}

func TestReadCSV_NoDateColumn(t *testing.T) {
	now := day(2026, 6, 1)
	res, err := ReadCSV(strings.NewReader("title,amount,category\nRent,900,Housing\n"), now)
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, now, res.Rows[0].Date)
}

func TestReadCSV_Errors(t *testing.T) {
	_, err := ReadCSV(strings.NewReader(""), time.Now())
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = ReadCSV(strings.NewReader("Title,Price\nA,1\n"), time.Now())
	assert.ErrorIs(t, err, ErrMissingColumns)
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "12.5", FormatAmount(12.5))
	assert.Equal(t, "100", FormatAmount(100))
	assert.Equal(t, "0.30000000000000004", FormatAmount(0.1+0.2))
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	err := WriteXLSX(&buf, []models.Expense{
		{Title: "Lunch", Amount: 12.5, Category: "Food", Date: day(2026, 3, 4)},
	})
	require.NoError(t, err)

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, Header, rows[0])
	assert.Equal(t, []string{"Lunch", "12.5", "Food", "2026-03-04"}, rows[1])
}
