package expensefile

import (
	"fmt"
	"io"

	"github.com/crucial707/spendflow/internal/models"
	"github.com/xuri/excelize/v2"
)

const sheetName = "Expenses"

// WriteXLSX writes the same columns as WriteCSV to a single-sheet workbook.
// Amounts are stored as numbers so spreadsheet formulas work on them.
func WriteXLSX(w io.Writer, expenses []models.Expense) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	for col, h := range Header {
		if err := setCell(f, col+1, 1, h); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(sheetName, "A", "A", 32); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}

	for i, e := range expenses {
		row := i + 2
		values := []any{e.Title, e.Amount, e.Category, e.Date.UTC().Format(models.DateLayout)}
		for col, v := range values {
			if err := setCell(f, col+1, row, v); err != nil {
				return err
			}
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func setCell(f *excelize.File, col, row int, value any) error {
	name, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	if err := f.SetCellValue(sheetName, name, value); err != nil {
		return fmt.Errorf("set %s: %w", name, err)
	}
	return nil
}
