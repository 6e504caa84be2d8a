package expenses

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/crucial707/spendflow/cmd/cli/client"
	"github.com/crucial707/spendflow/cmd/cli/config"
	"github.com/crucial707/spendflow/cmd/cli/output"
	"github.com/crucial707/spendflow/internal/expensefile"
	"github.com/crucial707/spendflow/internal/models"
	"github.com/crucial707/spendflow/internal/undo"
	"github.com/spf13/cobra"
)

// ==========================
// Init Expenses
// ==========================
func InitExpenses(rootCmd *cobra.Command) {
	expensesCmd := &cobra.Command{
		Use:     "expenses",
		Aliases: []string{"exp"},
		Short:   "Manage expenses",
	}

	expensesCmd.AddCommand(
		addExpenseCmd(),
		listExpensesCmd(),
		updateExpenseCmd(),
		deleteExpenseCmd(),
		undoCmd(),
		summaryCmd(),
		exportCmd(),
		importCmd(),
		categoriesCmd(),
	)

	rootCmd.AddCommand(expensesCmd)
}

type expenseBody struct {
	Title    string  `json:"title"`
	Amount   float64 `json:"amount"`
	Category string  `json:"category"`
	Date     string  `json:"date,omitempty"`
}

// bodyOf keeps the full timestamp so a restored expense sorts where it did before.
func bodyOf(e models.Expense) expenseBody {
	return expenseBody{
		Title:    e.Title,
		Amount:   e.Amount,
		Category: e.Category,
		Date:     e.Date.UTC().Format(time.RFC3339Nano),
	}
}

// filterFlags are the listing filters shared by list, summary and export.
type filterFlags struct {
	date, from, to, category string
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.date, "date", "", "only this day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.from, "from", "", "range start (YYYY-MM-DD, inclusive)")
	cmd.Flags().StringVar(&f.to, "to", "", "range end (YYYY-MM-DD, inclusive)")
	cmd.Flags().StringVar(&f.category, "category", "", "only this category")
}

func (f *filterFlags) query(extra url.Values) string {
	q := url.Values{}
	for k, v := range map[string]string{"date": f.date, "from": f.from, "to": f.to, "category": f.category} {
		if v != "" {
			q.Set(k, v)
		}
	}
	for k, vs := range extra {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

func renderExpenses(cmd *cobra.Command, list []models.Expense) {
	rows := make([][]interface{}, 0, len(list)+1)
	var total float64
	for _, e := range list {
		rows = append(rows, []interface{}{e.ID, e.Date.UTC().Format(models.DateLayout), e.Title, e.Category, money(e.Amount)})
		total += e.Amount
	}
	if len(list) > 1 {
		rows = append(rows, []interface{}{"", "", "", "Total", money(total)})
	}
	output.RenderTable(cmd.OutOrStdout(), []string{"ID", "Date", "Title", "Category", "Amount"}, rows, "Amount")
}

func money(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// remember saves a new category locally and tells the user about it.
func remember(cmd *cobra.Command, category string) {
	added, err := config.RememberCategory(category)
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "warning: could not save category:", err)
		return
	}
	if added {
		fmt.Fprintf(cmd.OutOrStdout(), "Saved new category %q.\n", category)
	}
}

// ==========================
// ADD
// ==========================
func addExpenseCmd() *cobra.Command {
	var b expenseBody
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an expense",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(b.Title) == "" || strings.TrimSpace(b.Category) == "" || !cmd.Flags().Changed("amount") {
				return fmt.Errorf("--title, --amount and --category are required")
			}
			c, err := client.Authed()
			if err != nil {
				return err
			}

			var created models.Expense
			if err := c.Do("POST", "/expenses", b, &created); err != nil {
				return err
			}
			remember(cmd, created.Category)

			if asJSON {
				return output.PrintJSON(cmd.OutOrStdout(), created)
			}
			renderExpenses(cmd, []models.Expense{created})
			return nil
		},
	}

	cmd.Flags().StringVar(&b.Title, "title", "", "what the money was spent on")
	cmd.Flags().Float64Var(&b.Amount, "amount", 0, "amount spent")
	cmd.Flags().StringVar(&b.Category, "category", "", "category, e.g. Food")
	cmd.Flags().StringVar(&b.Date, "date", "", "day of the expense (YYYY-MM-DD, default today)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print raw JSON")
	return cmd
}

// ==========================
// LIST
// ==========================
func listExpensesCmd() *cobra.Command {
	var f filterFlags
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List expenses, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.Authed()
			if err != nil {
				return err
			}
			var list []models.Expense
			if err := c.Do("GET", "/expenses"+f.query(nil), nil, &list); err != nil {
				return err
			}

			if asJSON {
				return output.PrintJSON(cmd.OutOrStdout(), list)
			}
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No expenses found.")
				return nil
			}
			renderExpenses(cmd, list)
			return nil
		},
	}

	f.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print raw JSON")
	return cmd
}

// ==========================
// UPDATE
// ==========================
func updateExpenseCmd() *cobra.Command {
	var b expenseBody

	cmd := &cobra.Command{
		Use:   "update [id]",
		Short: "Change an expense; omitted fields keep their value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid expense id %q", args[0])
			}
			c, err := client.Authed()
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if !flags.Changed("title") || !flags.Changed("amount") || !flags.Changed("category") {
				var list []models.Expense
				if err := c.Do("GET", "/expenses", nil, &list); err != nil {
					return err
				}
				current, ok := findExpense(list, id)
				if !ok {
					return fmt.Errorf("expense %d not found", id)
				}
				if !flags.Changed("title") {
					b.Title = current.Title
				}
				if !flags.Changed("amount") {
					b.Amount = current.Amount
				}
				if !flags.Changed("category") {
					b.Category = current.Category
				}
			}

			var updated models.Expense
			if err := c.Do("PUT", "/expenses/"+strconv.Itoa(id), b, &updated); err != nil {
				return err
			}
			remember(cmd, updated.Category)
			renderExpenses(cmd, []models.Expense{updated})
			return nil
		},
	}

	cmd.Flags().StringVar(&b.Title, "title", "", "new title")
	cmd.Flags().Float64Var(&b.Amount, "amount", 0, "new amount")
	cmd.Flags().StringVar(&b.Category, "category", "", "new category")
	cmd.Flags().StringVar(&b.Date, "date", "", "new day (YYYY-MM-DD)")
	return cmd
}

func findExpense(list []models.Expense, id int) (models.Expense, bool) {
	for _, e := range list {
		if e.ID == id {
			return e, true
		}
	}
	return models.Expense{}, false
}

// ==========================
// DELETE
// ==========================
func deleteExpenseCmd() *cobra.Command {
	var window time.Duration

	cmd := &cobra.Command{
		Use:   "delete [id]",
		Short: "Delete an expense (undo stays possible for a short window)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid expense id %q", args[0])
			}
			c, err := client.Authed()
			if err != nil {
				return err
			}

			var resp struct {
				Message string         `json:"message"`
				Deleted models.Expense `json:"deleted"`
			}
			if err := c.Do("DELETE", "/expenses/"+strconv.Itoa(id), nil, &resp); err != nil {
				return err
			}

			p, err := undo.NewStore(config.UndoPath()).Begin(resp.Deleted, window)
			if err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %q (undo unavailable: %v).\n", resp.Deleted.Title, err)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %q. Run `spendflow expenses undo` within %s to restore it.\n",
				resp.Deleted.Title, time.Until(p.ExpiresAt).Round(time.Second))
			return nil
		},
	}

	cmd.Flags().DurationVar(&window, "undo-window", undo.DefaultWindow, "how long the deletion can be undone")
	return cmd
}

// ==========================
// UNDO
// ==========================
func undoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "undo",
		Short: "Restore the most recently deleted expense",
		RunE: func(cmd *cobra.Command, args []string) error {
			store := undo.NewStore(config.UndoPath())
			p, err := store.Take()
			if err != nil {
				return err
			}
			if p == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing to undo.")
				return nil
			}

			c, err := client.Authed()
			if err != nil {
				return err
			}
			var restored models.Expense
			if err := c.Do("POST", "/expenses", bodyOf(p.Expense), &restored); err != nil {
				return fmt.Errorf("restore %q: %w", p.Expense.Title, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restored %q as #%d.\n", restored.Title, restored.ID)
			return nil
		},
	}
}

// ==========================
// SUMMARY
// ==========================
func summaryCmd() *cobra.Command {
	var f filterFlags
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Totals per category",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.Authed()
			if err != nil {
				return err
			}
			var sum models.Summary
			if err := c.Do("GET", "/expenses/summary"+f.query(nil), nil, &sum); err != nil {
				return err
			}

			if asJSON {
				return output.PrintJSON(cmd.OutOrStdout(), sum)
			}
			if sum.Count == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No expenses found.")
				return nil
			}

			rows := make([][]interface{}, 0, len(sum.Categories)+1)
			for _, cat := range sum.Categories {
				rows = append(rows, []interface{}{cat.Category, cat.Count, money(cat.Total), share(cat.Total, sum.Total)})
			}
			rows = append(rows, []interface{}{"Total", sum.Count, money(sum.Total), ""})
			output.RenderTable(cmd.OutOrStdout(), []string{"Category", "Count", "Total", "Share"}, rows, "Count", "Total", "Share")
			return nil
		},
	}

	f.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print raw JSON")
	return cmd
}

func share(part, total float64) string {
	if total == 0 {
		return "-"
	}
	return strconv.FormatFloat(part/total*100, 'f', 1, 64) + "%"
}

// ==========================
// EXPORT
// ==========================
func exportCmd() *cobra.Command {
	var f filterFlags
	var format, outPath string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Download expenses as CSV or XLSX",
		RunE: func(cmd *cobra.Command, args []string) error {
			format = strings.ToLower(format)
			if format != "csv" && format != "xlsx" {
				return fmt.Errorf("--format must be csv or xlsx")
			}
			c, err := client.Authed()
			if err != nil {
				return err
			}
			data, err := c.Download("/expenses/export" + f.query(url.Values{"format": {format}}))
			if err != nil {
				return err
			}

			if outPath == "-" {
				_, err := cmd.OutOrStdout().Write(data)
				return err
			}
			if outPath == "" {
				outPath = "expenses." + format
			}
			if err := writeFile(outPath, data); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d bytes).\n", outPath, len(data))
			return nil
		},
	}

	f.register(cmd)
	cmd.Flags().StringVar(&format, "format", "csv", "csv or xlsx")
	cmd.Flags().StringVarP(&outPath, "output", "o", "", "file to write, - for stdout (default expenses.<format>)")
	return cmd
}

// ==========================
// IMPORT
// ==========================
func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import [file.csv]",
		Short: "Add every valid row of a CSV file (" + strings.Join(expensefile.Header, ", ") + ")",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := openFile(args[0])
			if err != nil {
				return err
			}
			defer file.Close()

			c, err := client.Authed()
			if err != nil {
				return err
			}
			var resp struct {
				Imported int              `json:"imported"`
				Skipped  int              `json:"skipped"`
				Expenses []models.Expense `json:"expenses"`
			}
			if err := c.Upload("/expenses/import", "text/csv", file, &resp); err != nil {
				return err
			}

			for _, e := range resp.Expenses {
				remember(cmd, e.Category)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d expenses, skipped %d rows.\n", resp.Imported, resp.Skipped)
			return nil
		},
	}
}

// ==========================
// CATEGORIES
// ==========================
func categoriesCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "categories",
		Short: "List the default and saved categories",
		RunE: func(cmd *cobra.Command, args []string) error {
			all, err := config.Categories()
			if err != nil {
				return err
			}
			if asJSON {
				return output.PrintJSON(cmd.OutOrStdout(), all)
			}
			rows := make([][]interface{}, 0, len(all))
			for i, name := range all {
				kind := "saved"
				if i < len(config.DefaultCategories) {
					kind = "default"
				}
				rows = append(rows, []interface{}{name, kind})
			}
			output.RenderTable(cmd.OutOrStdout(), []string{"Category", "Kind"}, rows)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print raw JSON")
	return cmd
}

func openFile(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return f, nil
}

func writeFile(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
