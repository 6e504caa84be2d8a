package main

import (
	"fmt"
	"os"

	"github.com/crucial707/spendflow/cmd/cli/auth"
	"github.com/crucial707/spendflow/cmd/cli/expenses"
	"github.com/crucial707/spendflow/cmd/cli/root"
)

func main() {
	rootCmd := root.GetRoot()
	auth.InitAuth(rootCmd)
	expenses.InitExpenses(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
