package root

import (
	"github.com/spf13/cobra"
)

// Exported RootCmd
var RootCmd = &cobra.Command{
	Use:           "spendflow",
	Short:         "Personal expense tracker CLI",
	Long:          "Command line client for the spendflow API: track expenses, see where the money goes, move data in and out as CSV.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// GetRoot returns the RootCmd.
func GetRoot() *cobra.Command {
	return RootCmd
}
