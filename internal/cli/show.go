package cli

import (
	"github.com/spf13/cobra"

	"ubi-pricer/internal/app"
)

var showLimit int

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show recently priced driver-period rows",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Show(cmd.Context(), app.ShowOptions{Limit: showLimit})
	},
}

var reportInput string

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print a premium distribution snapshot",
	Long:  "Summarizes premiums either from a priced-rows file (--input) or from the stored distribution.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Report(cmd.Context(), app.ReportOptions{InputPath: reportInput})
	},
}

func init() {
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of rows to display")
	reportCmd.Flags().StringVar(&reportInput, "input", "", "Priced-rows file (JSON array or JSON-lines)")
}
