package cli

import (
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate <batch-file>",
	Short: "Validate a telemetry batch and print the summary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Validate(cmd.Context(), args[0])
	},
}

var priceOut string

var priceCmd = &cobra.Command{
	Use:   "price <rows-file>",
	Short: "Price aggregated feature rows",
	Long:  "Prices a file of feature rows (JSON array or JSON-lines). Rows that already carry risk_score and model_premium_multiplier are repriced without invoking the model.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Price(cmd.Context(), args[0], priceOut)
	},
}

func init() {
	priceCmd.Flags().StringVar(&priceOut, "out", "", "Path to write priced rows (JSON-lines); prints to stdout when omitted")
}
