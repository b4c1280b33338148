package cli

import (
	"github.com/spf13/cobra"

	"ubi-pricer/internal/app"
)

var (
	generateCount   int
	generateDrivers int
	generateSeed    int64
	generateExtreme bool
	generateOut     string
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a synthetic telemetry batch",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Generate(cmd.Context(), app.GenerateOptions{
			Count:           generateCount,
			Drivers:         generateDrivers,
			Seed:            generateSeed,
			ExtremeVariance: generateExtreme,
			OutPath:         generateOut,
		})
	},
}

func init() {
	generateCmd.Flags().IntVar(&generateCount, "count", 5000, "Number of events to generate")
	generateCmd.Flags().IntVar(&generateDrivers, "drivers", 0, "Driver count (defaults to config)")
	generateCmd.Flags().Int64Var(&generateSeed, "seed", 0, "Generator seed (defaults to config)")
	generateCmd.Flags().BoolVar(&generateExtreme, "extreme-variance", false, "Amplify risky and dampen safe drivers")
	generateCmd.Flags().StringVar(&generateOut, "out", "", "Path to write the batch; prints to stdout when omitted")
}
