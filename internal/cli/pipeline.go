package cli

import (
	"github.com/spf13/cobra"

	"ubi-pricer/internal/app"
)

var (
	pipelineInput    string
	pipelineCount    int
	pipelineFeatures string
	pipelinePriced   string
	pipelinePersist  bool
	pipelineDrivers  int
	pipelineSeed     int64
	pipelineExtreme  bool
)

var pipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Run the full validate-aggregate-price chain once",
	Long:  "Runs validation, feature aggregation, and pricing over a telemetry batch file, or over a freshly generated synthetic batch when no input is given.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Pipeline(cmd.Context(), app.PipelineOptions{
			InputPath: pipelineInput,
			Generate: app.GenerateOptions{
				Count:           pipelineCount,
				Drivers:         pipelineDrivers,
				Seed:            pipelineSeed,
				ExtremeVariance: pipelineExtreme,
			},
			FeaturesPath: pipelineFeatures,
			PricedPath:   pipelinePriced,
			Persist:      pipelinePersist,
		})
	},
}

func init() {
	pipelineCmd.Flags().StringVar(&pipelineInput, "input", "", "Telemetry batch file (JSON array or JSON-lines)")
	pipelineCmd.Flags().IntVar(&pipelineCount, "count", 5000, "Synthetic events to generate when no input is given")
	pipelineCmd.Flags().StringVar(&pipelineFeatures, "features-out", "", "Path to write aggregated feature rows (JSON-lines)")
	pipelineCmd.Flags().StringVar(&pipelinePriced, "priced-out", "", "Path to write priced rows (JSON-lines)")
	pipelineCmd.Flags().BoolVar(&pipelinePersist, "persist", false, "Upsert priced rows into the database")
	pipelineCmd.Flags().IntVar(&pipelineDrivers, "drivers", 0, "Synthetic driver count (defaults to config)")
	pipelineCmd.Flags().Int64Var(&pipelineSeed, "seed", 0, "Generator seed (defaults to config)")
	pipelineCmd.Flags().BoolVar(&pipelineExtreme, "extreme-variance", false, "Amplify risky and dampen safe synthetic drivers")
}
