package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"ubi-pricer/internal/version"
)

var modelInitCmd = &cobra.Command{
	Use:   "model-init",
	Short: "Write a default risk model artifact",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ModelInit(cmd.Context())
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "version: %s\ncommit: %s\nbuilt: %s\n", version.Version, version.Commit, version.BuildDate)
	},
}
