package cli

import (
	"context"

	"github.com/spf13/cobra"
)

var (
	version    = "dev"
	configPath string
)

func SetVersion(v string) {
	version = v
}

var rootCmd = &cobra.Command{
	Use:   "repobrain",
	Short: "repobrain runs a repository's health pipeline and serves the results",
	Long: `repobrain runs the brain.*.sh phase scripts in a repository's control
directory (.repo-brain by default), scores the diagnosis they write, and serves
it over a JSON API.

Configuration is read from --config, $REPOBRAIN_CONFIG, ./repobrain.yaml or
~/.repobrain/config.yaml. Run history is stored in ~/.repobrain/history.db
unless history.dsn points elsewhere.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to repobrain.yaml")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(phaseCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(repairCmd)
	rootCmd.AddCommand(diagnosisCmd)
	rootCmd.AddCommand(detectionCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(dbCmd)
}
