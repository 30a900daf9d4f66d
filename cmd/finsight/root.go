package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/finsight-dev/finsight/pkg/config"
)

// Version is set via ldflags at build time.
var Version = "dev"

var configFile string

var rootCmd = &cobra.Command{
	Use:   "finsight",
	Short: "Concurrent multi-agent stock analysis engine",
	Long: `finsight runs a pipeline of analysis agents over stock symbols:
a market-data collector feeds technical, fundamental, risk and sentiment
analysts, whose findings a report generator folds into a recommendation.

Without a configuration file the built-in seven-agent pipeline runs
against the simulated market-data provider.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c",
		os.Getenv("FINSIGHT_CONFIG"), "path to a YAML configuration file")
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(agentsCmd)
	rootCmd.AddCommand(serveCmd)
}

// loadConfig resolves the active configuration: the --config file when one
// is given, otherwise the built-in defaults.
func loadConfig() (*config.Config, error) {
	if configFile == "" {
		return config.Default(), nil
	}
	return config.Load(configFile)
}
