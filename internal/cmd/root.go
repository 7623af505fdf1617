// Package cmd implements the governor CLI: the serve command that runs the
// gateway plus admin commands for policies and live counter state.
package cmd

import (
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool

	// Version info set by main via ldflags.
	versionInfo struct {
		Version   string
		Commit    string
		BuildDate string
	}
)

// SetVersionInfo is called by main to record build metadata.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

var rootCmd = &cobra.Command{
	Use:   "governor",
	Short: "Request governance gateway for the Lumenchat API",
	Long: `governor fronts the Lumenchat API and applies request governance before
business logic runs: maintenance-mode gating, origin validation for
state-changing requests, and named rate-limit policies backed by redis
with an in-process fail-open fallback.

Use the subcommands to run the gateway or inspect its live state.`,
	SilenceUsage: true,
}

// Execute runs the root command. Called once from main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ./config, ., $HOME/.config/governor)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (sets log level to debug)")
}
