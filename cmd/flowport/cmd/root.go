package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/flowport/flowport/internal/envfile"
	"github.com/flowport/flowport/internal/logging"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "flowport",
	Short: "Migrate automation workflows between two service instances",
	Long: `Flowport migrates workflow definitions from a SOURCE instance to a
TARGET instance of a workflow-automation service, through their REST APIs.

It deduplicates against the target, validates workflows before sending,
repairs cross-workflow references after ids change, and writes a report
of what happened.

Configuration lives in ~/.flowport/config.yaml, or in the environment:
  FLOWPORT_SOURCE_URL / FLOWPORT_SOURCE_API_KEY
  FLOWPORT_TARGET_URL / FLOWPORT_TARGET_API_KEY`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := envfile.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		}
		logging.Init(logLevel)
		return nil
	},
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
}
