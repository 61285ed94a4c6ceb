package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Version info (set by ldflags during build)
var (
	Version   = "0.1.0"
	Commit    = "dev"
	BuildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show flowport version",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("flowport %s\n", Version)
		fmt.Printf("  commit:  %s\n", Commit)
		fmt.Printf("  built:   %s\n", BuildDate)
		fmt.Printf("  go:      %s\n", runtime.Version())
		fmt.Printf("  os/arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
