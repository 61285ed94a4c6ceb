package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/flowport/flowport/internal/api"
	"github.com/flowport/flowport/internal/config"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check connectivity to SOURCE and TARGET",
	Long: `Test the connection to both configured instances and suggest fixes
for the usual failure causes (bad key, wrong URL, server down, firewall).`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	fmt.Println()
	fmt.Println("flowport doctor")
	fmt.Println("===============")
	fmt.Println()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	failures := 0
	for _, check := range []struct {
		role string
		inst config.Instance
	}{
		{"SOURCE", cfg.Source},
		{"TARGET", cfg.Target},
	} {
		client, err := api.NewClient(api.ClientConfig{BaseURL: check.inst.URL, APIKey: check.inst.APIKey})
		if err != nil {
			return err
		}

		res := client.TestConnection(ctx)
		if res.Success {
			fmt.Printf("  ✓ %s %s\n", check.role, check.inst.URL)
			continue
		}

		failures++
		fmt.Printf("  ✗ %s %s\n", check.role, check.inst.URL)
		fmt.Printf("      %s\n", res.Error)
		if res.Suggestion != "" {
			fmt.Printf("      → %s\n", res.Suggestion)
		}
	}

	fmt.Println()
	if failures > 0 {
		return fmt.Errorf("%d connection check(s) failed", failures)
	}
	fmt.Println("All checks passed.")
	return nil
}
