package cmd

import (
	"fmt"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/flowport/flowport/internal/config"
	"github.com/flowport/flowport/internal/envfile"
	"github.com/flowport/flowport/internal/logging"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or edit flowport configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current configuration (API keys masked)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		fmt.Println("source:")
		fmt.Printf("  url:     %s\n", orUnset(cfg.Source.URL))
		fmt.Printf("  api_key: %s\n", maskedOrUnset(cfg.Source.APIKey))
		fmt.Println("target:")
		fmt.Printf("  url:     %s\n", orUnset(cfg.Target.URL))
		fmt.Printf("  api_key: %s\n", maskedOrUnset(cfg.Target.APIKey))
		fmt.Printf("log_level: %s\n", cfg.LogLevel)
		fmt.Println("transfer:")
		fmt.Printf("  parallelism:             %d\n", cfg.Transfer.Parallelism)
		fmt.Printf("  max_retries:             %d\n", cfg.Transfer.MaxRetries)
		fmt.Printf("  timeout_ms:              %d\n", cfg.Transfer.TimeoutMs)
		fmt.Printf("  max_requests_per_second: %d\n", cfg.Transfer.MaxRequestsPerSecond)
		fmt.Printf("  output_dir:              %s\n", cfg.Transfer.OutputDir)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <source|target> <url>",
	Short: "Set an instance URL and prompt for its API key",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		role, url := args[0], args[1]
		if role != "source" && role != "target" {
			return fmt.Errorf("unknown instance %q (want source or target)", role)
		}

		// The URL goes into config.yaml; the key goes into ~/.flowport/.env,
		// where Load picks it up as an environment override.
		cfg, err := config.LoadFile()
		if err != nil {
			return err
		}

		fmt.Printf("API key for %s: ", url)
		keyBytes, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			return fmt.Errorf("failed to read API key: %w", err)
		}
		key := strings.TrimSpace(string(keyBytes))
		if key == "" {
			return fmt.Errorf("API key is required")
		}

		envKey := config.EnvSourceAPIKey
		if role == "target" {
			envKey = config.EnvTargetAPIKey
		}
		if envfile.Get(envKey) != "" {
			fmt.Printf("Replacing the stored %s key.\n", role)
		}
		if err := envfile.Set(envKey, key); err != nil {
			return err
		}

		if role == "source" {
			cfg.Source.URL = url
		} else {
			cfg.Target.URL = url
		}
		if err := config.Save(cfg); err != nil {
			return err
		}
		fmt.Printf("✓ %s set to %s (key %s stored in ~/.flowport/.env)\n", role, url, logging.MaskSecret(key))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

func orUnset(v string) string {
	if v == "" {
		return "(unset)"
	}
	return v
}

func maskedOrUnset(v string) string {
	if v == "" {
		return "(unset)"
	}
	return logging.MaskSecret(v)
}
