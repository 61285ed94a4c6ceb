package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"

	"github.com/flowport/flowport/internal/config"
	"github.com/flowport/flowport/internal/plugin"
	"github.com/flowport/flowport/internal/transfer"
)

var transferCmd = &cobra.Command{
	Use:   "transfer",
	Short: "Transfer workflows from SOURCE to TARGET",
	Long: `Transfer workflow definitions from the configured SOURCE instance
to the TARGET instance.

Each candidate passes through deduplication, validation, and the credential
policy before being created on the target. Cross-workflow references are
rewritten to the new target ids as they become known.

Examples:
  flowport transfer --dry-run              # Decide everything, create nothing
  flowport transfer --tag production       # Only workflows tagged "production"
  flowport transfer --parallel 4 --yes     # Four concurrent creates, no prompt`,
	RunE: runTransfer,
}

var (
	transferDryRun       bool
	transferParallel     int
	transferSkipCreds    bool
	transferTags         []string
	transferDeduplicator string
	transferValidators   []string
	transferReporters    []string
	transferYes          bool
	transferOutput       string
)

func init() {
	rootCmd.AddCommand(transferCmd)
	transferCmd.Flags().BoolVar(&transferDryRun, "dry-run", false, "Run all decision logic without creating anything")
	transferCmd.Flags().IntVar(&transferParallel, "parallel", 0, "Concurrent creates on the target (default from config)")
	transferCmd.Flags().BoolVar(&transferSkipCreds, "skip-credentials", false, "Skip workflows that need credential bindings")
	transferCmd.Flags().StringSliceVar(&transferTags, "tag", nil, "Only transfer workflows with this tag (repeatable)")
	transferCmd.Flags().StringVar(&transferDeduplicator, "deduplicator", "name", "Deduplicator plugin to use")
	transferCmd.Flags().StringSliceVar(&transferValidators, "validator", []string{"structure"}, "Validator plugins to run (repeatable)")
	transferCmd.Flags().StringSliceVar(&transferReporters, "reporter", []string{"json"}, "Reporter plugins to run (repeatable)")
	transferCmd.Flags().BoolVarP(&transferYes, "yes", "y", false, "Skip the confirmation prompt")
	transferCmd.Flags().StringVar(&transferOutput, "output", "", "Report output directory (default from config)")
}

// builtinRegistry wires the built-in plugins against the configured report
// directory.
func builtinRegistry(outputDir string) *plugin.Registry {
	reg := plugin.NewRegistry()
	reg.MustRegister(plugin.NewNameDeduplicator())
	reg.MustRegister(plugin.NewStructureValidator())
	reg.MustRegister(plugin.NewJSONReporter(outputDir))
	reg.MustRegister(plugin.NewMarkdownReporter(outputDir))
	return reg
}

func runTransfer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	outputDir := transferOutput
	if outputDir == "" {
		outputDir = cfg.Transfer.OutputDir
	}
	parallelism := transferParallel
	if parallelism < 1 {
		parallelism = cfg.Transfer.Parallelism
	}

	manager, err := transfer.NewManager(cfg, builtinRegistry(outputDir))
	if err != nil {
		return err
	}

	if !transferDryRun && !transferYes {
		confirmed := false
		prompt := &survey.Confirm{
			Message: fmt.Sprintf("Transfer workflows from %s to %s?", cfg.Source.URL, cfg.Target.URL),
			Default: false,
		}
		if err := survey.AskOne(prompt, &confirmed); err != nil {
			return err
		}
		if !confirmed {
			fmt.Println("Aborted.")
			return nil
		}
	}

	// Ctrl-C requests cooperative cancellation: in-flight creates finish,
	// no new ones start, and a partial summary is still produced.
	ctx := context.Background()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		manager.Cancel()
	}()

	summary, err := manager.Transfer(ctx, transfer.Options{
		Tags:            transferTags,
		DryRun:          transferDryRun,
		Parallelism:     parallelism,
		SkipCredentials: transferSkipCreds,
		Deduplicator:    transferDeduplicator,
		Validators:      transferValidators,
		Reporters:       transferReporters,
	})
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Print(summary.Render())

	if stats := manager.ReferenceStats(); stats.ReferencesUpdated+stats.ReferencesFailed > 0 {
		fmt.Printf("\nReferences: %s\n", stats)
	}

	if summary.Failed > 0 {
		return fmt.Errorf("%d workflow(s) failed to transfer", summary.Failed)
	}
	return nil
}
