package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flowport/flowport/internal/config"
	"github.com/flowport/flowport/internal/transfer"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate SOURCE workflows without contacting TARGET",
	Long: `Run the validator phase against the SOURCE instance only.

Useful for checking what a transfer would reject before running one.

Examples:
  flowport validate
  flowport validate --tag production --validator structure`,
	RunE: runValidate,
}

var (
	validateTags       []string
	validateValidators []string
)

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().StringSliceVar(&validateTags, "tag", nil, "Only validate workflows with this tag (repeatable)")
	validateCmd.Flags().StringSliceVar(&validateValidators, "validator", []string{"structure"}, "Validator plugins to run (repeatable)")
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	manager, err := transfer.NewManager(cfg, builtinRegistry(cfg.Transfer.OutputDir))
	if err != nil {
		return err
	}

	run, err := manager.Validate(context.Background(), transfer.Options{
		Tags:       validateTags,
		Validators: validateValidators,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Validated %d workflows: %d valid, %d invalid\n\n", run.Total, run.Valid, run.Invalid)
	for _, r := range run.Results {
		if r.Result.Valid {
			fmt.Printf("  ✓ %s\n", r.Workflow)
		} else {
			fmt.Printf("  ✗ %s\n", r.Workflow)
			for _, e := range r.Result.Errors {
				fmt.Printf("      %s\n", e)
			}
		}
		for _, w := range r.Result.Warnings {
			fmt.Printf("      warning: %s\n", w)
		}
	}

	if run.Invalid > 0 {
		return fmt.Errorf("%d workflow(s) failed validation", run.Invalid)
	}
	return nil
}
