package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/garyjia/investment-billing/internal/container"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Ask the payment processor about pending cash calls",
	Long: `Reconcile cash calls awaiting payment with the payment processor.

Each pending cash call is looked up by its pay-in id and moved to PAID or
FAILED when the processor reports a final status. Cash calls whose
status is unchanged are left alone.`,
	Args: cobra.NoArgs,
	RunE: runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	reconcileCmd.Flags().Int("limit", 100, "maximum number of cash calls to check")
}

func runReconcile(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	if limit <= 0 {
		return fmt.Errorf("limit must be positive")
	}

	return withContainer(cmd, "reconcile", func(ctx context.Context, c *container.Container, logger *zap.Logger) error {
		report, err := c.Services().Reconciliation.Poll(ctx, limit)
		if err != nil {
			return err
		}

		if jsonOutput(cmd) {
			return printJSON(cmd.OutOrStdout(), report)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "checked: %d  changed: %d  errors: %d\n",
			report.Checked, report.Changed, report.Errors)
		if report.Errors > 0 {
			return fmt.Errorf("%d cash calls could not be reconciled", report.Errors)
		}
		return nil
	})
}
