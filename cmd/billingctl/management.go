package main

import (
	"context"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/garyjia/investment-billing/internal/application/service"
	"github.com/garyjia/investment-billing/internal/container"
)

var managementFeesCmd = &cobra.Command{
	Use:   "management-fees <year>",
	Short: "Create the yearly management fee bills",
	Long: `Create a management fee bill and its cash call for every managed
investment that has no management bill for the given year.

Without --publish the cash calls stay in draft. With --publish each new
cash call is also submitted to the payment processor.`,
	Example: `  # Dry bills for 2024
  billingctl management-fees 2024

  # Create and submit to the payment processor
  billingctl management-fees 2024 --publish`,
	Args: cobra.ExactArgs(1),
	RunE: runManagementFees,
}

func init() {
	rootCmd.AddCommand(managementFeesCmd)

	managementFeesCmd.Flags().Bool("publish", false, "submit the new cash calls to the payment processor")
}

func runManagementFees(cmd *cobra.Command, args []string) error {
	year, err := strconv.Atoi(args[0])
	if err != nil || year < 2000 {
		return fmt.Errorf("invalid year %q", args[0])
	}
	publish, _ := cmd.Flags().GetBool("publish")

	return withContainer(cmd, "management-fees", func(ctx context.Context, c *container.Container, logger *zap.Logger) error {
		logger.Info("Running management fees", zap.Int("year", year), zap.Bool("publish", publish))

		report, err := c.Services().Management.Generate(ctx, year, publish)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if jsonOutput(cmd) {
			return printJSON(out, report)
		}

		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "INVESTMENT\tBILL\tCASH CALL\tFEES\tRATE\tOUTCOME\tMESSAGE")
		for _, line := range report.Lines {
			fmt.Fprintf(tw, "%d\t%d\t%d\t%s\t%s\t%s\t%s\n",
				line.InvestmentID, line.BillID, line.CashCallID,
				line.Fees.StringFixed(2), line.Rate.String(), line.Outcome, line.Message)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(out, "\ncreated: %d  published: %d  skipped: %d  errors: %d\n",
			report.Count(service.OutcomeCreated),
			report.Count(service.OutcomePublished),
			report.Count(service.OutcomeSkipped),
			report.Count(service.OutcomeError))
		return nil
	})
}
