package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/garyjia/investment-billing/internal/container"
	"github.com/garyjia/investment-billing/internal/infrastructure/document"
)

var validateFeesCmd = &cobra.Command{
	Use:   "validate-fees <workbook.xlsx>",
	Short: "Compare expected management fees with the calculator",
	Long: `Read a workbook of expected management fees and report every line the
fee calculator disagrees with.

The first sheet must have a header row with the columns investment_id,
year and expected. An investment_year column is optional.`,
	Args: cobra.ExactArgs(1),
	RunE: runValidateFees,
}

func init() {
	rootCmd.AddCommand(validateFeesCmd)
}

func runValidateFees(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", args[0], err)
	}
	defer f.Close()

	checks, err := document.ReadFeeChecks(f)
	if err != nil {
		return err
	}

	return withContainer(cmd, "validate-fees", func(ctx context.Context, c *container.Container, logger *zap.Logger) error {
		mismatches, err := c.Services().Management.Validate(ctx, checks)
		if err != nil {
			return err
		}
		logger.Info("Fee validation finished",
			zap.Int("checked", len(checks)),
			zap.Int("mismatches", len(mismatches)))

		out := cmd.OutOrStdout()
		if jsonOutput(cmd) {
			return printJSON(out, mismatches)
		}

		if len(mismatches) == 0 {
			fmt.Fprintf(out, "all %d fees match\n", len(checks))
			return nil
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "INVESTMENT\tYEAR\tEXPECTED\tCALCULATED\tRATE\tMESSAGE")
		for _, m := range mismatches {
			fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\t%s\n",
				m.InvestmentID, m.Year, m.Expected.StringFixed(2), m.Calculated.StringFixed(2), m.Rate.String(), m.Message)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		return fmt.Errorf("%d of %d fees do not match", len(mismatches), len(checks))
	})
}
