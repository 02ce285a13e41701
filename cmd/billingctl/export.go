package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/garyjia/investment-billing/internal/application/port"
	"github.com/garyjia/investment-billing/internal/container"
	"github.com/garyjia/investment-billing/internal/domain/entity"
	"github.com/garyjia/investment-billing/internal/domain/workflow"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export bills to an xlsx workbook",
	Example: `  # Every bill
  billingctl export --out bills.xlsx

  # Paid management fees of 2023
  billingctl export --type management_fees --status PAID --year 2023`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().String("type", "", "only bills of this type")
	exportCmd.Flags().String("status", "", "only bills in this status")
	exportCmd.Flags().Int("year", 0, "only bills of this year")
	exportCmd.Flags().StringP("out", "o", "", "output file (default: the generated workbook name)")
}

func runExport(cmd *cobra.Command, args []string) error {
	billType, _ := cmd.Flags().GetString("type")
	status, _ := cmd.Flags().GetString("status")
	year, _ := cmd.Flags().GetInt("year")
	out, _ := cmd.Flags().GetString("out")

	filter := port.BillFilter{
		Type:   entity.BillType(billType),
		Status: workflow.State(status),
		Year:   year,
	}
	if filter.Type != "" && !filter.Type.IsValid() {
		return fmt.Errorf("invalid bill type %q", billType)
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		return fmt.Errorf("invalid status %q", status)
	}

	return withContainer(cmd, "export", func(ctx context.Context, c *container.Container, logger *zap.Logger) error {
		doc, err := c.Services().Bills.Export(ctx, filter)
		if err != nil {
			return err
		}

		path := out
		if path == "" {
			path = doc.Name
		}
		if err := os.WriteFile(path, doc.Content, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}

		logger.Info("Bills exported", zap.String("path", path), zap.Int("bytes", len(doc.Content)))
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	})
}
