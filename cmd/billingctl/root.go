package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/garyjia/investment-billing/internal/config"
	"github.com/garyjia/investment-billing/internal/container"
	"github.com/garyjia/investment-billing/pkg/utils"
)

var version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:   "billingctl",
	Short: "Operator commands for the investment billing service",
	Long: `billingctl runs one-off billing jobs against the billing database:
management fee runs, bill exports, pay-in reconciliation sweeps and
management fee audits.

Configuration is read from --config and the environment, exactly as the
server reads it. Scheduled workers are never started by billingctl.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().String("config", "configs/config.yaml", "path to the configuration file")
	rootCmd.PersistentFlags().Bool("json", false, "print results as JSON")
}

// Execute runs the root command and exits non-zero on failure
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// runFunc is the body of a command once the container is up
type runFunc func(ctx context.Context, c *container.Container, logger *zap.Logger) error

// withContainer loads configuration, starts a container without workers and
// runs fn. The context is cancelled on SIGINT or SIGTERM.
func withContainer(cmd *cobra.Command, component string, fn runFunc) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: "stderr",
		Format:     "console",
		Component:  component,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	containerCfg, err := cfg.ToContainerConfig()
	if err != nil {
		return err
	}
	c, err := container.NewContainer(containerCfg, logger, container.WithoutWorkers())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := c.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Warn("Failed to close container", zap.Error(err))
		}
	}()

	return fn(ctx, c, logger)
}

// printJSON writes v indented to w
func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func jsonOutput(cmd *cobra.Command) bool {
	asJSON, _ := cmd.Flags().GetBool("json")
	return asJSON
}
