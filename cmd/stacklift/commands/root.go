package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configDir      string
	verbose        bool
	traceMode      string
	metricsEnabled bool
)

// Execute runs the root command.
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "stacklift",
		Short: "Stacklift - Platform Lifecycle Orchestrator",
		Long: `Stacklift provisions, deploys, and tears down a multi-component
cloud platform.

Lifecycle:
  - Plan and apply a dependency-ordered resource graph
  - Deploy the application stack with a health-gated rollout
  - Record installation and usage metrics across the lifecycle
  - Tear down safely: backup, remove, record`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configDir, "config-dir", "c", "config", "config directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVar(&traceMode, "trace", "none", "trace exporter (otlp, stdout, none)")
	rootCmd.PersistentFlags().BoolVar(&metricsEnabled, "metrics", false, "collect and expose prometheus metrics")

	rootCmd.AddCommand(newPlanCommand())
	rootCmd.AddCommand(newApplyCommand())
	rootCmd.AddCommand(newDeployCommand(version))
	rootCmd.AddCommand(newUninstallCommand())
	rootCmd.AddCommand(newMetricsCommand())
	rootCmd.AddCommand(newRunsCommand())

	return rootCmd
}
