package commands

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/stacklift/stacklift/pkg/config"
	"github.com/stacklift/stacklift/pkg/ledger"
	"github.com/stacklift/stacklift/pkg/teardown"
	"github.com/stacklift/stacklift/pkg/telemetry"
)

func newUninstallCommand() *cobra.Command {
	var (
		noBackup bool
		reason   string
	)

	cmd := &cobra.Command{
		Use:   "uninstall <environment>",
		Short: "Tear down an environment's installation",
		Long: `Tear down an installation: backup, remove, record.

This command:
  - Prints the lifetime usage summary from the metrics ledger
  - Requires the exact confirmation token; anything else cancels
  - Backs up the data store, config, and logs into a timestamped directory
  - Removes the enumerated installation artifacts best-effort
  - Appends the uninstall event to the ledger and preserves it in the backup

Cancellation and partial failure are distinct outcomes: a cancelled
teardown removes nothing and exits zero; a partial teardown reports the
failed steps and still exits zero. Only a fatally unwritable ledger
exits non-zero.`,
		Example: `  # Interactive teardown with backup
  stacklift uninstall dev

  # Skip the backup step
  stacklift uninstall dev --no-backup`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := config.NewLoader(configDir).LoadEnvironment(args[0])
			if err != nil {
				return err
			}

			logCfg := telemetry.DefaultConfig().Logging
			if verbose {
				logCfg.Level = "debug"
			}
			log, err := telemetry.NewLogger(logCfg)
			if err != nil {
				return err
			}
			log = log.WithEnvironment(env.Name)

			led := ledger.New(env.LedgerPath())
			printUsageSummary(led.Load())

			orch := teardown.New(teardownConfig(env, reason), led, stdinConfirm(cmd), log.NewComponentLogger("teardown"), nil)
			summary := orch.Run(cmd.Context(), !noBackup)
			printTeardownSummary(summary)

			if summary.RecordErr != nil {
				return fmt.Errorf("uninstall record could not be written: %w", summary.RecordErr)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&noBackup, "no-backup", false, "skip the backup step")
	cmd.Flags().StringVar(&reason, "reason", "", "reason recorded in the uninstall event")

	return cmd
}

// teardownConfig enumerates the installation artifacts of an environment.
// The config directory is backed up but never removed: it holds the metrics
// ledger, which the record step stamps after removal and which outlives the
// installation until the operator discards the backup.
func teardownConfig(env *config.Environment, reason string) teardown.Config {
	cfg := teardown.Config{
		BasePath:     env.BasePath,
		PlatformName: "stacklift",
		DataFiles:    []string{"state.db", "stacklift.log"},
		Directories:  []string{"logs", "manifests"},
		BackupDirs:   []string{"config", "logs"},
		CacheDirs:    []string{".cache"},
		Reason:       reason,
	}
	if home, err := os.UserHomeDir(); err == nil {
		cfg.Registrations = []string{
			filepath.Join(home, ".stacklift.rc"),
			filepath.Join(home, ".local", "share", "applications", "stacklift.desktop"),
		}
	}
	return cfg
}

// stdinConfirm reads the confirmation token from the command's input.
func stdinConfirm(cmd *cobra.Command) teardown.ConfirmFunc {
	return func(prompt string) (string, error) {
		color.New(color.FgRed, color.Bold).Print(prompt)
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(line), nil
	}
}

// printUsageSummary shows the lifetime counters before asking for the token.
func printUsageSummary(rec ledger.MetricsRecord) {
	header := color.New(color.FgCyan, color.Bold)
	label := color.New(color.Faint)

	header.Println("Installation summary")
	label.Printf("  installed:         ")
	fmt.Println(rec.InstallationDate)
	label.Printf("  sessions:          ")
	fmt.Println(len(rec.Sessions))
	label.Printf("  runtime seconds:   ")
	fmt.Printf("%.1f\n", rec.Usage.RuntimeSeconds)
	label.Printf("  items processed:   ")
	fmt.Println(rec.Usage.ItemsProcessed)
	label.Printf("  entities analyzed: ")
	fmt.Println(rec.Usage.EntitiesAnalyzed)
	fmt.Println()
}

func printTeardownSummary(summary *teardown.Summary) {
	ok := color.New(color.FgGreen)
	warn := color.New(color.FgYellow)
	fail := color.New(color.FgRed)

	fmt.Println()
	for _, step := range summary.Steps {
		switch step.Outcome {
		case teardown.OutcomeFailed:
			fail.Printf("  ✘ %-8s %s: %v\n", step.Step, step.Target, step.Err)
		case teardown.OutcomeNotPresent:
			warn.Printf("  - %-8s %s (not present)\n", step.Step, step.Target)
		case teardown.OutcomeSkipped:
			warn.Printf("  - %-8s skipped\n", step.Step)
		default:
			ok.Printf("  ✔ %-8s %s\n", step.Step, step.Target)
		}
	}

	fmt.Println()
	switch summary.Status {
	case teardown.StatusCompleted:
		ok.Println("Uninstall completed.")
	case teardown.StatusCancelled:
		warn.Println("Uninstall cancelled. Nothing was removed.")
	case teardown.StatusPartial:
		fail.Printf("Uninstall partially completed: %d step(s) failed.\n", len(summary.Failed()))
	}
	if summary.BackupDir != "" {
		fmt.Printf("Backup preserved at %s\n", summary.BackupDir)
	}
}
