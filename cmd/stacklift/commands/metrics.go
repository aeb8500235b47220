package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stacklift/stacklift/pkg/config"
	"github.com/stacklift/stacklift/pkg/ledger"
)

func newMetricsCommand() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "metrics <environment>",
		Short: "Print the installation metrics ledger",
		Long: `Print the lifetime usage record of an environment.

A missing or unreadable ledger prints an empty record; this command
never fails on ledger state.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := config.NewLoader(configDir).LoadEnvironment(args[0])
			if err != nil {
				return err
			}

			rec := ledger.New(env.LedgerPath()).Load()
			if jsonOutput {
				data, err := json.MarshalIndent(rec, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(data))
				return nil
			}

			printUsageSummary(rec)
			if rec.UninstallationDate != "" {
				fmt.Printf("Uninstalled %s (%s)\n", rec.UninstallationDate, rec.UninstallReason)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output the raw record as JSON")

	return cmd
}
