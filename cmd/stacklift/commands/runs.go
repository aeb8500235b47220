package commands

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/stacklift/stacklift/pkg/stores"
)

func newRunsCommand() *cobra.Command {
	var (
		limit int
		runID string
	)

	cmd := &cobra.Command{
		Use:   "runs <environment>",
		Short: "List recorded apply runs",
		Long: `List the apply runs recorded in the environment's state store,
most recent first. With --run, show the event log of one run instead.`,
		Example: `  # Last 20 runs
  stacklift runs dev

  # Events of a failed run
  stacklift runs dev --run 2f9c...`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			rt, err := newRuntime(ctx, args[0], cmd.Root().Version)
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			if runID != "" {
				events, err := rt.store.ListEventsByRun(ctx, runID)
				if err != nil {
					return err
				}
				printRunEvents(runID, events)
				return nil
			}

			runs, err := rt.store.ListRuns(ctx, limit, 0)
			if err != nil {
				return err
			}
			printRuns(runs)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list")
	cmd.Flags().StringVar(&runID, "run", "", "show the events of one run")

	return cmd
}

func printRuns(runs []*stores.Run) {
	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		return
	}

	for _, run := range runs {
		status := color.New(color.FgYellow)
		switch run.Status {
		case stores.RunStatusCompleted:
			status = color.New(color.FgGreen)
		case stores.RunStatusFailed:
			status = color.New(color.FgRed)
		}

		completed := "-"
		if run.CompletedAt != nil {
			completed = run.CompletedAt.Format(time.RFC3339)
		}
		fmt.Printf("  %s  plan %s  started %s  completed %s  ",
			run.ID, run.PlanID, run.StartedAt.Format(time.RFC3339), completed)
		status.Println(run.Status)
		if run.Error != nil {
			color.New(color.Faint).Printf("    %s\n", *run.Error)
		}
	}
}

func printRunEvents(runID string, events []*stores.Event) {
	if len(events) == 0 {
		fmt.Printf("No events recorded for run %s.\n", runID)
		return
	}

	for _, ev := range events {
		level := color.New(color.Faint)
		switch ev.Level {
		case stores.EventLevelWarn:
			level = color.New(color.FgYellow)
		case stores.EventLevelError:
			level = color.New(color.FgRed)
		}

		resource := ""
		if ev.ResourceID != nil {
			resource = " " + *ev.ResourceID
		}
		level.Printf("  %s [%s]%s %s\n",
			ev.Timestamp.Format(time.RFC3339), ev.Level, resource, ev.Message)
	}
}
