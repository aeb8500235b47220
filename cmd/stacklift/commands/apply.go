package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/stacklift/stacklift/pkg/engine"
	"github.com/stacklift/stacklift/pkg/stores"
)

func newApplyCommand() *cobra.Command {
	var autoApprove bool

	cmd := &cobra.Command{
		Use:   "apply <environment>",
		Short: "Provision the resource graph of an environment",
		Long: `Compute and execute the plan for an environment's resource set.

This command:
  - Computes the plan against the last-applied state
  - Executes it level by level, concurrently within a level
  - Retries transient provider errors with exponential backoff
  - Persists resolved attributes to the state store per applied resource
  - Records the run and its failures in the run log`,
		Example: `  # Plan and apply with approval prompt
  stacklift apply dev

  # Auto-approve
  stacklift apply dev --auto-approve`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			rt, err := newRuntime(ctx, args[0], cmd.Root().Version)
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			plan, _, state, err := rt.loadPlan(ctx)
			if err != nil {
				return err
			}

			printPlan(plan)
			if plan.AllNoop() {
				return nil
			}

			if !autoApprove {
				fmt.Print("\nProceed? Only 'yes' applies: ")
				var answer string
				fmt.Fscanln(cmd.InOrStdin(), &answer)
				if answer != "yes" {
					fmt.Println("Apply cancelled.")
					return nil
				}
			}

			result := runApply(ctx, rt, plan, state)
			printApplyResult(result)
			if result.Failed() {
				return fmt.Errorf("apply %s failed: %s", result.RunID, result.Err.Error())
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&autoApprove, "auto-approve", false, "skip approval prompt")

	return cmd
}

// runApply executes the plan and records the run and its failures in the
// state store. Store bookkeeping failures are logged, never fatal.
func runApply(ctx context.Context, rt *runtime, plan *engine.Plan, state engine.State) *engine.ApplyResult {
	result := rt.newApplier().Apply(ctx, plan, state)

	run := &stores.Run{
		ID:          result.RunID,
		Environment: rt.env.Name,
		PlanID:      plan.ID,
		Status:      stores.RunStatusRunning,
		StartedAt:   result.StartedAt,
	}
	if err := rt.store.CreateRun(ctx, run); err != nil {
		rt.log.WithError(err).Warn("failed to record run")
		return result
	}

	status := stores.RunStatusCompleted
	var errMsg *string
	if result.Failed() {
		status = stores.RunStatusFailed
		msg := result.Err.Error()
		errMsg = &msg
	}

	for i := range result.Results {
		ar := &result.Results[i]
		if ar.Status != engine.ActionStatusFailed {
			continue
		}
		msg := ar.Err.Error()
		event := &stores.Event{
			RunID:      result.RunID,
			ResourceID: &ar.ResourceID,
			Level:      stores.EventLevelError,
			Message:    msg,
			Timestamp:  result.CompletedAt,
		}
		if err := rt.store.AppendEvent(ctx, event); err != nil {
			rt.log.WithError(err).Warn("failed to record run event")
		}
	}

	if err := rt.store.CompleteRun(ctx, result.RunID, status, errMsg); err != nil {
		rt.log.WithError(err).Warn("failed to complete run record")
	}

	return result
}

func printApplyResult(result *engine.ApplyResult) {
	ok := color.New(color.FgGreen)
	failed := color.New(color.FgRed)
	skipped := color.New(color.Faint)

	fmt.Printf("\nRun %s\n\n", result.RunID)
	applied := 0
	for _, res := range result.Results {
		switch res.Status {
		case engine.ActionStatusApplied:
			applied++
			ok.Printf("  ✔ %-24s %s (%d attempt(s), %s)\n",
				res.ResourceID, res.Op, res.Attempts, res.Duration.Round(time.Millisecond))
		case engine.ActionStatusFailed:
			failed.Printf("  ✘ %-24s %s: %s\n", res.ResourceID, res.Op, res.Err.Error())
		case engine.ActionStatusSkipped:
			skipped.Printf("  - %-24s skipped\n", res.ResourceID)
		}
	}

	duration := result.CompletedAt.Sub(result.StartedAt)
	if result.Failed() {
		failed.Printf("\nApply failed after %s: %s\n", duration.Round(time.Millisecond), result.Err.Error())
		fmt.Println("Already-applied resources stay in place.")
		return
	}
	ok.Printf("\nApply complete: %d applied in %s\n", applied, duration.Round(time.Millisecond))
}
