package commands

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/stacklift/stacklift/pkg/engine"
)

func newPlanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan <environment>",
		Short: "Compute the resource plan for an environment",
		Long: `Compute the plan for an environment's resource set.

This command:
  - Loads the environment and its resource set
  - Finalizes the dependency graph (cycles and dangling references fail here)
  - Diffs the desired state against the last-applied state
  - Prints one action per resource: create, update, or no change`,
		Example: `  # Plan the dev environment
  stacklift plan dev`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			rt, err := newRuntime(ctx, args[0], cmd.Root().Version)
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			plan, _, _, err := rt.loadPlan(ctx)
			if err != nil {
				return err
			}

			printPlan(plan)
			return nil
		},
	}

	return cmd
}

func printPlan(plan *engine.Plan) {
	create := color.New(color.FgGreen)
	update := color.New(color.FgYellow)
	noop := color.New(color.Faint)

	fmt.Printf("Plan %s\n\n", plan.ID)
	for _, action := range plan.Actions {
		switch action.Op {
		case engine.ActionCreate:
			create.Printf("  + %-24s %s\n", action.ResourceID, action.Type)
		case engine.ActionUpdate:
			update.Printf("  ~ %-24s %s\n", action.ResourceID, action.Type)
		default:
			noop.Printf("  = %-24s %s\n", action.ResourceID, action.Type)
		}
	}

	fmt.Printf("\n%d to create, %d to update, %d unchanged\n",
		plan.Summary.ToCreate, plan.Summary.ToUpdate, plan.Summary.NoChange)
	if plan.AllNoop() {
		fmt.Println("No changes. Desired state matches the last apply.")
	}
}
