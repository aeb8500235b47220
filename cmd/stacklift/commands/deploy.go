package commands

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/stacklift/stacklift/pkg/engine"
	"github.com/stacklift/stacklift/pkg/health"
	"github.com/stacklift/stacklift/pkg/ledger"
	"github.com/stacklift/stacklift/pkg/stack"
)

func newDeployCommand(version string) *cobra.Command {
	var skipProvision bool

	cmd := &cobra.Command{
		Use:   "deploy <environment>",
		Short: "Provision, start, and health-gate an environment",
		Long: `Deploy an environment end to end.

This command:
  - Provisions the environment's resource graph (plan + apply)
  - Builds and starts the application stack
  - Waits for the health gate: every probe must pass within its budget
  - Records the installation and a usage session in the metrics ledger

The command exits zero only when the gate reports HEALTHY.`,
		Example: `  # Deploy the dev environment
  stacklift deploy dev

  # Restart the stack without re-provisioning
  stacklift deploy dev --skip-provision`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			rt, err := newRuntime(ctx, args[0], version)
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			recordInstallation(rt)
			sessionID, err := rt.ledger.RecordSessionStart()
			if err != nil {
				rt.log.WithError(err).Warn("failed to start ledger session")
			}
			stats := ledger.SessionStats{AnalysisRuns: 1}
			defer func() {
				if sessionID == "" {
					return
				}
				if err := rt.ledger.RecordSessionEnd(sessionID, stats); err != nil {
					rt.log.WithError(err).Warn("failed to end ledger session")
				}
			}()

			if !skipProvision {
				plan, _, state, err := rt.loadPlan(ctx)
				if err != nil {
					return err
				}
				stats.EntitiesAnalyzed = int64(len(plan.Actions))

				printPlan(plan)
				if !plan.AllNoop() {
					result := runApply(ctx, rt, plan, state)
					printApplyResult(result)
					for _, res := range result.Results {
						if res.Status == engine.ActionStatusApplied {
							stats.ItemsProcessed++
						}
					}
					if result.Failed() {
						return fmt.Errorf("provisioning failed: %s", result.Err.Error())
					}
				}
			}

			st, err := stack.NewComposeStack(rt.env.ComposeFile, rt.env.ProjectName, rt.log.NewComponentLogger("stack"))
			if err != nil {
				return err
			}
			rt.log.Infof("deploying stack with services %v", st.Services())

			if err := st.Build(ctx); err != nil {
				return fmt.Errorf("stack build failed: %w", err)
			}
			if err := st.Start(ctx); err != nil {
				return fmt.Errorf("stack start failed: %w", err)
			}

			probes, err := rt.env.ProbeConfigs()
			if err != nil {
				return err
			}
			gate := health.NewGate(probes, health.GateOptions{
				Logger:  rt.log.NewComponentLogger("health"),
				Metrics: rt.metrics,
				Tracer:  rt.tracer,
			})
			result := gate.Wait(ctx)
			printGateResult(result)

			if !result.Healthy() {
				return fmt.Errorf("health gate reported %s", result.State)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&skipProvision, "skip-provision", false, "start the stack without re-provisioning resources")

	return cmd
}

// recordInstallation stamps the ledger on first deploy. An already-stamped
// ledger is left alone so the installation date survives redeploys.
func recordInstallation(rt *runtime) {
	rec := rt.ledger.Load()
	if rec.InstallationDate != ledger.DateUnknown {
		return
	}
	if err := rt.ledger.RecordInstallation(rt.env.BasePath); err != nil {
		rt.log.WithError(err).Warn("failed to record installation")
	}
}

func printGateResult(result *health.GateResult) {
	pass := color.New(color.FgGreen)
	fail := color.New(color.FgRed)

	fmt.Printf("\nHealth gate (%s)\n\n", result.Elapsed.Round(time.Millisecond))
	for _, probe := range result.Probes {
		if probe.Status == health.ProbePass {
			pass.Printf("  PASS %-20s %d attempt(s)\n", probe.Name, probe.Attempts)
			continue
		}
		fail.Printf("  FAIL %-20s %d attempt(s): %v\n", probe.Name, probe.Attempts, probe.LastErr)
	}

	if result.Healthy() {
		pass.Printf("\nGate: %s\n", result.State)
		return
	}
	fail.Printf("\nGate: %s\n", result.State)
}
