package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/stacklift/stacklift/pkg/config"
	"github.com/stacklift/stacklift/pkg/engine"
	"github.com/stacklift/stacklift/pkg/graph"
	"github.com/stacklift/stacklift/pkg/ledger"
	"github.com/stacklift/stacklift/pkg/providers/sim"
	"github.com/stacklift/stacklift/pkg/stores"
	"github.com/stacklift/stacklift/pkg/telemetry"
)

// runtime bundles the shared wiring for one environment: config, logging,
// tracing, the state store, and the metrics ledger.
type runtime struct {
	env     *config.Environment
	log     *telemetry.Logger
	metrics *telemetry.Metrics
	tracer  *telemetry.Tracer
	store   *stores.SQLiteStore
	ledger  *ledger.Ledger
}

// newRuntime loads the environment and opens its state store. The caller
// must call close when done.
func newRuntime(ctx context.Context, envName, version string) (*runtime, error) {
	loader := config.NewLoader(configDir)
	env, err := loader.LoadEnvironment(envName)
	if err != nil {
		return nil, err
	}

	tcfg := telemetry.DefaultConfig()
	tcfg.ServiceVersion = version
	tcfg.Environment = env.Name
	if verbose {
		tcfg.Logging.Level = "debug"
	}
	if traceMode != "" && traceMode != "none" {
		tcfg.Tracing.Enabled = true
		tcfg.Tracing.Exporter = traceMode
	}
	tcfg.Metrics.Enabled = metricsEnabled

	log, err := telemetry.NewLogger(tcfg.Logging)
	if err != nil {
		return nil, err
	}
	log = log.WithEnvironment(env.Name)

	metrics, err := telemetry.NewMetrics(tcfg.Metrics)
	if err != nil {
		return nil, err
	}
	if err := metrics.StartMetricsServer(log); err != nil {
		return nil, err
	}

	tracer, err := telemetry.NewTracer(tcfg.Tracing, tcfg.ServiceName, version, env.Name)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(env.BasePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base path %s: %w", env.BasePath, err)
	}

	store, err := stores.NewSQLiteStore(stores.Config{Path: env.StatePath()})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, err
	}

	return &runtime{
		env:     env,
		log:     log,
		metrics: metrics,
		tracer:  tracer,
		store:   store,
		ledger:  ledger.New(env.LedgerPath()),
	}, nil
}

func (rt *runtime) close(ctx context.Context) {
	if rt.store != nil {
		rt.store.Close()
	}
	if rt.tracer != nil {
		rt.tracer.Shutdown(ctx)
	}
}

// loadPlan loads the resource set, finalizes the graph, and computes the
// plan against the last-applied state.
func (rt *runtime) loadPlan(ctx context.Context) (*engine.Plan, *graph.Finalized, engine.State, error) {
	resources, err := config.NewLoader(configDir).LoadResources(rt.env.ResourceFile)
	if err != nil {
		return nil, nil, nil, err
	}

	fg, err := config.BuildGraph(resources)
	if err != nil {
		return nil, nil, nil, err
	}

	state, err := rt.store.LoadState(ctx)
	if err != nil {
		return nil, nil, nil, err
	}

	plan := engine.NewPlanner().Plan(fg, state)
	return plan, fg, state, nil
}

// newApplier assembles the applier over the simulated provisioner registry.
func (rt *runtime) newApplier() *engine.Applier {
	registry := engine.NewProvisionerRegistry(sim.New(sim.Options{
		Logger: rt.log.NewComponentLogger("provider"),
	}))
	return engine.NewApplier(registry, rt.store, engine.ApplierOptions{
		Retry:       rt.env.RetryPolicy(),
		MaxParallel: rt.env.MaxParallel,
		Logger:      rt.log.NewComponentLogger("engine"),
		Metrics:     rt.metrics,
		Tracer:      rt.tracer,
	})
}
