package health

import (
	"context"
	"sync"
	"time"

	"github.com/stacklift/stacklift/pkg/telemetry"
)

// GateState is the state of the health gate.
type GateState string

const (
	// GatePending means the gate has not started probing.
	GatePending GateState = "PENDING"

	// GateProbing means probes are in flight.
	GateProbing GateState = "PROBING"

	// GateHealthy means every probe passed within its budget.
	GateHealthy GateState = "HEALTHY"

	// GateUnhealthy means at least one probe exhausted its budget.
	GateUnhealthy GateState = "UNHEALTHY"
)

// ProbeStatus is the terminal status of one probe.
type ProbeStatus string

const (
	ProbePass ProbeStatus = "PASS"
	ProbeFail ProbeStatus = "FAIL"
)

// Probe checks one readiness condition. Check returns nil when the target
// is ready.
type Probe interface {
	// Name identifies the probe in results and logs.
	Name() string

	// Check performs one readiness check. The context carries the
	// per-attempt timeout.
	Check(ctx context.Context) error
}

// ProbeConfig pairs a probe with its polling schedule.
type ProbeConfig struct {
	// Probe is the readiness check.
	Probe Probe

	// Interval is the delay between attempts.
	Interval time.Duration

	// Timeout bounds a single attempt.
	Timeout time.Duration

	// Budget is the maximum number of attempts before the probe is marked
	// FAIL. The budget times the interval should cover the deployment's
	// warm-up window.
	Budget int
}

// ProbeResult is the composite outcome of one probe.
type ProbeResult struct {
	Name     string        `json:"name"`
	Status   ProbeStatus   `json:"status"`
	Attempts int           `json:"attempts"`
	Duration time.Duration `json:"duration"`

	// LastErr is the error of the final failed attempt, nil on PASS.
	LastErr error `json:"-"`
}

// GateResult is the outcome of a full gate evaluation.
type GateResult struct {
	State   GateState     `json:"state"`
	Probes  []ProbeResult `json:"probes"`
	Elapsed time.Duration `json:"elapsed"`
}

// Healthy reports whether every probe passed.
func (r *GateResult) Healthy() bool {
	return r.State == GateHealthy
}

// Gate polls readiness probes after a deployment. All probes run
// concurrently and independently; the gate is HEALTHY only when every probe
// passes, and any single failure makes it UNHEALTHY. Probes always run to
// completion so the composite result is useful for diagnostics even when
// the first failure already decided the outcome.
type Gate struct {
	probes  []ProbeConfig
	log     *telemetry.Logger
	metrics *telemetry.Metrics
	tracer  *telemetry.Tracer

	mu    sync.Mutex
	state GateState
}

// GateOptions configures optional observability hooks.
type GateOptions struct {
	Logger  *telemetry.Logger
	Metrics *telemetry.Metrics
	Tracer  *telemetry.Tracer
}

// NewGate creates a gate over the given probes.
func NewGate(probes []ProbeConfig, opts GateOptions) *Gate {
	log := opts.Logger
	if log == nil {
		log = telemetry.NopLogger()
	}
	return &Gate{
		probes:  probes,
		log:     log,
		metrics: opts.Metrics,
		tracer:  opts.Tracer,
		state:   GatePending,
	}
}

// State returns the current gate state.
func (g *Gate) State() GateState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Wait runs every probe to completion and returns the composite result. A
// gate with no probes is trivially healthy.
func (g *Gate) Wait(ctx context.Context) *GateResult {
	start := time.Now()

	g.mu.Lock()
	g.state = GateProbing
	g.mu.Unlock()

	results := make([]ProbeResult, len(g.probes))

	var wg sync.WaitGroup
	for i, pc := range g.probes {
		wg.Add(1)
		go func(i int, pc ProbeConfig) {
			defer wg.Done()
			results[i] = g.runProbe(ctx, pc)
		}(i, pc)
	}
	wg.Wait()

	state := GateHealthy
	for _, r := range results {
		if r.Status != ProbePass {
			state = GateUnhealthy
			break
		}
	}

	g.mu.Lock()
	g.state = state
	g.mu.Unlock()

	result := &GateResult{
		State:   state,
		Probes:  results,
		Elapsed: time.Since(start),
	}
	g.log.Infof("health gate %s after %s (%d probes)", state, result.Elapsed.Round(time.Millisecond), len(results))
	return result
}

// runProbe polls one probe until it passes or its budget is exhausted.
func (g *Gate) runProbe(ctx context.Context, pc ProbeConfig) ProbeResult {
	name := pc.Probe.Name()
	log := g.log.WithField("probe", name)
	start := time.Now()

	// Probe implementations pick the scoped logger back up via FromContext.
	ctx = log.WithContext(ctx)

	ctx, span := g.tracer.StartProbeSpan(ctx, name)
	defer span.End()

	budget := pc.Budget
	if budget <= 0 {
		budget = 1
	}

	result := ProbeResult{Name: name, Status: ProbeFail}
	for attempt := 1; attempt <= budget; attempt++ {
		result.Attempts = attempt

		err := g.checkOnce(ctx, pc)
		if err == nil {
			result.Status = ProbePass
			result.LastErr = nil
			break
		}
		result.LastErr = err

		if ctx.Err() != nil {
			break
		}
		log.Debugf("attempt %d/%d failed: %v", attempt, budget, err)

		if attempt < budget {
			select {
			case <-time.After(pc.Interval):
			case <-ctx.Done():
			}
		}
	}

	result.Duration = time.Since(start)
	g.metrics.RecordProbe(name, string(result.Status), result.Duration)
	if result.Status == ProbePass {
		log.Infof("probe passed after %d attempt(s)", result.Attempts)
	} else {
		telemetry.RecordError(span, result.LastErr)
		log.WithError(result.LastErr).Warnf("probe failed, budget of %d exhausted", budget)
	}
	return result
}

// checkOnce runs a single attempt under the per-attempt timeout.
func (g *Gate) checkOnce(ctx context.Context, pc ProbeConfig) error {
	if pc.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, pc.Timeout)
		defer cancel()
	}
	return pc.Probe.Check(ctx)
}
