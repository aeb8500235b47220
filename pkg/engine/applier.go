package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stacklift/stacklift/pkg/graph"
	"github.com/stacklift/stacklift/pkg/telemetry"
)

// Applier executes plans against provisioners, level by level.
type Applier struct {
	registry    *ProvisionerRegistry
	store       StateStore
	retry       RetryPolicy
	maxParallel int
	log         *telemetry.Logger
	metrics     *telemetry.Metrics
	tracer      *telemetry.Tracer

	mu sync.Mutex
	// published maps resource IDs to provider-resolved attributes. A
	// dependent action reads its dependencies' entries, so an entry must be
	// published before any dependent starts.
	published map[string]graph.Attributes
	// fatal is the first fatal error of the run. Once set, no new action
	// starts.
	fatal *Error
}

// ApplierOptions configures an Applier.
type ApplierOptions struct {
	// Retry is the per-action retry policy. Zero value means the default
	// policy (3 attempts, exponential backoff).
	Retry RetryPolicy

	// MaxParallel bounds concurrent actions within a level. Defaults to 4.
	MaxParallel int

	// Logger, Metrics and Tracer are optional observability hooks.
	Logger  *telemetry.Logger
	Metrics *telemetry.Metrics
	Tracer  *telemetry.Tracer
}

// NewApplier creates an applier that delegates actions to the registry and
// persists applied state to the store.
func NewApplier(registry *ProvisionerRegistry, store StateStore, opts ApplierOptions) *Applier {
	retry := opts.Retry
	if retry.MaxAttempts == 0 {
		retry = DefaultRetryPolicy()
	}
	maxParallel := opts.MaxParallel
	if maxParallel <= 0 {
		maxParallel = 4
	}
	log := opts.Logger
	if log == nil {
		log = telemetry.NopLogger()
	}
	return &Applier{
		registry:    registry,
		store:       store,
		retry:       retry,
		maxParallel: maxParallel,
		log:         log,
		metrics:     opts.Metrics,
		tracer:      opts.Tracer,
	}
}

// Apply executes the plan in level order. Actions within a level run
// concurrently through a bounded worker pool. The first fatal error stops
// new actions from starting; actions already in flight run to completion.
// Already-applied resources are left in place (apply is not atomic across
// resources).
func (a *Applier) Apply(ctx context.Context, plan *Plan, lastApplied State) *ApplyResult {
	result := &ApplyResult{
		RunID:     uuid.New().String(),
		StartedAt: time.Now(),
		Results:   make([]ActionResult, len(plan.Actions)),
	}

	ctx, span := a.tracer.StartRunSpan(ctx, result.RunID)
	defer span.End()

	a.mu.Lock()
	a.published = make(map[string]graph.Attributes, len(plan.Actions))
	a.fatal = nil
	a.mu.Unlock()

	for i := range plan.Actions {
		result.Results[i] = ActionResult{
			ResourceID: plan.Actions[i].ResourceID,
			Op:         plan.Actions[i].Op,
			Status:     ActionStatusPending,
		}
	}

	log := a.log.WithRunID(result.RunID)
	log.Infof("applying plan %s: %d create, %d update, %d noop",
		plan.ID, plan.Summary.ToCreate, plan.Summary.ToUpdate, plan.Summary.NoChange)
	a.metrics.RecordRunStarted()

	for _, level := range plan.Levels {
		a.applyLevel(ctx, plan, level, lastApplied, result, log)

		a.mu.Lock()
		fatal := a.fatal
		a.mu.Unlock()
		if fatal != nil {
			a.skipPending(result)
			break
		}
		if ctx.Err() != nil {
			a.mu.Lock()
			a.fatal = NewPermanentError("apply cancelled", ctx.Err()).WithCode(ErrCodeInternal)
			a.mu.Unlock()
			a.skipPending(result)
			break
		}
	}

	a.mu.Lock()
	result.Err = a.fatal
	a.mu.Unlock()
	result.CompletedAt = time.Now()

	status := "succeeded"
	if result.Failed() {
		status = "failed"
		telemetry.RecordError(span, result.Err)
	}
	a.metrics.RecordRunCompleted(status, result.CompletedAt.Sub(result.StartedAt))
	log.Infof("apply run %s %s", result.RunID, status)
	return result
}

// applyLevel runs all actions of one level through a bounded worker pool.
func (a *Applier) applyLevel(
	ctx context.Context,
	plan *Plan,
	level []int,
	lastApplied State,
	result *ApplyResult,
	log *telemetry.Logger,
) {
	workers := a.maxParallel
	if len(level) < workers {
		workers = len(level)
	}

	queue := make(chan int, len(level))
	for _, idx := range level {
		queue <- idx
	}
	close(queue)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range queue {
				a.mu.Lock()
				halted := a.fatal != nil
				a.mu.Unlock()
				if halted || ctx.Err() != nil {
					result.Results[idx].Status = ActionStatusSkipped
					continue
				}
				a.applyAction(ctx, &plan.Actions[idx], lastApplied, &result.Results[idx], log)
			}
		}()
	}
	wg.Wait()
}

// applyAction executes one action with bounded retries and publishes the
// provider-resolved attributes on success.
func (a *Applier) applyAction(
	ctx context.Context,
	action *Action,
	lastApplied State,
	res *ActionResult,
	log *telemetry.Logger,
) {
	start := time.Now()
	log = log.WithResourceID(action.ResourceID)

	if action.Op == ActionNoop {
		// Nothing to provision, but dependents may still reference the
		// resolved attributes recorded on a previous run.
		applied := a.priorState(lastApplied, action.ResourceID)
		a.publish(action.ResourceID, applied.ProviderID, applied.Resolved)
		res.Status = ActionStatusApplied
		res.Duration = time.Since(start)
		return
	}

	ctx, span := a.tracer.StartActionSpan(ctx, action.ResourceID, string(action.Type), string(action.Op))
	defer span.End()

	desired, err := a.resolveReferences(action.Desired)
	if err != nil {
		a.fail(action, res, err, start, log)
		return
	}

	provisioner, perr := a.registry.Get(action.Type)
	if perr != nil {
		a.fail(action, res, perr, start, log)
		return
	}

	var providerID string
	var resolved graph.Attributes
	prior := a.priorState(lastApplied, action.ResourceID)

	err = a.retry.Do(ctx, func(ctx context.Context) error {
		res.Attempts++
		var callErr error
		switch action.Op {
		case ActionCreate:
			providerID, resolved, callErr = provisioner.Create(ctx, action.Type, desired)
		case ActionUpdate:
			providerID = prior.ProviderID
			resolved, callErr = provisioner.Update(ctx, providerID, desired)
		}
		if callErr != nil && IsTransient(callErr) {
			log.Warnf("transient provider error on %s (attempt %d): %v",
				action.ResourceID, res.Attempts, callErr)
		}
		return callErr
	})
	a.metrics.RecordAction(string(action.Op), string(action.Type), time.Since(start), err == nil)
	if err != nil {
		telemetry.RecordError(span, err)
		a.fail(action, res, err, start, log)
		return
	}

	a.publish(action.ResourceID, providerID, resolved)

	st := AppliedState{
		ProviderID: providerID,
		Attributes: action.Desired,
		Resolved:   resolved,
		AppliedAt:  time.Now(),
	}
	if serr := a.store.PutResourceState(ctx, action.ResourceID, st); serr != nil {
		a.fail(action, res, NewPermanentError("failed to persist resource state", serr).
			WithCode(ErrCodeInternal), start, log)
		return
	}
	a.mu.Lock()
	lastApplied[action.ResourceID] = st
	a.mu.Unlock()

	res.Status = ActionStatusApplied
	res.Duration = time.Since(start)
	log.Infof("%s %s applied (provider id %s)", action.Op, action.ResourceID, providerID)
}

// fail records a classified failure on the action and marks the run fatal.
func (a *Applier) fail(action *Action, res *ActionResult, err error, start time.Time, log *telemetry.Logger) {
	classified, ok := err.(*Error)
	if !ok {
		classified = NewPermanentError("action failed", err).WithCode(ErrCodeProviderFailed)
	}
	classified = classified.WithResource(action.ResourceID).WithOperation(string(action.Op))

	res.Status = ActionStatusFailed
	res.Err = classified
	res.Duration = time.Since(start)

	a.metrics.RecordErrorClass(string(classified.Class), classified.Code)
	log.WithError(classified).Errorf("%s %s failed", action.Op, action.ResourceID)

	a.mu.Lock()
	if a.fatal == nil {
		a.fatal = classified
	}
	a.mu.Unlock()
}

// priorState reads a resource's last-applied state. The lastApplied map is
// shared by every worker in a level, so all access goes through a.mu.
func (a *Applier) priorState(lastApplied State, resourceID string) AppliedState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return lastApplied[resourceID]
}

// skipPending marks every action that never started as skipped.
func (a *Applier) skipPending(result *ApplyResult) {
	for i := range result.Results {
		if result.Results[i].Status == ActionStatusPending {
			result.Results[i].Status = ActionStatusSkipped
		}
	}
}

// publish records a resource's provider-resolved attributes so dependents
// can substitute references to them.
func (a *Applier) publish(resourceID, providerID string, resolved graph.Attributes) {
	attrs := make(graph.Attributes, len(resolved)+1)
	for k, v := range resolved {
		attrs[k] = v
	}
	if providerID != "" {
		attrs["id"] = providerID
	}
	a.mu.Lock()
	a.published[resourceID] = attrs
	a.mu.Unlock()
}

// resolveReferences substitutes "${resource.attribute}" strings with the
// published attributes of already-applied dependencies. An unresolvable
// reference is a permanent validation error: the graph guarantees all
// dependencies ran first, so the reference itself must be wrong.
func (a *Applier) resolveReferences(attrs graph.Attributes) (graph.Attributes, error) {
	out := make(graph.Attributes, len(attrs))
	for k, v := range attrs {
		rv, err := a.resolveValue(v)
		if err != nil {
			return nil, err
		}
		out[k] = rv
	}
	return out, nil
}

func (a *Applier) resolveValue(v any) (any, error) {
	switch val := v.(type) {
	case string:
		if !strings.HasPrefix(val, "${") || !strings.HasSuffix(val, "}") {
			return val, nil
		}
		ref := val[2 : len(val)-1]
		dot := strings.Index(ref, ".")
		if dot <= 0 || dot == len(ref)-1 {
			return nil, NewPermanentError(fmt.Sprintf("malformed reference %q", val), nil).
				WithCode(ErrCodeValidation)
		}
		resourceID, attr := ref[:dot], ref[dot+1:]

		a.mu.Lock()
		published, ok := a.published[resourceID]
		a.mu.Unlock()
		if !ok {
			return nil, NewPermanentError(fmt.Sprintf("reference %q points at an unapplied resource", val), nil).
				WithCode(ErrCodeValidation)
		}
		resolved, ok := published[attr]
		if !ok {
			return nil, NewPermanentError(fmt.Sprintf("resource %q has no resolved attribute %q", resourceID, attr), nil).
				WithCode(ErrCodeValidation)
		}
		return resolved, nil
	case map[string]any:
		nested := make(map[string]any, len(val))
		for k, nv := range val {
			rv, err := a.resolveValue(nv)
			if err != nil {
				return nil, err
			}
			nested[k] = rv
		}
		return nested, nil
	case graph.Attributes:
		return a.resolveValue(map[string]any(val))
	case []any:
		items := make([]any, len(val))
		for i, nv := range val {
			rv, err := a.resolveValue(nv)
			if err != nil {
				return nil, err
			}
			items[i] = rv
		}
		return items, nil
	default:
		return v, nil
	}
}
