package engine

import (
	"context"
	"time"

	"github.com/stacklift/stacklift/pkg/graph"
)

// ActionType is the operation a plan entry performs on a resource.
type ActionType string

const (
	// ActionCreate provisions a resource that has no last-applied state.
	ActionCreate ActionType = "create"

	// ActionUpdate reconciles a resource whose desired attributes differ
	// from the last-applied ones.
	ActionUpdate ActionType = "update"

	// ActionNoop leaves a resource untouched.
	ActionNoop ActionType = "noop"
)

// ActionStatus is the execution status of a single plan action.
type ActionStatus string

const (
	// ActionStatusPending indicates the action has not started.
	ActionStatusPending ActionStatus = "pending"

	// ActionStatusApplied indicates the action completed successfully.
	ActionStatusApplied ActionStatus = "applied"

	// ActionStatusFailed indicates the action failed.
	ActionStatusFailed ActionStatus = "failed"

	// ActionStatusSkipped indicates the action never started because a
	// fatal error was recorded earlier in the run.
	ActionStatusSkipped ActionStatus = "skipped"
)

// Action is one entry of a plan.
type Action struct {
	// ResourceID is the resource this action operates on.
	ResourceID string `json:"resource_id"`

	// Type is the resource kind.
	Type graph.ResourceType `json:"type"`

	// Op is the operation to perform.
	Op ActionType `json:"op"`

	// Desired is the desired attribute set.
	Desired graph.Attributes `json:"desired"`
}

// Plan is a dependency-ordered set of actions derived by diffing desired
// configuration against last-applied state.
type Plan struct {
	// ID is the unique identifier of this plan.
	ID string `json:"id"`

	// CreatedAt is when the plan was computed.
	CreatedAt time.Time `json:"created_at"`

	// Actions holds one action per declared resource, in topological order.
	Actions []Action `json:"actions"`

	// Levels groups action indices by topological depth, mirroring the
	// finalized graph. Actions within a level may run concurrently.
	Levels [][]int `json:"levels"`

	// Summary counts actions by type.
	Summary PlanSummary `json:"summary"`
}

// PlanSummary counts plan actions by type.
type PlanSummary struct {
	ToCreate int `json:"to_create"`
	ToUpdate int `json:"to_update"`
	NoChange int `json:"no_change"`
}

// AllNoop reports whether the plan changes nothing.
func (p *Plan) AllNoop() bool {
	return p.Summary.ToCreate == 0 && p.Summary.ToUpdate == 0
}

// AppliedState is the recorded outcome of a successful resource action.
type AppliedState struct {
	// ProviderID is the provider-assigned identifier.
	ProviderID string `json:"provider_id"`

	// Attributes is the desired attribute set as declared. Plans diff
	// against this; reference substitution happens at action time.
	Attributes graph.Attributes `json:"attributes"`

	// Resolved is the provider-reported concrete attribute set.
	Resolved graph.Attributes `json:"resolved"`

	// AppliedAt is when the action completed.
	AppliedAt time.Time `json:"applied_at"`
}

// State maps resource IDs to their last-applied state.
type State map[string]AppliedState

// StateStore persists last-applied resource state across invocations.
type StateStore interface {
	// LoadState returns the last-applied state for every known resource.
	LoadState(ctx context.Context) (State, error)

	// PutResourceState records the applied state of one resource.
	PutResourceState(ctx context.Context, resourceID string, st AppliedState) error
}

// ActionResult is the outcome of a single plan action.
type ActionResult struct {
	// ResourceID is the resource the action operated on.
	ResourceID string `json:"resource_id"`

	// Op is the operation performed.
	Op ActionType `json:"op"`

	// Status is the final status of the action.
	Status ActionStatus `json:"status"`

	// Attempts counts provisioner calls made for this action.
	Attempts int `json:"attempts"`

	// Duration is the wall-clock time of the action.
	Duration time.Duration `json:"duration"`

	// Err is the classified error for failed actions.
	Err *Error `json:"error,omitempty"`
}

// ApplyResult is the outcome of an apply run.
type ApplyResult struct {
	// RunID identifies the run.
	RunID string `json:"run_id"`

	// StartedAt and CompletedAt bound the run.
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`

	// Results holds one entry per plan action, in plan order.
	Results []ActionResult `json:"results"`

	// Err is the fatal error that halted the run, if any.
	Err *Error `json:"error,omitempty"`
}

// Failed reports whether the run recorded a fatal error.
func (r *ApplyResult) Failed() bool {
	return r.Err != nil
}
