package engine

import (
	"encoding/json"
	"reflect"
	"time"

	"github.com/google/uuid"

	"github.com/stacklift/stacklift/pkg/graph"
)

// Planner derives plans by diffing desired configuration against the
// last-applied state.
type Planner struct{}

// NewPlanner creates a planner.
func NewPlanner() *Planner {
	return &Planner{}
}

// Plan produces one action per resource of the finalized graph: create when
// the resource has no last-applied entry, update when the declared
// attributes differ, noop when they are identical. The plan preserves the
// graph's topological order and levels, so re-planning an unchanged desired
// state yields an all-noop plan.
func (p *Planner) Plan(fg *graph.Finalized, lastApplied State) *Plan {
	plan := &Plan{
		ID:        uuid.New().String(),
		CreatedAt: time.Now(),
		Actions:   make([]Action, 0, len(fg.Order)),
	}

	indexByID := make(map[string]int, len(fg.Order))
	for _, id := range fg.Order {
		r := fg.Resources[id]
		action := Action{
			ResourceID: id,
			Type:       r.Type,
			Desired:    r.Attributes,
		}

		applied, exists := lastApplied[id]
		switch {
		case !exists:
			action.Op = ActionCreate
			plan.Summary.ToCreate++
		case !attributesEqual(r.Attributes, applied.Attributes):
			action.Op = ActionUpdate
			plan.Summary.ToUpdate++
		default:
			action.Op = ActionNoop
			plan.Summary.NoChange++
		}

		indexByID[id] = len(plan.Actions)
		plan.Actions = append(plan.Actions, action)
	}

	plan.Levels = make([][]int, 0, len(fg.Levels))
	for _, level := range fg.Levels {
		indices := make([]int, 0, len(level))
		for _, id := range level {
			indices = append(indices, indexByID[id])
		}
		plan.Levels = append(plan.Levels, indices)
	}

	return plan
}

// attributesEqual compares two attribute maps after JSON normalization, so
// numeric types coming from different decoders compare equal.
func attributesEqual(a, b graph.Attributes) bool {
	aj, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bj, err := json.Marshal(b)
	if err != nil {
		return false
	}

	var av, bv any
	if err := json.Unmarshal(aj, &av); err != nil {
		return false
	}
	if err := json.Unmarshal(bj, &bv); err != nil {
		return false
	}

	return reflect.DeepEqual(av, bv)
}
