package graph

import "sort"

// Graph accumulates resource declarations and validates them as a whole.
// References may point at resources declared later; they are resolved when
// the graph is finalized.
type Graph struct {
	// resources maps resource IDs to their declarations
	resources map[string]*Resource

	// declOrder records declaration order for deterministic tie-breaking
	declOrder []string
}

// Finalized is a validated graph with a deterministic topological order.
type Finalized struct {
	// Resources maps resource IDs to their declarations.
	Resources map[string]*Resource

	// Order is a topological order of all resource IDs: every resource
	// appears after all resources it depends on.
	Order []string

	// Levels groups resource IDs by topological depth. Resources within a
	// level have no mutual dependency and may be applied concurrently.
	Levels [][]string

	// Dependents maps a resource ID to the IDs that depend on it.
	Dependents map[string][]string
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		resources: make(map[string]*Resource),
	}
}

// AddResource declares a resource. It fails with CodeDuplicateIdentifier if
// the ID is already declared. Dependency references are validated at
// finalize time, so declarations may arrive in any order.
func (g *Graph) AddResource(r *Resource) error {
	if err := r.Type.Validate(); err != nil {
		return err
	}
	if _, exists := g.resources[r.ID]; exists {
		return &Error{Code: CodeDuplicateIdentifier, ResourceID: r.ID}
	}
	g.resources[r.ID] = r
	g.declOrder = append(g.declOrder, r.ID)
	return nil
}

// Len returns the number of declared resources.
func (g *Graph) Len() int {
	return len(g.resources)
}

// Finalize validates every dependency reference, rejects cycles, and
// computes a topological order using Kahn's algorithm. Ties within a level
// are broken by declaration order, so the result is deterministic.
func (g *Graph) Finalize() (*Finalized, error) {
	declIndex := make(map[string]int, len(g.declOrder))
	for i, id := range g.declOrder {
		declIndex[id] = i
	}

	dependents := make(map[string][]string, len(g.resources))
	inDegree := make(map[string]int, len(g.resources))
	for _, id := range g.declOrder {
		inDegree[id] = 0
	}

	for _, id := range g.declOrder {
		r := g.resources[id]
		for _, dep := range r.DependsOn {
			if _, exists := g.resources[dep]; !exists {
				return nil, &Error{Code: CodeUnknownDependency, ResourceID: id, Reference: dep}
			}
			dependents[dep] = append(dependents[dep], id)
			inDegree[id]++
		}
	}

	// Kahn's algorithm, level by level. Levels are sorted by declaration
	// index so the flattened order is stable across runs.
	current := make([]string, 0)
	for _, id := range g.declOrder {
		if inDegree[id] == 0 {
			current = append(current, id)
		}
	}

	order := make([]string, 0, len(g.resources))
	levels := make([][]string, 0)
	remaining := make(map[string]int, len(inDegree))
	for id, d := range inDegree {
		remaining[id] = d
	}

	for len(current) > 0 {
		sort.Slice(current, func(i, j int) bool {
			return declIndex[current[i]] < declIndex[current[j]]
		})
		levels = append(levels, current)
		order = append(order, current...)

		next := make([]string, 0)
		for _, id := range current {
			for _, dependent := range dependents[id] {
				remaining[dependent]--
				if remaining[dependent] == 0 {
					next = append(next, dependent)
				}
			}
		}
		current = next
	}

	if len(order) != len(g.resources) {
		return nil, &Error{Code: CodeCyclicDependency, Cycle: g.findCycle(remaining)}
	}

	return &Finalized{
		Resources:  g.resources,
		Order:      order,
		Levels:     levels,
		Dependents: dependents,
	}, nil
}

// findCycle extracts one cycle path from the nodes Kahn's algorithm could
// not place, for the error message.
func (g *Graph) findCycle(remaining map[string]int) []string {
	visited := make(map[string]bool)
	inStack := make(map[string]bool)

	var cycle []string
	var visit func(id string, path []string) bool
	visit = func(id string, path []string) bool {
		visited[id] = true
		inStack[id] = true
		path = append(path, id)

		for _, dep := range g.resources[id].DependsOn {
			if inStack[dep] {
				for i, p := range path {
					if p == dep {
						cycle = append(append([]string{}, path[i:]...), dep)
						return true
					}
				}
			}
			if !visited[dep] && visit(dep, path) {
				return true
			}
		}

		inStack[id] = false
		return false
	}

	for _, id := range g.declOrder {
		if remaining[id] > 0 && !visited[id] {
			if visit(id, nil) {
				break
			}
		}
	}
	return cycle
}
