// Package graph holds the declared resource model for a platform
// installation: named, typed resources with attribute maps and dependency
// references. A Graph is populated from configuration, finalized into a
// deterministic topological order, and handed to the plan/apply engine.
package graph
