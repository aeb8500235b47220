// Package engine plans and applies changes to declared platform resources.
//
// The engine consumes a finalized resource graph, diffs it against the
// last-applied state to produce a Plan (create/update/noop per resource),
// and executes the plan in topological order. Resources without a mutual
// dependency are applied concurrently; a dependent resource never starts
// before all of its dependencies have published their provider-resolved
// attributes. Individual actions delegate to a Provisioner and are retried
// with bounded exponential backoff for transient provider errors only.
// Apply is not atomic across resources: a fatal error stops new actions but
// leaves already-applied resources in place.
package engine
