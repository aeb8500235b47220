// Package teardown decommissions an installation safely.
//
// The Orchestrator runs a fixed protocol: exact-token confirmation,
// optional timestamped backup, best-effort removal of the enumerated
// installation artifacts, cleanup of external registrations, and a final
// uninstall event in the metrics ledger. Steps never abort each other; the
// Summary enumerates every outcome so the operator always knows what was
// removed and where a backup was left.
package teardown
