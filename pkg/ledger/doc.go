// Package ledger persists lifetime usage metrics for an installation.
//
// The record is a single JSON document written by the running platform
// (session counters) and amended by the lifecycle tooling at uninstall. A
// sidecar flock file serializes writers across processes, and every write
// goes through a temp-file-and-rename cycle so crashes never corrupt the
// record. Reads are degraded, never failing: a missing or unreadable file
// yields a zeroed record.
package ledger
