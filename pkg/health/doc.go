// Package health implements the post-deploy readiness gate.
//
// A Gate polls a set of probes concurrently until each one either passes or
// exhausts its retry budget. The gate reports HEALTHY only when every probe
// passes; it never tears anything down on failure, it just reports
// UNHEALTHY with the per-probe results.
package health
