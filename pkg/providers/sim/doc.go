// Package sim provides an in-memory simulated provisioner. It backs dry
// runs, demos, and engine tests without touching a real provider API.
package sim
