// Package stack drives the container stack of a deployment. The compose
// implementation parses the project with compose-go and shells out to the
// docker compose CLI for build, up, and down.
package stack
