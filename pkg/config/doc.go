// Package config loads and validates environment and resource set files.
//
// An environment file at environments/<name>.yaml names the installation
// base path, the resource set file, the compose file, and the health gate
// probes. A missing environment file falls back to documented defaults
// rather than failing.
package config
