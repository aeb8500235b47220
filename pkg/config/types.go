package config

import (
	"github.com/stacklift/stacklift/pkg/graph"
)

// Environment describes one deployable environment: where the installation
// lives on disk, which resource set to provision, which compose file to run,
// and how the health gate should probe it.
type Environment struct {
	// Name is the environment name (e.g. "dev", "prod").
	Name string `yaml:"name" validate:"required"`

	// BasePath is the installation root. State, config, and logs live
	// underneath it.
	BasePath string `yaml:"base_path" validate:"required"`

	// ResourceFile is the path to the resource set YAML, relative to the
	// config directory unless absolute.
	ResourceFile string `yaml:"resource_file" validate:"required"`

	// ComposeFile is the path to the compose file for the application
	// stack, relative to the config directory unless absolute.
	ComposeFile string `yaml:"compose_file" validate:"required"`

	// ProjectName overrides the compose project name. Defaults to the
	// environment name.
	ProjectName string `yaml:"project_name,omitempty"`

	// Probes configures the health gate. An empty list means the gate
	// passes trivially.
	Probes []ProbeSpec `yaml:"probes,omitempty" validate:"dive"`

	// Retry tunes the apply retry policy. Zero values fall back to the
	// engine defaults.
	Retry RetrySpec `yaml:"retry,omitempty"`

	// MaxParallel bounds concurrent actions within a level. Zero means
	// the engine default.
	MaxParallel int `yaml:"max_parallel,omitempty" validate:"gte=0"`
}

// ProbeSpec declares one health probe.
type ProbeSpec struct {
	// Name identifies the probe in the composite gate result.
	Name string `yaml:"name" validate:"required"`

	// Kind selects the probe implementation.
	Kind string `yaml:"kind" validate:"required,oneof=http database"`

	// Target is the probe endpoint: a URL for http, a DSN for database.
	Target string `yaml:"target" validate:"required"`

	// Driver is the database driver name. Only used by database probes.
	Driver string `yaml:"driver,omitempty"`

	// Interval is the wait between attempts.
	Interval Duration `yaml:"interval,omitempty"`

	// Timeout bounds a single check.
	Timeout Duration `yaml:"timeout,omitempty"`

	// Budget is the maximum number of attempts.
	Budget int `yaml:"budget,omitempty" validate:"gte=0"`
}

// RetrySpec tunes the transient-error retry policy.
type RetrySpec struct {
	MaxAttempts int      `yaml:"max_attempts,omitempty" validate:"gte=0"`
	BaseDelay   Duration `yaml:"base_delay,omitempty"`
	MaxDelay    Duration `yaml:"max_delay,omitempty"`
}

// ResourceSet is the on-disk shape of a resource set file.
type ResourceSet struct {
	Resources []graph.Resource `yaml:"resources" validate:"required,dive"`
}
