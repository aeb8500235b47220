package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/stacklift/stacklift/pkg/engine"
	"github.com/stacklift/stacklift/pkg/health"
)

const (
	defaultProbeInterval = 2 * time.Second
	defaultProbeTimeout  = 5 * time.Second
	defaultProbeBudget   = 10
)

// ProbeConfigs converts the environment's probe specs into gate probe
// configurations, filling in the documented defaults. A spec with an
// unrecognized kind is an error rather than a silent HTTP fallback.
func (e *Environment) ProbeConfigs() ([]health.ProbeConfig, error) {
	configs := make([]health.ProbeConfig, 0, len(e.Probes))

	for _, spec := range e.Probes {
		cfg := health.ProbeConfig{
			Interval: spec.Interval.Std(),
			Timeout:  spec.Timeout.Std(),
			Budget:   spec.Budget,
		}
		if cfg.Interval <= 0 {
			cfg.Interval = defaultProbeInterval
		}
		if cfg.Timeout <= 0 {
			cfg.Timeout = defaultProbeTimeout
		}
		if cfg.Budget <= 0 {
			cfg.Budget = defaultProbeBudget
		}

		switch spec.Kind {
		case "http":
			cfg.Probe = &health.HTTPProbe{
				ProbeName: spec.Name,
				URL:       spec.Target,
			}
		case "database":
			driver := spec.Driver
			if driver == "" {
				driver = "sqlite"
			}
			cfg.Probe = &health.DatabaseProbe{
				ProbeName: spec.Name,
				Driver:    driver,
				DSN:       spec.Target,
			}
		default:
			return nil, fmt.Errorf("probe %q: unknown kind %q", spec.Name, spec.Kind)
		}

		configs = append(configs, cfg)
	}

	return configs, nil
}

// RetryPolicy converts the environment's retry spec into an engine policy,
// falling back to the engine defaults for zero values.
func (e *Environment) RetryPolicy() engine.RetryPolicy {
	policy := engine.DefaultRetryPolicy()
	if e.Retry.MaxAttempts > 0 {
		policy.MaxAttempts = e.Retry.MaxAttempts
	}
	if e.Retry.BaseDelay > 0 {
		policy.BaseDelay = e.Retry.BaseDelay.Std()
	}
	if e.Retry.MaxDelay > 0 {
		policy.MaxDelay = e.Retry.MaxDelay.Std()
	}
	return policy
}

// StatePath is the SQLite state store location under the base path.
func (e *Environment) StatePath() string {
	return filepath.Join(e.BasePath, "state.db")
}

// LedgerPath is the metrics ledger location under the base path.
func (e *Environment) LedgerPath() string {
	return filepath.Join(e.BasePath, "config", "installation_metrics.json")
}
