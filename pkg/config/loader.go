package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/stacklift/stacklift/pkg/graph"
)

// Loader reads and validates environment and resource set files.
type Loader struct {
	dir       string
	validator *validator.Validate
}

// NewLoader creates a loader rooted at the given config directory.
// Environment files are expected at <dir>/environments/<name>.yaml.
func NewLoader(dir string) *Loader {
	return &Loader{
		dir:       dir,
		validator: validator.New(),
	}
}

// LoadEnvironment reads environments/<name>.yaml under the loader's config
// directory. A missing file is not an error: the documented defaults are
// returned instead so a bare checkout still deploys.
func (l *Loader) LoadEnvironment(name string) (*Environment, error) {
	path := filepath.Join(l.dir, "environments", name+".yaml")

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		env := DefaultEnvironment(name)
		env.ResourceFile = l.resolve(env.ResourceFile)
		env.ComposeFile = l.resolve(env.ComposeFile)
		return env, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read environment config %s: %w", path, err)
	}

	var env Environment
	if err := yaml.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to parse environment config %s: %w", path, err)
	}

	if env.Name == "" {
		env.Name = name
	}
	if env.ProjectName == "" {
		env.ProjectName = env.Name
	}

	if err := l.validator.Struct(&env); err != nil {
		return nil, fmt.Errorf("environment %s validation failed: %w", name, err)
	}

	env.ResourceFile = l.resolve(env.ResourceFile)
	env.ComposeFile = l.resolve(env.ComposeFile)

	return &env, nil
}

// LoadResources reads a resource set file and returns the declared
// resources in declaration order.
func (l *Loader) LoadResources(path string) ([]graph.Resource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read resource set %s: %w", path, err)
	}

	var set ResourceSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("failed to parse resource set %s: %w", path, err)
	}

	if err := l.validator.Struct(&set); err != nil {
		return nil, fmt.Errorf("resource set %s validation failed: %w", path, err)
	}

	for i := range set.Resources {
		r := &set.Resources[i]
		if r.ID == "" {
			return nil, fmt.Errorf("resource set %s: resource %d has no id", path, i)
		}
		if err := r.Type.Validate(); err != nil {
			return nil, fmt.Errorf("resource set %s: resource %s: %w", path, r.ID, err)
		}
	}

	return set.Resources, nil
}

// BuildGraph adds the resources to a fresh graph and finalizes it.
func BuildGraph(resources []graph.Resource) (*graph.Finalized, error) {
	g := graph.New()
	for i := range resources {
		if err := g.AddResource(&resources[i]); err != nil {
			return nil, err
		}
	}
	return g.Finalize()
}

// DefaultEnvironment returns the defaults used when no environment file
// exists: installation under ~/.stacklift/<name>, resources.yaml and
// docker-compose.yml named relative to the config directory, no probes.
func DefaultEnvironment(name string) *Environment {
	base := filepath.Join(".stacklift", name)
	if home, err := os.UserHomeDir(); err == nil {
		base = filepath.Join(home, ".stacklift", name)
	}

	return &Environment{
		Name:         name,
		BasePath:     base,
		ResourceFile: "resources.yaml",
		ComposeFile:  "docker-compose.yml",
		ProjectName:  name,
	}
}

// resolve makes a relative path absolute against the config directory.
func (l *Loader) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(l.dir, path)
}
