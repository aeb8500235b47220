package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stacklift/stacklift/pkg/graph"
	"github.com/stacklift/stacklift/pkg/health"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestLoadEnvironment(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "environments", "dev.yaml"), `
base_path: /opt/stacklift/dev
resource_file: resources.yaml
compose_file: docker-compose.yml
max_parallel: 2
retry:
  max_attempts: 5
  base_delay: 100ms
probes:
  - name: api
    kind: http
    target: http://localhost:8080/healthz
    budget: 3
    interval: 50ms
    timeout: 1s
  - name: db
    kind: database
    target: file:dev.db
    driver: sqlite
`)

	env, err := NewLoader(dir).LoadEnvironment("dev")
	if err != nil {
		t.Fatalf("LoadEnvironment: %v", err)
	}

	if env.Name != "dev" {
		t.Errorf("Name = %q, want dev", env.Name)
	}
	if env.ProjectName != "dev" {
		t.Errorf("ProjectName = %q, want dev", env.ProjectName)
	}
	if env.BasePath != "/opt/stacklift/dev" {
		t.Errorf("BasePath = %q", env.BasePath)
	}
	if want := filepath.Join(dir, "resources.yaml"); env.ResourceFile != want {
		t.Errorf("ResourceFile = %q, want %q", env.ResourceFile, want)
	}
	if want := filepath.Join(dir, "docker-compose.yml"); env.ComposeFile != want {
		t.Errorf("ComposeFile = %q, want %q", env.ComposeFile, want)
	}

	policy := env.RetryPolicy()
	if policy.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want 5", policy.MaxAttempts)
	}
	if policy.BaseDelay != 100*time.Millisecond {
		t.Errorf("BaseDelay = %v, want 100ms", policy.BaseDelay)
	}

	probes, err := env.ProbeConfigs()
	if err != nil {
		t.Fatalf("ProbeConfigs: %v", err)
	}
	if len(probes) != 2 {
		t.Fatalf("got %d probes, want 2", len(probes))
	}
	if _, ok := probes[0].Probe.(*health.HTTPProbe); !ok {
		t.Errorf("probe 0 is %T, want *health.HTTPProbe", probes[0].Probe)
	}
	if probes[0].Budget != 3 {
		t.Errorf("probe 0 budget = %d, want 3", probes[0].Budget)
	}
	db, ok := probes[1].Probe.(*health.DatabaseProbe)
	if !ok {
		t.Fatalf("probe 1 is %T, want *health.DatabaseProbe", probes[1].Probe)
	}
	if db.Driver != "sqlite" {
		t.Errorf("probe 1 driver = %q", db.Driver)
	}
	if probes[1].Budget != defaultProbeBudget {
		t.Errorf("probe 1 budget = %d, want default %d", probes[1].Budget, defaultProbeBudget)
	}
}

func TestProbeConfigsRejectsUnknownKind(t *testing.T) {
	env := &Environment{
		Probes: []ProbeSpec{
			{Name: "gateway", Kind: "grpc", Target: "localhost:9000"},
		},
	}
	if _, err := env.ProbeConfigs(); err == nil {
		t.Fatal("unknown probe kind accepted")
	}
}

func TestLoadEnvironmentMissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	env, err := NewLoader(dir).LoadEnvironment("staging")
	if err != nil {
		t.Fatalf("LoadEnvironment: %v", err)
	}
	if env.Name != "staging" || env.ProjectName != "staging" {
		t.Errorf("names = %q/%q, want staging", env.Name, env.ProjectName)
	}
	if env.BasePath == "" {
		t.Error("BasePath is empty")
	}
	// Default file names live in the config directory, not the process CWD.
	if want := filepath.Join(dir, "resources.yaml"); env.ResourceFile != want {
		t.Errorf("ResourceFile = %q, want %q", env.ResourceFile, want)
	}
	if want := filepath.Join(dir, "docker-compose.yml"); env.ComposeFile != want {
		t.Errorf("ComposeFile = %q, want %q", env.ComposeFile, want)
	}
	if len(env.Probes) != 0 {
		t.Errorf("got %d probes, want 0", len(env.Probes))
	}
}

func TestLoadEnvironmentRejectsMissingFields(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "environments", "bad.yaml"), `
resource_file: resources.yaml
`)

	if _, err := NewLoader(dir).LoadEnvironment("bad"); err == nil {
		t.Fatal("expected validation error for missing base_path")
	}
}

func TestLoadResourcesBuildsGraph(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "resources.yaml")
	writeFile(t, path, `
resources:
  - id: net
    type: network
    attributes:
      cidr: 10.0.0.0/16
  - id: subnet
    type: subnet
    depends_on: [net]
    attributes:
      network: ${net.id}
`)

	resources, err := NewLoader(dir).LoadResources(path)
	if err != nil {
		t.Fatalf("LoadResources: %v", err)
	}
	if len(resources) != 2 {
		t.Fatalf("got %d resources, want 2", len(resources))
	}
	if resources[0].Type != graph.TypeNetwork {
		t.Errorf("resource 0 type = %q", resources[0].Type)
	}

	fg, err := BuildGraph(resources)
	if err != nil {
		t.Fatalf("BuildGraph: %v", err)
	}
	if len(fg.Order) != 2 || fg.Order[0] != "net" {
		t.Errorf("order = %v, want [net subnet]", fg.Order)
	}
}

func TestLoadResourcesRejectsUnknownType(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "resources.yaml")
	writeFile(t, path, `
resources:
  - id: thing
    type: volcano
`)

	if _, err := NewLoader(dir).LoadResources(path); err == nil {
		t.Fatal("expected error for unknown resource type")
	}
}
