package stack

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/compose-spec/compose-go/v2/loader"
	composetypes "github.com/compose-spec/compose-go/v2/types"

	"github.com/stacklift/stacklift/pkg/telemetry"
)

var _ Stack = (*ComposeStack)(nil)

// ComposeStack drives a docker compose project. The compose file is parsed
// up front so a malformed project fails before any container work starts.
type ComposeStack struct {
	file        string
	projectName string
	project     *composetypes.Project
	log         *telemetry.Logger

	// runner executes the compose CLI. Swappable for tests.
	runner func(ctx context.Context, args ...string) error
}

// NewComposeStack loads and validates the compose file and returns a stack
// bound to it.
func NewComposeStack(file, projectName string, log *telemetry.Logger) (*ComposeStack, error) {
	abs, err := filepath.Abs(file)
	if err != nil {
		return nil, fmt.Errorf("resolve compose file %s: %w", file, err)
	}

	project, err := loadProject(abs, projectName)
	if err != nil {
		return nil, fmt.Errorf("load compose project: %w", err)
	}

	if log == nil {
		log = telemetry.NopLogger()
	}

	s := &ComposeStack{
		file:        abs,
		projectName: projectName,
		project:     project,
		log:         log,
	}
	s.runner = s.runCompose
	return s, nil
}

// Build implements Stack.
func (s *ComposeStack) Build(ctx context.Context) error {
	s.log.Infof("building %d service(s) from %s", len(s.project.Services), filepath.Base(s.file))
	if err := s.runner(ctx, "build"); err != nil {
		return fmt.Errorf("compose build: %w", err)
	}
	return nil
}

// Start implements Stack.
func (s *ComposeStack) Start(ctx context.Context) error {
	s.log.Infof("starting project %s", s.project.Name)
	if err := s.runner(ctx, "up", "-d", "--remove-orphans"); err != nil {
		return fmt.Errorf("compose up: %w", err)
	}
	return nil
}

// Stop implements Stack.
func (s *ComposeStack) Stop(ctx context.Context) error {
	s.log.Infof("stopping project %s", s.project.Name)
	if err := s.runner(ctx, "down"); err != nil {
		return fmt.Errorf("compose down: %w", err)
	}
	return nil
}

// Services implements Stack.
func (s *ComposeStack) Services() []string {
	return s.project.ServiceNames()
}

// Project exposes the parsed compose project for inspection.
func (s *ComposeStack) Project() *composetypes.Project {
	return s.project
}

func (s *ComposeStack) runCompose(ctx context.Context, args ...string) error {
	base := []string{"compose", "-f", s.file}
	if s.projectName != "" {
		base = append(base, "-p", s.projectName)
	}

	cmd := exec.CommandContext(ctx, "docker", append(base, args...)...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// loadProject parses a compose file with the host environment available for
// variable interpolation.
func loadProject(file, projectName string) (*composetypes.Project, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read compose file: %w", err)
	}

	env := make(composetypes.Mapping)
	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		env[key] = value
	}

	details := composetypes.ConfigDetails{
		WorkingDir: filepath.Dir(file),
		ConfigFiles: []composetypes.ConfigFile{
			{Filename: file, Content: data},
		},
		Environment: env,
	}

	return loader.Load(details, func(o *loader.Options) {
		if projectName != "" {
			o.SetProjectName(projectName, true)
		}
	})
}
