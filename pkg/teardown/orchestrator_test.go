package teardown

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stacklift/stacklift/pkg/ledger"
)

func confirmWith(input string) ConfirmFunc {
	return func(prompt string) (string, error) {
		return input, nil
	}
}

// newInstallation lays out a fake installation under a temp dir and returns
// its base path.
func newInstallation(t *testing.T) string {
	t.Helper()
	base := filepath.Join(t.TempDir(), "stacklift")

	for _, dir := range []string{"config", "logs", "manifests", ".cache"} {
		if err := os.MkdirAll(filepath.Join(base, dir), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	files := map[string]string{
		"state.db":               "sqlite data",
		"stacklift.log":          "log line\n",
		"config/environments":    "dev",
		"logs/deploy.log":        "deploy output\n",
		"manifests/rendered.yml": "services: {}\n",
	}
	for rel, content := range files {
		if err := os.WriteFile(filepath.Join(base, rel), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return base
}

func testConfig(base string) Config {
	return Config{
		BasePath:     base,
		PlatformName: "stacklift",
		DataFiles:    []string{"state.db", "stacklift.log"},
		Directories:  []string{"manifests"},
		BackupDirs:   []string{"config", "logs"},
		CacheDirs:    []string{".cache"},
	}
}

func stepOutcomes(summary *Summary, step string) map[string]StepOutcome {
	out := make(map[string]StepOutcome)
	for _, s := range summary.Steps {
		if s.Step == step {
			out[s.Target] = s.Outcome
		}
	}
	return out
}

func TestTeardownCancelledLeavesEverythingUntouched(t *testing.T) {
	base := newInstallation(t)
	led := ledger.New(filepath.Join(base, "config", "installation_metrics.json"))

	o := New(testConfig(base), led, confirmWith("yes please"), nil, nil)
	summary := o.Run(context.Background(), true)

	if summary.Status != StatusCancelled {
		t.Fatalf("got status %s, want cancelled", summary.Status)
	}
	if summary.BackupDir != "" {
		t.Errorf("backup created on cancel: %s", summary.BackupDir)
	}
	if _, err := os.Stat(filepath.Join(base, "state.db")); err != nil {
		t.Errorf("data file touched on cancel: %v", err)
	}
	if rec := led.Load(); rec.UninstallationDate != "" {
		t.Errorf("ledger touched on cancel: %+v", rec)
	}
}

func TestTeardownHonoursCancelledContext(t *testing.T) {
	base := newInstallation(t)
	led := ledger.New(filepath.Join(base, "config", "installation_metrics.json"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := New(testConfig(base), led, confirmWith(ConfirmToken), nil, nil)
	summary := o.Run(ctx, false)

	if summary.Status != StatusCancelled {
		t.Fatalf("got status %s, want cancelled", summary.Status)
	}
	if _, err := os.Stat(filepath.Join(base, "state.db")); err != nil {
		t.Errorf("data file removed despite cancellation: %v", err)
	}
	if _, err := os.Stat(filepath.Join(base, "manifests")); err != nil {
		t.Errorf("directory removed despite cancellation: %v", err)
	}
	if rec := led.Load(); rec.UninstallationDate != "" {
		t.Errorf("ledger stamped despite cancellation: %+v", rec)
	}
}

func TestTeardownWithBackupCompletes(t *testing.T) {
	base := newInstallation(t)
	led := ledger.New(filepath.Join(base, "config", "installation_metrics.json"))
	if err := led.RecordInstallation(base); err != nil {
		t.Fatal(err)
	}

	o := New(testConfig(base), led, confirmWith(ConfirmToken), nil, nil)
	summary := o.Run(context.Background(), true)

	if summary.Status != StatusCompleted {
		t.Fatalf("got status %s, want completed: %+v", summary.Status, summary.Failed())
	}
	if summary.BackupDir == "" {
		t.Fatal("no backup directory recorded")
	}

	// Backed-up artifacts exist.
	for _, rel := range []string{"state.db", "config/environments", "logs/deploy.log"} {
		if _, err := os.Stat(filepath.Join(summary.BackupDir, rel)); err != nil {
			t.Errorf("backup missing %s: %v", rel, err)
		}
	}
	// Final ledger copied into the backup.
	if _, err := os.Stat(filepath.Join(summary.BackupDir, "installation_metrics.json")); err != nil {
		t.Errorf("backup missing final ledger: %v", err)
	}

	// Removal targets are gone.
	for _, rel := range []string{"state.db", "stacklift.log", "manifests", ".cache"} {
		if _, err := os.Stat(filepath.Join(base, rel)); !os.IsNotExist(err) {
			t.Errorf("%s still present after teardown", rel)
		}
	}

	if summary.FinalRecord.UninstallationDate == "" {
		t.Error("final record missing uninstallation date")
	}
}

func TestTeardownMissingDataFileIsNotPresent(t *testing.T) {
	base := newInstallation(t)
	if err := os.Remove(filepath.Join(base, "state.db")); err != nil {
		t.Fatal(err)
	}
	led := ledger.New(filepath.Join(base, "config", "installation_metrics.json"))

	o := New(testConfig(base), led, confirmWith(ConfirmToken), nil, nil)
	summary := o.Run(context.Background(), false)

	if summary.Status != StatusCompleted {
		t.Fatalf("missing data file should not fail teardown: %s", summary.Status)
	}

	removes := stepOutcomes(summary, "remove")
	if got := removes[filepath.Join(base, "state.db")]; got != OutcomeNotPresent {
		t.Errorf("missing file outcome: got %q, want %q", got, OutcomeNotPresent)
	}
	if got := removes[filepath.Join(base, "manifests")]; got != OutcomeSucceeded {
		t.Errorf("manifests outcome: got %q, want %q", got, OutcomeSucceeded)
	}
}

func TestTeardownWithoutBackupSkipsBackupStep(t *testing.T) {
	base := newInstallation(t)
	led := ledger.New(filepath.Join(base, "config", "installation_metrics.json"))

	o := New(testConfig(base), led, confirmWith(ConfirmToken), nil, nil)
	summary := o.Run(context.Background(), false)

	if summary.BackupDir != "" {
		t.Errorf("unexpected backup: %s", summary.BackupDir)
	}
	backups := stepOutcomes(summary, "backup")
	if got := backups[""]; got != OutcomeSkipped {
		t.Errorf("backup step: got %q, want %q", got, OutcomeSkipped)
	}
}

func TestTeardownCleansRegistrations(t *testing.T) {
	base := newInstallation(t)
	reg := filepath.Join(t.TempDir(), "stacklift.desktop")
	if err := os.WriteFile(reg, []byte("[Desktop Entry]"), 0o644); err != nil {
		t.Fatal(err)
	}
	missing := filepath.Join(t.TempDir(), "profile.d", "stacklift.sh")

	cfg := testConfig(base)
	cfg.Registrations = []string{reg, missing}
	led := ledger.New(filepath.Join(base, "config", "installation_metrics.json"))

	o := New(cfg, led, confirmWith(ConfirmToken), nil, nil)
	summary := o.Run(context.Background(), false)

	if summary.Status != StatusCompleted {
		t.Fatalf("got status %s: %+v", summary.Status, summary.Failed())
	}
	cleans := stepOutcomes(summary, "clean")
	if cleans[reg] != OutcomeSucceeded {
		t.Errorf("registration outcome: %q", cleans[reg])
	}
	if cleans[missing] != OutcomeNotPresent {
		t.Errorf("missing registration outcome: %q", cleans[missing])
	}
	if _, err := os.Stat(reg); !os.IsNotExist(err) {
		t.Error("registration file still present")
	}
}
