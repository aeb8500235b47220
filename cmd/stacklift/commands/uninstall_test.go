package commands

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stacklift/stacklift/pkg/config"
	"github.com/stacklift/stacklift/pkg/ledger"
	"github.com/stacklift/stacklift/pkg/teardown"
)

func TestTeardownConfigPreservesLedgerHistory(t *testing.T) {
	base := filepath.Join(t.TempDir(), "stacklift")
	env := &config.Environment{Name: "dev", BasePath: base}

	for _, dir := range []string{"config", "logs", "manifests", ".cache"} {
		if err := os.MkdirAll(filepath.Join(base, dir), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}
	for _, file := range []string{"state.db", "stacklift.log"} {
		if err := os.WriteFile(filepath.Join(base, file), []byte("data"), 0o644); err != nil {
			t.Fatalf("write %s: %v", file, err)
		}
	}

	led := ledger.New(env.LedgerPath())
	if err := led.RecordInstallation(base); err != nil {
		t.Fatalf("RecordInstallation: %v", err)
	}
	sessionID, err := led.RecordSessionStart()
	if err != nil {
		t.Fatalf("RecordSessionStart: %v", err)
	}
	if err := led.RecordSessionEnd(sessionID, ledger.SessionStats{ItemsProcessed: 42, AnalysisRuns: 1}); err != nil {
		t.Fatalf("RecordSessionEnd: %v", err)
	}

	cfg := teardownConfig(env, "test teardown")
	cfg.Registrations = nil
	confirm := func(string) (string, error) { return teardown.ConfirmToken, nil }

	summary := teardown.New(cfg, led, confirm, nil, nil).Run(context.Background(), true)

	if summary.Status != teardown.StatusCompleted {
		t.Fatalf("status = %s, want completed", summary.Status)
	}
	if summary.RecordErr != nil {
		t.Fatalf("RecordErr = %v", summary.RecordErr)
	}
	if summary.FinalRecord.Usage.ItemsProcessed != 42 {
		t.Errorf("final record items processed = %d, want 42", summary.FinalRecord.Usage.ItemsProcessed)
	}
	if summary.FinalRecord.InstallationDate == ledger.DateUnknown {
		t.Error("final record lost the installation date")
	}
	if summary.FinalRecord.UninstallReason != "test teardown" {
		t.Errorf("uninstall reason = %q", summary.FinalRecord.UninstallReason)
	}

	// The stamped ledger outlives the removal step in place and in the backup.
	if _, err := os.Stat(env.LedgerPath()); err != nil {
		t.Errorf("ledger did not survive removal: %v", err)
	}
	backed := filepath.Join(summary.BackupDir, filepath.Base(env.LedgerPath()))
	if _, err := os.Stat(backed); err != nil {
		t.Errorf("ledger missing from backup: %v", err)
	}
	for _, gone := range []string{"logs", "manifests", "state.db", "stacklift.log", ".cache"} {
		if _, err := os.Stat(filepath.Join(base, gone)); !os.IsNotExist(err) {
			t.Errorf("%s was not removed", gone)
		}
	}
}
