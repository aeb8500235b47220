package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// Ledger is a file-backed metrics record shared between the running
// platform and the lifecycle tooling. All mutations are read-modify-write
// cycles under an exclusive file lock, persisted with write-temp-then-rename
// so an interrupted write never leaves a corrupt record.
type Ledger struct {
	path string
}

// New creates a ledger backed by the given metrics file path. The file does
// not need to exist.
func New(path string) *Ledger {
	return &Ledger{path: path}
}

// Path returns the metrics file path.
func (l *Ledger) Path() string {
	return l.path
}

// Load returns the current metrics record. It never fails: a missing or
// unreadable file yields a default record with zeroed counters and the
// "unknown" date sentinel, since metrics are diagnostic, not authoritative.
func (l *Ledger) Load() MetricsRecord {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return emptyRecord()
	}

	rec := emptyRecord()
	if err := json.Unmarshal(data, &rec); err != nil {
		return emptyRecord()
	}
	if rec.InstallationDate == "" {
		rec.InstallationDate = DateUnknown
	}
	if rec.Sessions == nil {
		rec.Sessions = []Session{}
	}
	return rec
}

// RecordInstallation initializes the metrics record for a fresh
// installation, resetting any previous counters.
func (l *Ledger) RecordInstallation(installPath string) error {
	return l.update(func(rec *MetricsRecord) error {
		hostname, _ := os.Hostname()
		*rec = MetricsRecord{
			InstallationDate: time.Now().Format(time.RFC3339),
			InstallationPath: installPath,
			Platform:         runtime.GOOS + "/" + runtime.GOARCH,
			Hostname:         hostname,
			Sessions:         []Session{},
		}
		return nil
	})
}

// RecordSessionStart appends a new open session and returns its identifier.
func (l *Ledger) RecordSessionStart() (string, error) {
	var sessionID string
	err := l.update(func(rec *MetricsRecord) error {
		sessionID = fmt.Sprintf("session_%d", len(rec.Sessions)+1)
		rec.Sessions = append(rec.Sessions, Session{
			ID:        sessionID,
			StartTime: time.Now().Format(time.RFC3339),
		})
		rec.CurrentSession = sessionID
		return nil
	})
	return sessionID, err
}

// RecordSessionEnd closes a session and folds its counters into the
// lifetime totals. An unknown session ID is an error.
func (l *Ledger) RecordSessionEnd(sessionID string, stats SessionStats) error {
	return l.update(func(rec *MetricsRecord) error {
		for i := range rec.Sessions {
			s := &rec.Sessions[i]
			if s.ID != sessionID {
				continue
			}

			now := time.Now()
			s.EndTime = now.Format(time.RFC3339)
			if start, err := time.Parse(time.RFC3339, s.StartTime); err == nil {
				s.DurationSeconds = now.Sub(start).Seconds()
			}
			s.ItemsProcessed = stats.ItemsProcessed
			s.EntitiesAnalyzed = stats.EntitiesAnalyzed

			rec.Usage.ItemsProcessed += stats.ItemsProcessed
			rec.Usage.EntitiesAnalyzed += stats.EntitiesAnalyzed
			rec.Usage.AnalysisRuns += stats.AnalysisRuns
			rec.Usage.RuntimeSeconds += s.DurationSeconds

			if rec.CurrentSession == sessionID {
				rec.CurrentSession = ""
			}
			return nil
		}
		return fmt.Errorf("unknown session: %s", sessionID)
	})
}

// AppendUninstallEvent stamps the record with an uninstallation timestamp
// and reason, returning the final record for reporting.
func (l *Ledger) AppendUninstallEvent(reason string) (MetricsRecord, error) {
	var final MetricsRecord
	err := l.update(func(rec *MetricsRecord) error {
		rec.UninstallationDate = time.Now().Format(time.RFC3339)
		rec.UninstallReason = reason
		final = *rec
		return nil
	})
	return final, err
}

// update runs a read-modify-write cycle under the exclusive file lock.
func (l *Ledger) update(mutate func(*MetricsRecord) error) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create ledger directory: %w", err)
	}

	// The lock lives in a sidecar file so the atomic rename of the record
	// itself never invalidates a held lock.
	unlock, err := acquireLock(l.path + ".lock")
	if err != nil {
		return fmt.Errorf("failed to lock ledger: %w", err)
	}
	defer unlock()

	rec := l.Load()
	if err := mutate(&rec); err != nil {
		return err
	}

	return l.writeAtomic(rec)
}

// writeAtomic persists the record via a temporary file and rename.
func (l *Ledger) writeAtomic(rec MetricsRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode metrics record: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(l.path), ".metrics-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary ledger file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write metrics record: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to sync metrics record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close temporary ledger file: %w", err)
	}

	if err := os.Rename(tmpName, l.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace metrics record: %w", err)
	}
	return nil
}
