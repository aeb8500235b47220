package ledger

// DateUnknown is the sentinel used for date fields that were never recorded.
const DateUnknown = "unknown"

// UsageTotals are the lifetime usage counters written by the running
// platform and read back by the lifecycle tooling.
type UsageTotals struct {
	ItemsProcessed   int64   `json:"total_items_processed"`
	EntitiesAnalyzed int64   `json:"total_entities_analyzed"`
	AnalysisRuns     int64   `json:"total_analysis_runs"`
	RuntimeSeconds   float64 `json:"total_runtime_seconds"`
}

// Session is one recorded platform session.
type Session struct {
	ID               string  `json:"session_id"`
	StartTime        string  `json:"start_time"`
	EndTime          string  `json:"end_time,omitempty"`
	DurationSeconds  float64 `json:"duration_seconds"`
	ItemsProcessed   int64   `json:"items_processed"`
	EntitiesAnalyzed int64   `json:"entities_analyzed"`
}

// SessionStats are the per-session counters reported at session end.
type SessionStats struct {
	ItemsProcessed   int64
	EntitiesAnalyzed int64
	AnalysisRuns     int64
}

// MetricsRecord is the persisted installation record. All fields default to
// zero values and date fields to DateUnknown when no record exists, so a
// missing or unreadable ledger degrades to an empty record instead of an
// error.
type MetricsRecord struct {
	InstallationDate   string      `json:"installation_date"`
	InstallationPath   string      `json:"installation_path,omitempty"`
	Platform           string      `json:"platform,omitempty"`
	Hostname           string      `json:"hostname,omitempty"`
	Sessions           []Session   `json:"sessions"`
	CurrentSession     string      `json:"current_session,omitempty"`
	Usage              UsageTotals `json:"usage_totals"`
	UninstallationDate string      `json:"uninstallation_date,omitempty"`
	UninstallReason    string      `json:"uninstall_reason,omitempty"`
}

// emptyRecord is the degraded-read default.
func emptyRecord() MetricsRecord {
	return MetricsRecord{
		InstallationDate: DateUnknown,
		Sessions:         []Session{},
	}
}
