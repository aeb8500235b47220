package stores

import "time"

// RunStatus is the lifecycle status of a recorded run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run is one recorded apply run.
type Run struct {
	ID          string     `json:"id"`
	Environment string     `json:"environment"`
	PlanID      string     `json:"plan_id"`
	Status      RunStatus  `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       *string    `json:"error,omitempty"`
}

// EventLevel is the severity of a run event.
type EventLevel string

const (
	EventLevelInfo  EventLevel = "info"
	EventLevelWarn  EventLevel = "warn"
	EventLevelError EventLevel = "error"
)

// Event is a run-scoped log entry persisted for later inspection.
type Event struct {
	ID         int64      `json:"id"`
	RunID      string     `json:"run_id"`
	ResourceID *string    `json:"resource_id,omitempty"`
	Level      EventLevel `json:"level"`
	Message    string     `json:"message"`
	Timestamp  time.Time  `json:"timestamp"`
}
