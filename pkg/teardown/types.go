package teardown

import "github.com/stacklift/stacklift/pkg/ledger"

// Status is the overall outcome of a teardown invocation. Cancellation and
// partial failure are deliberately distinct so operators can tell an
// explicit no-op apart from an incomplete removal.
type Status string

const (
	// StatusCompleted means every attempted step succeeded (skipped and
	// not-present targets included).
	StatusCompleted Status = "completed"

	// StatusPartial means at least one step failed but the protocol ran to
	// the end.
	StatusPartial Status = "partial"

	// StatusCancelled means the operator declined the confirmation token.
	// Nothing was touched.
	StatusCancelled Status = "cancelled"
)

// StepOutcome is the per-target outcome of a teardown step.
type StepOutcome string

const (
	// OutcomeSucceeded means the target was processed.
	OutcomeSucceeded StepOutcome = "succeeded"

	// OutcomeNotPresent means the target did not exist. Not an error: the
	// platform may never have generated it.
	OutcomeNotPresent StepOutcome = "not present"

	// OutcomeSkipped means the operator opted out of the step.
	OutcomeSkipped StepOutcome = "skipped"

	// OutcomeFailed means the target could not be processed. Later targets
	// are still attempted.
	OutcomeFailed StepOutcome = "failed"
)

// StepReport records the outcome of one step against one target.
type StepReport struct {
	// Step names the protocol step (confirm, backup, remove, clean, record).
	Step string `json:"step"`

	// Target is the path or registration the step operated on.
	Target string `json:"target,omitempty"`

	// Outcome is the result.
	Outcome StepOutcome `json:"outcome"`

	// Err is the failure cause when Outcome is failed.
	Err error `json:"-"`
}

// Summary is the final report of a teardown invocation.
type Summary struct {
	// Status is the overall outcome.
	Status Status `json:"status"`

	// Steps lists every per-target outcome in execution order.
	Steps []StepReport `json:"steps"`

	// BackupDir is where the backup was left, empty if none was created.
	BackupDir string `json:"backup_dir,omitempty"`

	// FinalRecord is the metrics record after the uninstall event was
	// appended. Zero when the run was cancelled.
	FinalRecord ledger.MetricsRecord `json:"final_record"`

	// RecordErr is set when the final ledger write failed. This is the
	// only step failure callers may want to escalate, since it means the
	// uninstall left no durable trace.
	RecordErr error `json:"-"`
}

// Failed lists the steps that failed.
func (s *Summary) Failed() []StepReport {
	var out []StepReport
	for _, st := range s.Steps {
		if st.Outcome == OutcomeFailed {
			out = append(out, st)
		}
	}
	return out
}
