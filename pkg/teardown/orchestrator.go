package teardown

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/stacklift/stacklift/pkg/ledger"
	"github.com/stacklift/stacklift/pkg/telemetry"
)

// ConfirmToken is the exact affirmative input required before anything is
// removed. Any other input cancels the teardown.
const ConfirmToken = "CONFIRM UNINSTALL"

// ConfirmFunc obtains the operator's confirmation input. It is injected so
// the orchestrator is testable without a terminal.
type ConfirmFunc func(prompt string) (string, error)

// Config carries the paths and policy of a teardown. Everything is explicit
// so the orchestrator never reads ambient global state.
type Config struct {
	// BasePath is the installation root.
	BasePath string

	// PlatformName names the installation in backup directories.
	PlatformName string

	// DataFiles are files under BasePath to back up and remove, such as
	// the state database and the log file.
	DataFiles []string

	// Directories are directories under BasePath to remove.
	Directories []string

	// BackupDirs are directories under BasePath to copy into the backup,
	// typically config and logs.
	BackupDirs []string

	// CacheDirs are ephemeral cache directories under BasePath to remove.
	CacheDirs []string

	// Registrations are absolute paths of external integration artifacts
	// (shell integration snippets, launcher entries) to remove best-effort.
	Registrations []string

	// Reason is recorded in the ledger's uninstall event.
	Reason string
}

// Orchestrator sequences the teardown protocol: confirm, optional backup,
// remove, clean registrations, record. Steps after confirmation are
// best-effort; a failed target never stops later targets, and the summary
// reports every outcome.
type Orchestrator struct {
	cfg     Config
	ledger  *ledger.Ledger
	confirm ConfirmFunc
	log     *telemetry.Logger
	metrics *telemetry.Metrics
}

// New creates an orchestrator.
func New(cfg Config, led *ledger.Ledger, confirm ConfirmFunc, log *telemetry.Logger, metrics *telemetry.Metrics) *Orchestrator {
	if cfg.PlatformName == "" {
		cfg.PlatformName = "stacklift"
	}
	if cfg.Reason == "" {
		cfg.Reason = "operator request"
	}
	if log == nil {
		log = telemetry.NopLogger()
	}
	return &Orchestrator{
		cfg:     cfg,
		ledger:  led,
		confirm: confirm,
		log:     log,
		metrics: metrics,
	}
}

// Run executes the protocol. withBackup selects the optional backup step.
// Run never returns an error: every failure is reported in the summary, and
// only Summary.RecordErr marks the one failure callers may escalate.
func (o *Orchestrator) Run(ctx context.Context, withBackup bool) *Summary {
	summary := &Summary{}

	input, err := o.confirm(fmt.Sprintf("Type '%s' to proceed: ", ConfirmToken))
	if err != nil || input != ConfirmToken {
		o.log.Info("teardown cancelled, nothing removed")
		summary.Status = StatusCancelled
		summary.Steps = append(summary.Steps, StepReport{Step: "confirm", Outcome: OutcomeSkipped})
		o.metrics.RecordTeardownStep("confirm", "cancelled")
		return summary
	}
	o.report(summary, StepReport{Step: "confirm", Outcome: OutcomeSucceeded})

	if ctx.Err() != nil {
		return o.interrupted(summary)
	}

	if withBackup {
		o.runBackup(summary)
	} else {
		o.log.Warn("proceeding without backup")
		o.report(summary, StepReport{Step: "backup", Outcome: OutcomeSkipped})
	}

	// Last point where cancellation can still abort cleanly: the backup is
	// non-destructive, removal is not.
	if ctx.Err() != nil {
		return o.interrupted(summary)
	}

	o.runRemove(summary)
	o.runCleanRegistrations(summary)
	o.runRecord(summary)

	if len(summary.Failed()) == 0 {
		summary.Status = StatusCompleted
	} else {
		summary.Status = StatusPartial
	}
	o.log.Infof("teardown %s: %d steps, %d failed, backup at %q",
		summary.Status, len(summary.Steps), len(summary.Failed()), summary.BackupDir)
	return summary
}

// interrupted finishes a run whose context was cancelled before anything
// was removed. The installation is intact, so this is a cancellation, not a
// partial failure.
func (o *Orchestrator) interrupted(summary *Summary) *Summary {
	o.log.Info("teardown interrupted, nothing removed")
	summary.Status = StatusCancelled
	summary.Steps = append(summary.Steps, StepReport{Step: "remove", Outcome: OutcomeSkipped})
	o.metrics.RecordTeardownStep("remove", "cancelled")
	return summary
}

// runBackup copies the data files and backup directories into a fresh
// timestamped directory next to the installation. Missing sources are
// skipped per item.
func (o *Orchestrator) runBackup(summary *Summary) {
	name := fmt.Sprintf("%s-backup-%s", o.cfg.PlatformName, time.Now().Format("20060102-150405"))
	dir := filepath.Join(filepath.Dir(o.cfg.BasePath), name)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		o.report(summary, StepReport{Step: "backup", Target: dir, Outcome: OutcomeFailed, Err: err})
		return
	}
	summary.BackupDir = dir

	for _, rel := range o.cfg.DataFiles {
		src := filepath.Join(o.cfg.BasePath, rel)
		o.report(summary, backupOne(src, filepath.Join(dir, rel), copyFile))
	}
	for _, rel := range o.cfg.BackupDirs {
		src := filepath.Join(o.cfg.BasePath, rel)
		o.report(summary, backupOne(src, filepath.Join(dir, rel), copyDir))
	}
}

func backupOne(src, dst string, cp func(src, dst string) error) StepReport {
	report := StepReport{Step: "backup", Target: src}
	if _, err := os.Stat(src); os.IsNotExist(err) {
		report.Outcome = OutcomeNotPresent
		return report
	}
	if err := cp(src, dst); err != nil {
		report.Outcome = OutcomeFailed
		report.Err = err
		return report
	}
	report.Outcome = OutcomeSucceeded
	return report
}

// runRemove deletes the enumerated installation artifacts. A missing target
// is not an error and a failed target never stops the remaining ones.
func (o *Orchestrator) runRemove(summary *Summary) {
	var targets []string
	for _, rel := range o.cfg.Directories {
		targets = append(targets, filepath.Join(o.cfg.BasePath, rel))
	}
	for _, rel := range o.cfg.DataFiles {
		targets = append(targets, filepath.Join(o.cfg.BasePath, rel))
	}
	for _, rel := range o.cfg.CacheDirs {
		targets = append(targets, filepath.Join(o.cfg.BasePath, rel))
	}

	for _, target := range targets {
		o.report(summary, removeOne("remove", target))
	}
}

// runCleanRegistrations removes external integration artifacts best-effort.
func (o *Orchestrator) runCleanRegistrations(summary *Summary) {
	for _, target := range o.cfg.Registrations {
		o.report(summary, removeOne("clean", target))
	}
}

func removeOne(step, target string) StepReport {
	report := StepReport{Step: step, Target: target}
	if _, err := os.Lstat(target); os.IsNotExist(err) {
		report.Outcome = OutcomeNotPresent
		return report
	}
	if err := os.RemoveAll(target); err != nil {
		report.Outcome = OutcomeFailed
		report.Err = err
		return report
	}
	report.Outcome = OutcomeSucceeded
	return report
}

// runRecord appends the uninstall event and preserves the final ledger in
// the backup, if one was created.
func (o *Orchestrator) runRecord(summary *Summary) {
	final, err := o.ledger.AppendUninstallEvent(o.cfg.Reason)
	if err != nil {
		summary.RecordErr = err
		o.report(summary, StepReport{Step: "record", Target: o.ledger.Path(), Outcome: OutcomeFailed, Err: err})
		return
	}
	summary.FinalRecord = final
	o.report(summary, StepReport{Step: "record", Target: o.ledger.Path(), Outcome: OutcomeSucceeded})

	if summary.BackupDir == "" {
		return
	}
	dst := filepath.Join(summary.BackupDir, filepath.Base(o.ledger.Path()))
	o.report(summary, backupOne(o.ledger.Path(), dst, copyFile))
}

func (o *Orchestrator) report(summary *Summary, report StepReport) {
	summary.Steps = append(summary.Steps, report)
	o.metrics.RecordTeardownStep(report.Step, string(report.Outcome))
	log := o.log.WithField("target", report.Target)
	switch report.Outcome {
	case OutcomeFailed:
		log.WithError(report.Err).Errorf("%s failed", report.Step)
	case OutcomeNotPresent:
		log.Debugf("%s target not present", report.Step)
	default:
		log.Debugf("%s %s", report.Step, report.Outcome)
	}
}
