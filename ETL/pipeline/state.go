package pipeline

import (
	"fmt"
	"time"

	"github.com/LilVoxy/social_metrics/ETL/models"
)

// Observer receives every file state transition. Files run concurrently, so
// implementations must be safe for concurrent use.
type Observer interface {
	OnTransition(models.FileTransition)
}

// RunObserver is optionally implemented by observers that also want the
// summary of each finished run.
type RunObserver interface {
	OnRunComplete(*models.RunSummary)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(models.FileTransition)

func (f ObserverFunc) OnTransition(t models.FileTransition) { f(t) }

func isAllowedTransition(from, to models.Stage) bool {
	if to == models.StageFailed {
		return !from.IsTerminal()
	}
	switch from {
	case models.StagePending:
		return to == models.StageIngested
	case models.StageIngested:
		return to == models.StageCleaned
	case models.StageCleaned:
		return to == models.StageModelled
	case models.StageModelled:
		return to == models.StageDone
	default:
		return false
	}
}

// fileRun tracks one file through the stages and publishes each transition.
type fileRun struct {
	runID   string
	outcome models.FileOutcome
	notify  func(models.FileTransition)
	now     func() time.Time
}

func newFileRun(runID, sourceFile string, notify func(models.FileTransition), now func() time.Time) *fileRun {
	return &fileRun{
		runID: runID,
		outcome: models.FileOutcome{
			SourceFile: sourceFile,
			Stage:      models.StagePending,
			Rejected:   make(map[models.RejectionReason]int),
		},
		notify: notify,
		now:    now,
	}
}

func (f *fileRun) advance(to models.Stage) error {
	return f.transition(models.FileTransition{To: to})
}

// fail moves the file to Failed and returns the matching StageError.
func (f *fileRun) fail(phase models.Phase, err error) *models.StageError {
	stageErr := &models.StageError{
		SourceFile: f.outcome.SourceFile,
		Phase:      phase,
		Reason:     models.ReasonFor(err),
		Err:        err,
	}
	f.outcome.FailedPhase = phase
	f.outcome.Reason = stageErr.Reason
	f.outcome.Error = err.Error()

	// Failed is reachable from every non-terminal stage
	_ = f.transition(models.FileTransition{
		To:     models.StageFailed,
		Phase:  phase,
		Reason: stageErr.Reason,
		Error:  err.Error(),
	})
	return stageErr
}

func (f *fileRun) transition(t models.FileTransition) error {
	from := f.outcome.Stage
	if !isAllowedTransition(from, t.To) {
		return fmt.Errorf("disallowed transition for %q: %s -> %s", f.outcome.SourceFile, from, t.To)
	}
	f.outcome.Stage = t.To

	t.RunID = f.runID
	t.SourceFile = f.outcome.SourceFile
	t.From = from
	t.At = f.now()
	if f.notify != nil {
		f.notify(t)
	}
	return nil
}
