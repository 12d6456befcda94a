package models

import (
	"sort"
	"time"
)

// Stage is the lifecycle state of one source file within a run.
type Stage string

const (
	StagePending  Stage = "Pending"
	StageIngested Stage = "Ingested"
	StageCleaned  Stage = "Cleaned"
	StageModelled Stage = "Modelled"
	StageDone     Stage = "Done"
	StageFailed   Stage = "Failed"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s Stage) IsTerminal() bool {
	return s == StageDone || s == StageFailed
}

// FileTransition is published every time a file changes stage.
type FileTransition struct {
	RunID      string        `json:"run_id"`
	SourceFile string        `json:"source_file"`
	From       Stage         `json:"from"`
	To         Stage         `json:"to"`
	Phase      Phase         `json:"phase,omitempty"`
	Reason     FailureReason `json:"reason,omitempty"`
	Error      string        `json:"error,omitempty"`
	At         time.Time     `json:"at"`
}

// FileOutcome is the per-file part of a run summary.
type FileOutcome struct {
	SourceFile  string                  `json:"source_file"`
	Stage       Stage                   `json:"stage"`
	FailedPhase Phase                   `json:"failed_phase,omitempty"`
	Reason      FailureReason           `json:"reason,omitempty"`
	Error       string                  `json:"error,omitempty"`
	Extracted   int                     `json:"extracted"`
	Accepted    int                     `json:"accepted"`
	Duplicate   int                     `json:"duplicate"`
	Cleaned     int                     `json:"cleaned"`
	Rejected    map[RejectionReason]int `json:"rejected,omitempty"`
	FactUpserts int                     `json:"fact_upserts"`
}

// RunStatus summarizes how a run ended.
type RunStatus string

const (
	RunSuccess RunStatus = "success"
	// RunPartial: at least one file was modelled and at least one failed.
	RunPartial RunStatus = "partial"
	// RunFailed: no file was modelled, or the run aborted.
	RunFailed RunStatus = "failed"
	// RunEmpty: there were no source documents.
	RunEmpty RunStatus = "empty"
)

// RunSummary aggregates the counts of one pipeline run. It is the run's
// observable output besides the database changes.
type RunSummary struct {
	RunID          string                  `json:"run_id"`
	StartedAt      time.Time               `json:"started_at"`
	FinishedAt     time.Time               `json:"finished_at"`
	Status         RunStatus               `json:"status"`
	FilesTotal     int                     `json:"files_total"`
	FilesProcessed int                     `json:"files_processed"`
	FilesSucceeded int                     `json:"files_succeeded"`
	FilesFailed    int                     `json:"files_failed"`
	RowsExtracted  int                     `json:"rows_extracted"`
	RowsIngested   int                     `json:"rows_ingested"`
	RowsDuplicate  int                     `json:"rows_duplicate"`
	RowsCleaned    int                     `json:"rows_cleaned"`
	RowsRejected   map[RejectionReason]int `json:"rows_rejected"`
	FactUpserts    int                     `json:"fact_upserts"`
	Error          string                  `json:"error,omitempty"`
	Files          []FileOutcome           `json:"files"`
}

// NewRunSummary returns an empty summary with every rejection reason
// present at zero.
func NewRunSummary(runID string, startedAt time.Time) *RunSummary {
	rejected := make(map[RejectionReason]int, len(RejectionReasons))
	for _, r := range RejectionReasons {
		rejected[r] = 0
	}
	return &RunSummary{
		RunID:        runID,
		StartedAt:    startedAt,
		RowsRejected: rejected,
	}
}

// Add folds one file outcome into the totals.
func (s *RunSummary) Add(f FileOutcome) {
	s.Files = append(s.Files, f)
	if f.Stage != StagePending {
		s.FilesProcessed++
	}
	switch f.Stage {
	case StageDone:
		s.FilesSucceeded++
	case StageFailed:
		s.FilesFailed++
	}
	s.RowsExtracted += f.Extracted
	s.RowsIngested += f.Accepted
	s.RowsDuplicate += f.Duplicate
	s.RowsCleaned += f.Cleaned
	s.FactUpserts += f.FactUpserts
	for reason, n := range f.Rejected {
		s.RowsRejected[reason] += n
	}
}

// TotalRejected is the sum of rejections over all reasons.
func (s *RunSummary) TotalRejected() int {
	total := 0
	for _, n := range s.RowsRejected {
		total += n
	}
	return total
}

// Finish stamps the end time, orders per-file outcomes and derives Status.
func (s *RunSummary) Finish(at time.Time, runErr error) {
	s.FinishedAt = at
	sort.Slice(s.Files, func(i, j int) bool {
		return s.Files[i].SourceFile < s.Files[j].SourceFile
	})

	switch {
	case runErr != nil:
		s.Error = runErr.Error()
		s.Status = RunFailed
	case s.FilesTotal == 0:
		s.Status = RunEmpty
	case s.FilesSucceeded == 0:
		s.Status = RunFailed
	case s.FilesSucceeded < s.FilesTotal:
		s.Status = RunPartial
	default:
		s.Status = RunSuccess
	}
}
