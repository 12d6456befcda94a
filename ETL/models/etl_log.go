package models

import (
	"context"
	"time"
)

// RunLogInProgress is the etl_run_log status of a run that has not finished.
const RunLogInProgress = "in_progress"

// ETLRunLog is one row of the etl_run_log audit table.
type ETLRunLog struct {
	ID                   int64     `json:"id"`
	RunID                string    `json:"run_id"`
	StartTime            time.Time `json:"start_time"`
	EndTime              time.Time `json:"end_time,omitempty"`
	Status               string    `json:"status"`
	FilesProcessed       int       `json:"files_processed"`
	FilesFailed          int       `json:"files_failed"`
	RowsIngested         int       `json:"rows_ingested"`
	RowsDuplicate        int       `json:"rows_duplicate"`
	RowsRejected         int       `json:"rows_rejected"`
	FactUpserts          int       `json:"fact_upserts"`
	ErrorMessage         string    `json:"error_message,omitempty"`
	ExecutionTimeSeconds float64   `json:"execution_time_seconds"`
}

// ETLLogRepository persists run audit entries.
type ETLLogRepository interface {
	// CreateLogEntry records the start of a run.
	CreateLogEntry(ctx context.Context, runID string, startTime time.Time) error

	// CompleteLogEntry stores the final counts and status of a run.
	CompleteLogEntry(ctx context.Context, summary *RunSummary) error

	// GetLastSuccessfulRun returns nil when no run has succeeded yet.
	GetLastSuccessfulRun(ctx context.Context) (*ETLRunLog, error)

	// GetRecentRuns returns up to limit runs, newest first.
	GetRecentRuns(ctx context.Context, limit int) ([]ETLRunLog, error)

	// GetRunSummary returns the stored summary of a run, or nil.
	GetRunSummary(ctx context.Context, runID string) (*RunSummary, error)
}

// ETLStateMonitor aggregates the audit log for the monitoring API.
type ETLStateMonitor struct {
	LastSuccessfulRun       *ETLRunLog  `json:"last_successful_run"`
	RecentRuns              []ETLRunLog `json:"recent_runs"`
	TotalSuccessfulRuns     int         `json:"total_successful_runs"`
	TotalFailedRuns         int         `json:"total_failed_runs"`
	AvgExecutionTimeSeconds float64     `json:"avg_execution_time_seconds"`
	TotalFactUpserts        int         `json:"total_fact_upserts"`
}

// NewETLStateMonitor folds recent runs into a monitor view.
func NewETLStateMonitor(last *ETLRunLog, recent []ETLRunLog) ETLStateMonitor {
	m := ETLStateMonitor{LastSuccessfulRun: last, RecentRuns: recent}
	if m.RecentRuns == nil {
		m.RecentRuns = []ETLRunLog{}
	}

	var total float64
	finished := 0
	for _, r := range recent {
		switch RunStatus(r.Status) {
		case RunSuccess, RunEmpty:
			m.TotalSuccessfulRuns++
		case RunFailed, RunPartial:
			m.TotalFailedRuns++
		}
		if r.Status != RunLogInProgress {
			total += r.ExecutionTimeSeconds
			finished++
		}
		m.TotalFactUpserts += r.FactUpserts
	}
	if finished > 0 {
		m.AvgExecutionTimeSeconds = total / float64(finished)
	}
	return m
}
