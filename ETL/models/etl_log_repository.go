package models

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/LilVoxy/social_metrics/ETL/store"
)

// SQLETLLogRepository is the ETLLogRepository over the warehouse database.
type SQLETLLogRepository struct {
	db *store.DB
}

// NewSQLETLLogRepository creates a repository; the etl_run_log table is
// created by store.DB.Migrate.
func NewSQLETLLogRepository(db *store.DB) *SQLETLLogRepository {
	return &SQLETLLogRepository{db: db}
}

// CreateLogEntry inserts an in_progress row for runID.
func (r *SQLETLLogRepository) CreateLogEntry(ctx context.Context, runID string, startTime time.Time) error {
	query := r.db.Q(`INSERT INTO etl_run_log (run_id, start_time, status) VALUES (?, ?, ?)`)

	if _, err := r.db.ExecContext(ctx, query, runID, startTime.UTC(), RunLogInProgress); err != nil {
		return fmt.Errorf("failed to create etl run log entry: %w", store.Classify(err))
	}
	return nil
}

// CompleteLogEntry writes the final summary of a run.
func (r *SQLETLLogRepository) CompleteLogEntry(ctx context.Context, summary *RunSummary) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to encode run summary: %w", err)
	}

	var errorMessage sql.NullString
	if summary.Error != "" {
		errorMessage = sql.NullString{String: summary.Error, Valid: true}
	}

	query := r.db.Q(`
	UPDATE etl_run_log
	SET
		end_time = ?,
		status = ?,
		files_processed = ?,
		files_failed = ?,
		rows_ingested = ?,
		rows_duplicate = ?,
		rows_rejected = ?,
		fact_upserts = ?,
		error_message = ?,
		summary_json = ?
	WHERE run_id = ?`)

	res, err := r.db.ExecContext(ctx, query,
		summary.FinishedAt.UTC(),
		string(summary.Status),
		summary.FilesProcessed,
		summary.FilesFailed,
		summary.RowsIngested,
		summary.RowsDuplicate,
		summary.TotalRejected(),
		summary.FactUpserts,
		errorMessage,
		string(payload),
		summary.RunID,
	)
	if err != nil {
		return fmt.Errorf("failed to update etl run log entry: %w", store.Classify(err))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("etl run log entry %s not found", summary.RunID)
	}
	return nil
}

const runLogColumns = `id, run_id, start_time, end_time, status,
		files_processed, files_failed, rows_ingested, rows_duplicate, rows_rejected,
		fact_upserts, error_message`

// GetLastSuccessfulRun returns the most recent successful run or nil.
func (r *SQLETLLogRepository) GetLastSuccessfulRun(ctx context.Context) (*ETLRunLog, error) {
	query := r.db.Q(`SELECT ` + runLogColumns + `
	FROM etl_run_log
	WHERE status = ?
	ORDER BY start_time DESC
	LIMIT 1`)

	log, err := scanRunLog(r.db.QueryRowContext(ctx, query, string(RunSuccess)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load last successful run: %w", store.Classify(err))
	}
	return log, nil
}

// GetRecentRuns returns up to limit runs ordered by start time, newest first.
func (r *SQLETLLogRepository) GetRecentRuns(ctx context.Context, limit int) ([]ETLRunLog, error) {
	if limit <= 0 {
		limit = 20
	}
	query := r.db.Q(`SELECT ` + runLogColumns + `
	FROM etl_run_log
	ORDER BY start_time DESC, id DESC
	LIMIT ?`)

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query etl run log: %w", store.Classify(err))
	}
	defer rows.Close()

	var logs []ETLRunLog
	for rows.Next() {
		log, err := scanRunLog(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan etl run log: %w", err)
		}
		logs = append(logs, *log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate etl run log: %w", store.Classify(err))
	}
	return logs, nil
}

// GetRunSummary decodes the summary stored for runID. It returns nil when the
// run is unknown or still in progress.
func (r *SQLETLLogRepository) GetRunSummary(ctx context.Context, runID string) (*RunSummary, error) {
	var payload sql.NullString
	err := r.db.QueryRowContext(ctx,
		r.db.Q(`SELECT summary_json FROM etl_run_log WHERE run_id = ?`), runID,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run summary: %w", store.Classify(err))
	}
	if !payload.Valid {
		return nil, nil
	}

	var summary RunSummary
	if err := json.Unmarshal([]byte(payload.String), &summary); err != nil {
		return nil, fmt.Errorf("failed to decode run summary: %w", err)
	}
	return &summary, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRunLog(row rowScanner) (*ETLRunLog, error) {
	var (
		log          ETLRunLog
		start, end   any
		errorMessage sql.NullString
	)
	err := row.Scan(
		&log.ID, &log.RunID, &start, &end, &log.Status,
		&log.FilesProcessed, &log.FilesFailed, &log.RowsIngested, &log.RowsDuplicate, &log.RowsRejected,
		&log.FactUpserts, &errorMessage,
	)
	if err != nil {
		return nil, err
	}

	if log.StartTime, err = store.ParseTime(start); err != nil {
		return nil, err
	}
	if log.EndTime, err = store.ParseTime(end); err != nil {
		return nil, err
	}
	log.ErrorMessage = errorMessage.String
	if !log.EndTime.IsZero() {
		log.ExecutionTimeSeconds = log.EndTime.Sub(log.StartTime).Seconds()
	}
	return &log, nil
}
