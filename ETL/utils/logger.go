package utils

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/LilVoxy/social_metrics/ETL/models"
)

// ETLLogger is the logger shared by the ETL runner and its packages.
// Messages go to stderr and, when a log file is configured, to that file as
// JSON lines.
type ETLLogger struct {
	sugar     *zap.SugaredLogger
	isVerbose bool
	file      *os.File
}

// DefaultLogFileName returns the daily log file name etl_log_YYYY-MM-DD.log.
func DefaultLogFileName(now time.Time) string {
	return fmt.Sprintf("etl_log_%s.log", now.Format("2006-01-02"))
}

// NewETLLogger creates a logger. Debug messages are written only when
// verbose is set. An empty logFile disables file output.
func NewETLLogger(verbose bool, logFile string) (*ETLLogger, error) {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if verbose {
		level.SetLevel(zapcore.DebugLevel)
	}

	consoleCfg := zap.NewDevelopmentEncoderConfig()
	consoleCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	var file *os.File
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleCfg), zapcore.Lock(os.Stderr), level),
	}

	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", logFile, err)
		}
		file = f
		fileCfg := zap.NewProductionEncoderConfig()
		fileCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileCfg), zapcore.AddSync(file), level))
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1))
	return &ETLLogger{sugar: logger.Sugar(), isVerbose: verbose, file: file}, nil
}

// NewNopLogger returns a logger that discards everything.
func NewNopLogger() *ETLLogger {
	return &ETLLogger{sugar: zap.NewNop().Sugar()}
}

// NewLoggerFromZap wraps an existing zap logger, e.g. one built with
// zaptest or an observer core.
func NewLoggerFromZap(logger *zap.Logger, verbose bool) *ETLLogger {
	return &ETLLogger{sugar: logger.WithOptions(zap.AddCallerSkip(1)).Sugar(), isVerbose: verbose}
}

// With returns a child logger carrying the given key/value pairs.
func (l *ETLLogger) With(keysAndValues ...interface{}) *ETLLogger {
	return &ETLLogger{sugar: l.sugar.With(keysAndValues...), isVerbose: l.isVerbose}
}

// Zap exposes the underlying structured logger.
func (l *ETLLogger) Zap() *zap.Logger {
	return l.sugar.Desugar().WithOptions(zap.AddCallerSkip(-1))
}

// Sync flushes buffered entries.
func (l *ETLLogger) Sync() error {
	return l.sugar.Sync()
}

// Close flushes the logger and closes its log file. Loggers derived with
// With share the file and must not be used after the root is closed.
// Sync errors are ignored because stderr is often a terminal.
func (l *ETLLogger) Close() error {
	_ = l.sugar.Sync()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	if err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}
	return nil
}

func (l *ETLLogger) Info(format string, v ...interface{}) {
	l.sugar.Infof(format, v...)
}

func (l *ETLLogger) Warn(format string, v ...interface{}) {
	l.sugar.Warnf(format, v...)
}

func (l *ETLLogger) Error(format string, v ...interface{}) {
	l.sugar.Errorf(format, v...)
}

// Debug is a no-op unless the logger was created verbose.
func (l *ETLLogger) Debug(format string, v ...interface{}) {
	if !l.isVerbose {
		return
	}
	l.sugar.Debugf(format, v...)
}

func (l *ETLLogger) LogETLStart(runID string, files int) {
	l.sugar.Infow("ETL run started", "run_id", runID, "files", files)
}

// LogETLComplete logs the outcome of a run with its headline counts.
func (l *ETLLogger) LogETLComplete(summary *models.RunSummary) {
	l.sugar.Infow("ETL run finished",
		"run_id", summary.RunID,
		"status", summary.Status,
		"duration", summary.FinishedAt.Sub(summary.StartedAt),
		"files_succeeded", summary.FilesSucceeded,
		"files_failed", summary.FilesFailed,
		"rows_ingested", summary.RowsIngested,
		"rows_duplicate", summary.RowsDuplicate,
		"rows_rejected", summary.TotalRejected(),
		"fact_upserts", summary.FactUpserts,
	)
}

func (l *ETLLogger) LogExtractStart(sourceFile string) {
	l.Debug("Extracting %s", sourceFile)
}

func (l *ETLLogger) LogExtractComplete(sourceFile string, rows int, duration time.Duration) {
	l.Debug("Extracted %d rows from %s in %v", rows, sourceFile, duration)
}

func (l *ETLLogger) LogRejection(sourceFile string, reason models.RejectionReason, raw models.RawFields) {
	if !l.isVerbose {
		return
	}
	l.sugar.Debugw("row rejected", "source_file", sourceFile, "reason", string(reason), "raw", raw)
}

func (l *ETLLogger) LogTransition(t models.FileTransition) {
	if t.To == models.StageFailed {
		l.sugar.Warnw("file failed",
			"source_file", t.SourceFile, "phase", t.Phase, "reason", t.Reason, "error", t.Error)
		return
	}
	if l.isVerbose {
		l.sugar.Debugw("file transition", "source_file", t.SourceFile, "from", t.From, "to", t.To)
	}
}
