package utils_test

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/LilVoxy/social_metrics/ETL/models"
	"github.com/LilVoxy/social_metrics/ETL/utils"
)

func TestDefaultLogFileName(t *testing.T) {
	name := utils.DefaultLogFileName(time.Date(2024, 2, 9, 13, 0, 0, 0, time.UTC))
	assert.Equal(t, "etl_log_2024-02-09.log", name)
}

func TestETLLogger_DebugOnlyWhenVerbose(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)

	quiet := utils.NewLoggerFromZap(zap.New(core), false)
	quiet.Debug("hidden %d", 1)
	quiet.LogRejection("a.json", models.ReasonInvalidValue, models.RawFields{"value": "0"})
	assert.Zero(t, logs.Len())

	verbose := utils.NewLoggerFromZap(zap.New(core), true)
	verbose.Debug("shown %d", 2)
	verbose.LogRejection("a.json", models.ReasonInvalidValue, models.RawFields{"value": "0"})
	require.Equal(t, 2, logs.Len())
	assert.Equal(t, "shown 2", logs.All()[0].Message)
	assert.Equal(t, "InvalidValue", logs.All()[1].ContextMap()["reason"])
}

func TestETLLogger_FailedTransitionIsWarning(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := utils.NewLoggerFromZap(zap.New(core), false)

	logger.LogTransition(models.FileTransition{SourceFile: "a.json", From: models.StagePending, To: models.StageIngested})
	logger.LogTransition(models.FileTransition{
		SourceFile: "b.json",
		From:       models.StagePending,
		To:         models.StageFailed,
		Phase:      models.PhaseIngestion,
		Reason:     models.FailureEmptyExtract,
	})

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	assert.Equal(t, "b.json", entry.ContextMap()["source_file"])
}

func TestNewETLLogger_WritesFile(t *testing.T) {
	path := t.TempDir() + "/etl.log"
	logger, err := utils.NewETLLogger(false, path)
	require.NoError(t, err)

	logger.Info("hello %s", "world")
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello world"`)
}

func TestETLLogger_CloseReleasesFileOnce(t *testing.T) {
	path := t.TempDir() + "/etl.log"
	before := openFiles()

	// GIVEN loggers reopened on the same file many times
	for i := 0; i < 50; i++ {
		logger, err := utils.NewETLLogger(false, path)
		require.NoError(t, err)
		logger.Info("run %d", i)

		// THEN each Close succeeds and a second Close is a no-op
		require.NoError(t, logger.Close())
		require.NoError(t, logger.Close())
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"run 49"`)
	if before >= 0 {
		assert.LessOrEqual(t, openFiles(), before)
	}

	assert.NoError(t, utils.NewNopLogger().Close())
}

// openFiles counts this process's open descriptors, or -1 where /proc is
// not available.
func openFiles() int {
	entries, err := os.ReadDir("/proc/self/fd")
	if err != nil {
		return -1
	}
	return len(entries)
}
