package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LilVoxy/social_metrics/ETL/config"
	"github.com/LilVoxy/social_metrics/ETL/models"
	"github.com/LilVoxy/social_metrics/ETL/utils"
)

const januaryCSV = "platform,metric,value\n" +
	"Instagram,Followers,\"10,200\"\n" +
	"instagram,Likes,1500\n" +
	"Facebook,Followers,820\n"

const februaryCSV = "platform,metric,value\n" +
	"Instagram,Followers,\"10,900\"\n" +
	"instagram,Likes,1650\n" +
	"Facebook,Followers,0\n"

const marchJSON = `[
	{"platform": "Instagram", "metric": "Followers", "value": 11050},
	{"platform": "instagram", "metric": "likes", "value": "1,720"}
]`

func newTestRunner(t *testing.T, dbPath string, files map[string]string) *ETLRunner {
	t.Helper()

	srcDir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(srcDir, name), []byte(content), 0o644))
	}

	cfg := config.GetConfig()
	cfg.Database = config.DatabaseConfig{Driver: "sqlite3", DBName: dbPath}
	cfg.Source.Dir = srcDir
	cfg.Workers = 2
	require.NoError(t, cfg.Validate())

	runner, err := NewETLRunner(context.Background(), cfg, utils.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(runner.Close)
	return runner
}

func reports() map[string]string {
	return map[string]string{
		"social_2024-01.csv":  januaryCSV,
		"social_2024-02.csv":  februaryCSV,
		"social_2024-03.json": marchJSON,
	}
}

func TestExecuteETL_LoadsSourceDirectoryAndComputesTrends(t *testing.T) {
	// GIVEN three monthly extracts in the source directory
	runner := newTestRunner(t, filepath.Join(t.TempDir(), "warehouse.db"), reports())
	ctx := context.Background()

	// WHEN the ETL runs once
	summary, err := runner.ExecuteETL(ctx)

	// THEN every file is modelled and the zero value is rejected
	require.NoError(t, err)
	assert.Equal(t, models.RunSuccess, summary.Status)
	assert.Equal(t, 3, summary.FilesSucceeded)
	assert.Equal(t, 8, summary.RowsIngested)
	assert.Equal(t, 1, summary.RowsRejected[models.ReasonInvalidValue])
	assert.Equal(t, 7, summary.FactUpserts)

	// AND the run is in the audit log
	last, err := runner.etlLogRepo.GetLastSuccessfulRun(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, summary.RunID, last.RunID)

	// AND trends exist for the series with three monthly points
	trends, err := runner.trends.Process(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, trends)
}

func TestExecuteETL_RerunOnlyCountsDuplicates(t *testing.T) {
	runner := newTestRunner(t, filepath.Join(t.TempDir(), "warehouse.db"), reports())
	ctx := context.Background()

	_, err := runner.ExecuteETL(ctx)
	require.NoError(t, err)

	summary, err := runner.ExecuteETL(ctx)
	require.NoError(t, err)
	assert.Zero(t, summary.RowsIngested)
	assert.Equal(t, 8, summary.RowsDuplicate)
	assert.Equal(t, 7, summary.FactUpserts)
}

func TestExecuteETL_EmptySourceDirectory(t *testing.T) {
	runner := newTestRunner(t, filepath.Join(t.TempDir(), "warehouse.db"), nil)

	summary, err := runner.ExecuteETL(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.RunEmpty, summary.Status)
	assert.NoError(t, runResult(summary, nil))
}

func TestArchive_ExportThenImportIntoFreshWarehouse(t *testing.T) {
	ctx := context.Background()
	archive := filepath.Join(t.TempDir(), "bronze.sz")

	// GIVEN a warehouse loaded from the extracts and exported
	source := newTestRunner(t, filepath.Join(t.TempDir(), "a.db"), reports())
	_, err := source.ExecuteETL(ctx)
	require.NoError(t, err)

	exported, err := source.ExportArchive(ctx, archive)
	require.NoError(t, err)
	assert.Equal(t, 8, exported)

	// WHEN the archive is imported into an empty warehouse and replayed
	target := newTestRunner(t, filepath.Join(t.TempDir(), "b.db"), nil)
	res, err := target.ImportArchive(ctx, archive)
	require.NoError(t, err)
	assert.Equal(t, 8, res.Accepted)

	summary, err := target.Replay(ctx, true)
	require.NoError(t, err)

	// THEN the rebuilt gold layer matches the original
	assert.Equal(t, models.RunSuccess, summary.Status)
	assert.Equal(t, 7, summary.FactUpserts)

	// AND importing again only finds duplicates
	res, err = target.ImportArchive(ctx, archive)
	require.NoError(t, err)
	assert.Zero(t, res.Accepted)
	assert.Equal(t, 8, res.Duplicate)
}

func TestExecuteETL_NullElementsSurviveReplayAndArchive(t *testing.T) {
	ctx := context.Background()
	files := map[string]string{
		"social_2024-01.json":  `[{"platform": "ig", "metric": "followers", "value": "5"}, null]`,
		"social_2024-02.jsonl": "{\"platform\": \"fb\", \"metric\": \"likes\", \"value\": 7}\nnull\n",
	}

	// GIVEN tables with null elements
	runner := newTestRunner(t, filepath.Join(t.TempDir(), "warehouse.db"), files)

	// WHEN the ETL runs
	summary, err := runner.ExecuteETL(ctx)

	// THEN each null is a MissingField rejection
	require.NoError(t, err)
	assert.Equal(t, models.RunSuccess, summary.Status)
	assert.Equal(t, 4, summary.RowsIngested)
	assert.Equal(t, 2, summary.RowsRejected[models.ReasonMissingField])
	assert.Equal(t, 2, summary.FactUpserts)

	// AND replay rebuilds from the same rows
	replayed, err := runner.Replay(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, models.RunSuccess, replayed.Status)
	assert.Equal(t, 2, replayed.RowsRejected[models.ReasonMissingField])
	assert.Equal(t, 2, replayed.FactUpserts)

	// AND the rows round-trip through an archive
	archive := filepath.Join(t.TempDir(), "bronze.sz")
	exported, err := runner.ExportArchive(ctx, archive)
	require.NoError(t, err)
	assert.Equal(t, 4, exported)

	target := newTestRunner(t, filepath.Join(t.TempDir(), "copy.db"), nil)
	res, err := target.ImportArchive(ctx, archive)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Accepted)
}

func TestMonitorRouter_HealthAndMetrics(t *testing.T) {
	runner := newTestRunner(t, filepath.Join(t.TempDir(), "warehouse.db"), reports())
	_, err := runner.ExecuteETL(context.Background())
	require.NoError(t, err)

	srv := httptest.NewServer(runner.monitorRouter())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health healthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health.Status)
	assert.NotEmpty(t, health.LastRun)

	metrics, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer metrics.Body.Close()

	body := new(strings.Builder)
	_, err = io.Copy(body, metrics.Body)
	require.NoError(t, err)
	assert.Contains(t, body.String(), "social_metrics_etl_runs_total")
}

func TestRunResult(t *testing.T) {
	fixedTime := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	failed := models.NewRunSummary("r", fixedTime)
	failed.FilesTotal = 1
	failed.Add(models.FileOutcome{SourceFile: "a.csv", Stage: models.StageFailed})
	failed.Finish(fixedTime, nil)

	assert.Error(t, runResult(failed, nil))
	assert.Error(t, runResult(failed, context.Canceled))
}
