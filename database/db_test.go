package database_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LilVoxy/social_metrics/ETL/load"
	"github.com/LilVoxy/social_metrics/ETL/models"
	"github.com/LilVoxy/social_metrics/ETL/store"
	"github.com/LilVoxy/social_metrics/ETL/transform"
	"github.com/LilVoxy/social_metrics/ETL/utils"
	"github.com/LilVoxy/social_metrics/database"
)

func month(m time.Month) time.Time {
	return time.Date(2024, m, 1, 0, 0, 0, 0, time.UTC)
}

func seededReader(t *testing.T) *database.Reader {
	t.Helper()

	db, err := store.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	ctx := context.Background()
	require.NoError(t, db.Migrate(ctx))

	var records []models.SilverRecord
	for i, m := range []time.Month{time.January, time.February, time.March} {
		records = append(records,
			models.SilverRecord{Platform: "instagram", MetricName: "followers", Value: float64(1000 + 100*i), ReportDate: month(m)},
			models.SilverRecord{Platform: "facebook", MetricName: "likes", Value: float64(50 + i), ReportDate: month(m)},
		)
	}
	n, err := load.NewLoadManager(db, utils.NewNopLogger()).Load(ctx, records)
	require.NoError(t, err)
	require.Equal(t, 6, n)

	runs := models.NewSQLETLLogRepository(db)
	for i, id := range []string{"run-a", "run-b"} {
		started := month(time.April).Add(time.Duration(i) * time.Hour)
		require.NoError(t, runs.CreateLogEntry(ctx, id, started))

		summary := models.NewRunSummary(id, started)
		summary.FilesTotal = 1
		summary.Add(models.FileOutcome{SourceFile: "x.csv", Stage: models.StageDone, Accepted: 6, FactUpserts: 6})
		summary.Finish(started.Add(time.Minute), nil)
		require.NoError(t, runs.CompleteLogEntry(ctx, summary))
	}

	return database.NewReader(db, transform.CleanerOptions{})
}

func TestReader_Dimensions(t *testing.T) {
	r := seededReader(t)
	ctx := context.Background()

	platforms, err := r.GetPlatforms(ctx)
	require.NoError(t, err)
	require.Len(t, platforms, 2)
	assert.Equal(t, "facebook", platforms[0].Name)
	assert.Equal(t, "instagram", platforms[1].Name)

	metrics, err := r.GetMetrics(ctx)
	require.NoError(t, err)
	assert.Len(t, metrics, 2)
}

func TestReader_GetFacts(t *testing.T) {
	r := seededReader(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		filter database.FactFilter
		want   int
	}{
		{name: "no filter", filter: database.FactFilter{}, want: 6},
		{name: "platform alias", filter: database.FactFilter{Platform: "Insta"}, want: 3},
		{name: "platform and metric", filter: database.FactFilter{Platform: "facebook", Metric: "Likes"}, want: 3},
		{name: "unknown platform", filter: database.FactFilter{Platform: "myspace"}, want: 0},
		{name: "from is inclusive", filter: database.FactFilter{From: month(time.February)}, want: 4},
		{name: "to is inclusive", filter: database.FactFilter{To: month(time.February)}, want: 4},
		{name: "single month", filter: database.FactFilter{From: month(time.March), To: month(time.March)}, want: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			facts, err := r.GetFacts(ctx, tt.filter)
			require.NoError(t, err)
			assert.Len(t, facts, tt.want)
			assert.NotNil(t, facts)
		})
	}
}

func TestReader_GetFactsOrdering(t *testing.T) {
	r := seededReader(t)

	facts, err := r.GetFacts(context.Background(), database.FactFilter{Platform: "instagram"})
	require.NoError(t, err)
	require.Len(t, facts, 3)
	for i, m := range []time.Month{time.January, time.February, time.March} {
		assert.True(t, month(m).Equal(facts[i].ReportDate), "fact %d", i)
		assert.Equal(t, float64(1000+100*i), facts[i].Value)
	}
}

func TestReader_Runs(t *testing.T) {
	r := seededReader(t)
	ctx := context.Background()

	runs, err := r.GetRecentRuns(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-b", runs[0].RunID)
	assert.Equal(t, string(models.RunSuccess), runs[0].Status)

	summary, err := r.GetRunSummary(ctx, "run-a")
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, 6, summary.FactUpserts)

	missing, err := r.GetRunSummary(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestReader_Ping(t *testing.T) {
	r := seededReader(t)
	assert.NoError(t, r.Ping(context.Background()))
}

func TestReader_GetStateMonitor(t *testing.T) {
	r := seededReader(t)

	state, err := r.GetStateMonitor(context.Background(), 10)
	require.NoError(t, err)
	require.NotNil(t, state.LastSuccessfulRun)
	assert.Equal(t, "run-b", state.LastSuccessfulRun.RunID)
	assert.Len(t, state.RecentRuns, 2)
	assert.Equal(t, 2, state.TotalSuccessfulRuns)
	assert.Equal(t, 12, state.TotalFactUpserts)
}
