// Package database is the read side of the warehouse used by the serving API.
// It never writes: dimensions, facts, trends and the run log are owned by
// the ETL process.
package database

import (
	"context"
	"fmt"

	"github.com/LilVoxy/social_metrics/ETL/load"
	"github.com/LilVoxy/social_metrics/ETL/models"
	"github.com/LilVoxy/social_metrics/ETL/store"
	"github.com/LilVoxy/social_metrics/ETL/transform"
	"github.com/LilVoxy/social_metrics/ETL/trend"
	"github.com/LilVoxy/social_metrics/ETL/utils"
)

// Reader answers the serving API's queries.
type Reader struct {
	db         *store.DB
	dimensions *load.DimensionResolver
	runs       models.ETLLogRepository
	trends     *trend.Repository
	platforms  transform.AliasTable
	metrics    transform.AliasTable
}

// NewReader builds a Reader over db. Filter names are resolved through the
// same alias tables the cleaner uses, so ?platform=insta finds instagram.
func NewReader(db *store.DB, aliases transform.CleanerOptions) *Reader {
	return &Reader{
		db:         db,
		dimensions: load.NewDimensionResolver(db, utils.NewNopLogger()),
		runs:       models.NewSQLETLLogRepository(db),
		trends:     trend.NewRepository(db),
		platforms:  transform.NewAliasTable(transform.DefaultPlatformAliases(), aliases.PlatformAliases),
		metrics:    transform.NewAliasTable(transform.DefaultMetricAliases(), aliases.MetricAliases),
	}
}

// Ping verifies the warehouse is reachable.
func (r *Reader) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("warehouse ping failed: %w", store.Classify(err))
	}
	return nil
}

// GetPlatforms lists dim_platform ordered by name.
func (r *Reader) GetPlatforms(ctx context.Context) ([]models.Dimension, error) {
	return r.dimensions.List(ctx, models.DimensionPlatform)
}

// GetMetrics lists dim_metric ordered by name.
func (r *Reader) GetMetrics(ctx context.Context) ([]models.Dimension, error) {
	return r.dimensions.List(ctx, models.DimensionMetric)
}

// GetRecentRuns returns the newest run log entries first.
func (r *Reader) GetRecentRuns(ctx context.Context, limit int) ([]models.ETLRunLog, error) {
	return r.runs.GetRecentRuns(ctx, limit)
}

// GetRunSummary returns the stored summary of one run, or nil if unknown.
func (r *Reader) GetRunSummary(ctx context.Context, runID string) (*models.RunSummary, error) {
	return r.runs.GetRunSummary(ctx, runID)
}

// GetTrends returns every stored metric trend.
func (r *Reader) GetTrends(ctx context.Context) ([]models.MetricTrend, error) {
	return r.trends.List(ctx)
}

// GetStateMonitor aggregates the last successful run and the recent runs.
func (r *Reader) GetStateMonitor(ctx context.Context, limit int) (models.ETLStateMonitor, error) {
	last, err := r.runs.GetLastSuccessfulRun(ctx)
	if err != nil {
		return models.ETLStateMonitor{}, err
	}
	recent, err := r.runs.GetRecentRuns(ctx, limit)
	if err != nil {
		return models.ETLStateMonitor{}, err
	}
	return models.NewETLStateMonitor(last, recent), nil
}
