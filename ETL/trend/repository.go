package trend

import (
	"context"
	"fmt"

	"github.com/LilVoxy/social_metrics/ETL/models"
	"github.com/LilVoxy/social_metrics/ETL/store"
)

// SeriesKey identifies one platform/metric series.
type SeriesKey struct {
	PlatformID int64
	MetricID   int64
}

// Repository reads fact series and stores fitted trends.
type Repository struct {
	db          *store.DB
	upsertQuery string
}

func NewRepository(db *store.DB) *Repository {
	return &Repository{
		db: db,
		upsertQuery: db.Dialect.Upsert("metric_trend",
			[]string{"platform_id", "metric_id", "slope", "intercept", "r2", "points", "period_start", "period_end", "computed_at"},
			[]string{"platform_id", "metric_id"},
			[]string{"slope", "intercept", "r2", "points", "period_start", "period_end", "computed_at"},
		),
	}
}

// Series returns every monthly fact series ordered by date, and the keys in
// a stable order.
func (r *Repository) Series(ctx context.Context) ([]SeriesKey, map[SeriesKey][]DataPoint, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT platform_id, metric_id, report_date, value
		FROM fact_social_metrics
		ORDER BY platform_id, metric_id, report_date`)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read fact series: %w", store.Classify(err))
	}
	defer rows.Close()

	var keys []SeriesKey
	series := make(map[SeriesKey][]DataPoint)
	for rows.Next() {
		var (
			key  SeriesKey
			date any
			p    DataPoint
		)
		if err := rows.Scan(&key.PlatformID, &key.MetricID, &date, &p.Y); err != nil {
			return nil, nil, fmt.Errorf("failed to scan fact series: %w", err)
		}
		if p.Date, err = store.ParseTime(date); err != nil {
			return nil, nil, err
		}
		if _, ok := series[key]; !ok {
			keys = append(keys, key)
		}
		series[key] = append(series[key], p)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to read fact series: %w", store.Classify(err))
	}
	return keys, series, nil
}

// Save upserts the trend of one series.
func (r *Repository) Save(ctx context.Context, t models.MetricTrend) error {
	_, err := r.db.ExecContext(ctx, r.upsertQuery,
		t.PlatformID, t.MetricID, t.Slope, t.Intercept, t.R2, t.Points,
		store.DateValue(t.PeriodStart), store.DateValue(t.PeriodEnd), t.ComputedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save trend %d/%d: %w", t.PlatformID, t.MetricID, store.Classify(err))
	}
	return nil
}

// List returns stored trends with their dimension names.
func (r *Repository) List(ctx context.Context) ([]models.MetricTrend, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT t.platform_id, t.metric_id, p.platform_name, m.metric_name,
			t.slope, t.intercept, t.r2, t.points, t.period_start, t.period_end, t.computed_at
		FROM metric_trend t
		JOIN dim_platform p ON p.platform_id = t.platform_id
		JOIN dim_metric m ON m.metric_id = t.metric_id
		ORDER BY p.platform_name, m.metric_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list trends: %w", store.Classify(err))
	}
	defer rows.Close()

	var trends []models.MetricTrend
	for rows.Next() {
		var (
			t                      models.MetricTrend
			start, end, computedAt any
		)
		if err := rows.Scan(&t.PlatformID, &t.MetricID, &t.Platform, &t.Metric,
			&t.Slope, &t.Intercept, &t.R2, &t.Points, &start, &end, &computedAt); err != nil {
			return nil, fmt.Errorf("failed to scan trend: %w", err)
		}
		if t.PeriodStart, err = store.ParseTime(start); err != nil {
			return nil, err
		}
		if t.PeriodEnd, err = store.ParseTime(end); err != nil {
			return nil, err
		}
		if t.ComputedAt, err = store.ParseTime(computedAt); err != nil {
			return nil, err
		}
		trends = append(trends, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list trends: %w", store.Classify(err))
	}
	return trends, nil
}
