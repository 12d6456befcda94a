package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/LilVoxy/social_metrics/ETL/models"
	"github.com/LilVoxy/social_metrics/ETL/store"
)

// FactFilter narrows GetFacts. Zero fields do not filter. From and To are
// month starts and both are inclusive.
type FactFilter struct {
	Platform string
	Metric   string
	From     time.Time
	To       time.Time
}

// GetFacts returns facts joined with their dimension names, ordered by
// platform, metric and date.
func (r *Reader) GetFacts(ctx context.Context, filter FactFilter) ([]models.FactView, error) {
	var (
		where []string
		args  []any
	)
	if filter.Platform != "" {
		where = append(where, "p.platform_name = ?")
		args = append(args, r.platforms.Resolve(filter.Platform))
	}
	if filter.Metric != "" {
		where = append(where, "m.metric_name = ?")
		args = append(args, r.metrics.Resolve(filter.Metric))
	}
	if !filter.From.IsZero() {
		where = append(where, "f.report_date >= ?")
		args = append(args, store.DateValue(filter.From))
	}
	if !filter.To.IsZero() {
		where = append(where, "f.report_date < ?")
		args = append(args, store.DateValue(filter.To.AddDate(0, 1, 0)))
	}

	query := `
		SELECT p.platform_name, m.metric_name, f.report_date, f.value
		FROM fact_social_metrics f
		JOIN dim_platform p ON p.platform_id = f.platform_id
		JOIN dim_metric m ON m.metric_id = f.metric_id`
	if len(where) > 0 {
		query += "\n\t\tWHERE " + strings.Join(where, " AND ")
	}
	query += "\n\t\tORDER BY p.platform_name, m.metric_name, f.report_date"

	rows, err := r.db.QueryContext(ctx, r.db.Q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query facts: %w", store.Classify(err))
	}
	defer rows.Close()

	facts := []models.FactView{}
	for rows.Next() {
		var (
			f    models.FactView
			date any
		)
		if err := rows.Scan(&f.Platform, &f.Metric, &date, &f.Value); err != nil {
			return nil, fmt.Errorf("failed to scan fact: %w", err)
		}
		if f.ReportDate, err = store.ParseTime(date); err != nil {
			return nil, err
		}
		facts = append(facts, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query facts: %w", store.Classify(err))
	}
	return facts, nil
}
