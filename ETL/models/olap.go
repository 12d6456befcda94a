package models

import "time"

// DimensionKind selects a dimension table.
type DimensionKind int

const (
	DimensionPlatform DimensionKind = iota
	DimensionMetric
)

func (k DimensionKind) String() string {
	switch k {
	case DimensionPlatform:
		return "platform"
	case DimensionMetric:
		return "metric"
	default:
		return "unknown"
	}
}

// Dimension is a row of dim_platform or dim_metric.
type Dimension struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// FactRow is a row of fact_social_metrics.
type FactRow struct {
	PlatformID int64     `json:"platform_id"`
	MetricID   int64     `json:"metric_id"`
	ReportDate time.Time `json:"report_date"`
	Value      float64   `json:"value"`
}

// FactView is a fact row joined with its dimension names.
type FactView struct {
	Platform   string    `json:"platform"`
	Metric     string    `json:"metric"`
	ReportDate time.Time `json:"report_date"`
	Value      float64   `json:"value"`
}

// MetricTrend is the least-squares trend of one platform/metric series,
// with X counted in months from PeriodStart.
type MetricTrend struct {
	PlatformID  int64     `json:"platform_id"`
	MetricID    int64     `json:"metric_id"`
	Platform    string    `json:"platform,omitempty"`
	Metric      string    `json:"metric,omitempty"`
	Slope       float64   `json:"slope"`
	Intercept   float64   `json:"intercept"`
	R2          float64   `json:"r2"`
	Points      int       `json:"points"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	ComputedAt  time.Time `json:"computed_at"`
}
