package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/LilVoxy/social_metrics/ETL/models"
)

// Metrics are the prometheus collectors updated at the end of every run.
type Metrics struct {
	Runs          *prometheus.CounterVec
	Files         *prometheus.CounterVec
	RowsIngested  prometheus.Counter
	RowsDuplicate prometheus.Counter
	RowsRejected  *prometheus.CounterVec
	FactUpserts   prometheus.Counter
	RunDuration   prometheus.Histogram
	LastSuccess   prometheus.Gauge
}

// NewMetrics registers the pipeline collectors with reg. A nil reg uses a
// private registry, which keeps tests and embedded pipelines independent.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		Runs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "social_metrics_etl_runs_total",
			Help: "Pipeline runs by final status",
		}, []string{"status"}),
		Files: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "social_metrics_etl_files_total",
			Help: "Source files by final stage",
		}, []string{"stage"}),
		RowsIngested: factory.NewCounter(prometheus.CounterOpts{
			Name: "social_metrics_etl_rows_ingested_total",
			Help: "Raw rows newly accepted into bronze",
		}),
		RowsDuplicate: factory.NewCounter(prometheus.CounterOpts{
			Name: "social_metrics_etl_rows_duplicate_total",
			Help: "Raw rows already present in bronze",
		}),
		RowsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "social_metrics_etl_rows_rejected_total",
			Help: "Rows dropped during cleaning by reason",
		}, []string{"reason"}),
		FactUpserts: factory.NewCounter(prometheus.CounterOpts{
			Name: "social_metrics_etl_fact_upserts_total",
			Help: "Fact rows inserted or updated",
		}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "social_metrics_etl_run_duration_seconds",
			Help:    "Wall time of a pipeline run",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		LastSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Name: "social_metrics_etl_last_success_timestamp_seconds",
			Help: "Unix time of the last run that finished with status success",
		}),
	}
}

// Observe folds a finished run into the collectors.
func (m *Metrics) Observe(s *models.RunSummary) {
	m.Runs.WithLabelValues(string(s.Status)).Inc()
	for _, f := range s.Files {
		m.Files.WithLabelValues(string(f.Stage)).Inc()
	}
	m.RowsIngested.Add(float64(s.RowsIngested))
	m.RowsDuplicate.Add(float64(s.RowsDuplicate))
	for reason, n := range s.RowsRejected {
		m.RowsRejected.WithLabelValues(string(reason)).Add(float64(n))
	}
	m.FactUpserts.Add(float64(s.FactUpserts))
	if !s.FinishedAt.IsZero() {
		m.RunDuration.Observe(s.FinishedAt.Sub(s.StartedAt).Seconds())
	}
	if s.Status == models.RunSuccess {
		m.LastSuccess.Set(float64(s.FinishedAt.Unix()))
	}
}
