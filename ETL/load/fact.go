package load

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/LilVoxy/social_metrics/ETL/models"
	"github.com/LilVoxy/social_metrics/ETL/store"
	"github.com/LilVoxy/social_metrics/ETL/utils"
)

// FactBuilder upserts fact_social_metrics rows keyed on
// (platform_id, metric_id, report_date). A repeated key overwrites the value.
type FactBuilder struct {
	db     *store.DB
	logger *utils.ETLLogger
	now    func() time.Time

	upsertQuery string
}

func NewFactBuilder(db *store.DB, logger *utils.ETLLogger) *FactBuilder {
	return &FactBuilder{
		db:     db,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		upsertQuery: db.Dialect.Upsert("fact_social_metrics",
			[]string{"platform_id", "metric_id", "report_date", "value", "updated_at"},
			[]string{"platform_id", "metric_id", "report_date"},
			[]string{"value", "updated_at"},
		),
	}
}

// Upsert writes a single fact in one atomic statement.
func (b *FactBuilder) Upsert(ctx context.Context, platformID, metricID int64, reportDate time.Time, value float64) error {
	_, err := b.db.ExecContext(ctx, b.upsertQuery,
		platformID, metricID, store.DateValue(reportDate), value, b.now())
	return b.classify(err)
}

// UpsertBatch writes the facts of one file in a single transaction and
// returns the number of upserts. Either all facts are written or none.
func (b *FactBuilder) UpsertBatch(ctx context.Context, facts []models.FactRow) (int, error) {
	if len(facts) == 0 {
		return 0, nil
	}

	startTime := time.Now()
	now := b.now()
	processed := 0

	err := b.db.WithTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, b.upsertQuery)
		if err != nil {
			return fmt.Errorf("failed to prepare fact upsert: %w", err)
		}
		defer stmt.Close()

		for _, f := range facts {
			if _, err := stmt.ExecContext(ctx, f.PlatformID, f.MetricID, store.DateValue(f.ReportDate), f.Value, now); err != nil {
				return b.classify(err)
			}
			processed++
		}
		return nil
	})
	if err != nil {
		return 0, b.classify(err)
	}

	b.logger.Debug("Upserted %d facts in %v", processed, time.Since(startTime))
	return processed, nil
}

// Truncate removes every fact row. Dimensions are kept so surrogate ids stay
// stable across a replay.
func (b *FactBuilder) Truncate(ctx context.Context) error {
	if _, err := b.db.ExecContext(ctx, "DELETE FROM fact_social_metrics"); err != nil {
		return fmt.Errorf("%w: truncate facts: %w", models.ErrFactStore, store.Classify(err))
	}
	b.logger.Info("Fact table truncated")
	return nil
}

// Count returns the number of fact rows.
func (b *FactBuilder) Count(ctx context.Context) (int, error) {
	var n int
	if err := b.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM fact_social_metrics").Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: %w", models.ErrFactStore, store.Classify(err))
	}
	return n, nil
}

// classify maps a driver error onto the fact sentinels. Errors already
// classified pass through unchanged.
func (b *FactBuilder) classify(err error) error {
	switch {
	case err == nil:
		return nil
	case isClassified(err):
		return err
	case store.IsForeignKeyViolation(err):
		return fmt.Errorf("%w: %w", models.ErrConstraintViolation, err)
	default:
		return fmt.Errorf("%w: %w", models.ErrFactStore, store.Classify(err))
	}
}

func isClassified(err error) bool {
	return errors.Is(err, models.ErrConstraintViolation) ||
		errors.Is(err, models.ErrFactStore) ||
		errors.Is(err, models.ErrDimensionStore)
}
