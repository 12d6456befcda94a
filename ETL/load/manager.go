package load

import (
	"context"
	"time"

	"github.com/LilVoxy/social_metrics/ETL/models"
	"github.com/LilVoxy/social_metrics/ETL/store"
	"github.com/LilVoxy/social_metrics/ETL/utils"
)

// LoadManager models silver records into the star schema.
type LoadManager struct {
	logger     *utils.ETLLogger
	dimensions *DimensionResolver
	facts      *FactBuilder
}

// NewLoadManager creates a manager with a fresh dimension cache.
func NewLoadManager(db *store.DB, logger *utils.ETLLogger) *LoadManager {
	return &LoadManager{
		logger:     logger,
		dimensions: NewDimensionResolver(db, logger),
		facts:      NewFactBuilder(db, logger),
	}
}

func (m *LoadManager) Dimensions() *DimensionResolver { return m.dimensions }

func (m *LoadManager) Facts() *FactBuilder { return m.facts }

// Load resolves the dimensions of records and upserts their facts. Dimension
// rows are created before the fact transaction starts, so a failed fact
// batch never leaves a half-written file behind.
func (m *LoadManager) Load(ctx context.Context, records []models.SilverRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	startTime := time.Now()
	facts := make([]models.FactRow, 0, len(records))
	for _, rec := range records {
		platformID, err := m.dimensions.Resolve(ctx, models.DimensionPlatform, rec.Platform)
		if err != nil {
			return 0, err
		}
		metricID, err := m.dimensions.Resolve(ctx, models.DimensionMetric, rec.MetricName)
		if err != nil {
			return 0, err
		}
		facts = append(facts, models.FactRow{
			PlatformID: platformID,
			MetricID:   metricID,
			ReportDate: rec.ReportDate,
			Value:      rec.Value,
		})
	}

	n, err := m.facts.UpsertBatch(ctx, facts)
	if err != nil {
		return 0, err
	}

	m.logger.Debug("Modelled %d records in %v", n, time.Since(startTime))
	return n, nil
}
