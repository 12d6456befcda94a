package trend

import (
	"context"
	"time"

	"github.com/LilVoxy/social_metrics/ETL/models"
	"github.com/LilVoxy/social_metrics/ETL/utils"
)

// Config controls which series get a trend.
type Config struct {
	// MinPoints is the minimum number of monthly facts in a series.
	MinPoints int
}

func DefaultConfig() Config {
	return Config{MinPoints: 3}
}

// Processor recomputes metric_trend from the fact table.
type Processor struct {
	repository *Repository
	logger     *utils.ETLLogger
	config     Config
	now        func() time.Time
}

func NewProcessor(repository *Repository, logger *utils.ETLLogger, config Config) *Processor {
	if config.MinPoints < 2 {
		config.MinPoints = 2
	}
	return &Processor{
		repository: repository,
		logger:     logger,
		config:     config,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Process fits every series with enough points and stores the result. It
// returns the number of trends written.
func (p *Processor) Process(ctx context.Context) (int, error) {
	startTime := time.Now()

	keys, series, err := p.repository.Series(ctx)
	if err != nil {
		return 0, err
	}

	computedAt := p.now()
	written := 0
	for _, key := range keys {
		points := series[key]
		if len(points) < p.config.MinPoints {
			continue
		}

		start := points[0].Date
		for i := range points {
			points[i].X = float64(MonthsBetween(start, points[i].Date))
		}

		result, err := LinearRegression(points)
		if err != nil {
			p.logger.Debug("Skipping trend %d/%d: %v", key.PlatformID, key.MetricID, err)
			continue
		}

		err = p.repository.Save(ctx, models.MetricTrend{
			PlatformID:  key.PlatformID,
			MetricID:    key.MetricID,
			Slope:       result.Slope,
			Intercept:   result.Intercept,
			R2:          result.R2,
			Points:      len(points),
			PeriodStart: result.PeriodStart,
			PeriodEnd:   result.PeriodEnd,
			ComputedAt:  computedAt,
		})
		if err != nil {
			return written, err
		}
		written++
	}

	p.logger.Info("Computed %d metric trends in %v", written, time.Since(startTime))
	return written, nil
}
