// Package pipeline runs source files through bronze ingestion, cleaning and
// modelling. Each file moves through Pending, Ingested, Cleaned, Modelled and
// Done, or stops in Failed with the phase and reason of the failure.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/LilVoxy/social_metrics/ETL/bronze"
	"github.com/LilVoxy/social_metrics/ETL/extractors"
	"github.com/LilVoxy/social_metrics/ETL/load"
	"github.com/LilVoxy/social_metrics/ETL/models"
	"github.com/LilVoxy/social_metrics/ETL/store"
	"github.com/LilVoxy/social_metrics/ETL/transform"
	"github.com/LilVoxy/social_metrics/ETL/utils"
)

// Config is the run configuration handed to the pipeline at construction.
type Config struct {
	// Workers bounds how many files are processed at once; 1 is sequential.
	Workers  int
	Cleaning transform.CleanerOptions
}

// Pipeline orchestrates one run over a set of documents.
type Pipeline struct {
	db        *store.DB
	extractor extractors.Extractor
	bronze    *bronze.Gateway
	cleaner   *transform.Cleaner
	runLog    models.ETLLogRepository
	metrics   *Metrics
	logger    *utils.ETLLogger
	workers   int
	observers []Observer

	now      func() time.Time
	newRunID func() string
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

func WithObserver(o Observer) Option {
	return func(p *Pipeline) { p.observers = append(p.observers, o) }
}

func WithMetrics(m *Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

func WithRunLog(r models.ETLLogRepository) Option {
	return func(p *Pipeline) { p.runLog = r }
}

// New builds a pipeline over db. extractor may be nil when only Replay is used.
func New(db *store.DB, extractor extractors.Extractor, cfg Config, logger *utils.ETLLogger, opts ...Option) *Pipeline {
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}

	p := &Pipeline{
		db:        db,
		extractor: extractor,
		bronze:    bronze.NewGateway(db, logger),
		cleaner:   transform.NewCleaner(cfg.Cleaning, logger),
		runLog:    models.NewSQLETLLogRepository(db),
		logger:    logger,
		workers:   workers,
		now:       func() time.Time { return time.Now().UTC() },
		newRunID:  func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.metrics == nil {
		p.metrics = NewMetrics(nil)
	}
	return p
}

// Bronze exposes the raw store gateway.
func (p *Pipeline) Bronze() *bronze.Gateway { return p.bronze }

// ingestFunc produces the bronze records of one file and the number of rows
// the source yielded.
type ingestFunc func(ctx context.Context) (extracted int, res models.IngestResult, err error)

type fileJob struct {
	sourceFile string
	ingest     ingestFunc
}

// Run extracts, ingests, cleans and models docs. The returned summary is
// always non-nil. The error is set when the run as a whole failed: storage
// unreachable before any file started, a constraint violation, or ctx
// cancellation. Files never started stay Pending.
func (p *Pipeline) Run(ctx context.Context, docs []extractors.Document) (*models.RunSummary, error) {
	if p.extractor == nil {
		return nil, errors.New("pipeline has no extractor")
	}

	jobs := make([]fileJob, len(docs))
	for i, doc := range docs {
		jobs[i] = fileJob{sourceFile: doc.SourceFile, ingest: p.extractAndIngest(doc)}
	}
	return p.execute(ctx, jobs, nil)
}

// Replay rebuilds the gold layer from bronze without extraction. With
// truncate set the fact table is emptied first, so facts whose source rows
// are gone disappear; otherwise existing facts are overwritten in place.
func (p *Pipeline) Replay(ctx context.Context, truncate bool) (*models.RunSummary, error) {
	var before func(context.Context, *load.LoadManager) error
	if truncate {
		before = func(ctx context.Context, m *load.LoadManager) error {
			return m.Facts().Truncate(ctx)
		}
	}

	files, err := p.bronze.SourceFiles(ctx)
	if err != nil {
		summary := models.NewRunSummary(p.newRunID(), p.now())
		summary.Finish(p.now(), err)
		return summary, err
	}

	jobs := make([]fileJob, len(files))
	for i, file := range files {
		jobs[i] = fileJob{sourceFile: file, ingest: p.readBronze(file)}
	}
	return p.execute(ctx, jobs, before)
}

func (p *Pipeline) extractAndIngest(doc extractors.Document) ingestFunc {
	return func(ctx context.Context) (int, models.IngestResult, error) {
		rows, err := p.extractor.Extract(ctx, doc)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, models.ErrExtraction) {
				err = fmt.Errorf("%w: %w", models.ErrExtraction, err)
			}
			return 0, models.IngestResult{}, err
		}
		if len(rows) == 0 {
			return 0, models.IngestResult{}, models.ErrEmptyExtract
		}

		res, err := p.bronze.Ingest(ctx, doc.SourceFile, rows)
		return len(rows), res, err
	}
}

func (p *Pipeline) readBronze(sourceFile string) ingestFunc {
	return func(ctx context.Context) (int, models.IngestResult, error) {
		records, err := p.bronze.Records(ctx, sourceFile)
		if err != nil {
			return 0, models.IngestResult{}, err
		}
		if len(records) == 0 {
			return 0, models.IngestResult{}, models.ErrEmptyExtract
		}
		return len(records), models.IngestResult{Duplicate: len(records), Records: records}, nil
	}
}

func (p *Pipeline) execute(ctx context.Context, jobs []fileJob, before func(context.Context, *load.LoadManager) error) (*models.RunSummary, error) {
	summary := models.NewRunSummary(p.newRunID(), p.now())
	summary.FilesTotal = len(jobs)
	p.logger.LogETLStart(summary.RunID, len(jobs))

	runs := make([]*fileRun, len(jobs))
	for i, job := range jobs {
		runs[i] = newFileRun(summary.RunID, job.sourceFile, p.publish, p.now)
	}

	runErr := p.runJobs(ctx, summary, jobs, runs, before)

	for _, r := range runs {
		summary.Add(r.outcome)
	}
	summary.Finish(p.now(), runErr)

	p.complete(ctx, summary)
	return summary, runErr
}

func (p *Pipeline) runJobs(ctx context.Context, summary *models.RunSummary, jobs []fileJob, runs []*fileRun, before func(context.Context, *load.LoadManager) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", models.ErrStorage, store.Classify(err))
	}

	if err := p.runLog.CreateLogEntry(ctx, summary.RunID, summary.StartedAt); err != nil {
		p.logger.Warn("Run log entry not created: %v", err)
	}

	loader := load.NewLoadManager(p.db, p.logger)
	if before != nil {
		if err := before(ctx, loader); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for i := range jobs {
		if gctx.Err() != nil {
			break
		}
		job, run := jobs[i], runs[i]
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			if stageErr := p.processFile(gctx, job, run, loader); stageErr != nil && stageErr.Fatal() {
				return stageErr
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// processFile drives one file through the stages. Per-row rejections are
// counted and never fail the file.
func (p *Pipeline) processFile(ctx context.Context, job fileJob, run *fileRun, loader *load.LoadManager) *models.StageError {
	// Извлекаем строки файла и сохраняем их в bronze одной транзакцией
	extracted, res, err := job.ingest(ctx)
	run.outcome.Extracted = extracted
	if err != nil {
		return run.fail(models.PhaseIngestion, err)
	}
	run.outcome.Accepted = res.Accepted
	run.outcome.Duplicate = res.Duplicate
	if err := run.advance(models.StageIngested); err != nil {
		return run.fail(models.PhaseIngestion, err)
	}

	// Очищаем строки; отклонённые только считаются по причине
	silver := make([]models.SilverRecord, 0, len(res.Records))
	for result := range p.cleaner.CleanAll(res.Records) {
		if result.Rejected() {
			run.outcome.Rejected[result.Reason]++
			continue
		}
		silver = append(silver, result.Record)
	}
	run.outcome.Cleaned = len(silver)
	if err := ctx.Err(); err != nil {
		return run.fail(models.PhaseCleaning, err)
	}
	if err := run.advance(models.StageCleaned); err != nil {
		return run.fail(models.PhaseCleaning, err)
	}

	// Загружаем очищенные строки в измерения и таблицу фактов
	upserts, err := loader.Load(ctx, silver)
	if err != nil {
		return run.fail(models.PhaseModelling, err)
	}
	run.outcome.FactUpserts = upserts
	if err := run.advance(models.StageModelled); err != nil {
		return run.fail(models.PhaseModelling, err)
	}

	if err := run.advance(models.StageDone); err != nil {
		return run.fail(models.PhaseModelling, err)
	}
	return nil
}

func (p *Pipeline) publish(t models.FileTransition) {
	p.logger.LogTransition(t)
	for _, o := range p.observers {
		o.OnTransition(t)
	}
}

// complete records a finished run in the metrics, the audit log and the
// observers. The audit write outlives a cancelled run context.
func (p *Pipeline) complete(ctx context.Context, summary *models.RunSummary) {
	p.metrics.Observe(summary)

	if err := p.runLog.CompleteLogEntry(context.WithoutCancel(ctx), summary); err != nil {
		p.logger.Warn("Run log entry not completed: %v", err)
	}

	for _, o := range p.observers {
		if ro, ok := o.(RunObserver); ok {
			ro.OnRunComplete(summary)
		}
	}

	p.logger.LogETLComplete(summary)
}
