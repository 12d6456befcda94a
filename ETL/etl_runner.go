package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"

	"github.com/LilVoxy/social_metrics/ETL/config"
	"github.com/LilVoxy/social_metrics/ETL/extractors"
	"github.com/LilVoxy/social_metrics/ETL/models"
	"github.com/LilVoxy/social_metrics/ETL/pipeline"
	"github.com/LilVoxy/social_metrics/ETL/store"
	"github.com/LilVoxy/social_metrics/ETL/transform"
	"github.com/LilVoxy/social_metrics/ETL/trend"
	"github.com/LilVoxy/social_metrics/ETL/utils"
	"github.com/LilVoxy/social_metrics/processor"
	"github.com/LilVoxy/social_metrics/websocket"
)

// ETLRunner wires the configured warehouse, source directory and pipeline.
type ETLRunner struct {
	config     config.ETLConfig
	db         *store.DB
	logger     *utils.ETLLogger
	source     *extractors.DirectorySource
	pipeline   *pipeline.Pipeline
	trends     *trend.Processor
	etlLogRepo models.ETLLogRepository
	monitor    *websocket.Manager
	registry   *prometheus.Registry
}

// NewETLRunner connects to the warehouse and builds the pipeline.
func NewETLRunner(ctx context.Context, cfg config.ETLConfig, logger *utils.ETLLogger) (*ETLRunner, error) {
	logger.Info("Initializing ETL runner (driver=%s, workers=%d)", cfg.Database.Driver, cfg.Workers)

	db, err := config.ConnectDatabase(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	registry := prometheus.NewRegistry()
	monitor := websocket.NewManager(logger.With("component", "monitor"))
	etlLogRepo := models.NewSQLETLLogRepository(db)

	p := pipeline.New(db, extractors.NewTableExtractor(logger), pipeline.Config{
		Workers: cfg.Workers,
		Cleaning: transform.CleanerOptions{
			PlatformAliases: cfg.Cleaning.PlatformAliases,
			MetricAliases:   cfg.Cleaning.MetricAliases,
		},
	}, logger,
		pipeline.WithMetrics(pipeline.NewMetrics(registry)),
		pipeline.WithRunLog(etlLogRepo),
		pipeline.WithObserver(monitor),
	)

	return &ETLRunner{
		config:     cfg,
		db:         db,
		logger:     logger,
		source:     extractors.NewDirectorySource(cfg.Source.Dir, cfg.Source.Patterns),
		pipeline:   p,
		trends:     trend.NewProcessor(trend.NewRepository(db), logger, trend.Config{MinPoints: cfg.Trend.MinPoints}),
		etlLogRepo: etlLogRepo,
		monitor:    monitor,
		registry:   registry,
	}, nil
}

// Close releases the database connection.
func (r *ETLRunner) Close() {
	r.logger.Info("Shutting down ETL runner")
	if err := r.db.Close(); err != nil {
		r.logger.Error("Failed to close database: %v", err)
	}
}

// ExecuteETL runs the pipeline over every document in the source directory
// and refreshes metric trends when at least one file was modelled.
func (r *ETLRunner) ExecuteETL(ctx context.Context) (*models.RunSummary, error) {
	r.logger.Info("Starting ETL run")

	// Смотрим, когда был последний успешный запуск
	if last, err := r.etlLogRepo.GetLastSuccessfulRun(ctx); err != nil {
		r.logger.Warn("Could not read last successful run: %v", err)
	} else if last != nil {
		r.logger.Info("Last successful run %s finished at %s", last.RunID, last.EndTime.Format(time.RFC3339))
	}

	// Собираем список документов из каталога источника
	docs, err := r.source.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list source documents: %w", err)
	}

	summary, err := r.pipeline.Run(ctx, docs)
	if err != nil {
		return summary, err
	}

	// Тренды пересчитываем, только если хотя бы один файл дошёл до gold
	r.refreshTrends(ctx, summary)
	return summary, nil
}

// Replay rebuilds the gold layer from bronze.
func (r *ETLRunner) Replay(ctx context.Context, truncate bool) (*models.RunSummary, error) {
	r.logger.Info("Replaying bronze (truncate=%t)", truncate)

	summary, err := r.pipeline.Replay(ctx, truncate)
	if err != nil {
		return summary, err
	}

	r.refreshTrends(ctx, summary)
	return summary, nil
}

// refreshTrends is non-critical: failures are logged and the run stands.
func (r *ETLRunner) refreshTrends(ctx context.Context, summary *models.RunSummary) {
	if summary.Status != models.RunSuccess && summary.Status != models.RunPartial {
		return
	}
	if _, err := r.trends.Process(ctx); err != nil {
		r.logger.Error("Trend computation failed: %v", err)
	}
}

// ExportArchive writes the whole bronze layer to path.
func (r *ETLRunner) ExportArchive(ctx context.Context, path string) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create archive: %w", err)
	}

	n, err := r.pipeline.Bronze().Export(ctx, f)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("failed to close archive: %w", cerr)
	}
	if err != nil {
		return n, err
	}

	r.logger.Info("Exported %d bronze records to %s (%s)", n, path, processor.ArchiveFormat)
	return n, nil
}

// ImportArchive loads an archive into bronze, skipping rows already stored.
func (r *ETLRunner) ImportArchive(ctx context.Context, path string) (models.IngestResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return models.IngestResult{}, fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	res, err := r.pipeline.Bronze().Import(ctx, f)
	if err != nil {
		return res, err
	}

	r.logger.Info("Imported archive %s: %d accepted, %d duplicate", path, res.Accepted, res.Duplicate)
	return res, nil
}

// StartScheduler runs the ETL every RunInterval until ctx is cancelled,
// serving the monitor endpoints meanwhile. Overlapping runs are skipped.
func (r *ETLRunner) StartScheduler(ctx context.Context) error {
	go r.monitor.Run(ctx)

	monitorErr := make(chan error, 1)
	go func() { monitorErr <- r.serveMonitor(ctx) }()

	scheduler := gocron.NewScheduler(time.UTC)
	r.logger.Info("Starting ETL scheduler with interval %v", r.config.RunInterval)

	_, err := scheduler.Every(r.config.RunInterval).SingletonMode().Do(func() {
		r.logger.Info("Scheduled ETL run")
		if _, err := r.ExecuteETL(ctx); err != nil {
			r.logger.Error("Scheduled ETL run failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule ETL job: %w", err)
	}

	scheduler.StartAsync()

	select {
	case <-ctx.Done():
	case err = <-monitorErr:
	}

	scheduler.Stop()
	r.logger.Info("ETL scheduler stopped")
	return err
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context, logger *utils.ETLLogger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(signalCh)
		select {
		case <-signalCh:
			logger.Info("Received shutdown signal, stopping ETL runner")
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func loadConfig(c *cli.Context) (config.ETLConfig, error) {
	var (
		cfg config.ETLConfig
		err error
	)
	if path := c.String("config"); path != "" {
		cfg, err = config.LoadConfig(path)
		if err != nil {
			return cfg, err
		}
	} else {
		cfg = config.GetConfig()
	}

	if c.IsSet("workers") {
		cfg.Workers = c.Int("workers")
	}
	if c.IsSet("verbose") {
		cfg.EnableDetailedLogging = c.Bool("verbose")
	}
	return cfg, cfg.Validate()
}

// withRunner loads the configuration, builds a runner and hands it to fn
// with a context cancelled on shutdown signals.
func withRunner(fn func(ctx context.Context, r *ETLRunner) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return cli.Exit(fmt.Sprintf("invalid configuration: %v", err), 2)
		}

		logger, err := utils.NewETLLogger(cfg.EnableDetailedLogging, cfg.LogFile)
		if err != nil {
			return err
		}
		defer logger.Close()

		ctx, cancel := signalContext(c.Context, logger)
		defer cancel()

		runner, err := NewETLRunner(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer runner.Close()

		return fn(ctx, runner)
	}
}

// runResult maps a finished run to the process exit status.
func runResult(summary *models.RunSummary, err error) error {
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return cli.Exit("run cancelled", 130)
		}
		return cli.Exit(fmt.Sprintf("run failed: %v", err), 1)
	}
	if summary.Status == models.RunFailed {
		return cli.Exit(fmt.Sprintf("run %s failed: no file was modelled", summary.RunID), 1)
	}
	return nil
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "social-metrics-etl",
		Usage: "Load social media metric extracts into the reporting warehouse",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML configuration",
				EnvVars: []string{"SOCIAL_METRICS_CONFIG"},
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Number of files processed in parallel",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable debug logging",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "once",
				Usage: "Run the ETL once over the source directory",
				Action: withRunner(func(ctx context.Context, r *ETLRunner) error {
					return runResult(r.ExecuteETL(ctx))
				}),
			},
			{
				Name:  "scheduled",
				Usage: "Run the ETL on the configured interval and serve the monitor",
				Action: withRunner(func(ctx context.Context, r *ETLRunner) error {
					return r.StartScheduler(ctx)
				}),
			},
			{
				Name:  "replay",
				Usage: "Rebuild facts from the bronze layer without extraction",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "truncate",
						Usage: "Empty the fact table before rebuilding",
					},
				},
				Action: func(c *cli.Context) error {
					truncate := c.Bool("truncate")
					return withRunner(func(ctx context.Context, r *ETLRunner) error {
						return runResult(r.Replay(ctx, truncate))
					})(c)
				},
			},
			{
				Name:  "archive",
				Usage: "Export or import the bronze layer",
				Subcommands: []*cli.Command{
					{
						Name:      "export",
						Usage:     "Write every bronze record to a snappy archive",
						ArgsUsage: "<file>",
						Action: func(c *cli.Context) error {
							path := c.Args().First()
							if path == "" {
								return cli.Exit("archive file is required", 2)
							}
							return withRunner(func(ctx context.Context, r *ETLRunner) error {
								_, err := r.ExportArchive(ctx, path)
								return err
							})(c)
						},
					},
					{
						Name:      "import",
						Usage:     "Load a bronze archive, skipping rows already stored",
						ArgsUsage: "<file>",
						Action: func(c *cli.Context) error {
							path := c.Args().First()
							if path == "" {
								return cli.Exit("archive file is required", 2)
							}
							return withRunner(func(ctx context.Context, r *ETLRunner) error {
								_, err := r.ImportArchive(ctx, path)
								return err
							})(c)
						},
					},
				},
			},
			{
				Name:  "trend",
				Usage: "Recompute metric trends from the fact table",
				Action: withRunner(func(ctx context.Context, r *ETLRunner) error {
					n, err := r.trends.Process(ctx)
					if err != nil {
						return err
					}
					r.logger.Info("Stored %d metric trends", n)
					return nil
				}),
			},
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.ExitCode())
		}
		os.Exit(1)
	}
}
