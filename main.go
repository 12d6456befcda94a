package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/urfave/cli/v2"

	"github.com/LilVoxy/social_metrics/ETL/config"
	"github.com/LilVoxy/social_metrics/ETL/transform"
	"github.com/LilVoxy/social_metrics/ETL/utils"
	"github.com/LilVoxy/social_metrics/database"
	"github.com/LilVoxy/social_metrics/routes"
)

func serve(c *cli.Context) error {
	cfg := config.GetConfig()
	if path := c.String("config"); path != "" {
		var err error
		if cfg, err = config.LoadConfig(path); err != nil {
			return cli.Exit(fmt.Sprintf("invalid configuration: %v", err), 2)
		}
	}
	if addr := c.String("addr"); addr != "" {
		cfg.Serve.Addr = addr
	}

	logger, err := utils.NewETLLogger(cfg.EnableDetailedLogging, cfg.LogFile)
	if err != nil {
		return err
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Подключаемся к базе данных
	db, err := config.ConnectDatabase(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	reader := database.NewReader(db, transform.CleanerOptions{
		PlatformAliases: cfg.Cleaning.PlatformAliases,
		MetricAliases:   cfg.Cleaning.MetricAliases,
	})

	// Настраиваем маршруты API
	router := mux.NewRouter()
	routes.SetupRoutes(router, reader, logger)

	server := &http.Server{
		Addr:         cfg.Serve.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Запускаем сервер в отдельной горутине и ждём ошибки или сигнала
	errCh := make(chan error, 1)
	go func() {
		logger.Info("Serving API on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutdown signal received, closing connections")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}

	logger.Info("Server stopped")
	return nil
}

func main() {
	app := &cli.App{
		Name:  "social-metrics-api",
		Usage: "Read-only API over the social metrics warehouse",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML configuration",
				EnvVars: []string{"SOCIAL_METRICS_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address, overrides serve.addr",
			},
		},
		Action: serve,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
