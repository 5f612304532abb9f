package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"alloctrack/internal/cli"
	apphttp "alloctrack/internal/http"
	"alloctrack/internal/log"
	"alloctrack/internal/metrics"
	"alloctrack/internal/sheets"
	gsheet "alloctrack/internal/sheets/google"
	"alloctrack/internal/storage"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg)

	m, err := metrics.New()
	if err != nil {
		logger.Error("Failed to initialize metrics", log.FieldError, err)
		os.Exit(1)
	}

	ctx := context.Background()
	store := cli.OpenStore(ctx, logger, cfg.SnapshotPath, storage.WithObserver(m))
	defer store.Close()

	mailer, err := cli.NewMailer(cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize mail transport", log.FieldError, err)
		os.Exit(1)
	}

	publisher, err := cli.NewPublisher(cfg, logger)
	if err != nil {
		// Uploads still work without events; the worker just won't mail.
		logger.Error("Failed to initialize AMQP client, upload events disabled", log.FieldError, err)
		publisher = nil
	}
	if publisher != nil {
		defer publisher.Close()
	}

	app := cli.NewApp(cfg, store, mailer, publisher, m, logger)
	app.Caches.StartCleanup(10 * time.Minute)

	var opener apphttp.SheetOpener
	if cfg.SheetsEnabled() {
		client, err := gsheet.NewFromEnv(ctx, logger)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
			os.Exit(1)
		}
		opener = func(rng string) sheets.RowSource { return client.WithRange(rng) }
		logger.Info("Google Sheets import enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	}

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Uploads:   app.Uploads,
		Analytics: app.Analytics,
		Sheets:    opener,
		Ready: func(ctx context.Context) error {
			_, err := store.Query(ctx, "SELECT 1")
			return err
		},
		Metrics:        m.Handler(),
		Security:       m,
		Logger:         logger,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})

	// Configure server timeouts and limits
	srv.ReadTimeout = 60 * time.Second
	srv.WriteTimeout = 60 * time.Second
	srv.IdleTimeout = 120 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	shutdownCtx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		app.Caches.Stop()
	})

	logger.Info("Starting alloctrack server", "port", cfg.Port, "snapshot", cfg.SnapshotPath)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(shutdownCtx, done)
	logger.Info("Server stopped gracefully")
}
