package main

import (
	"context"
	"errors"
	"os"
	"time"

	"alloctrack/internal/amqp"
	"alloctrack/internal/cli"
	"alloctrack/internal/log"
	"alloctrack/internal/metrics"
	"alloctrack/internal/services"
	"alloctrack/internal/storage"
	"alloctrack/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg)
	logger.Info("Starting report-worker")

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the report worker")
		os.Exit(1)
	}

	mailer, err := cli.NewMailer(cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize mail transport", log.FieldError, err)
		os.Exit(1)
	}

	m, err := metrics.New()
	if err != nil {
		logger.Error("Failed to initialize metrics", log.FieldError, err)
		os.Exit(1)
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	// Each event reads the snapshot as last persisted by the service.
	open := func(ctx context.Context) (worker.SummarySender, func() error, error) {
		store, err := storage.Open(ctx, cfg.SnapshotPath, storage.ReadOnly())
		if err != nil {
			return nil, nil, err
		}
		sender := services.NewAnalyticsService(store,
			services.WithMailer(mailer, cfg.ReportSubject, cfg.MailTo),
			services.WithAnalyticsMetrics(m),
			services.WithAnalyticsLogger(logger))
		return sender, store.Close, nil
	}
	reportWorker := worker.NewReportWorker(open, cfg.MailTo, logger)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	go func() {
		if err := amqpClient.ConsumeUploadCompleted(ctx, reportWorker.HandleUploadCompleted); err != nil {
			if !errors.Is(err, context.Canceled) {
				logger.Error("Message consumption failed", log.FieldError, err)
				os.Exit(1)
			}
		}
	}()

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker shutdown complete")
}
