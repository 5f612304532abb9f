// Package cli provides common initialization shared by cmd/alloctrack,
// cmd/report-worker and cmd/allocctl.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"alloctrack/internal/amqp"
	"alloctrack/internal/cache"
	"alloctrack/internal/config"
	"alloctrack/internal/core"
	"alloctrack/internal/ingest"
	"alloctrack/internal/log"
	"alloctrack/internal/mail"
	"alloctrack/internal/metrics"
	"alloctrack/internal/services"
	"alloctrack/internal/storage"
)

// SetupLogger builds the process logger from cfg and installs it as the
// slog default.
func SetupLogger(cfg *config.Config) *log.Logger {
	lc := log.DefaultConfig()
	lc.Level = log.ParseLevel(cfg.LogLevel)
	lc.Format = cfg.LogFormat
	logger := log.New(lc)
	log.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig() *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.New(log.DefaultConfig()).Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	return cfg
}

// OpenStore opens the snapshot store at path.
// Returns the store or exits the process on failure.
func OpenStore(ctx context.Context, logger *log.Logger, path string, opts ...storage.Option) *storage.Store {
	store, err := storage.Open(ctx, path, opts...)
	if err != nil {
		logger.Error("Failed to open snapshot store", log.FieldError, err, "path", path)
		os.Exit(1)
	}
	return store
}

// NewMailer returns the shoutrrr transport for cfg.MailURL, or a mailer that
// only logs when no URL is configured.
func NewMailer(cfg *config.Config, logger *log.Logger) (mail.Mailer, error) {
	if cfg.MailURL == "" {
		logger.Warn("MAIL_URL not set, reports will only be logged")
		return mail.NewLogMailer(logger), nil
	}
	return mail.NewShoutrrrMailer([]string{cfg.MailURL}, cfg.MailTimeout,
		mail.WithHTMLBody(), mail.WithMailLogger(logger))
}

// NewPublisher connects the upload event publisher. A nil client is returned
// when AMQP is not configured.
func NewPublisher(cfg *config.Config, logger *log.Logger) (*amqp.Client, error) {
	if cfg.AMQPURL == "" {
		logger.Info("AMQP_URL not set, upload events disabled")
		return nil, nil
	}
	return amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
}

// App bundles the services built over one store.
type App struct {
	Uploads   *services.UploadService
	Analytics *services.AnalyticsService
	Caches    *cache.Manager
}

// NewApp wires the ingestion and analytics services over store. publisher and
// m may be nil.
func NewApp(cfg *config.Config, store *storage.Store, mailer mail.Mailer, publisher services.Publisher, m *metrics.Metrics, logger *log.Logger) *App {
	dashboards := cache.NewLRUCache[core.DashboardStats](cfg.CacheSize, cfg.CacheTTL)
	caches := cache.NewManager(logger)
	caches.Register(dashboards)

	opts := []services.AnalyticsOption{
		services.WithDashboardCache(dashboards),
		services.WithMailer(mailer, cfg.ReportSubject, cfg.MailTo),
		services.WithAnalyticsLogger(logger),
	}
	var um services.UploadMetrics
	if m != nil {
		opts = append(opts, services.WithAnalyticsMetrics(m))
		um = m
	}
	analytics := services.NewAnalyticsService(store, opts...)

	pipeline := ingest.New(store, ingest.WithLogger(logger))
	uploads := services.NewUploadService(pipeline, publisherOrNil(publisher), analytics, um, logger)

	return &App{Uploads: uploads, Analytics: analytics, Caches: caches}
}

// publisherOrNil keeps a typed nil client from becoming a non-nil interface.
func publisherOrNil(p services.Publisher) services.Publisher {
	if c, ok := p.(*amqp.Client); ok && c == nil {
		return nil
	}
	return p
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that signals when shutdown is complete.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func(ctx context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		if cleanup != nil {
			cleanup(shutdownCtx)
		}
		cancel()
		logger.Info("Shutdown complete")
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
