package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/ledgerpoint/practice-api/internal/domain/extraction/handler"
	"github.com/ledgerpoint/practice-api/internal/domain/extraction/repository"
	"github.com/ledgerpoint/practice-api/internal/domain/extraction/service"
	"github.com/ledgerpoint/practice-api/pkg/config"
	"github.com/ledgerpoint/practice-api/pkg/cron"
	"github.com/ledgerpoint/practice-api/pkg/db"
	"github.com/ledgerpoint/practice-api/pkg/llm"
	"github.com/ledgerpoint/practice-api/pkg/metrics"
	"github.com/ledgerpoint/practice-api/pkg/storage"
)

// Dependencies holds all application dependencies
type Dependencies struct {
	Config *config.Config
	DB     *db.DB
	Logger *slog.Logger

	// Repositories
	UploadRepo *repository.PostgresUploadRepository
	YearRepo   *repository.PostgresFinancialYearRepository

	// Services
	FileStorage       storage.Storage
	Provider          *llm.Client
	Metrics           *metrics.Metrics
	ExtractionService *service.ExtractionService
	Scheduler         *cron.Scheduler

	// Handlers
	ExtractionHandler *handler.ExtractionHandler
}

// InitDependencies initializes all application dependencies
func InitDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to init database: %w", err)
	}

	if err := deps.initServices(); err != nil {
		return nil, fmt.Errorf("failed to init services: %w", err)
	}

	logger.Info("all dependencies initialized successfully")

	return deps, nil
}

// initDatabase initializes the database connection and runs migrations
func (d *Dependencies) initDatabase() error {
	database, err := db.New(db.Config{
		DSN:             d.Config.Database.DSN(),
		MaxConns:        25,
		MinConns:        5,
		MaxConnLifetime: 5 * time.Minute,
		MaxConnIdleTime: 10 * time.Minute,
	}, d.Logger)
	if err != nil {
		return err
	}

	d.DB = database

	if err := d.DB.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	d.Logger.Info("database connected and migrations completed successfully")
	return nil
}

// initServices initializes repositories, collaborators, services and handlers
func (d *Dependencies) initServices() error {
	d.UploadRepo = repository.NewPostgresUploadRepository(d.DB.Pool)
	d.YearRepo = repository.NewPostgresFinancialYearRepository(d.DB.Pool)

	fileStorage, err := storage.New(&storage.Config{
		Type:              storage.StorageType(d.Config.Storage.Type),
		LocalPath:         d.Config.Storage.LocalPath,
		S3Bucket:          d.Config.Storage.S3Bucket,
		S3Region:          d.Config.Storage.S3Region,
		S3AccessKeyID:     d.Config.Storage.S3AccessKeyID,
		S3SecretAccessKey: d.Config.Storage.S3SecretAccessKey,
		S3Endpoint:        d.Config.Storage.S3Endpoint,
	})
	if err != nil {
		return fmt.Errorf("failed to init storage: %w", err)
	}
	d.FileStorage = fileStorage

	provider, err := llm.NewClient(llm.Config{
		APIKey:  d.Config.LLM.APIKey,
		Model:   d.Config.LLM.Model,
		BaseURL: d.Config.LLM.BaseURL,
		Timeout: time.Duration(d.Config.LLM.TimeoutSecs) * time.Second,
	}, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to init completion provider: %w", err)
	}
	d.Provider = provider

	d.Metrics = metrics.New()

	d.ExtractionService = service.NewExtractionService(
		d.UploadRepo,
		d.YearRepo,
		d.FileStorage,
		d.Provider,
		d.Metrics,
		d.Logger,
	)

	d.Scheduler = cron.NewScheduler(
		d.UploadRepo,
		time.Duration(d.Config.Pipeline.StaleProcessingMinutes)*time.Minute,
		d.Logger,
	)

	d.ExtractionHandler = handler.NewExtractionHandler(d.ExtractionService, d.Logger)

	return nil
}

// Close releases held resources
func (d *Dependencies) Close() {
	if d.Scheduler != nil {
		<-d.Scheduler.Stop().Done()
	}
	if d.DB != nil {
		d.DB.Close()
	}
}
