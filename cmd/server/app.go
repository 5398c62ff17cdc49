package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/phrazzld/isplitter/internal/config"
	"github.com/phrazzld/isplitter/internal/generation"
	"github.com/phrazzld/isplitter/internal/imaging"
	"github.com/phrazzld/isplitter/internal/pipeline"
	"github.com/phrazzld/isplitter/internal/platform/gemini"
	"github.com/phrazzld/isplitter/internal/platform/mongo"
	"github.com/phrazzld/isplitter/internal/platform/postgres"
	"github.com/phrazzld/isplitter/internal/platform/s3"
	"github.com/phrazzld/isplitter/internal/service/auth"
	"github.com/phrazzld/isplitter/internal/status"
	"github.com/phrazzld/isplitter/internal/storage"
	"github.com/phrazzld/isplitter/internal/task"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
)

// storageBackend is what the application needs from object storage.
type storageBackend interface {
	storage.Client
	storage.HealthChecker
}

// application holds the shared dependencies and owns their shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger

	db          *sql.DB
	mongoClient *mongodriver.Client

	storage storageBackend
	// objects is set when storage is the in-process backend, which the
	// router then serves under /objects.
	objects *storage.MemoryStore

	generator  generation.Generator
	jwtService auth.JWTService
	tracker    status.Tracker
	taskRunner *task.TaskRunner

	splitService *pipeline.SplitService
	tryOnService *pipeline.TryOnService
}

// appOption overrides a dependency before the application is wired.
type appOption func(*application)

// withGenerator replaces the Gemini generator.
func withGenerator(g generation.Generator) appOption {
	return func(app *application) { app.generator = g }
}

// newApplication builds every dependency selected by cfg and starts the
// task runner.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...appOption) (*application, error) {
	app := &application{config: cfg, logger: logger}
	for _, opt := range opts {
		opt(app)
	}

	ok := false
	defer func() {
		if !ok {
			app.cleanup()
		}
	}()

	if err := app.setupDatabases(ctx); err != nil {
		return nil, err
	}
	if err := app.setupStorage(ctx); err != nil {
		return nil, err
	}
	if err := app.setupTracker(ctx); err != nil {
		return nil, err
	}

	if app.generator == nil {
		gen, err := gemini.NewImageGenerator(ctx, logger, cfg.LLM)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize image generator: %w", err)
		}
		app.generator = gen
	}

	if cfg.Auth.Enabled() {
		jwtService, err := auth.NewJWTService(cfg.Auth)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
		}
		app.jwtService = jwtService
		logger.Info("bearer token authentication enabled",
			"token_lifetime_minutes", cfg.Auth.TokenLifetimeMinutes)
	}

	if err := app.setupPipeline(); err != nil {
		return nil, err
	}

	ok = true
	logger.Info("Application initialized successfully")
	return app, nil
}

func (app *application) setupDatabases(ctx context.Context) error {
	cfg := app.config

	if cfg.Queue.Backend == "postgres" || cfg.Status.Backend == "postgres" {
		db, err := postgres.Open(ctx, cfg.Database.URL, app.logger)
		if err != nil {
			return err
		}
		app.db = db

		if err := postgres.Migrate(ctx, db, "up", app.logger); err != nil {
			return fmt.Errorf("failed to apply migrations: %w", err)
		}
	}

	if cfg.Status.Backend == "mongo" {
		client, store, err := mongo.Connect(ctx, cfg.Mongo, app.logger)
		if err != nil {
			return err
		}
		app.mongoClient = client
		app.tracker = store
	}

	return nil
}

func (app *application) setupStorage(ctx context.Context) error {
	cfg := app.config.Storage

	switch cfg.Backend {
	case "s3":
		client, err := s3.New(ctx, cfg, app.logger)
		if err != nil {
			return fmt.Errorf("failed to initialize object storage: %w", err)
		}
		app.storage = client
	default:
		baseURL := cfg.PublicBaseURL
		if baseURL == "" {
			baseURL = fmt.Sprintf("http://localhost:%d/objects", app.config.Server.Port)
		}
		app.objects = storage.NewMemoryStore(baseURL)
		app.storage = app.objects
		app.logger.Warn("using in-memory object storage; objects are lost on restart",
			"base_url", baseURL)
	}

	return nil
}

func (app *application) setupTracker(ctx context.Context) error {
	cfg := app.config

	switch cfg.Status.Backend {
	case "postgres":
		app.tracker = postgres.NewStatusStore(app.db, app.logger)
	case "mongo":
		// connected in setupDatabases
	default:
		app.tracker = status.NewMemoryTracker(cfg.Status.TTL)
	}

	app.logger.InfoContext(ctx, "status tracker initialized", "backend", cfg.Status.Backend)
	return nil
}

func (app *application) setupPipeline() error {
	cfg := app.config
	q := cfg.Queue

	var journal task.TaskStore
	if q.Backend == "postgres" {
		journal = postgres.NewTaskStore(app.db)
	} else {
		journal = task.NewMemoryTaskStore()
	}

	app.taskRunner = task.NewTaskRunner(journal, task.TaskRunnerConfig{
		WorkerCount:       q.WorkerCount,
		QueueSize:         q.QueueSize,
		MaxTasksPerWorker: q.MaxTasksPerWorker,
		SoftTimeLimit:     q.SoftTimeLimit,
		HardTimeLimit:     q.HardTimeLimit,
		Retry: task.RetryPolicy{
			MaxAttempts: q.MaxAttempts,
			Backoff:     task.FixedBackoff(q.RetryBackoff),
		},
		StuckTaskAge:           q.StuckTaskAge,
		StuckTaskCheckInterval: q.StuckTaskCheckInterval,
	}, app.logger)

	workers := pipeline.NewWorkers(
		app.generator,
		app.storage,
		app.tracker,
		pipeline.NewFetcher(nil, cfg.Pipeline.DownloadTimeout),
		pipeline.WorkersConfig{
			Bucket:        cfg.Storage.Bucket,
			OutputQuality: cfg.Pipeline.OutputQuality,
		},
		app.logger,
	)
	workers.Register(app.taskRunner)

	if err := app.taskRunner.Start(); err != nil {
		return fmt.Errorf("failed to start task runner: %w", err)
	}
	if q.Backend == "postgres" {
		if err := app.taskRunner.Recover(); err != nil {
			return fmt.Errorf("failed to recover journaled tasks: %w", err)
		}
	}

	imageOpts := imaging.Options{
		MinDimension: cfg.Pipeline.MinImageDimension,
		Quality:      cfg.Pipeline.OutputQuality,
	}

	splitOrch := pipeline.NewOrchestrator(app.taskRunner, pipeline.Timeouts{
		Generate: cfg.Pipeline.GenerateTimeout,
		Upload:   cfg.Pipeline.UploadTimeout,
	}, app.logger)
	tryOnOrch := pipeline.NewOrchestrator(app.taskRunner, pipeline.Timeouts{
		Generate: cfg.Pipeline.GenerateTimeout,
		Upload:   cfg.Pipeline.TryOnUploadTimeout,
	}, app.logger)

	app.splitService = pipeline.NewSplitService(splitOrch, imageOpts, cfg.Pipeline.SplitKeyPrefix, app.logger)
	app.tryOnService = pipeline.NewTryOnService(tryOnOrch, app.tracker, pipeline.TryOnConfig{
		MaxClothingItems: cfg.Pipeline.MaxClothingItems,
		Image:            imageOpts,
		KeyPrefix:        cfg.Pipeline.TryOnKeyPrefix,
	}, app.logger)

	return nil
}

// Run serves HTTP until ctx is cancelled, then shuts everything down.
func (app *application) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", app.config.Server.Port),
		Handler:           app.setupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	err := app.serve(ctx, server)
	app.cleanup()
	if err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup waits for background try-ons, stops the runner and closes the
// databases. It is safe on a partially built application.
func (app *application) cleanup() {
	if app.tryOnService != nil {
		app.tryOnService.Wait()
	}
	if app.taskRunner != nil {
		app.taskRunner.Stop()
	}
	if app.mongoClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := app.mongoClient.Disconnect(ctx); err != nil {
			app.logger.Error("Error disconnecting from mongodb", "error", err)
		}
		cancel()
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("Error closing database connection", "error", err)
		}
	}

	app.logger.Info("Application shutdown completed")
}
