// Package app provides the application initialization and lifecycle management
package app

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/dexpositosanchez/fyntra/internal/config"
	"github.com/dexpositosanchez/fyntra/internal/connectivity"
	"github.com/dexpositosanchez/fyntra/internal/database"
	"github.com/dexpositosanchez/fyntra/internal/incident"
	"github.com/dexpositosanchez/fyntra/internal/loggy"
	"github.com/dexpositosanchez/fyntra/internal/queue"
	"github.com/dexpositosanchez/fyntra/internal/remote"
	"github.com/dexpositosanchez/fyntra/internal/sync"
	"github.com/dexpositosanchez/fyntra/internal/utils"
	"github.com/urfave/cli/v2"
)

// Options tune how the application is built
type Options struct {
	// Offline pins connectivity to offline instead of probing the network
	Offline bool
}

// App represents the application instance with its dependencies
type App struct {
	Config       *config.Config
	Settings     *config.SettingsService
	Client       *remote.Client
	Observer     connectivity.Observer
	Queue        queue.Repository
	Incidents    *incident.Service
	SyncLogs     sync.Repository
	Engine       *sync.Engine
	Orchestrator *sync.Orchestrator

	prober *connectivity.Prober
}

// New initializes a new application instance with all its dependencies
func New(opts Options) (*App, error) {
	cfg, err := initConfig()
	if err != nil {
		return nil, err
	}

	if err := initLogger(cfg); err != nil {
		return nil, err
	}

	loggy.Info("Application initializing",
		"version", os.Getenv("VERSION"),
		"log_level", cfg.Logging.Level,
		"offline", opts.Offline,
	)

	if err := database.InitDB(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := database.RunMigrations(); err != nil {
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	db, err := database.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database connection: %w", err)
	}

	app, err := initServices(cfg, db, opts)
	if err != nil {
		return nil, err
	}

	loggy.Info("Application initialized successfully")
	return app, nil
}

// initConfig loads and sets up the application configuration
func initConfig() (*config.Config, error) {
	cfg, err := config.LoadFromEnv("", "")
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	config.Set(cfg)
	return cfg, nil
}

// initLogger initializes the logging system
func initLogger(cfg *config.Config) error {
	err := loggy.Init(loggy.Config{
		Level:      config.ParseLogLevel(cfg.Logging.Level),
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// initServices wires the sync core on top of the open database
func initServices(cfg *config.Config, db *sql.DB, opts Options) (*App, error) {
	logger := loggy.GetGlobalLogger()
	ctx := context.Background()

	settingsService := config.NewSettingsService(db, cfg, logger)
	if err := settingsService.LoadServerSettings(ctx); err != nil {
		loggy.Warn("Failed to load server settings from database", "error", err)
		// Continue anyway, using the environment
	}

	if cfg.Server.DeviceName == "" {
		name := utils.GenerateDeviceName()
		if err := settingsService.SetDeviceName(ctx, name); err != nil {
			loggy.Warn("Failed to persist generated device name", "device_name", name, "error", err)
		}
	}

	client := remote.NewClient(cfg.Server, settingsService.TokenSource(), logger.With("component", "remote"))

	var (
		observer connectivity.Observer
		prober   *connectivity.Prober
	)
	if opts.Offline {
		observer = connectivity.NewManual(false, connectivity.TransportUnknown)
	} else {
		prober = connectivity.NewProber(
			connectivity.NewNetPlatform(cfg.Connectivity.ProbeURL, cfg.Connectivity.ProbeTimeout),
			cfg.Connectivity.ProbeInterval,
			cfg.Connectivity.ProbeTimeout,
			logger.With("component", "connectivity"),
		)
		prober.Start(ctx)
		observer = prober
	}

	queueRepo := queue.NewSQLRepository(db, logger.With("component", "queue"))

	incidents := incident.NewService(
		db,
		incident.NewRemoteAPI(client),
		queueRepo,
		observer,
		logger.With("component", "incidents"),
	)

	syncLogs := sync.NewSQLRepository(db, logger)
	engine := sync.NewEngine(queueRepo, observer, syncLogs, cfg.Sync.MaxRetries, logger.With("component", "sync"))
	engine.Register(incident.Resource, incidents.Handler())

	orchestrator := sync.NewOrchestrator(
		engine,
		observer,
		cfg.Sync,
		logger.With("component", "orchestrator"),
		incidents,
	)

	return &App{
		Config:       cfg,
		Settings:     settingsService,
		Client:       client,
		Observer:     observer,
		Queue:        queueRepo,
		Incidents:    incidents,
		SyncLogs:     syncLogs,
		Engine:       engine,
		Orchestrator: orchestrator,
		prober:       prober,
	}, nil
}

// Shutdown gracefully shuts down the application
func (app *App) Shutdown() error {
	loggy.Info("Shutting down application")

	app.Orchestrator.Stop()
	if app.prober != nil {
		app.prober.Stop()
	}

	if err := database.CloseDB(); err != nil {
		loggy.Error("Error closing database connection", "error", err)
	}

	return loggy.GetGlobalLogger().Close()
}

// FromContext retrieves the App instance from the CLI context
func FromContext(c *cli.Context) (*App, error) {
	if c.App.Metadata == nil {
		return nil, fmt.Errorf("app metadata not found in context")
	}

	app, ok := c.App.Metadata["app"].(*App)
	if !ok {
		return nil, fmt.Errorf("app instance not found in context")
	}

	return app, nil
}
