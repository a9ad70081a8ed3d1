package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aussiebroadwan/pushmfa/internal/push/domain"
	httpapi "github.com/aussiebroadwan/pushmfa/internal/push/http"
	"github.com/aussiebroadwan/pushmfa/internal/push/notify"
	"github.com/aussiebroadwan/pushmfa/internal/push/service"
	"github.com/aussiebroadwan/pushmfa/internal/push/store"
	"github.com/aussiebroadwan/pushmfa/internal/push/store/drivers/sqlite"
	"github.com/aussiebroadwan/pushmfa/pkg/idx"
	"github.com/aussiebroadwan/pushmfa/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"

	// defaultStageName is the stage bootstrapped on first start.
	defaultStageName = "default"
)

// Application encapsulates the push MFA service with all its dependencies
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db       store.Store
	notifier notify.Notifier

	// Services
	deviceService       *service.DeviceService
	coordinatorService  *service.CoordinatorService
	responderService    *service.ResponderService
	housekeepingService *service.HousekeepingService

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "pushmfa",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	stage, err := app.bootstrapStage()
	if err != nil {
		_ = app.db.Close()
		return nil, err
	}

	if err := app.initNotifier(stage); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	app.initServices(stage)
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("push mfa service starting", "port", app.cfg.Port, "version", BuildVersion)

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	// Setup signal handling for graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive a shutdown signal or server error
	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down push mfa service...")

	// Give outstanding requests a deadline for completion. Blocked
	// authenticate calls observe the closing server through their request
	// context and clean up their transactions.
	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("push mfa service stopped")
	return nil
}

// initDatabase initializes the database and applies migrations
func (app *Application) initDatabase() error {
	host := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(host)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

// bootstrapStage creates the default stage on first start and returns the
// stage devices enroll into.
func (app *Application) bootstrapStage() (domain.Stage, error) {
	ctx := context.Background()

	mode := domain.ItemMatchingMode(app.cfg.StageMode)
	if !mode.Valid() {
		return domain.Stage{}, fmt.Errorf("invalid stage mode %q", app.cfg.StageMode)
	}

	empty, err := app.db.Stages().IsEmpty(ctx)
	if err != nil {
		return domain.Stage{}, fmt.Errorf("failed to inspect stages: %w", err)
	}
	if empty {
		stage := domain.Stage{
			ID:               idx.New().String(),
			Name:             defaultStageName,
			ItemMatchingMode: mode,
		}
		if creds := app.readFCMCredentials(); creds != nil {
			stage.FCMCredentials = string(creds)
		}
		if err := app.db.Stages().CreateStage(ctx, stage); err != nil {
			return domain.Stage{}, fmt.Errorf("failed to bootstrap default stage: %w", err)
		}
		app.logger.Info("default stage bootstrapped", "stage_id", stage.ID, "mode", mode)
		return stage, nil
	}

	stage, err := app.db.Stages().GetStageByName(ctx, defaultStageName)
	if err != nil {
		return domain.Stage{}, fmt.Errorf("failed to load default stage: %w", err)
	}
	return stage, nil
}

func (app *Application) readFCMCredentials() []byte {
	if app.cfg.FCMCredentialsFile == "" {
		return nil
	}
	creds, err := os.ReadFile(app.cfg.FCMCredentialsFile)
	if err != nil {
		app.logger.Error("failed to read fcm credentials", "path", app.cfg.FCMCredentialsFile, "error", err)
		return nil
	}
	return creds
}

// initNotifier sets up FCM delivery from the stage's stored credentials.
// Without credentials the service still runs; challenges simply never reach
// the device by push and attempts resolve by out-of-band response or timeout.
func (app *Application) initNotifier(stage domain.Stage) error {
	creds := []byte(stage.FCMCredentials)
	if len(creds) == 0 {
		creds = app.readFCMCredentials()
	}
	if len(creds) == 0 {
		app.logger.Warn("no fcm credentials configured, push delivery disabled")
		app.notifier = noopNotifier{logger: app.logger}
		return nil
	}

	client, err := notify.NewFCMClient(creds)
	if err != nil {
		return fmt.Errorf("failed to initialize fcm client: %w", err)
	}
	app.notifier = client
	return nil
}

// initServices initializes all business logic services
func (app *Application) initServices(stage domain.Stage) {
	app.deviceService = &service.DeviceService{
		Store:    app.db,
		Logger:   app.logger,
		StageID:  stage.ID,
		TokenTTL: app.cfg.DeviceTokenTTL,
	}

	app.coordinatorService = service.NewCoordinatorService(app.db, app.notifier, app.logger)
	app.coordinatorService.PollInterval = app.cfg.PollInterval
	app.coordinatorService.MaxChecks = app.cfg.MaxChecks
	app.coordinatorService.BrandTitle = app.cfg.BrandTitle
	app.coordinatorService.Domain = app.cfg.Domain

	app.responderService = &service.ResponderService{
		Store:  app.db,
		Waker:  app.coordinatorService,
		Logger: app.logger,
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(BuildVersion, app.db, app.logger)

	// Wire services to router
	router.DeviceService = app.deviceService
	router.Coordinator = app.coordinatorService
	router.Responder = app.responderService
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}

// noopNotifier stands in when no push credentials are configured.
type noopNotifier struct {
	logger *slog.Logger
}

func (n noopNotifier) Deliver(_ context.Context, msg notify.Message) error {
	n.logger.Info("push delivery disabled, challenge not sent", "tx_id", msg.TransactionID)
	return nil
}
