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

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/sydlexius/tracksignal/internal/api"
	"github.com/sydlexius/tracksignal/internal/config"
	"github.com/sydlexius/tracksignal/internal/database"
	"github.com/sydlexius/tracksignal/internal/event"
	"github.com/sydlexius/tracksignal/internal/history"
	"github.com/sydlexius/tracksignal/internal/logging"
	"github.com/sydlexius/tracksignal/internal/maintenance"
	"github.com/sydlexius/tracksignal/internal/pipeline"
	"github.com/sydlexius/tracksignal/internal/request"
	"github.com/sydlexius/tracksignal/internal/version"
	"github.com/sydlexius/tracksignal/internal/webhook"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the detection service and HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	logManager, logger := logging.NewManager(cfg.LoggerConfig())
	defer func() { _ = logManager.Close() }()

	logger.Info("starting tracksignal",
		"version", version.Version,
		"commit", version.Commit,
		"port", cfg.Server.Port,
		"base_path", cfg.Server.BasePath,
		"logging", logManager.Config().String(),
	)

	// One process per database file.
	if cfg.Database.Path != ":memory:" {
		lock := flock.New(cfg.Database.Path + ".lock")
		locked, err := lock.TryLock()
		if err != nil {
			return fmt.Errorf("acquiring lock: %w", err)
		}
		if !locked {
			return fmt.Errorf("database %s is in use by another process", cfg.Database.Path)
		}
		defer func() { _ = lock.Unlock() }()
	}

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() { _ = db.Close() }()

	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	requestService := request.NewService(db, logger)
	historyService := history.NewService(db, logger)
	webhookService := webhook.NewService(db)
	dispatcher := webhook.NewDispatcher(webhookService, logger)

	bus := event.NewBus(logger, 256)
	bus.Subscribe(event.TrackDetected, historyService.HandleDetected)
	bus.Subscribe(event.RequestMatched, historyService.HandleMatched)
	bus.Subscribe(event.RequestMatched, requestService.HandleMatched)
	bus.SubscribeAll(dispatcher.HandleEvent)
	go bus.Start()
	defer bus.Stop()

	opts, err := managerOptions(cfg, logger)
	if err != nil {
		return err
	}
	opts.Requests = requestService
	opts.Events = bus
	manager := pipeline.NewManager(opts)

	pruner, err := history.NewPruner(historyService, cfg.Retention(), cfg.History.PruneInterval, logger)
	if err != nil {
		return fmt.Errorf("creating history pruner: %w", err)
	}
	if err := pruner.Start(); err != nil {
		return fmt.Errorf("starting history pruner: %w", err)
	}

	maint := maintenance.NewService(db, cfg.Database.Path, cfg.Database.BackupDir, cfg.Database.BackupKeep, logger)
	maintScheduler, err := maintenance.NewScheduler(maint, cfg.Database.OptimizeInterval, cfg.Database.BackupInterval)
	if err != nil {
		return fmt.Errorf("creating maintenance scheduler: %w", err)
	}
	maintScheduler.Start()

	for _, sc := range cfg.Sessions {
		info, err := manager.StartSession(ctx, sc)
		if err != nil {
			logger.Error("starting configured session", "source_id", sc.SourceID, "error", err)
			continue
		}
		logger.Info("session started", "source_id", info.SourceID, "kind", info.Kind, "target", info.Target)
	}

	router := api.NewRouter(api.RouterDeps{
		Manager:           manager,
		RequestService:    requestService,
		HistoryService:    historyService,
		WebhookService:    webhookService,
		WebhookDispatcher: dispatcher,
		LogManager:        logManager,
		Maintenance:       maint,
		DB:                db,
		Logger:            logger,
		BasePath:          cfg.Server.BasePath,
		APIToken:          cfg.Server.APIToken,
		TestRPS:           cfg.Server.TestRPS,
		Remote:            opts.Remote,
		SearchPatterns:    cfg.Files.SearchPatterns,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router.Handler(ctx),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down server")
	case serveErr = <-errCh:
		if serveErr != nil {
			logger.Error("server error", "error", serveErr)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	manager.Close()
	if err := pruner.Stop(); err != nil {
		logger.Warn("stopping history pruner", "error", err)
	}
	if err := maintScheduler.Stop(); err != nil {
		logger.Warn("stopping maintenance scheduler", "error", err)
	}
	// Session-stopped events from Close must reach subscribers before the
	// webhook deliveries they start are awaited and the database closes.
	if err := bus.Shutdown(shutdownCtx); err != nil {
		logger.Warn("draining event bus", "error", err)
	}
	dispatcher.Wait()

	logger.Info("server stopped")
	if serveErr != nil {
		return fmt.Errorf("http server: %w", serveErr)
	}
	return nil
}
