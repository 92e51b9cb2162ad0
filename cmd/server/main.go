package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/localnerve/lite/internal/config"
	"github.com/localnerve/lite/internal/database"
	"github.com/localnerve/lite/internal/ingest"
	"github.com/localnerve/lite/internal/jobs"
	"github.com/localnerve/lite/internal/logging"
	"github.com/localnerve/lite/internal/server"
	"github.com/localnerve/lite/internal/services"
	"github.com/localnerve/lite/internal/watch"

	_ "github.com/localnerve/lite/docs/api" // Swagger docs
)

// @title LITE API
// @version 1.0.0
// @description Forensic triage case management: cases, artifact ingestion and queries
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.url https://github.com/localnerve/lite
// @contact.email info@localnerve.com

// @license.name AGPL-3.0
// @license.url https://www.gnu.org/licenses/agpl-3.0.html

// @host localhost:3000
// @BasePath /api
// @schemes http https

// @securityDefinitions.apikey CookieAuth
// @in cookie
// @name cookie_session

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logging.Init(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)
	log := logging.New("server")

	// Connect to database (app pool)
	appDB, err := database.Connect(cfg)
	if err != nil {
		log.Error("failed to connect to app database", "error", err)
		os.Exit(1)
	}
	defer database.Close(appDB)

	// Connect to database (read pool)
	readDB, err := database.ConnectRead(cfg)
	if err != nil {
		log.Error("failed to connect to read database", "error", err)
		os.Exit(1)
	}
	defer database.Close(readDB)

	if cfg.DBAutoMigrate {
		if err := database.AutoMigrate(appDB); err != nil {
			log.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
	}
	if n, err := services.FailOrphanedRuns(appDB); err != nil {
		log.Warn("failed to close orphaned runs", "error", err)
	} else if n > 0 {
		log.Warn("closed runs left over from a previous process", "count", n)
	}

	store, err := jobs.NewStatusStore(cfg.RedisURL)
	if err != nil {
		log.Error("failed to open status store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	runner := jobs.NewRunner(appDB, ingest.New(appDB, cfg.IngestBatchSize), store, cfg.MaxConcurrentIngestions)

	cleanup, err := jobs.NewCleanup(appDB, cfg.RetentionDays, cfg.CleanupSchedule)
	if err != nil {
		log.Error("failed to schedule cleanup", "error", err)
		os.Exit(1)
	}
	cleanup.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watchDone := make(chan struct{})
	if cfg.WatchFolder != "" {
		w := watch.New(appDB, cfg.WatchFolder, cfg.UploadFolder, runner)
		go func() {
			defer close(watchDone)
			if err := w.Run(ctx); err != nil {
				log.Error("watch folder stopped", "error", err)
			}
		}()
	} else {
		close(watchDone)
	}

	app := server.New(server.Options{
		Config: cfg,
		DB:     appDB,
		Read:   readDB,
		Runner: runner,
	})

	// Graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sig
		log.Info("gracefully shutting down")
		cancel()
		<-watchDone

		shutdownCtx, done := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer done()
		if err := runner.Shutdown(shutdownCtx); err != nil {
			log.Warn("ingestion runs did not stop in time", "error", err)
		}
		<-cleanup.Stop().Done()
		_ = app.ShutdownWithContext(shutdownCtx)
	}()

	log.Info("starting server", "port", cfg.Port, "db_type", cfg.DBType, "auth", cfg.AuthEnabled())
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Error("failed to start server", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
