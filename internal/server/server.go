// Package server assembles the Fiber application and its routes.
package server

import (
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	swagger "github.com/gofiber/swagger"
	"github.com/localnerve/lite/internal/config"
	"github.com/localnerve/lite/internal/handlers"
	"github.com/localnerve/lite/internal/jobs"
	"github.com/localnerve/lite/internal/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

// multipart framing on top of the largest accepted file
const bodySlack = 1 << 20

// Options are the dependencies of the HTTP application
type Options struct {
	Config *config.Config
	// DB is the app pool, Read the pool used by queries
	DB     *gorm.DB
	Read   *gorm.DB
	Runner *jobs.Runner
	// Registry receives the HTTP metrics, prometheus.DefaultRegisterer when nil
	Registry prometheus.Registerer
	// Quiet drops the access log
	Quiet bool
}

// New returns the application with every route registered
func New(o Options) *fiber.App {
	cfg := o.Config
	if o.Read == nil {
		o.Read = o.DB
	}
	if o.Registry == nil {
		o.Registry = prometheus.DefaultRegisterer
	}

	app := fiber.New(fiber.Config{
		AppName:               "lite",
		ErrorHandler:          handlers.ErrorHandler,
		BodyLimit:             int(cfg.MaxUploadBytes) + bodySlack,
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	if !o.Quiet {
		app.Use(logger.New())
	}
	app.Use(compress.New())

	httpMetrics := fiberprometheus.NewWithRegistry(o.Registry, "lite", "http", "", nil)
	httpMetrics.RegisterAt(app, "/metrics")
	app.Use(httpMetrics.Middleware)

	app.Get("/swagger/*", swagger.HandlerDefault)

	api := app.Group("/api")

	caseHandler := &handlers.CaseHandler{DB: o.DB, Read: o.Read, PerPage: cfg.CasesPerPage}
	ingestHandler := &handlers.IngestHandler{
		DB:             o.DB,
		Runner:         o.Runner,
		UploadDir:      cfg.UploadFolder,
		MaxUploadBytes: cfg.MaxUploadBytes,
	}
	queryHandler := &handlers.QueryHandler{DB: o.Read, PerPage: cfg.RowsPerPage}
	statsHandler := &handlers.StatsHandler{Config: cfg, DB: o.DB, Read: o.Read}

	// Public
	api.Get("/health", statsHandler.Health)

	// Everything else requires the user role
	user := api.Group("", middleware.AuthUser(cfg))
	admin := middleware.AuthAdmin(cfg)
	load := middleware.LoadCase(o.DB)
	limit := middleware.UploadLimiter(cfg.UploadRatePerMinute)

	user.Get("/catalog", queryHandler.Catalog)
	user.Get("/stats", statsHandler.Dashboard)
	user.Get("/stats/charts", statsHandler.DashboardCharts)

	// Case registry
	user.Get("/cases", caseHandler.ListCases)
	user.Post("/cases", caseHandler.CreateCase)
	user.Get("/cases/:id", load, caseHandler.GetCase)
	user.Patch("/cases/:id", load, caseHandler.UpdateCase)
	user.Put("/cases/:id/status", load, caseHandler.SetStatus)
	user.Delete("/cases/:id", admin, load, caseHandler.DeleteCase)
	user.Post("/cases/:id/recount", admin, load, caseHandler.Recount)

	// Ingestion
	user.Post("/cases/:id/uploads", limit, load, ingestHandler.Upload)
	user.Post("/cases/:id/categories/:category/import", limit, load, ingestHandler.Import)
	user.Get("/cases/:id/ingestions", load, ingestHandler.ListRuns)
	user.Get("/ingestions/:run", ingestHandler.RunStatus)
	user.Delete("/ingestions/:run", ingestHandler.CancelRun)
	user.Post("/ingestions/:run/retry", admin, ingestHandler.RetryRun)

	// Queries
	user.Get("/cases/:id/categories", load, queryHandler.Categories)
	user.Get("/cases/:id/categories/:category", load, queryHandler.List)
	user.Get("/cases/:id/categories/:category/export", load, queryHandler.Export)
	user.Get("/cases/:id/export", load, queryHandler.ExportCase)
	user.Get("/cases/:id/search", load, queryHandler.Search)
	user.Post("/cases/:id/search", load, queryHandler.SearchBody)
	user.Get("/cases/:id/users", load, queryHandler.Users)
	user.Post("/cases/:id/sql", admin, load, queryHandler.SQL)
	user.Get("/cases/:id/charts", load, statsHandler.CaseCharts)

	// 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"status":    fiber.StatusNotFound,
			"message":   "[404] Resource Not Found",
			"ok":        false,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"url":       c.OriginalURL(),
			"type":      "notFound",
		})
	})

	return app
}
