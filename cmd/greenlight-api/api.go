// Package main provides the greenlight API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/greenlighthq/greenlight/pkg/archive"
	"github.com/greenlighthq/greenlight/pkg/eventbus"
	"github.com/greenlighthq/greenlight/pkg/notifications"
	"github.com/greenlighthq/greenlight/pkg/persistence"
	"github.com/greenlighthq/greenlight/pkg/services"
	"github.com/greenlighthq/greenlight/pkg/web"
	"github.com/greenlighthq/greenlight/pkg/workflow"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	inbox       notifications.Store
	archiver    archive.Archiver
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	eventBus eventbus.EventBus,
	inbox notifications.Store,
	archiver archive.Archiver,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		eventBus:    eventBus,
		inbox:       inbox,
		archiver:    archiver,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	dispatcher := services.NewDispatcher(a.inbox, a.eventBus, a.logger)
	sequencer := services.NewSequencer(a.persistence, dispatcher, a.logger)
	archival := services.NewArchival(a.persistence, a.archiver, dispatcher, a.logger)
	visibility := services.NewVisibility(a.persistence)
	decisionProcessor := services.NewDecisionProcessor(a.persistence, sequencer, archival, dispatcher, a.logger)
	requestService := services.NewRequest(a.persistence, sequencer, visibility, dispatcher, a.logger)
	definitionService := services.NewDefinition(a.persistence)
	repair := services.NewRepair(a.persistence, sequencer, archival, a.logger)

	executor := workflow.NewExecutor(a.persistence, sequencer, archival, dispatcher, a.logger)
	decisionProcessor.SetResumer(executor)

	handlers := web.NewAPIHandlers(
		requestService,
		decisionProcessor,
		definitionService,
		archival,
		visibility,
		repair,
		executor,
		a.inbox,
		a.persistence,
		a.validate,
	)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Greenlight API")
	})

	r := app.Group("/requests")
	r.Post("/", handlers.CreateRequest)
	r.Get("/:id", handlers.GetRequest)
	r.Patch("/:id", handlers.UpdateRequest)
	r.Get("/:id/steps", handlers.GetSteps)
	r.Post("/:id/publish", handlers.PublishRequest)
	r.Post("/:id/execute", handlers.ExecuteRequest)
	r.Post("/:id/withdraw", handlers.WithdrawRequest)
	r.Post("/:id/steps/:stepId/decision", handlers.DecideStep)
	r.Get("/:id/archive", handlers.GetArchive)
	r.Post("/:id/archive", handlers.RegenerateArchive)

	d := app.Group("/definitions")
	d.Get("/", handlers.ListDefinitions)
	d.Post("/", handlers.CreateDefinition)
	d.Get("/:id", handlers.GetDefinition)
	d.Put("/:id", handlers.UpdateDefinition)
	d.Delete("/:id", handlers.DeleteDefinition)

	n := app.Group("/notifications")
	n.Get("/", handlers.GetInbox)
	n.Post("/:id/read", handlers.MarkNotificationRead)

	app.Post("/admin/repair", handlers.RunRepair)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}
