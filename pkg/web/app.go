package web

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/fableworks/fableflow/pkg/eventbus"
	"github.com/fableworks/fableflow/pkg/orchestrator"
	"github.com/fableworks/fableflow/pkg/persistence"
)

type API struct {
	logger       *slog.Logger
	orchestrator *orchestrator.Orchestrator
	broker       *eventbus.Broker
	store        persistence.StateStore
	validate     *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	orch *orchestrator.Orchestrator,
	broker *eventbus.Broker,
	store persistence.StateStore,
) *API {
	return &API{
		logger:       logger,
		orchestrator: orch,
		broker:       broker,
		store:        store,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := NewHandlers(a.orchestrator, a.broker, a.store, a.validate, a.logger)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("FableFlow API")
	})

	w := app.Group("/workflows")
	w.Get("/", handlers.ListWorkflows)
	w.Post("/", handlers.StartWorkflow)
	w.Get("/:id/progress", handlers.GetProgress)
	w.Get("/:id/events", handlers.StreamEvents)
	w.Post("/:id/resume", handlers.ResumeWorkflow)
	w.Post("/:id/cancel", handlers.CancelWorkflow)
	w.Delete("/:id", handlers.DeleteWorkflow)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}
