package routes

import (
	"log/slog"
	"time"

	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/config"
	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/handlers"
	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Handlers struct {
	Health  *handlers.HealthHandler
	Reports *handlers.ReportHandler
	Queues  *handlers.QueueHandler
}

func Setup(app *fiber.App, cfg *config.Config, authz services.Authorizer, h Handlers) {
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api")

	// Health (no auth, no rate limit)
	api.Get("/health", h.Health.Check)

	// Report intake: 30 req/min per IP
	api.Post("/reports",
		limiter.New(limiter.Config{
			Max:               30,
			Expiration:        1 * time.Minute,
			LimiterMiddleware: limiter.SlidingWindow{},
			KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
		}),
		middleware.JWTProtected(cfg.JWTSecret),
		h.Reports.CreateReport,
	)

	// Reviewer queue (protected + admin required)
	admin := api.Group("/admin", middleware.JWTProtected(cfg.JWTSecret), middleware.AdminRequired(authz))
	admin.Get("/activity", h.Queues.ListActivity)

	queue := admin.Group("/queues/:task_type")
	queue.Get("/tasks", h.Queues.ListTasks)
	queue.Get("/stats", h.Queues.Stats)
	queue.Post("/checkout", h.Queues.Checkout)
	queue.Post("/tasks/:id/checkin", h.Queues.CheckIn)
	queue.Post("/tasks/:id/release", h.Queues.Release)
	queue.Post("/tasks/:id/work-later", h.Queues.WorkLater)
	queue.Post("/recalculate", h.Queues.Recalculate)
	queue.Post("/sweep", h.Queues.Sweep)
}

func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal server error"
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	// Only expose error details for client errors (4xx), not server errors (5xx)
	if code >= 500 {
		slog.Error("unhandled server error", "method", c.Method(), "path", c.Path(), "error", err.Error())
		message = "Internal server error"
	}

	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": message,
	})
}
