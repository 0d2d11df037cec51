package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-grading-api/internal/config"
	"github.com/noah-isme/gema-grading-api/internal/handler"
	"github.com/noah-isme/gema-grading-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	GradingHandler *handler.GradingHandler
	// Guards run in order before every grading route, e.g. JWT then role check.
	Guards      []fiber.Handler
	RateLimiter fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))

	if deps.GradingHandler == nil {
		return
	}

	handlers := make([]fiber.Handler, 0, len(deps.Guards)+1)
	for _, guard := range deps.Guards {
		if guard != nil {
			handlers = append(handlers, guard)
		}
	}
	if deps.RateLimiter != nil {
		handlers = append(handlers, deps.RateLimiter)
	}

	grading := api.Group("/grading", handlers...)
	deps.GradingHandler.Register(grading)
}
