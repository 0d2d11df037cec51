package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-grading-api/internal/config"
	"github.com/noah-isme/gema-grading-api/internal/utils"
)

// HealthResponse represents the payload returned by the health endpoint.
type HealthResponse struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Service     string    `json:"service"`
	Environment string    `json:"environment"`
	Engine      string    `json:"engine"`
	Model       string    `json:"model,omitempty"`
}

// HealthCheck reports service health and whether a real engine is configured.
func HealthCheck(cfg config.Config) fiber.Handler {
	engine := "live"
	model := cfg.AIModel
	if cfg.MockMode() {
		engine = "mock"
		model = ""
	}

	return func(c *fiber.Ctx) error {
		payload := HealthResponse{
			Status:      "ok",
			Timestamp:   time.Now().UTC(),
			Service:     cfg.AppName,
			Environment: cfg.AppEnv,
			Engine:      engine,
			Model:       model,
		}

		return utils.SendSuccess(c, "service healthy", payload)
	}
}
