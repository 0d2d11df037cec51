package handler_test

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/gema-grading-api/internal/config"
	"github.com/noah-isme/gema-grading-api/internal/handler"
)

type healthEnvelope struct {
	Success bool                   `json:"success"`
	Data    handler.HealthResponse `json:"data"`
}

func TestHealthCheck(t *testing.T) {
	cases := []struct {
		name   string
		cfg    config.Config
		engine string
		model  string
	}{
		{name: "mock", cfg: config.Config{AppName: "GEMA Grading", AppEnv: "test", AIModel: "gpt-4o-mini"}, engine: "mock"},
		{name: "live", cfg: config.Config{AppName: "GEMA Grading", AppEnv: "test", AIModel: "gpt-4o-mini", AIAPIKey: "sk-test"}, engine: "live", model: "gpt-4o-mini"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := fiber.New()
			app.Get("/api/v1/health", handler.HealthCheck(tc.cfg))

			resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/health", nil), -1)
			if err != nil {
				t.Fatalf("failed to execute request: %v", err)
			}

			assert.Equal(t, fiber.StatusOK, resp.StatusCode)

			var payload healthEnvelope
			assert.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
			assert.True(t, payload.Success)
			assert.Equal(t, "ok", payload.Data.Status)
			assert.Equal(t, tc.cfg.AppName, payload.Data.Service)
			assert.Equal(t, tc.cfg.AppEnv, payload.Data.Environment)
			assert.Equal(t, tc.engine, payload.Data.Engine)
			assert.Equal(t, tc.model, payload.Data.Model)
			assert.WithinDuration(t, time.Now().UTC(), payload.Data.Timestamp, 2*time.Second)
		})
	}
}
