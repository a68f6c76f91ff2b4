package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/interview-prep-api/internal/config"
	"github.com/noah-isme/interview-prep-api/internal/utils"
)

// HealthResponse represents the payload returned by the health endpoint.
type HealthResponse struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Service     string    `json:"service"`
	Environment string    `json:"environment"`
	Store       string    `json:"store"`
	Model       string    `json:"model"`
}

// HealthCheck returns a handler that reports application health information.
func HealthCheck(cfg config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		payload := HealthResponse{
			Status:      "ok",
			Timestamp:   time.Now().UTC(),
			Service:     cfg.AppName,
			Environment: cfg.AppEnv,
			Store:       cfg.StoreDriver,
			Model:       cfg.OpenAIModel,
		}

		return utils.SendSuccess(c, "service healthy", payload)
	}
}
