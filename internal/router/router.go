package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/interview-prep-api/internal/config"
	"github.com/noah-isme/interview-prep-api/internal/handler"
	"github.com/noah-isme/interview-prep-api/internal/middleware"
	"github.com/noah-isme/interview-prep-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	InterviewHandler       *handler.InterviewHandler
	InterviewStreamHandler *handler.InterviewStreamHandler
	JWTMiddleware          fiber.Handler
	GenerationLimiter      fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get(observability.MetricsPath, observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	interviews := api.Group("/interviews", jwtMiddleware, middleware.RequireUser())

	// The stream route is static and has to win over /:id.
	if deps.InterviewStreamHandler != nil {
		deps.InterviewStreamHandler.Register(interviews)
	}

	if deps.InterviewHandler != nil {
		var limiters []fiber.Handler
		if deps.GenerationLimiter != nil {
			limiters = append(limiters, deps.GenerationLimiter)
		}
		deps.InterviewHandler.Register(interviews, limiters...)
	}
}
