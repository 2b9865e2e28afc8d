package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/classroom-portal/internal/config"
	"github.com/noah-isme/classroom-portal/internal/handler"
	"github.com/noah-isme/classroom-portal/internal/middleware"
	"github.com/noah-isme/classroom-portal/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	AuthHandler         *handler.AuthHandler
	StudentHandler      *handler.StudentHandler
	AdminContentHandler *handler.AdminContentHandler
	ManageUsersHandler  *handler.ManageUsersHandler
	HealthProbes        map[string]handler.Probe
	JWTMiddleware       fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthProbes))

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = middleware.JWTProtected(cfg.JWTSecret)
	}

	// Auth (handler applies its own guards per route)
	if deps.AuthHandler != nil {
		deps.AuthHandler.Register(api.Group("/auth"))
	}

	// Admin content
	if deps.AdminContentHandler != nil {
		admin := api.Group("/admin", jwtMiddleware, middleware.RequireRole("admin"))
		deps.AdminContentHandler.Register(admin)
	}

	// Student surface; the unprefixed group guards every /api/v1 route registered after it
	if deps.StudentHandler != nil {
		student := api.Group("", jwtMiddleware)
		deps.StudentHandler.Register(student)
	}

	// Privileged functions
	if deps.ManageUsersHandler != nil {
		deps.ManageUsersHandler.Register(app.Group("/functions/v1"))
	}
}
