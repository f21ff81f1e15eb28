package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/ticket-lifecycle/internal/api/http/handlers"
	"github.com/spec-kit/ticket-lifecycle/internal/auth"
	"github.com/spec-kit/ticket-lifecycle/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Lifecycle      *handlers.LifecycleHandler
	Metrics        *observability.Metrics
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}

	authenticate := cfg.AuthMiddleware.Handle
	app.Get("/rules", authenticate, cfg.Lifecycle.Rules)

	tickets := app.Group("/tickets", authenticate)
	tickets.Post("", auth.RequireStaff(), cfg.Lifecycle.CreateTicket)
	tickets.Get("/:id", cfg.Lifecycle.GetTicket)
	tickets.Post("/:id/transitions", cfg.Lifecycle.Transition)
	tickets.Get("/:id/history", cfg.Lifecycle.History)
	tickets.Put("/:id/classification", auth.RequireStaff(), cfg.Lifecycle.Reclassify)

	slaGroup := tickets.Group("/:id/sla")
	slaGroup.Get("", cfg.Lifecycle.GetSLA)
	slaGroup.Post("/pause", auth.RequireStaff(), cfg.Lifecycle.PauseSLA)
	slaGroup.Post("/resume", auth.RequireStaff(), cfg.Lifecycle.ResumeSLA)
	slaGroup.Post("/first-response", auth.RequireStaff(), cfg.Lifecycle.MarkFirstResponse)
}
