package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/deskflow/itsm-approvals/internal/api/http/handlers"
	"github.com/deskflow/itsm-approvals/internal/auth"
	"github.com/deskflow/itsm-approvals/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	Approvals      *handlers.ApprovalsHandler
	Admin          *handlers.AdminHandler
	Users          *handlers.UsersHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	protected := app.Group("", cfg.AuthMiddleware.Handle, auth.RequireAnyRole())

	protected.Post("/tickets", cfg.Tickets.CreateTicket)
	protected.Get("/tickets", cfg.Tickets.ListTickets)
	protected.Get("/tickets/:id", cfg.Tickets.GetTicket)

	protected.Post("/tickets/:id/approve", cfg.Approvals.Approve)
	protected.Post("/tickets/:id/reject", cfg.Approvals.Reject)
	protected.Post("/tickets/:id/release", auth.RequireRole(domain.RoleAdmin), cfg.Approvals.Release)

	protected.Get("/approvals/pending", cfg.Approvals.Pending)
	protected.Get("/approvals/stats", cfg.Approvals.LevelStats)
	protected.Get("/stats/approvals", cfg.Approvals.TimeByType)

	admin := protected.Group("/admin", auth.RequireRole(domain.RoleAdmin))
	admin.Get("/metrics", cfg.Admin.Metrics)
	admin.Get("/tickets", cfg.Tickets.ListAllTickets)
	admin.Get("/users", cfg.Users.List)
	admin.Post("/users", cfg.Users.Create)
	admin.Delete("/users/:id", cfg.Users.Delete)
}
