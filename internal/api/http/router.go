package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-desk/internal/api/http/handlers"
	"github.com/spec-kit/ticket-desk/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	GuildConfig    *handlers.GuildConfigHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	protected := app.Group("", cfg.AuthMiddleware.Handle)

	protected.Get("/channels/:channelRef/ticket", cfg.Tickets.GetByChannel)

	guilds := protected.Group("/guilds/:guildID")
	guilds.Post("/tickets", cfg.Tickets.Open)
	guilds.Get("/tickets", cfg.Tickets.List)
	guilds.Get("/tickets/number/:number", cfg.Tickets.GetByNumber)
	guilds.Get("/config", cfg.GuildConfig.Get)
	guilds.Put("/config", auth.RequireStaff(), cfg.GuildConfig.Set)

	tickets := protected.Group("/tickets/:id")
	tickets.Get("", cfg.Tickets.Get)
	tickets.Post("/claim", auth.RequireStaff(), cfg.Tickets.Claim)
	tickets.Post("/unclaim", auth.RequireStaff(), cfg.Tickets.Unclaim)
	tickets.Post("/progress", auth.RequireStaff(), cfg.Tickets.MarkInProgress)
	tickets.Post("/close", cfg.Tickets.Close)
	tickets.Post("/archive", auth.RequireStaff(), cfg.Tickets.Archive)
	tickets.Post("/activity", cfg.Tickets.TouchActivity)
	tickets.Post("/messages", cfg.Tickets.AddMessage)
	tickets.Get("/transcript", auth.RequireStaff(), cfg.Tickets.GetTranscript)
}
