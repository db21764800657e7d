package http

import (
	stdhttp "net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/tutorlink/session-core/internal/api/http/handlers"
	"github.com/tutorlink/session-core/internal/auth"
	"github.com/tutorlink/session-core/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Chat           *handlers.ChatHandler
	Notify         *handlers.NotifyHandler
	AuthMiddleware *auth.AuthMiddleware
	Metrics        stdhttp.Handler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics))
	}

	authGroup := app.Group("/auth", handlers.SecurityHeaders)
	authGroup.Post("/register", cfg.Auth.Register)
	authGroup.Post("/login", cfg.Auth.Login)
	authGroup.Post("/refresh", cfg.Auth.Refresh)
	authGroup.Post("/logout", cfg.Auth.Logout)
	authGroup.Get("/me", cfg.AuthMiddleware.Handle, cfg.Auth.Me)

	chat := app.Group("/chat", cfg.AuthMiddleware.Handle, auth.RequireRole(domain.RoleTeacher, domain.RoleStudent))
	chat.Get("/peers", cfg.Chat.Peers)
	chat.Get("/messages/:peerId", cfg.Chat.Messages)
	chat.Post("/messages", cfg.Chat.Send)
	chat.Get("/unread-summary", cfg.Chat.UnreadSummary)

	if cfg.Notify != nil && cfg.Notify.Enabled() {
		app.Post("/internal/notify", cfg.Notify.Notify)
	}
}
