package http

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/tutorlink/session-core/internal/observability"
)

// AppConfig configures the fiber application.
type AppConfig struct {
	Name        string
	ProxyHeader string
	Middleware  MiddlewareConfig
}

// NewApp builds the fiber app with middlewares and routes registered.
func NewApp(cfg AppConfig, logger *zap.Logger, metrics *observability.Metrics, routes RouteConfig) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               cfg.Name,
		ProxyHeader:           cfg.ProxyHeader,
		EnableIPValidation:    cfg.ProxyHeader != "",
		DisableStartupMessage: true,
	})
	RegisterMiddlewares(app, logger, metrics, cfg.Middleware)
	RegisterRoutes(app, routes)
	return app
}
