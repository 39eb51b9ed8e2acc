package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/gofiber/websocket/v2"

	"github.com/aaronvogel/hass-timezone-updater/internal/pkg/metrics"
)

const (
	handlerTimeout = 15 * time.Second
	// Dataset reloads parse a very large file and refreshes download one
	// first, so those routes get a much longer leash.
	datasetTimeout = 10 * time.Minute
)

// SetupRoutes registers all REST, GraphQL, and WebSocket routes.
func SetupRoutes(app *fiber.App, deps *Dependencies) {
	// Prometheus metrics
	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())

	// Response compression (gzip)
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed, // Balance speed vs compression ratio
	}))

	// Request ID
	app.Use(requestid.New())

	// Propagate request ID into slog context
	app.Use(RequestIDLogMiddleware())

	// OpenTelemetry server spans
	app.Use(TracingMiddleware())

	// Access logs (structured HTTP request logging)
	app.Use(AccessLogMiddleware())

	// Rate limiting: 120 requests per minute per IP
	app.Use(limiter.New(limiter.Config{
		Max:        120,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(429).JSON(fiber.Map{
				"error":   "rate limit exceeded",
				"message": "too many requests, please try again later",
			})
		},
		SkipFailedRequests: false,
	}))

	// Security headers + API version
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("X-XSS-Protection", "1; mode=block")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("X-API-Version", "1.0.0")
		return c.Next()
	})

	// ETag for conditional caching
	app.Use(ETagMiddleware())

	// Default Cache-Control headers
	app.Use(CachingMiddleware())

	// Health & readiness (no timeout — fast internal checks)
	app.Get("/v1/health", HealthHandler(deps))
	app.Get("/v1/ready", ReadyHandler(deps))

	// REST API v1
	v1 := app.Group("/v1")
	v1.Post("/evaluate", timeout.NewWithContext(EvaluateHandler(deps), handlerTimeout))
	v1.Post("/positions", timeout.NewWithContext(EnqueuePositionHandler(deps), handlerTimeout))
	v1.Get("/state", timeout.NewWithContext(ListStatesHandler(deps), handlerTimeout))
	v1.Get("/state/:entity", timeout.NewWithContext(GetStateHandler(deps), handlerTimeout))
	v1.Get("/zones", timeout.NewWithContext(ListZonesHandler(deps), handlerTimeout))
	v1.Get("/transitions", timeout.NewWithContext(ListTransitionsHandler(deps), handlerTimeout))
	v1.Get("/transitions/stats", timeout.NewWithContext(TransitionStatsHandler(deps), handlerTimeout))
	v1.Get("/dataset", timeout.NewWithContext(GetDatasetHandler(deps), handlerTimeout))
	v1.Post("/dataset/reload", timeout.NewWithContext(ReloadDatasetHandler(deps), datasetTimeout))
	v1.Post("/dataset/refresh", timeout.NewWithContext(RefreshDatasetHandler(deps), datasetTimeout))

	// Zone IDs contain slashes (America/Denver), so this route captures the
	// rest of the path as a wildcard.
	v1.Get("/zones/+", timeout.NewWithContext(GetZoneHandler(deps), handlerTimeout))

	// GraphQL
	app.Post("/graphql", GraphQLHandler(deps))

	// API documentation (Swagger UI)
	SetupDocs(app)

	// WebSocket
	app.Use("/v1/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/v1/ws", websocket.New(WebSocketHandler(deps.NATS)))
}
