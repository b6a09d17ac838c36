package router

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"mindpalace/backend/internal/api"
	"mindpalace/backend/pkg/di"
	"mindpalace/backend/pkg/errors"
	"mindpalace/backend/pkg/logger"
	"mindpalace/backend/pkg/middleware"
)

// Version is reported by /health.
var Version = "dev"

// Router is the main router for the application
type Router struct {
	Engine    *gin.Engine
	Container *di.Container
	Logger    *logger.Logger
}

// New creates the engine and installs the global middleware chain. ctx
// bounds the rate limiter's background eviction.
func New(ctx context.Context, container *di.Container) *Router {
	cfg := container.Config
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(middleware.RequestID())
	engine.Use(logger.Middleware(container.Logger))
	engine.Use(errors.ErrorHandler())
	engine.Use(errors.RecoveryWithLogger())
	engine.Use(middleware.CORS(cfg.Realtime.AllowedOrigins))
	engine.Use(middleware.BodyLimit(cfg.Security.MaxBodySize))

	rateLimiter := middleware.NewRateLimiter(container.Logger, middleware.RateLimiterOptions{
		Limit: rate.Limit(cfg.Security.RateLimit),
		Burst: cfg.Security.RateLimitBurst,
		Skip:  unlimited,
	})
	engine.Use(rateLimiter.Middleware())
	go rateLimiter.Run(ctx)

	return &Router{
		Engine:    engine,
		Container: container,
		Logger:    container.Logger,
	}
}

// unlimited exempts probes, scrapes and the websocket upgrade; sockets
// carry their own per-connection limiter.
func unlimited(c *gin.Context) bool {
	switch c.Request.URL.Path {
	case "/ws", "/health", "/metrics":
		return true
	}
	return strings.HasPrefix(c.Request.URL.Path, "/api/docs")
}

// SetupRoutes registers all application routes
func (r *Router) SetupRoutes() {
	c := r.Container

	if schema := c.Config.Observability.OpenAPISchema; schema != "" {
		r.AddOpenAPIValidation(schema)
	}

	api.NewHealthHandler(c.Health, c.Gateway.Hub(), Version).RegisterHealthRoutes(r.Engine)
	r.Engine.GET("/metrics", gin.WrapH(c.Telemetry.Handler()))
	r.Engine.GET("/ws", c.Gateway.ServeWs)

	group := r.Engine.Group("/api")
	api.NewModerationHandler(c.Moderation).RegisterRoutes(group)
	api.NewCounsellorHandler(c.Counsellor).RegisterRoutes(group)
	api.NewLibraryHandler(c.Library).RegisterRoutes(group)
	api.NewHistoryHandler(c.History).RegisterRoutes(group)
	api.NewIdentityHandler(c.Anon).RegisterRoutes(group)
}
