package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/saasops/backend/internal/infrastructure/auth"
	"github.com/saasops/backend/internal/infrastructure/config"
	"github.com/saasops/backend/internal/infrastructure/logger"
	"github.com/saasops/backend/internal/interfaces/http/handler"
	"github.com/saasops/backend/internal/interfaces/http/middleware"
)

// RouteRegistrar defines the interface for registering routes
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// Router manages HTTP route registration
type Router struct {
	engine     *gin.Engine
	apiVersion string
	registrars []RouteRegistrar
}

// RouterOption is a functional option for Router configuration
type RouterOption func(*Router)

// WithAPIVersion sets the API version prefix (e.g., "v1", "v2")
func WithAPIVersion(version string) RouterOption {
	return func(r *Router) {
		r.apiVersion = version
	}
}

// NewRouter creates a new Router instance
func NewRouter(engine *gin.Engine, opts ...RouterOption) *Router {
	r := &Router{
		engine:     engine,
		apiVersion: "v1",
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a RouteRegistrar to be registered later
func (r *Router) Register(registrar RouteRegistrar) *Router {
	r.registrars = append(r.registrars, registrar)
	return r
}

// Setup registers all routes under the versioned API group
func (r *Router) Setup() {
	api := r.engine.Group("/api/" + r.apiVersion)
	for _, registrar := range r.registrars {
		registrar.RegisterRoutes(api)
	}
}

// Engine returns the underlying gin engine
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

// EngineConfig carries the dependencies for building the HTTP engine
type EngineConfig struct {
	Config         *config.Config
	Logger         *zap.Logger
	JWTService     *auth.JWTService
	WebhookHandler *handler.PaymentWebhookHandler
}

// NewEngine builds the gin engine with the shared middleware chain, the
// health endpoint and the webhook route. Webhook deliveries authenticate
// by signature, so the route sits outside the JWT-protected API group and
// skips the body limit in favor of the handler's own payload cap.
func NewEngine(cfg EngineConfig) *gin.Engine {
	if cfg.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(
		middleware.RequestID(),
		logger.GinMiddleware(cfg.Logger),
		logger.Recovery(cfg.Logger),
	)

	corsConfig := middleware.DefaultCORSConfig()
	if len(cfg.Config.HTTP.CORSAllowOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.Config.HTTP.CORSAllowOrigins
	}
	if len(cfg.Config.HTTP.CORSAllowMethods) > 0 {
		corsConfig.AllowMethods = cfg.Config.HTTP.CORSAllowMethods
	}
	if len(cfg.Config.HTTP.CORSAllowHeaders) > 0 {
		corsConfig.AllowHeaders = cfg.Config.HTTP.CORSAllowHeaders
	}
	engine.Use(middleware.CORSWithConfig(corsConfig))

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	})

	if cfg.WebhookHandler != nil {
		engine.POST("/webhooks/payments", cfg.WebhookHandler.HandlePaymentWebhook)
	}

	return engine
}

// NewAPIRouter builds the versioned management API router on top of the
// engine. All registered routes require a valid JWT; body size is capped.
func NewAPIRouter(engine *gin.Engine, cfg EngineConfig) *Router {
	r := NewRouter(engine)

	maxBody := cfg.Config.HTTP.MaxBodySize
	if maxBody <= 0 {
		maxBody = 1 << 20
	}

	r.Register(registrarFunc(func(rg *gin.RouterGroup) {
		rg.Use(
			middleware.BodyLimit(maxBody),
			middleware.JWTAuth(cfg.JWTService, cfg.Logger),
		)
	}))

	return r
}

// registrarFunc adapts a function to the RouteRegistrar interface
type registrarFunc func(rg *gin.RouterGroup)

func (f registrarFunc) RegisterRoutes(rg *gin.RouterGroup) {
	f(rg)
}
