package handlers

import (
	"time"

	"SafeCircle/internal/service"
	"SafeCircle/pkg/cache"
	"SafeCircle/pkg/metrics"
	"SafeCircle/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Options struct {
	APIPrefix      string
	RateLimit      middleware.RateLimiterConfig // Rate 为空时不限流
	IdempotencyTTL time.Duration
}

type Handlers struct {
	svc     *service.Service
	cache   cache.Cache
	metrics *metrics.Metrics
	lg      *zap.Logger
	opts    Options
}

func NewHandlers(svc *service.Service, c cache.Cache, m *metrics.Metrics, lg *zap.Logger, opts Options) *Handlers {
	if opts.APIPrefix == "" {
		opts.APIPrefix = "/api"
	}
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Handlers{svc: svc, cache: c, metrics: m, lg: lg, opts: opts}
}

func (h *Handlers) Register(engine *gin.Engine) {
	if h.metrics != nil {
		engine.Use(metrics.Middleware(h.metrics))
		engine.GET("/metrics", h.metrics.GinHandler())
	}
	engine.GET("/", h.HealthCheck)
	engine.POST("/response", h.handleResponse)

	r := engine.Group(h.opts.APIPrefix)
	if h.opts.RateLimit.Rate != "" {
		r.Use(h.rateLimiter().Middleware())
	}

	// Register System Module Routes
	h.registerSystemRoutes(r)

	// Register Business Module Routes
	h.registerDeviceRoutes(r)
	h.registerSOSRoutes(r)
	h.registerCircleRoutes(r)
}

func (h *Handlers) rateLimiter() *middleware.RateLimiter {
	store, err := middleware.StoreFromCache(h.cache)
	if err != nil {
		h.lg.Warn("rate limit store unavailable, falling back to memory", zap.Error(err))
		store = nil
	}
	cfg := h.opts.RateLimit
	cfg.SkipPaths = append(cfg.SkipPaths, h.opts.APIPrefix+"/system/health")
	rl := middleware.NewRateLimiter(cfg, store)
	if h.metrics != nil {
		rl.WithObserver(middleware.NewPrometheusObserver(h.metrics.Registerer()))
	}
	return rl
}

func (h *Handlers) registerSystemRoutes(r *gin.RouterGroup) {
	system := r.Group("system")
	{
		system.GET("/health", h.HealthCheck)
	}
}

// Device & Location Module
func (h *Handlers) registerDeviceRoutes(r *gin.RouterGroup) {
	r.POST("/register", h.handleRegister)

	r.POST("/location", h.handleReportLocation)

	r.GET("/locations", h.handleListLocations)

	r.GET("/locations/:userId", h.handleGetLocation)
}

// SOS Module
func (h *Handlers) registerSOSRoutes(r *gin.RouterGroup) {
	sos := r.Group("sos")
	{
		sos.POST("", middleware.IdempotencyMiddleware(h.cache, middleware.IdempotencyConfig{
			TTL:    h.opts.IdempotencyTTL,
			Logger: h.lg,
		}), h.handleCreateSOS)

		sos.GET("/active", h.handleListActiveSOS)

		sos.GET("/:uuid", h.handleGetSOS)

		sos.GET("/:uuid/stream", h.handleStreamSOS)

		sos.PUT("/:uuid", h.handleUpdateSOS)

		sos.PUT("/:uuid/resolve", h.handleResolveSOS)
	}
}

// Circle Module
func (h *Handlers) registerCircleRoutes(r *gin.RouterGroup) {
	r.POST("/circle", h.handleAddCircleSubject)
}
