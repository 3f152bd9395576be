package handlers

import (
	"github.com/dcablorh/txsense/internal/middleware"
	"github.com/dcablorh/txsense/internal/models"
	"github.com/dcablorh/txsense/internal/services"
	"github.com/dcablorh/txsense/pkg/logger"
	"github.com/dcablorh/txsense/pkg/metrics"
	"github.com/dcablorh/txsense/pkg/ratelimiter"

	"github.com/gin-gonic/gin"
)

// Router handles HTTP routing setup
type Router struct {
	explainHandler *ExplainHandler
	healthHandler  *HealthHandler
	limiter        *ratelimiter.SlidingWindow
	metrics        *metrics.MetricsCollector
}

// NewRouter creates a new Router instance with all handlers
func NewRouter(explainService services.ExplainServiceInterface, healthHandler *HealthHandler, limiter *ratelimiter.SlidingWindow, collector *metrics.MetricsCollector) *Router {
	return &Router{
		explainHandler: NewExplainHandler(explainService),
		healthHandler:  healthHandler,
		limiter:        limiter,
		metrics:        collector,
	}
}

// SetupRoutes configures all API routes. The quota endpoint stays outside
// the rate limit gateway so a throttled client can still ask how long to wait.
// Explain input is classified before the gateway so invalid input is a 400
// even for a throttled client.
func (r *Router) SetupRoutes(engine *gin.Engine) {
	denied := ratelimiter.OnDenied(admissionDenied)

	api := engine.Group("/api")
	{
		api.GET("/quota", r.explainHandler.Quota)

		limited := api.Group("")
		limited.Use(middleware.MetricsMiddleware(r.metrics))
		{
			limited.POST("/explain",
				r.explainHandler.BindInput,
				r.limiter.Middleware(denied, ratelimiter.SkipWhen(unclassified)),
				r.explainHandler.Explain,
			)
			limited.POST("/random", r.limiter.Middleware(denied), r.explainHandler.Random)
		}
	}
}

// admissionDenied renders a gateway rejection in the shared error envelope
func admissionDenied(c *gin.Context, d ratelimiter.Decision) {
	models.HandleError(c, models.NewAdmissionDeniedError(d.WaitSeconds), logger.GetLogger())
}

// SetupHealthRoutes configures health check routes
func (r *Router) SetupHealthRoutes(engine *gin.Engine) {
	health := engine.Group("/health")
	{
		health.GET("", r.healthHandler.GetHealth)                // Overall health
		health.GET("/live", r.healthHandler.GetLiveness)         // Liveness probe
		health.GET("/ready", r.healthHandler.GetReadiness)       // Readiness probe
		health.GET("/rpc", r.healthHandler.GetRPCHealth)         // Fullnode health
		health.GET("/storage", r.healthHandler.GetStorageHealth) // Rate window store health
	}
}
