// Package http serves the molbayes HTTP API: model training, prediction,
// similarity and the model store, plus health probes and /metrics.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/turtacn/molbayes/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/molbayes/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/molbayes/internal/interfaces/http/handlers"
	"github.com/turtacn/molbayes/internal/interfaces/http/middleware"
)

// RouterConfig aggregates the handler and middleware dependencies of the
// route tree.
type RouterConfig struct {
	ModelHandler  *handlers.ModelHandler
	HealthHandler *handlers.HealthHandler

	Logging      middleware.LoggingConfig
	MaxBodyBytes int64

	Logger           logging.Logger
	MetricsCollector prometheus.MetricsCollector
}

// NewRouter constructs the route tree.  Nil handlers leave their routes
// unregistered.
func NewRouter(cfg RouterConfig) http.Handler {
	gin.SetMode(gin.ReleaseMode)
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNopLogger()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogging(cfg.Logger, cfg.Logging))
	if cfg.MetricsCollector != nil {
		r.Use(middleware.Metrics(prometheus.NewHTTPMetrics(cfg.MetricsCollector)))
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.MetricsCollector.Gatherer(), promhttp.HandlerOpts{})))
	}

	if h := cfg.HealthHandler; h != nil {
		r.GET("/healthz", h.Liveness)
		r.GET("/readyz", h.Readiness)
	}

	api := r.Group("/api/v1")
	api.Use(middleware.BodyLimit(cfg.MaxBodyBytes))
	registerModelRoutes(api, cfg.ModelHandler)

	return r
}

func registerModelRoutes(r *gin.RouterGroup, h *handlers.ModelHandler) {
	if h == nil {
		return
	}
	models := r.Group("/models")
	models.GET("", h.List)
	models.POST("", h.Train)
	models.GET("/:id", h.Get)
	models.DELETE("/:id", h.Delete)
	models.GET("/:id/raw", h.Raw)
	models.POST("/:id/predict", h.PredictStored)

	r.POST("/predict", h.PredictInline)
	r.POST("/similarity", h.Similarity)
}
