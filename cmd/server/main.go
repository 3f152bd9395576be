package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dcablorh/txsense/internal/app"
	"github.com/dcablorh/txsense/internal/config"
	"github.com/dcablorh/txsense/internal/handlers"
	"github.com/dcablorh/txsense/internal/middleware"
	"github.com/dcablorh/txsense/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	serviceName = "txsense"
	version     = "1.0.0"

	slowRequestThreshold = 30 * time.Second
	shutdownTimeout      = 30 * time.Second
)

// Server represents the main application server
type Server struct {
	httpServer *http.Server
	config     *config.Config
	app        *app.App
	router     *handlers.Router
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	loggerConfig := &logger.Config{
		Level:       cfg.Logging.Level,
		Environment: cfg.Logging.Environment,
		Encoding:    cfg.Logging.Encoding,
		OutputPaths: cfg.Logging.OutputPaths,
		Service:     serviceName,
		Version:     version,
	}

	if err := logger.Initialize(loggerConfig); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log := logger.GetLogger()

	log.Info("Starting txsense server",
		zap.String("host", cfg.Server.Host),
		zap.String("port", cfg.Server.Port),
		zap.String("rpc_endpoint", cfg.RPC.Endpoint),
		zap.String("storage_driver", cfg.Storage.Driver),
		zap.Duration("cache_ttl", cfg.Cache.TTL),
		zap.Int("rate_limit_requests", cfg.RateLimit.Requests),
		zap.Duration("rate_limit_window", cfg.RateLimit.Window),
		zap.String("narrative_model", cfg.Narrative.Model),
		zap.String("log_level", cfg.Logging.Level),
		zap.String("environment", cfg.Logging.Environment),
	)

	server, err := NewServer(context.Background(), cfg)
	if err != nil {
		log.Fatal("Failed to create server", zap.Error(err))
	}

	if err := server.Start(); err != nil {
		log.Fatal("Server failed to start", zap.Error(err))
	}
}

// NewServer creates a new server instance with all dependencies
func NewServer(ctx context.Context, cfg *config.Config, opts ...app.Option) (*Server, error) {
	log := logger.GetLogger()

	log.Info("Initializing server components")

	a, err := app.Build(ctx, cfg, opts...)
	if err != nil {
		return nil, err
	}

	log.Debug("Testing RPC connection health")
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := a.Sui.Ping(pingCtx); err != nil {
		log.Warn("Sui RPC health check failed", zap.Error(err))
	} else {
		log.Info("Sui RPC connection healthy")
	}
	cancel()

	healthHandler := handlers.NewHealthHandler(a.Health, version)
	router := handlers.NewRouter(a.Explain, healthHandler, a.Limiter, a.Metrics)

	log.Info("Server components initialized successfully")

	return &Server{
		config: cfg,
		app:    a,
		router: router,
	}, nil
}

// Engine builds the gin engine with middleware and routes
func (s *Server) Engine() *gin.Engine {
	engine := gin.New()
	s.setupMiddleware(engine)
	s.setupRoutes(engine)
	return engine
}

// Start starts the HTTP server with graceful shutdown handling
func (s *Server) Start() error {
	log := logger.GetLogger()

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", s.config.Server.Host, s.config.Server.Port),
		Handler:           s.Engine(),
		ReadTimeout:       s.config.Server.ReadTimeout,
		WriteTimeout:      s.config.Server.WriteTimeout,
		IdleTimeout:       s.config.Server.IdleTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		MaxHeaderBytes:    1 << 20,
		TLSNextProto:      make(map[string]func(*http.Server, *tls.Conn, http.Handler)),
	}

	log.Info("HTTP server configured",
		zap.String("address", s.httpServer.Addr),
		zap.Duration("read_timeout", s.config.Server.ReadTimeout),
		zap.Duration("write_timeout", s.config.Server.WriteTimeout),
		zap.Duration("idle_timeout", s.config.Server.IdleTimeout),
	)

	go func() {
		log.Info("Starting HTTP server", zap.String("address", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	return s.waitForShutdown()
}

// setupMiddleware configures the middleware stack
func (s *Server) setupMiddleware(engine *gin.Engine) {
	// Recovery middleware with structured logging (should be first)
	engine.Use(logger.RecoveryMiddleware())
	engine.Use(logger.LoggingMiddleware())

	engine.Use(middleware.PerformanceMiddleware(slowRequestThreshold))
	engine.Use(middleware.RequestSizeMiddleware())
	engine.Use(middleware.ConcurrencyMiddleware(s.app.Metrics))

	engine.Use(s.corsMiddleware())
}

// setupRoutes configures all application routes
func (s *Server) setupRoutes(engine *gin.Engine) {
	s.router.SetupHealthRoutes(engine)
	s.router.SetupRoutes(engine)

	engine.GET("/metrics", s.metricsHandler)
	engine.GET("/metrics/prometheus", gin.WrapH(s.app.Prometheus.Handler()))
	engine.GET("/status", s.statusHandler)
}

// corsMiddleware adds CORS headers
func (s *Server) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// metricsHandler reports the collector snapshot and cache sizes
func (s *Server) metricsHandler(c *gin.Context) {
	m := s.app.Metrics
	c.JSON(http.StatusOK, gin.H{
		"service": serviceName,
		"version": version,
		"performance": gin.H{
			"metrics":                 m.GetMetrics(),
			"cache_hit_ratio":         m.GetCacheHitRatio(),
			"success_rate":            m.GetSuccessRate(),
			"narrative_fallback_rate": m.GetNarrativeFallbackRate(),
			"uptime":                  m.GetUptime().String(),
		},
		"cache": s.app.CacheStats(),
	})
}

// statusHandler provides detailed status information
func (s *Server) statusHandler(c *gin.Context) {
	rpcHealthy := s.app.Sui.Ping(c.Request.Context()) == nil

	c.JSON(http.StatusOK, gin.H{
		"service":      serviceName,
		"status":       "running",
		"rpc_endpoint": s.app.Sui.Endpoint(),
		"rpc_healthy":  rpcHealthy,
		"rate_limit": gin.H{
			"requests": s.app.Limiter.Limit(),
			"window":   s.app.Limiter.Window().String(),
		},
		"uptime":  s.app.Metrics.GetUptime().String(),
		"version": version,
	})
}

// waitForShutdown waits for interrupt signal and performs graceful shutdown
func (s *Server) waitForShutdown() error {
	log := logger.GetLogger()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	log.Info("Received shutdown signal", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	log.Info("Shutting down HTTP server", zap.Duration("timeout", shutdownTimeout))

	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
		return err
	}

	s.cleanup()

	log.Info("Server gracefully stopped")
	return nil
}

// cleanup performs cleanup of all services
func (s *Server) cleanup() {
	log := logger.GetLogger()

	log.Info("Cleaning up services...")

	if err := s.app.Close(); err != nil {
		log.Error("Error closing rate window store", zap.Error(err))
	}

	if err := logger.GetLogger().Sync(); err != nil {
		// Don't log this error as logger might be closed
		fmt.Printf("Error syncing logger: %v\n", err)
	}

	log.Info("Cleanup completed")
}
