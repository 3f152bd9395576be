// Package app wires configuration into the explanation pipeline. The HTTP
// server and the CLI share it.
package app

import (
	"context"
	"fmt"

	"github.com/dcablorh/txsense/internal/config"
	"github.com/dcablorh/txsense/internal/services"
	"github.com/dcablorh/txsense/pkg/logger"
	"github.com/dcablorh/txsense/pkg/metrics"
	"github.com/dcablorh/txsense/pkg/ratelimiter"
	"github.com/dcablorh/txsense/pkg/storage"

	"go.uber.org/zap"
)

// App holds every pipeline component built from one Config
type App struct {
	Config     *config.Config
	Metrics    *metrics.MetricsCollector
	Prometheus *metrics.PrometheusExporter
	Store      storage.Store
	Limiter    *ratelimiter.SlidingWindow
	Sui        *services.SuiClient
	Metadata   *services.MetadataResolver
	Names      *services.NameResolver
	Explain    *services.ExplainService
	Health     *services.HealthChecker

	ownsStore bool
}

// Option customizes Build
type Option func(*options)

type options struct {
	narrator services.NarrativeGenerator
	store    storage.Store
}

// WithNarrator replaces the Gemini narrative generator
func WithNarrator(n services.NarrativeGenerator) Option {
	return func(o *options) { o.narrator = n }
}

// WithStore replaces the store selected by cfg.Storage. Build does not take
// ownership of a supplied store; Close leaves it open.
func WithStore(s storage.Store) Option {
	return func(o *options) { o.store = s }
}

// Build creates all components
func Build(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	log := logger.GetLogger()

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	log.Debug("Initializing metrics collector")
	exporter := metrics.NewPrometheusExporter()
	collector := metrics.NewMetricsCollector(exporter)

	store := o.store
	if store == nil {
		log.Debug("Opening rate window store", zap.String("driver", cfg.Storage.Driver))
		var err error
		store, err = storage.Open(ctx, storage.Options{
			Driver:          cfg.Storage.Driver,
			SQLitePath:      cfg.Storage.SQLitePath,
			MongoURI:        cfg.Storage.MongoURI,
			MongoDatabase:   cfg.Storage.MongoDatabase,
			MongoCollection: cfg.Storage.MongoCollection,
			ConnectTimeout:  cfg.Storage.ConnectTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open rate window store: %w", err)
		}
	}

	limiter := ratelimiter.New(store, cfg.RateLimit.Requests, cfg.RateLimit.Window,
		ratelimiter.WithKey(cfg.RateLimit.StorageKey),
		ratelimiter.WithErrorHandler(func(op string, err error) {
			logger.GetLogger().Warn("Rate window store error", zap.String("operation", op), zap.Error(err))
		}),
	)

	log.Debug("Initializing Sui RPC client", zap.String("endpoint", cfg.RPC.Endpoint))
	sui := services.NewSuiClient(&cfg.RPC, collector)
	aftermath := services.NewAftermathClient(&cfg.Metadata, collector)

	cleanup := services.WithMutexCleanup(cfg.Cache.MutexCleanup)
	metadata := services.NewMetadataResolver(aftermath, sui, cfg.Cache.TTL, cfg.Metadata.IconFallback, collector, cleanup)
	names := services.NewNameResolver(sui, cfg.Cache.TTL, collector, cleanup)

	narrator := o.narrator
	if narrator == nil {
		log.Debug("Initializing narrative generator", zap.String("model", cfg.Narrative.Model))
		gemini, err := services.NewGeminiNarrator(ctx, &cfg.Narrative)
		if err != nil {
			metadata.Stop()
			names.Stop()
			if o.store == nil {
				_ = store.Close()
			}
			return nil, fmt.Errorf("failed to initialize narrative generator: %w", err)
		}
		if cfg.Narrative.APIKey == "" {
			log.Warn("GEMINI_API_KEY not set, explanations will use fallback narratives")
		}
		narrator = gemini
	}

	enricher := services.NewEnricher(sui, metadata, names, narrator, collector)
	explain := services.NewExplainService(enricher, sui, limiter, cfg.Random.CheckpointSpan, cfg.Random.MaxAttempts, collector)

	a := &App{
		Config:     cfg,
		Metrics:    collector,
		Prometheus: exporter,
		Store:      store,
		Limiter:    limiter,
		Sui:        sui,
		Metadata:   metadata,
		Names:      names,
		Explain:    explain,
		Health:     services.NewHealthChecker(sui, store, storageDriver(cfg, o.store)),
		ownsStore:  o.store == nil,
	}
	return a, nil
}

func storageDriver(cfg *config.Config, supplied storage.Store) string {
	if supplied != nil {
		return "custom"
	}
	if cfg.Storage.Driver == "" {
		return storage.DriverSQLite
	}
	return cfg.Storage.Driver
}

// CacheStats reports resolver cache sizes
func (a *App) CacheStats() map[string]interface{} {
	stats := a.Metadata.GetCacheStats()
	for k, v := range a.Names.GetCacheStats() {
		stats[k] = v
	}
	return stats
}

// Close stops background work and closes the store
func (a *App) Close() error {
	a.Metadata.Stop()
	a.Names.Stop()
	if !a.ownsStore {
		return nil
	}
	return a.Store.Close()
}
