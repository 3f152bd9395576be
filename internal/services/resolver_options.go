package services

import (
	"time"

	"github.com/dcablorh/txsense/internal/models"
	"github.com/dcablorh/txsense/pkg/cache"
)

// ResolverOption customizes the caches and request mutex of a resolver
type ResolverOption func(*resolverOptions)

type resolverOptions struct {
	primaryCache   cache.Store[models.CoinMetadataEntry]
	secondaryCache cache.Store[models.CoinMetadataEntry]
	nameCache      cache.Store[string]
	mutexCleanup   time.Duration
}

// WithMetadataCaches replaces the per-source caches of a MetadataResolver
func WithMetadataCaches(primary, secondary cache.Store[models.CoinMetadataEntry]) ResolverOption {
	return func(o *resolverOptions) {
		o.primaryCache = primary
		o.secondaryCache = secondary
	}
}

// WithNameCache replaces the cache of a NameResolver
func WithNameCache(c cache.Store[string]) ResolverOption {
	return func(o *resolverOptions) { o.nameCache = c }
}

// WithMutexCleanup drops per-key request mutexes idle for longer than d.
// Zero keeps them for the process lifetime.
func WithMutexCleanup(d time.Duration) ResolverOption {
	return func(o *resolverOptions) { o.mutexCleanup = d }
}

func applyResolverOptions(opts []ResolverOption) resolverOptions {
	var o resolverOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// stopCache ends a cache's background work when it has any
func stopCache(c interface{}) {
	if s, ok := c.(interface{ Stop() }); ok {
		s.Stop()
	}
}
