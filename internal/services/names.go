package services

import (
	"context"
	"sync"
	"time"

	"github.com/dcablorh/txsense/pkg/cache"
	"github.com/dcablorh/txsense/pkg/logger"
	"github.com/dcablorh/txsense/pkg/metrics"
	"github.com/dcablorh/txsense/pkg/mutex"

	"go.uber.org/zap"
)

const nameCacheSource = "suins"

// NameResolver maps addresses to SuiNS names. Lookups for distinct
// addresses run concurrently; failures and empty results are cached as
// "no name" so they are not retried.
type NameResolver struct {
	lookup       NameLookup
	cache        cache.Store[string]
	requestMutex *mutex.RequestMutex
	metrics      *metrics.MetricsCollector
}

// NewNameResolver creates a resolver backed by lookup. ttl applies to the
// default cache only.
func NewNameResolver(lookup NameLookup, ttl time.Duration, collector *metrics.MetricsCollector, opts ...ResolverOption) *NameResolver {
	o := applyResolverOptions(opts)
	if o.nameCache == nil {
		o.nameCache = cache.New[string](ttl)
	}
	if collector == nil {
		collector = metrics.NewMetricsCollector()
	}
	return &NameResolver{
		lookup:       lookup,
		cache:        o.nameCache,
		requestMutex: mutex.New(o.mutexCleanup),
		metrics:      collector,
	}
}

// Resolve returns an entry for every distinct address, nil meaning no name
func (r *NameResolver) Resolve(ctx context.Context, addresses []string) map[string]*string {
	keys := uniqueStrings(addresses)
	result := make(map[string]*string, len(keys))

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, address := range keys {
		if name, ok := r.cached(address); ok {
			r.metrics.RecordCacheHit(nameCacheSource)
			result[address] = name
			continue
		}
		r.metrics.RecordCacheMiss(nameCacheSource)

		wg.Add(1)
		go func(address string) {
			defer wg.Done()
			name := r.resolveOne(ctx, address)
			mu.Lock()
			result[address] = name
			mu.Unlock()
		}(address)
	}
	wg.Wait()

	return result
}

func (r *NameResolver) resolveOne(ctx context.Context, address string) *string {
	r.requestMutex.Lock(address)
	defer r.requestMutex.Unlock(address)

	if name, ok := r.cached(address); ok {
		return name
	}

	name, err := r.lookup.ResolveName(ctx, address)
	if err != nil {
		logger.GetLogger().WithContext(ctx).Warn("Name lookup failed",
			zap.String("address", address),
			zap.Error(err),
		)
		r.cache.Tombstone(address)
		return nil
	}
	if name == nil || *name == "" {
		r.cache.Tombstone(address)
		return nil
	}

	r.cache.Set(address, *name)
	return name
}

func (r *NameResolver) cached(address string) (*string, bool) {
	entry, ok := r.cache.Get(address)
	if !ok {
		return nil, false
	}
	if entry.Missing {
		return nil, true
	}
	name := entry.Value
	return &name, true
}

// GetCacheStats returns cache sizes for monitoring
func (r *NameResolver) GetCacheStats() map[string]interface{} {
	return map[string]interface{}{
		"name_cache_size":  r.cache.Size(),
		"name_mutex_count": r.requestMutex.Size(),
	}
}

// Stop releases background cache goroutines
func (r *NameResolver) Stop() {
	stopCache(r.cache)
	r.requestMutex.Stop()
}
