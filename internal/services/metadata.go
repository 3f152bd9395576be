package services

import (
	"context"
	"time"

	"github.com/dcablorh/txsense/internal/models"
	"github.com/dcablorh/txsense/pkg/cache"
	"github.com/dcablorh/txsense/pkg/logger"
	"github.com/dcablorh/txsense/pkg/metrics"
	"github.com/dcablorh/txsense/pkg/mutex"

	"go.uber.org/zap"
)

// MetadataResolver resolves coin metadata from a primary source, falling
// back to a secondary source for coins the primary lacks. Each source has
// its own cache; coins a source could not supply are tombstoned there.
type MetadataResolver struct {
	primary        CoinMetadataSource
	secondary      CoinMetadataSource
	primaryName    string
	secondaryName  string
	primaryCache   cache.Store[models.CoinMetadataEntry]
	secondaryCache cache.Store[models.CoinMetadataEntry]
	requestMutex   *mutex.RequestMutex
	iconFallback   map[string]string
	metrics        *metrics.MetricsCollector
}

// NewMetadataResolver creates a resolver. A zero ttl keeps entries for the
// process lifetime; it only applies to caches not supplied through
// WithMetadataCaches. iconFallback is copied.
func NewMetadataResolver(primary, secondary CoinMetadataSource, ttl time.Duration, iconFallback map[string]string, collector *metrics.MetricsCollector, opts ...ResolverOption) *MetadataResolver {
	o := applyResolverOptions(opts)
	if o.primaryCache == nil {
		o.primaryCache = cache.New[models.CoinMetadataEntry](ttl)
	}
	if o.secondaryCache == nil {
		o.secondaryCache = cache.New[models.CoinMetadataEntry](ttl)
	}

	icons := make(map[string]string, len(iconFallback))
	for coinType, url := range iconFallback {
		icons[coinType] = url
	}
	if collector == nil {
		collector = metrics.NewMetricsCollector()
	}
	return &MetadataResolver{
		primary:        primary,
		secondary:      secondary,
		primaryName:    string(models.MetadataSourceAftermath),
		secondaryName:  string(models.MetadataSourceSuiRPC),
		primaryCache:   o.primaryCache,
		secondaryCache: o.secondaryCache,
		requestMutex:   mutex.New(o.mutexCleanup),
		iconFallback:   icons,
		metrics:        collector,
	}
}

// Resolve returns metadata for every coin type some source knows.
// Unresolved coins are absent from the map. It never fails.
func (r *MetadataResolver) Resolve(ctx context.Context, coinTypes []string) map[string]models.CoinMetadataEntry {
	result := make(map[string]models.CoinMetadataEntry)
	keys := uniqueStrings(coinTypes)
	if len(keys) == 0 {
		return result
	}

	pending := r.collect(keys, result, true)
	if len(pending) > 0 {
		unlock := r.requestMutex.LockAll(pending)
		// another resolve may have filled these while we waited
		pending = r.collect(pending, result, false)
		r.fetch(ctx, r.primary, r.primaryName, r.primaryCache, r.uncachedIn(pending, r.primaryCache), result)
		r.fetch(ctx, r.secondary, r.secondaryName, r.secondaryCache, r.needSecondary(pending, result), result)
		unlock()
	}

	for coinType, entry := range result {
		if entry.IconURL == "" {
			if icon, ok := r.iconFallback[coinType]; ok {
				entry.IconURL = icon
				result[coinType] = entry
			}
		}
	}
	return result
}

// collect copies cached answers into result and returns the keys that
// still need a fetch from either source
func (r *MetadataResolver) collect(keys []string, result map[string]models.CoinMetadataEntry, record bool) []string {
	var pending []string
	for _, key := range keys {
		primary, ok := r.primaryCache.Get(key)
		if !ok {
			r.recordCache(record, r.primaryName, false)
			pending = append(pending, key)
			continue
		}
		r.recordCache(record, r.primaryName, true)
		if !primary.Missing {
			result[key] = primary.Value
			continue
		}

		secondary, ok := r.secondaryCache.Get(key)
		if !ok {
			r.recordCache(record, r.secondaryName, false)
			pending = append(pending, key)
			continue
		}
		r.recordCache(record, r.secondaryName, true)
		if !secondary.Missing {
			result[key] = secondary.Value
		}
	}
	return pending
}

func (r *MetadataResolver) uncachedIn(keys []string, c cache.Store[models.CoinMetadataEntry]) []string {
	var out []string
	for _, key := range keys {
		if _, ok := c.Get(key); !ok {
			out = append(out, key)
		}
	}
	return out
}

// needSecondary returns pending keys the primary pass left unresolved and
// the secondary cache has not seen
func (r *MetadataResolver) needSecondary(keys []string, result map[string]models.CoinMetadataEntry) []string {
	var out []string
	for _, key := range keys {
		if _, done := result[key]; done {
			continue
		}
		entry, ok := r.secondaryCache.Get(key)
		if !ok {
			out = append(out, key)
			continue
		}
		if !entry.Missing {
			result[key] = entry.Value
		}
	}
	return out
}

// fetch issues one batched call and caches every position, tombstoning
// gaps. A failed batch tombstones all of its keys.
func (r *MetadataResolver) fetch(ctx context.Context, source CoinMetadataSource, name string, c cache.Store[models.CoinMetadataEntry], keys []string, result map[string]models.CoinMetadataEntry) {
	if len(keys) == 0 || source == nil {
		for _, key := range keys {
			c.Tombstone(key)
		}
		return
	}

	log := logger.GetLogger().WithContext(ctx).WithFields(map[string]interface{}{
		"component": "metadata_resolver",
		"source":    name,
	})

	entries, err := source.FetchCoinMetadata(ctx, keys)
	if err != nil {
		log.Warn("Coin metadata batch failed, tombstoning batch",
			zap.Strings("coin_types", keys),
			zap.Error(err),
		)
		for _, key := range keys {
			c.Tombstone(key)
		}
		return
	}

	resolved := 0
	for i, key := range keys {
		var entry *models.CoinMetadataEntry
		if i < len(entries) {
			entry = entries[i]
		}
		if entry == nil || !entry.Usable() {
			c.Tombstone(key)
			continue
		}
		value := *entry
		value.ID = key
		c.Set(key, value)
		result[key] = value
		resolved++
	}

	log.Debug("Fetched coin metadata batch",
		zap.Int("requested", len(keys)),
		zap.Int("resolved", resolved),
	)
}

func (r *MetadataResolver) recordCache(record bool, source string, hit bool) {
	if !record {
		return
	}
	if hit {
		r.metrics.RecordCacheHit(source)
	} else {
		r.metrics.RecordCacheMiss(source)
	}
}

// GetCacheStats returns cache sizes for monitoring
func (r *MetadataResolver) GetCacheStats() map[string]interface{} {
	return map[string]interface{}{
		r.primaryName + "_cache_size":   r.primaryCache.Size(),
		r.secondaryName + "_cache_size": r.secondaryCache.Size(),
		"metadata_mutex_count":          r.requestMutex.Size(),
	}
}

// Stop releases background cache goroutines
func (r *MetadataResolver) Stop() {
	stopCache(r.primaryCache)
	stopCache(r.secondaryCache)
	r.requestMutex.Stop()
}

// uniqueStrings drops empties and duplicates, keeping first-seen order
func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
