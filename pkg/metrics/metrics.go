package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics holds performance metrics for the application
type Metrics struct {
	// Request metrics
	TotalRequests      int64 `json:"total_requests"`
	SuccessfulRequests int64 `json:"successful_requests"`
	FailedRequests     int64 `json:"failed_requests"`
	RateLimited        int64 `json:"rate_limited"`

	// Response time metrics
	AverageResponseTime time.Duration `json:"average_response_time"`
	MinResponseTime     time.Duration `json:"min_response_time"`
	MaxResponseTime     time.Duration `json:"max_response_time"`

	// Lookup metrics
	TransactionLookups int64 `json:"transaction_lookups"`
	PackageLookups     int64 `json:"package_lookups"`

	// Cache metrics
	CacheHits   int64 `json:"cache_hits"`
	CacheMisses int64 `json:"cache_misses"`

	// RPC metrics
	RPCCalls       int64         `json:"rpc_calls"`
	RPCFailures    int64         `json:"rpc_failures"`
	AverageRPCTime time.Duration `json:"average_rpc_time"`

	// Narrative metrics
	NarrativeCalls     int64 `json:"narrative_calls"`
	NarrativeFallbacks int64 `json:"narrative_fallbacks"`

	// Concurrency metrics
	ActiveRequests int64 `json:"active_requests"`

	totalResponseTime time.Duration
	completed         int64
	totalRPCTime      time.Duration
	mutex             sync.RWMutex
}

// Observer receives every recorded event. The Prometheus exporter implements it.
type Observer interface {
	ObserveRequest(duration time.Duration, success bool)
	ObserveLookup(kind string)
	ObserveCache(source string, hit bool)
	ObserveRPC(method string, duration time.Duration, success bool)
	ObserveNarrative(kind string, fallback bool)
	ObserveRateLimited()
}

// MetricsCollector provides thread-safe metrics collection
type MetricsCollector struct {
	metrics   *Metrics
	startTime time.Time
	observers []Observer
}

const maxDuration = time.Duration(^uint64(0) >> 1)

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector(observers ...Observer) *MetricsCollector {
	return &MetricsCollector{
		metrics: &Metrics{
			MinResponseTime: maxDuration,
		},
		startTime: time.Now(),
		observers: observers,
	}
}

// RecordRequest records a new request
func (mc *MetricsCollector) RecordRequest() {
	atomic.AddInt64(&mc.metrics.TotalRequests, 1)
	atomic.AddInt64(&mc.metrics.ActiveRequests, 1)
}

// RecordRequestComplete records request completion
func (mc *MetricsCollector) RecordRequestComplete(duration time.Duration, success bool) {
	atomic.AddInt64(&mc.metrics.ActiveRequests, -1)

	if success {
		atomic.AddInt64(&mc.metrics.SuccessfulRequests, 1)
	} else {
		atomic.AddInt64(&mc.metrics.FailedRequests, 1)
	}

	mc.metrics.mutex.Lock()
	mc.metrics.totalResponseTime += duration
	mc.metrics.completed++
	if duration < mc.metrics.MinResponseTime {
		mc.metrics.MinResponseTime = duration
	}
	if duration > mc.metrics.MaxResponseTime {
		mc.metrics.MaxResponseTime = duration
	}
	mc.metrics.AverageResponseTime = mc.metrics.totalResponseTime / time.Duration(mc.metrics.completed)
	mc.metrics.mutex.Unlock()

	for _, o := range mc.observers {
		o.ObserveRequest(duration, success)
	}
}

// RecordRateLimited records a request rejected by admission control
func (mc *MetricsCollector) RecordRateLimited() {
	atomic.AddInt64(&mc.metrics.RateLimited, 1)
	for _, o := range mc.observers {
		o.ObserveRateLimited()
	}
}

// RecordLookup records a classified lookup; kind is "transaction" or "package"
func (mc *MetricsCollector) RecordLookup(kind string) {
	switch kind {
	case "transaction":
		atomic.AddInt64(&mc.metrics.TransactionLookups, 1)
	case "package":
		atomic.AddInt64(&mc.metrics.PackageLookups, 1)
	}
	for _, o := range mc.observers {
		o.ObserveLookup(kind)
	}
}

// RecordCacheHit records a cache hit for the named source
func (mc *MetricsCollector) RecordCacheHit(source string) {
	atomic.AddInt64(&mc.metrics.CacheHits, 1)
	for _, o := range mc.observers {
		o.ObserveCache(source, true)
	}
}

// RecordCacheMiss records a cache miss for the named source
func (mc *MetricsCollector) RecordCacheMiss(source string) {
	atomic.AddInt64(&mc.metrics.CacheMisses, 1)
	for _, o := range mc.observers {
		o.ObserveCache(source, false)
	}
}

// RecordRPCCall records an upstream call
func (mc *MetricsCollector) RecordRPCCall(method string, duration time.Duration, success bool) {
	atomic.AddInt64(&mc.metrics.RPCCalls, 1)
	if !success {
		atomic.AddInt64(&mc.metrics.RPCFailures, 1)
	}

	mc.metrics.mutex.Lock()
	mc.metrics.totalRPCTime += duration
	if calls := atomic.LoadInt64(&mc.metrics.RPCCalls); calls > 0 {
		mc.metrics.AverageRPCTime = mc.metrics.totalRPCTime / time.Duration(calls)
	}
	mc.metrics.mutex.Unlock()

	for _, o := range mc.observers {
		o.ObserveRPC(method, duration, success)
	}
}

// RecordNarrative records a narrative generation; fallback marks degraded output
func (mc *MetricsCollector) RecordNarrative(kind string, fallback bool) {
	atomic.AddInt64(&mc.metrics.NarrativeCalls, 1)
	if fallback {
		atomic.AddInt64(&mc.metrics.NarrativeFallbacks, 1)
	}
	for _, o := range mc.observers {
		o.ObserveNarrative(kind, fallback)
	}
}

// GetMetrics returns a copy of current metrics
func (mc *MetricsCollector) GetMetrics() *Metrics {
	mc.metrics.mutex.RLock()
	defer mc.metrics.mutex.RUnlock()

	minResponse := mc.metrics.MinResponseTime
	if minResponse == maxDuration {
		minResponse = 0
	}

	return &Metrics{
		TotalRequests:       atomic.LoadInt64(&mc.metrics.TotalRequests),
		SuccessfulRequests:  atomic.LoadInt64(&mc.metrics.SuccessfulRequests),
		FailedRequests:      atomic.LoadInt64(&mc.metrics.FailedRequests),
		RateLimited:         atomic.LoadInt64(&mc.metrics.RateLimited),
		AverageResponseTime: mc.metrics.AverageResponseTime,
		MinResponseTime:     minResponse,
		MaxResponseTime:     mc.metrics.MaxResponseTime,
		TransactionLookups:  atomic.LoadInt64(&mc.metrics.TransactionLookups),
		PackageLookups:      atomic.LoadInt64(&mc.metrics.PackageLookups),
		CacheHits:           atomic.LoadInt64(&mc.metrics.CacheHits),
		CacheMisses:         atomic.LoadInt64(&mc.metrics.CacheMisses),
		RPCCalls:            atomic.LoadInt64(&mc.metrics.RPCCalls),
		RPCFailures:         atomic.LoadInt64(&mc.metrics.RPCFailures),
		AverageRPCTime:      mc.metrics.AverageRPCTime,
		NarrativeCalls:      atomic.LoadInt64(&mc.metrics.NarrativeCalls),
		NarrativeFallbacks:  atomic.LoadInt64(&mc.metrics.NarrativeFallbacks),
		ActiveRequests:      atomic.LoadInt64(&mc.metrics.ActiveRequests),
	}
}

// GetUptime returns the uptime since metrics collection started
func (mc *MetricsCollector) GetUptime() time.Duration {
	mc.metrics.mutex.RLock()
	defer mc.metrics.mutex.RUnlock()
	return time.Since(mc.startTime)
}

// Reset resets all metrics
func (mc *MetricsCollector) Reset() {
	mc.metrics.mutex.Lock()
	defer mc.metrics.mutex.Unlock()

	for _, counter := range []*int64{
		&mc.metrics.TotalRequests,
		&mc.metrics.SuccessfulRequests,
		&mc.metrics.FailedRequests,
		&mc.metrics.RateLimited,
		&mc.metrics.TransactionLookups,
		&mc.metrics.PackageLookups,
		&mc.metrics.CacheHits,
		&mc.metrics.CacheMisses,
		&mc.metrics.RPCCalls,
		&mc.metrics.RPCFailures,
		&mc.metrics.NarrativeCalls,
		&mc.metrics.NarrativeFallbacks,
		&mc.metrics.ActiveRequests,
	} {
		atomic.StoreInt64(counter, 0)
	}

	mc.metrics.AverageResponseTime = 0
	mc.metrics.MinResponseTime = maxDuration
	mc.metrics.MaxResponseTime = 0
	mc.metrics.AverageRPCTime = 0
	mc.metrics.totalResponseTime = 0
	mc.metrics.completed = 0
	mc.metrics.totalRPCTime = 0

	mc.startTime = time.Now()
}

func percentage(part, total int64) float64 {
	if total == 0 {
		return 0.0
	}
	return float64(part) / float64(total) * 100.0
}

// GetCacheHitRatio returns the cache hit ratio as a percentage
func (mc *MetricsCollector) GetCacheHitRatio() float64 {
	hits := atomic.LoadInt64(&mc.metrics.CacheHits)
	return percentage(hits, hits+atomic.LoadInt64(&mc.metrics.CacheMisses))
}

// GetSuccessRate returns the success rate as a percentage
func (mc *MetricsCollector) GetSuccessRate() float64 {
	return percentage(atomic.LoadInt64(&mc.metrics.SuccessfulRequests), atomic.LoadInt64(&mc.metrics.TotalRequests))
}

// GetNarrativeFallbackRate returns the share of narratives that degraded to fallback text
func (mc *MetricsCollector) GetNarrativeFallbackRate() float64 {
	return percentage(atomic.LoadInt64(&mc.metrics.NarrativeFallbacks), atomic.LoadInt64(&mc.metrics.NarrativeCalls))
}
