package metrics

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCollector(t *testing.T) {
	collector := NewMetricsCollector()

	t.Run("InitialState", func(t *testing.T) {
		metrics := collector.GetMetrics()
		assert.Equal(t, int64(0), metrics.TotalRequests)
		assert.Equal(t, int64(0), metrics.SuccessfulRequests)
		assert.Equal(t, int64(0), metrics.FailedRequests)
		assert.Equal(t, int64(0), metrics.CacheHits)
		assert.Equal(t, int64(0), metrics.CacheMisses)
		assert.Equal(t, time.Duration(0), metrics.MinResponseTime)
	})

	t.Run("RecordRequest", func(t *testing.T) {
		collector.RecordRequest()
		metrics := collector.GetMetrics()
		assert.Equal(t, int64(1), metrics.TotalRequests)
		assert.Equal(t, int64(1), metrics.ActiveRequests)
	})

	t.Run("RecordRequestComplete", func(t *testing.T) {
		duration := 100 * time.Millisecond
		collector.RecordRequestComplete(duration, true)

		metrics := collector.GetMetrics()
		assert.Equal(t, int64(1), metrics.SuccessfulRequests)
		assert.Equal(t, int64(0), metrics.ActiveRequests)
		assert.Equal(t, duration, metrics.AverageResponseTime)
		assert.Equal(t, duration, metrics.MinResponseTime)
		assert.Equal(t, duration, metrics.MaxResponseTime)
	})

	t.Run("CacheMetrics", func(t *testing.T) {
		collector.RecordCacheHit("aftermath")
		collector.RecordCacheHit("suins")
		collector.RecordCacheMiss("aftermath")

		metrics := collector.GetMetrics()
		assert.Equal(t, int64(2), metrics.CacheHits)
		assert.Equal(t, int64(1), metrics.CacheMisses)
		assert.InDelta(t, 66.67, collector.GetCacheHitRatio(), 0.1)
	})

	t.Run("RPCMetrics", func(t *testing.T) {
		duration := 50 * time.Millisecond
		collector.RecordRPCCall("sui_getTransactionBlock", duration, true)
		collector.RecordRPCCall("sui_getTransactionBlock", duration*2, false)

		metrics := collector.GetMetrics()
		assert.Equal(t, int64(2), metrics.RPCCalls)
		assert.Equal(t, int64(1), metrics.RPCFailures)
		assert.Equal(t, duration*3/2, metrics.AverageRPCTime)
	})

	t.Run("LookupsAndNarratives", func(t *testing.T) {
		collector.RecordLookup("transaction")
		collector.RecordLookup("package")
		collector.RecordLookup("package")
		collector.RecordNarrative("transaction", false)
		collector.RecordNarrative("package", true)
		collector.RecordRateLimited()

		metrics := collector.GetMetrics()
		assert.Equal(t, int64(1), metrics.TransactionLookups)
		assert.Equal(t, int64(2), metrics.PackageLookups)
		assert.Equal(t, int64(1), metrics.NarrativeFallbacks)
		assert.Equal(t, int64(1), metrics.RateLimited)
		assert.InDelta(t, 50.0, collector.GetNarrativeFallbackRate(), 0.01)
	})

	t.Run("SuccessRate", func(t *testing.T) {
		collector.Reset()

		collector.RecordRequest()
		collector.RecordRequestComplete(10*time.Millisecond, true)

		collector.RecordRequest()
		collector.RecordRequestComplete(20*time.Millisecond, true)

		collector.RecordRequest()
		collector.RecordRequestComplete(30*time.Millisecond, false)

		assert.InDelta(t, 66.67, collector.GetSuccessRate(), 0.1)
		assert.Equal(t, 20*time.Millisecond, collector.GetMetrics().AverageResponseTime)
	})
}

func TestMetricsCollectorConcurrency(t *testing.T) {
	collector := NewMetricsCollector()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			collector.RecordRequest()
			collector.RecordCacheMiss("suins")
			collector.RecordRequestComplete(time.Millisecond, true)
		}()
	}
	wg.Wait()

	metrics := collector.GetMetrics()
	assert.Equal(t, int64(50), metrics.TotalRequests)
	assert.Equal(t, int64(50), metrics.CacheMisses)
	assert.Equal(t, int64(0), metrics.ActiveRequests)
}

func TestPrometheusExporter(t *testing.T) {
	exporter := NewPrometheusExporter()
	collector := NewMetricsCollector(exporter)

	collector.RecordCacheHit("aftermath")
	collector.RecordCacheMiss("aftermath")
	collector.RecordCacheMiss("aftermath")
	collector.RecordRPCCall("suix_getCoinMetadata", 5*time.Millisecond, false)
	collector.RecordRateLimited()

	assert.Equal(t, 2.0, testutil.ToFloat64(exporter.cache.WithLabelValues("aftermath", "miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(exporter.rpc.WithLabelValues("suix_getCoinMetadata", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(exporter.rateLimited))

	rec := httptest.NewRecorder()
	exporter.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "txsense_rate_limited_total 1")
}
