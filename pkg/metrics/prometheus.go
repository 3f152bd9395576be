package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusExporter mirrors collector events into a private registry
type PrometheusExporter struct {
	registry    *prometheus.Registry
	requests    *prometheus.CounterVec
	duration    prometheus.Histogram
	lookups     *prometheus.CounterVec
	cache       *prometheus.CounterVec
	rpc         *prometheus.CounterVec
	rpcDuration *prometheus.HistogramVec
	narratives  *prometheus.CounterVec
	rateLimited prometheus.Counter
}

// NewPrometheusExporter registers the txsense metric families
func NewPrometheusExporter() *PrometheusExporter {
	e := &PrometheusExporter{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "txsense",
			Name:      "requests_total",
			Help:      "Completed lookups by outcome.",
		}, []string{"success"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "txsense",
			Name:      "request_duration_seconds",
			Help:      "End-to-end lookup latency.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "txsense",
			Name:      "lookups_total",
			Help:      "Classified lookups by kind.",
		}, []string{"kind"}),
		cache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "txsense",
			Name:      "cache_requests_total",
			Help:      "Cache lookups by source and result.",
		}, []string{"source", "result"}),
		rpc: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "txsense",
			Name:      "rpc_calls_total",
			Help:      "Upstream calls by method and outcome.",
		}, []string{"method", "success"}),
		rpcDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "txsense",
			Name:      "rpc_duration_seconds",
			Help:      "Upstream call latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		narratives: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "txsense",
			Name:      "narratives_total",
			Help:      "Narratives generated by kind and whether fallback text was used.",
		}, []string{"kind", "fallback"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "txsense",
			Name:      "rate_limited_total",
			Help:      "Requests refused by the sliding window.",
		}),
	}

	e.registry.MustRegister(
		e.requests, e.duration, e.lookups, e.cache,
		e.rpc, e.rpcDuration, e.narratives, e.rateLimited,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return e
}

// Registry exposes the underlying registry
func (e *PrometheusExporter) Registry() *prometheus.Registry { return e.registry }

// Handler serves the text exposition format
func (e *PrometheusExporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

func (e *PrometheusExporter) ObserveRequest(duration time.Duration, success bool) {
	e.requests.WithLabelValues(strconv.FormatBool(success)).Inc()
	e.duration.Observe(duration.Seconds())
}

func (e *PrometheusExporter) ObserveLookup(kind string) {
	e.lookups.WithLabelValues(kind).Inc()
}

func (e *PrometheusExporter) ObserveCache(source string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	e.cache.WithLabelValues(source, result).Inc()
}

func (e *PrometheusExporter) ObserveRPC(method string, duration time.Duration, success bool) {
	e.rpc.WithLabelValues(method, strconv.FormatBool(success)).Inc()
	e.rpcDuration.WithLabelValues(method).Observe(duration.Seconds())
}

func (e *PrometheusExporter) ObserveNarrative(kind string, fallback bool) {
	e.narratives.WithLabelValues(kind, strconv.FormatBool(fallback)).Inc()
}

func (e *PrometheusExporter) ObserveRateLimited() {
	e.rateLimited.Inc()
}
