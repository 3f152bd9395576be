package middleware

import (
	"net/http"

	"github.com/dcablorh/txsense/pkg/metrics"

	"github.com/gin-gonic/gin"
)

// MetricsMiddleware counts requests turned away by the rate limit gateway.
// Those never reach the explain pipeline, which records everything else.
func MetricsMiddleware(metricsCollector *metrics.MetricsCollector) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.IsAborted() && c.Writer.Status() == http.StatusTooManyRequests {
			metricsCollector.RecordRateLimited()
		}
	}
}
