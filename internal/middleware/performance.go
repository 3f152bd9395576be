package middleware

import (
	"strconv"
	"time"

	"github.com/dcablorh/txsense/pkg/logger"
	"github.com/dcablorh/txsense/pkg/metrics"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// timingWriter stamps response time headers just before the first byte is
// written, since headers set after c.Next() are already flushed
type timingWriter struct {
	gin.ResponseWriter
	start   time.Time
	stamped bool
}

func (w *timingWriter) stamp() {
	if w.stamped {
		return
	}
	w.stamped = true
	duration := time.Since(w.start)
	w.Header().Set("X-Response-Time", duration.String())
	w.Header().Set("X-Response-Time-Ms", strconv.FormatInt(duration.Milliseconds(), 10))
}

func (w *timingWriter) WriteHeaderNow() {
	w.stamp()
	w.ResponseWriter.WriteHeaderNow()
}

func (w *timingWriter) Write(data []byte) (int, error) {
	w.stamp()
	return w.ResponseWriter.Write(data)
}

func (w *timingWriter) WriteString(s string) (int, error) {
	w.stamp()
	return w.ResponseWriter.WriteString(s)
}

// PerformanceMiddleware adds response time headers and warns about requests
// slower than slowThreshold. Explain requests wait on the narrative
// generator, so the threshold is generous.
func PerformanceMiddleware(slowThreshold time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Writer = &timingWriter{ResponseWriter: c.Writer, start: startTime}

		c.Next()

		duration := time.Since(startTime)
		if slowThreshold > 0 && duration > slowThreshold {
			logger.GetLogger().WithContext(c.Request.Context()).Warn("Slow request",
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
				zap.Int("status", c.Writer.Status()),
				zap.Duration("duration", duration),
			)
		}
	}
}

// RequestSizeMiddleware echoes the request size
func RequestSizeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > 0 {
			c.Header("X-Request-Size", strconv.FormatInt(c.Request.ContentLength, 10))
		}

		c.Next()
	}
}

// ConcurrencyMiddleware reports how many pipeline requests are in flight
func ConcurrencyMiddleware(metricsCollector *metrics.MetricsCollector) gin.HandlerFunc {
	return func(c *gin.Context) {
		activeRequests := metricsCollector.GetMetrics().ActiveRequests
		c.Header("X-Active-Requests", strconv.FormatInt(activeRequests, 10))

		c.Next()
	}
}
