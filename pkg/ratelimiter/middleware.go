package ratelimiter

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// IdentityKey is the gin context key under which the middleware stores the
// client identity it checked
const IdentityKey = "rate_limit_identity"

// GatewayOption customizes Middleware
type GatewayOption func(*gateway)

type gateway struct {
	onDenied func(c *gin.Context, d Decision)
	skip     func(c *gin.Context) bool
}

// OnDenied renders the rejection. The middleware aborts after fn returns.
func OnDenied(fn func(c *gin.Context, d Decision)) GatewayOption {
	return func(g *gateway) { g.onDenied = fn }
}

// SkipWhen passes requests for which fn reports true straight to the next
// handler without a check
func SkipWhen(fn func(c *gin.Context) bool) GatewayOption {
	return func(g *gateway) { g.skip = fn }
}

// Middleware creates a Gin middleware that rejects clients whose window is
// full. It only checks; the handler records once a result is delivered.
func (w *SlidingWindow) Middleware(opts ...GatewayOption) gin.HandlerFunc {
	g := gateway{onDenied: w.deniedJSON}
	for _, opt := range opts {
		opt(&g)
	}

	return func(c *gin.Context) {
		identity := c.ClientIP()
		c.Set(IdentityKey, identity)

		if g.skip != nil && g.skip(c) {
			c.Next()
			return
		}

		decision := w.Check(c.Request.Context(), identity)

		c.Header("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))

		if !decision.Allowed {
			c.Header("Retry-After", strconv.Itoa(decision.WaitSeconds))
			g.onDenied(c, decision)
			c.Abort()
			return
		}

		c.Next()
	}
}

func (w *SlidingWindow) deniedJSON(c *gin.Context, d Decision) {
	c.JSON(http.StatusTooManyRequests, gin.H{
		"error": gin.H{
			"code":         "RATE_LIMIT_EXCEEDED",
			"message":      "Rate limit exceeded",
			"details":      "Maximum " + strconv.Itoa(w.limit) + " requests per " + w.window.String() + " allowed. Retry in " + strconv.Itoa(d.WaitSeconds) + "s.",
			"wait_seconds": d.WaitSeconds,
		},
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// IdentityFromContext returns the identity stored by Middleware, falling
// back to the client IP
func IdentityFromContext(c *gin.Context) string {
	if identity := c.GetString(IdentityKey); identity != "" {
		return identity
	}
	return c.ClientIP()
}
