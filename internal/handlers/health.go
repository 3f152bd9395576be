package handlers

import (
	"net/http"
	"time"

	"github.com/dcablorh/txsense/internal/services"

	"github.com/gin-gonic/gin"
)

// HealthHandler handles health check endpoints
type HealthHandler struct {
	checker *services.HealthChecker
	version string
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(checker *services.HealthChecker, version string) *HealthHandler {
	return &HealthHandler{
		checker: checker,
		version: version,
	}
}

// HealthResponse represents the overall health response
type HealthResponse struct {
	Status    services.HealthStatus            `json:"status"`
	Timestamp time.Time                        `json:"timestamp"`
	Services  map[string]*services.HealthCheck `json:"services"`
	Version   string                           `json:"version,omitempty"`
}

// GetHealth returns the overall health status
func (h *HealthHandler) GetHealth(c *gin.Context) {
	serviceChecks := h.checker.GetDetailedHealth(c.Request.Context())
	overallStatus := services.OverallStatus(serviceChecks)

	response := HealthResponse{
		Status:    overallStatus,
		Timestamp: time.Now(),
		Services:  serviceChecks,
		Version:   h.version,
	}

	// degraded still answers 200
	statusCode := http.StatusOK
	if overallStatus == services.HealthStatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, response)
}

// GetLiveness returns a simple liveness check
func (h *HealthHandler) GetLiveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"timestamp": time.Now(),
	})
}

// GetReadiness reports whether the fullnode and the rate-window store are reachable
func (h *HealthHandler) GetReadiness(c *gin.Context) {
	ctx := c.Request.Context()

	if check := h.checker.CheckStorage(ctx); check.Status == services.HealthStatusUnhealthy {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":    "not_ready",
			"message":   "rate window store not available",
			"timestamp": time.Now(),
		})
		return
	}

	if check := h.checker.CheckRPC(ctx); check.Status == services.HealthStatusUnhealthy {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":    "not_ready",
			"message":   "sui rpc not available",
			"timestamp": time.Now(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "ready",
		"timestamp": time.Now(),
	})
}

// GetRPCHealth returns detailed fullnode health information
func (h *HealthHandler) GetRPCHealth(c *gin.Context) {
	respondCheck(c, h.checker.CheckRPC(c.Request.Context()))
}

// GetStorageHealth returns detailed rate-window store health information
func (h *HealthHandler) GetStorageHealth(c *gin.Context) {
	respondCheck(c, h.checker.CheckStorage(c.Request.Context()))
}

func respondCheck(c *gin.Context, check *services.HealthCheck) {
	statusCode := http.StatusOK
	if check.Status == services.HealthStatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}
	c.JSON(statusCode, check)
}
