package services

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/dcablorh/txsense/pkg/storage"
)

// HealthStatus represents the health status of a service
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
	HealthStatusDegraded  HealthStatus = "degraded"
)

const (
	healthProbeKey      = "txsense_health_probe"
	slowRPCThreshold    = 2 * time.Second
	defaultCheckTimeout = 5 * time.Second
)

// HealthCheck represents a health check result
type HealthCheck struct {
	Service      string        `json:"service"`
	Status       HealthStatus  `json:"status"`
	Message      string        `json:"message,omitempty"`
	ResponseTime time.Duration `json:"response_time"`
	Timestamp    time.Time     `json:"timestamp"`
}

// Pinger is anything that can report it is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker checks the Sui fullnode and the rate-window store
type HealthChecker struct {
	rpc     Pinger
	store   storage.Store
	driver  string
	timeout time.Duration
}

// NewHealthChecker creates a health checker. driver labels the store in results.
func NewHealthChecker(rpc Pinger, store storage.Store, driver string) *HealthChecker {
	return &HealthChecker{
		rpc:     rpc,
		store:   store,
		driver:  driver,
		timeout: defaultCheckTimeout,
	}
}

// CheckRPC pings the fullnode. A slow answer is degraded.
func (h *HealthChecker) CheckRPC(ctx context.Context) *HealthCheck {
	start := time.Now()
	check := &HealthCheck{Service: "sui_rpc", Timestamp: start}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	if err := h.rpc.Ping(ctx); err != nil {
		check.Status = HealthStatusUnhealthy
		check.Message = fmt.Sprintf("ping failed: %v", err)
		check.ResponseTime = time.Since(start)
		return check
	}

	check.ResponseTime = time.Since(start)
	if check.ResponseTime > slowRPCThreshold {
		check.Status = HealthStatusDegraded
		check.Message = fmt.Sprintf("slow response: %s", check.ResponseTime)
		return check
	}
	check.Status = HealthStatusHealthy
	check.Message = "fullnode reachable"
	return check
}

// CheckStorage pings the store and then round-trips a probe value
func (h *HealthChecker) CheckStorage(ctx context.Context) *HealthCheck {
	start := time.Now()
	check := &HealthCheck{Service: "storage_" + h.driver, Timestamp: start}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		check.Status = HealthStatusUnhealthy
		check.Message = fmt.Sprintf("ping failed: %v", err)
		check.ResponseTime = time.Since(start)
		return check
	}

	if err := h.probe(ctx); err != nil {
		check.Status = HealthStatusDegraded
		check.Message = fmt.Sprintf("store operations failed: %v", err)
		check.ResponseTime = time.Since(start)
		return check
	}

	check.Status = HealthStatusHealthy
	check.Message = "all checks passed"
	check.ResponseTime = time.Since(start)
	return check
}

func (h *HealthChecker) probe(ctx context.Context) error {
	value := []byte(strconv.FormatInt(time.Now().UnixNano(), 10))
	if err := h.store.Put(ctx, healthProbeKey, value); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	got, err := h.store.Get(ctx, healthProbeKey)
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}
	if !bytes.Equal(got, value) {
		return fmt.Errorf("read back %q, wrote %q", got, value)
	}
	if err := h.store.Delete(ctx, healthProbeKey); err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	return nil
}

// GetDetailedHealth runs every check
func (h *HealthChecker) GetDetailedHealth(ctx context.Context) map[string]*HealthCheck {
	return map[string]*HealthCheck{
		"rpc":     h.CheckRPC(ctx),
		"storage": h.CheckStorage(ctx),
	}
}

// OverallStatus folds individual checks into one status
func OverallStatus(checks map[string]*HealthCheck) HealthStatus {
	overall := HealthStatusHealthy
	for _, check := range checks {
		if check.Status == HealthStatusUnhealthy {
			return HealthStatusUnhealthy
		}
		if check.Status == HealthStatusDegraded {
			overall = HealthStatusDegraded
		}
	}
	return overall
}
