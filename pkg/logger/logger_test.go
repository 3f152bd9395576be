package logger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func observed(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	previous := GetLogger()
	SetLogger(Wrap(zap.New(core)))
	t.Cleanup(func() { SetLogger(previous) })
	return logs
}

func TestNew(t *testing.T) {
	t.Run("DefaultsLevel", func(t *testing.T) {
		l, err := New(&Config{Environment: "production", OutputPaths: []string{"stderr"}})
		require.NoError(t, err)
		assert.True(t, l.Core().Enabled(zap.InfoLevel))
		assert.False(t, l.Core().Enabled(zap.DebugLevel))
	})

	t.Run("InvalidLevel", func(t *testing.T) {
		_, err := New(&Config{Level: "loud"})
		assert.Error(t, err)
	})
}

func TestContextFields(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetCorrelationIDFromContext(ctx))

	ctx = ContextWithCorrelationID(ctx, "corr")
	ctx = ContextWithRequestID(ctx, "req")
	ctx = ContextWithClientID(ctx, "local")

	assert.Equal(t, "corr", GetCorrelationIDFromContext(ctx))
	assert.Equal(t, "req", GetRequestIDFromContext(ctx))
	assert.Equal(t, "local", GetClientIDFromContext(ctx))

	logs := observed(t)
	GetLogger().WithContext(ctx).Info("hello")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "corr", fields["correlation_id"])
	assert.Equal(t, "req", fields["request_id"])
	assert.Equal(t, "local", fields["client_id"])
}

func TestLoggingMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logs := observed(t)

	engine := gin.New()
	engine.Use(LoggingMiddleware())
	engine.GET("/ok", func(c *gin.Context) {
		c.String(http.StatusOK, GetCorrelationIDFromContext(c.Request.Context()))
	})

	t.Run("GeneratesCorrelationID", func(t *testing.T) {
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ok", nil))

		id := rec.Header().Get(CorrelationHeader)
		_, err := uuid.Parse(id)
		assert.NoError(t, err)
		assert.Equal(t, id, rec.Body.String())
		assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	})

	t.Run("HonoursInboundCorrelationID", func(t *testing.T) {
		inbound := uuid.New().String()
		req := httptest.NewRequest(http.MethodGet, "/ok", nil)
		req.Header.Set(CorrelationHeader, inbound)
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, req)

		assert.Equal(t, inbound, rec.Header().Get(CorrelationHeader))
	})

	t.Run("IgnoresGarbageCorrelationID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ok", nil)
		req.Header.Set(CorrelationHeader, "not a uuid\n")
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, req)

		assert.NotEqual(t, "not a uuid\n", rec.Header().Get(CorrelationHeader))
	})

	assert.NotZero(t, logs.FilterMessage("Request completed").Len())
}

func TestRecoveryMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logs := observed(t)

	engine := gin.New()
	engine.Use(LoggingMiddleware(), RecoveryMiddleware())
	engine.GET("/boom", func(c *gin.Context) { panic("boom") })

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "INTERNAL_ERROR")
	assert.Equal(t, 1, logs.FilterMessage("Panic recovered").Len())
}
