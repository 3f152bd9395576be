package logger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ContextKey represents keys used in context for logging
type ContextKey string

const (
	// CorrelationIDKey is the key for correlation ID in context
	CorrelationIDKey ContextKey = "correlation_id"
	// RequestIDKey is the key for request ID in context
	RequestIDKey ContextKey = "request_id"
	// ClientIDKey is the key for the rate-limit identity in context
	ClientIDKey ContextKey = "client_id"
)

// CorrelationHeader is honoured on inbound requests and echoed on responses
const CorrelationHeader = "X-Correlation-ID"

// Logger wraps zap logger with additional functionality
type Logger struct {
	*zap.Logger
	sugar *zap.SugaredLogger
}

// Config represents logger configuration
type Config struct {
	Level       string   `json:"level" yaml:"level"`
	Environment string   `json:"environment" yaml:"environment"`
	Encoding    string   `json:"encoding" yaml:"encoding"`
	OutputPaths []string `json:"output_paths" yaml:"output_paths"`
	Service     string   `json:"service" yaml:"service"`
	Version     string   `json:"version" yaml:"version"`
}

var (
	globalLogger *Logger
	globalMu     sync.RWMutex
)

// New builds a logger without touching the global instance
func New(config *Config) (*Logger, error) {
	var zapConfig zap.Config

	if config.Environment == "production" {
		zapConfig = zap.NewProductionConfig()
		zapConfig.DisableStacktrace = true
	} else {
		zapConfig = zap.NewDevelopmentConfig()
		zapConfig.DisableStacktrace = false
	}

	levelName := config.Level
	if levelName == "" {
		levelName = "info"
	}
	level, err := zap.ParseAtomicLevel(levelName)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	zapConfig.Level = level

	if config.Encoding != "" {
		zapConfig.Encoding = config.Encoding
	}
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if len(config.OutputPaths) > 0 {
		zapConfig.OutputPaths = config.OutputPaths
	}

	service := config.Service
	if service == "" {
		service = "txsense"
	}
	version := config.Version
	if version == "" {
		version = "1.0.0"
	}
	zapConfig.InitialFields = map[string]interface{}{
		"service": service,
		"version": version,
	}

	zapLogger, err := zapConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	return Wrap(zapLogger), nil
}

// Wrap adapts an existing zap logger
func Wrap(zapLogger *zap.Logger) *Logger {
	return &Logger{
		Logger: zapLogger,
		sugar:  zapLogger.Sugar(),
	}
}

// NewNop returns a logger that discards everything
func NewNop() *Logger {
	return Wrap(zap.NewNop())
}

// Initialize sets up the global logger
func Initialize(config *Config) error {
	l, err := New(config)
	if err != nil {
		return err
	}
	SetLogger(l)
	return nil
}

// SetLogger replaces the global logger
func SetLogger(l *Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = l
}

// GetLogger returns the global logger instance
func GetLogger() *Logger {
	globalMu.RLock()
	l := globalLogger
	globalMu.RUnlock()
	if l != nil {
		return l
	}

	// Fallback to development logger if not initialized
	if err := Initialize(&Config{Level: "info", Environment: "development"}); err != nil {
		panic(fmt.Sprintf("failed to initialize fallback logger: %v", err))
	}
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

// WithContext creates a logger with context fields
func (l *Logger) WithContext(ctx context.Context) *Logger {
	fields := []zap.Field{}

	if correlationID := GetCorrelationIDFromContext(ctx); correlationID != "" {
		fields = append(fields, zap.String("correlation_id", correlationID))
	}
	if requestID := GetRequestIDFromContext(ctx); requestID != "" {
		fields = append(fields, zap.String("request_id", requestID))
	}
	if clientID := GetClientIDFromContext(ctx); clientID != "" {
		fields = append(fields, zap.String("client_id", clientID))
	}

	if len(fields) == 0 {
		return l
	}
	return Wrap(l.Logger.With(fields...))
}

// WithFields creates a logger with additional fields
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	zapFields := make([]zap.Field, 0, len(fields))
	for key, value := range fields {
		zapFields = append(zapFields, zap.Any(key, value))
	}
	return Wrap(l.Logger.With(zapFields...))
}

// WithError creates a logger with error field
func (l *Logger) WithError(err error) *Logger {
	return Wrap(l.Logger.With(zap.Error(err)))
}

// Infof logs an info message with formatting
func (l *Logger) Infof(template string, args ...interface{}) {
	l.sugar.Infof(template, args...)
}

// Warnf logs a warning message with formatting
func (l *Logger) Warnf(template string, args ...interface{}) {
	l.sugar.Warnf(template, args...)
}

// Errorf logs an error message with formatting
func (l *Logger) Errorf(template string, args ...interface{}) {
	l.sugar.Errorf(template, args...)
}

// Debugf logs a debug message with formatting
func (l *Logger) Debugf(template string, args ...interface{}) {
	l.sugar.Debugf(template, args...)
}

// Close flushes any buffered log entries
func (l *Logger) Close() error {
	return l.Logger.Sync()
}

// GenerateCorrelationID generates a new correlation ID
func GenerateCorrelationID() string {
	return uuid.New().String()
}

// GenerateRequestID generates a new request ID
func GenerateRequestID() string {
	return uuid.New().String()
}

// ContextWithCorrelationID adds correlation ID to context
func ContextWithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, CorrelationIDKey, correlationID)
}

// ContextWithRequestID adds request ID to context
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// ContextWithClientID adds the client identity to context
func ContextWithClientID(ctx context.Context, clientID string) context.Context {
	return context.WithValue(ctx, ClientIDKey, clientID)
}

func stringFromContext(ctx context.Context, key ContextKey) string {
	if value, ok := ctx.Value(key).(string); ok {
		return value
	}
	return ""
}

// GetCorrelationIDFromContext extracts correlation ID from context
func GetCorrelationIDFromContext(ctx context.Context) string {
	return stringFromContext(ctx, CorrelationIDKey)
}

// GetRequestIDFromContext extracts request ID from context
func GetRequestIDFromContext(ctx context.Context) string {
	return stringFromContext(ctx, RequestIDKey)
}

// GetClientIDFromContext extracts the client identity from context
func GetClientIDFromContext(ctx context.Context) string {
	return stringFromContext(ctx, ClientIDKey)
}

// LoggingMiddleware creates a Gin middleware for structured logging with correlation IDs
func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		correlationID := c.GetHeader(CorrelationHeader)
		if _, err := uuid.Parse(correlationID); err != nil {
			correlationID = GenerateCorrelationID()
		}
		requestID := GenerateRequestID()

		c.Set(string(CorrelationIDKey), correlationID)
		c.Set(string(RequestIDKey), requestID)

		ctx := c.Request.Context()
		ctx = ContextWithCorrelationID(ctx, correlationID)
		ctx = ContextWithRequestID(ctx, requestID)
		ctx = ContextWithClientID(ctx, c.ClientIP())
		c.Request = c.Request.WithContext(ctx)

		c.Header(CorrelationHeader, correlationID)
		c.Header("X-Request-ID", requestID)

		logger := GetLogger().WithContext(ctx)

		logger.Debug("Request started",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("user_agent", c.Request.UserAgent()),
		)

		c.Next()

		duration := time.Since(start)
		statusCode := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status_code", statusCode),
			zap.Duration("duration", duration),
			zap.Int("response_size", c.Writer.Size()),
		}

		switch {
		case statusCode >= 500:
			logger.Error("Request completed", fields...)
		case statusCode >= 400:
			logger.Warn("Request completed", fields...)
		default:
			logger.Info("Request completed", fields...)
		}

		for _, err := range c.Errors {
			logger.Error("Request error",
				zap.Uint64("error_type", uint64(err.Type)),
				zap.Error(err.Err),
			)
		}
	}
}

// RecoveryMiddleware creates a Gin middleware for panic recovery with logging
func RecoveryMiddleware() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		ctx := c.Request.Context()
		logger := GetLogger().WithContext(ctx)

		logger.Error("Panic recovered",
			zap.Any("panic", recovered),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
		)

		c.AbortWithStatusJSON(500, gin.H{
			"error": gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "Internal server error",
				"details": "An unexpected error occurred",
			},
			"timestamp":      time.Now().UTC().Format(time.RFC3339),
			"correlation_id": GetCorrelationIDFromContext(ctx),
		})
	})
}
