package models

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/dcablorh/txsense/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorCode represents standardized error codes
type ErrorCode string

const (
	// ErrorCodeInvalidInput means the input is neither a digest nor a package id
	ErrorCodeInvalidInput ErrorCode = "INVALID_INPUT"

	// ErrorCodeRateLimitExceeded means the sliding window is full
	ErrorCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"

	// ErrorCodeCollaboratorError means a hard dependency (transaction or module fetch) failed
	ErrorCodeCollaboratorError ErrorCode = "COLLABORATOR_ERROR"

	// ErrorCodeNarrativeError is only ever logged; narrative failures degrade to fallback text
	ErrorCodeNarrativeError ErrorCode = "NARRATIVE_ERROR"

	ErrorCodeMalformedJSON ErrorCode = "MALFORMED_JSON"
	ErrorCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// CollaboratorFailurePrefix frames a hard collaborator failure shown to users
const CollaboratorFailurePrefix = "Something went wrong: "

// ErrorDetail represents detailed error information
type ErrorDetail struct {
	Code        ErrorCode `json:"code"`
	Message     string    `json:"message"`
	Details     string    `json:"details,omitempty"`
	WaitSeconds int       `json:"wait_seconds,omitempty"`
}

// ErrorResponse represents the standardized error response format
type ErrorResponse struct {
	Error         ErrorDetail `json:"error"`
	Timestamp     time.Time   `json:"timestamp"`
	CorrelationID string      `json:"correlation_id,omitempty"`
}

// HTTPStatusCode returns the appropriate HTTP status code for each error type
func (e ErrorCode) HTTPStatusCode() int {
	switch e {
	case ErrorCodeInvalidInput, ErrorCodeMalformedJSON:
		return http.StatusBadRequest
	case ErrorCodeRateLimitExceeded:
		return http.StatusTooManyRequests
	case ErrorCodeCollaboratorError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// NewErrorResponse creates a new error response with timestamp
func NewErrorResponse(code ErrorCode, message, details, correlationID string) *ErrorResponse {
	return &ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
	}
}

// AppError represents an application error with context
type AppError struct {
	Code        ErrorCode
	Message     string
	Details     string
	Cause       error
	Context     map[string]interface{}
	StatusCode  int
	WaitSeconds int
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewAppError creates a new application error
func NewAppError(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: code.HTTPStatusCode(),
		Context:    make(map[string]interface{}),
	}
}

// NewAppErrorWithCause creates a new application error with underlying cause
func NewAppErrorWithCause(code ErrorCode, message string, cause error) *AppError {
	e := NewAppError(code, message)
	e.Cause = cause
	return e
}

// NewAppErrorWithDetails creates a new application error with details
func NewAppErrorWithDetails(code ErrorCode, message, details string) *AppError {
	e := NewAppError(code, message)
	e.Details = details
	return e
}

// NewInputError reports input that is neither a transaction digest nor a package id
func NewInputError(raw string) *AppError {
	return NewAppErrorWithDetails(
		ErrorCodeInvalidInput,
		"Input is not a transaction digest, package id, or explorer link",
		"Paste a Sui transaction digest, a 0x package id, or an explorer URL containing one",
	).WithContext("input", raw)
}

// NewAdmissionDeniedError reports a full rate window with the wait until the oldest entry ages out
func NewAdmissionDeniedError(waitSeconds int) *AppError {
	e := NewAppErrorWithDetails(
		ErrorCodeRateLimitExceeded,
		"Rate limit exceeded",
		"Retry in "+strconv.Itoa(waitSeconds)+" seconds",
	)
	e.WaitSeconds = waitSeconds
	return e
}

// NewCollaboratorError reports a failed hard dependency. The collaborator's
// message is kept verbatim behind a generic prefix.
func NewCollaboratorError(operation string, cause error) *AppError {
	message := "unknown error"
	if cause != nil {
		message = cause.Error()
	}
	return NewAppErrorWithCause(ErrorCodeCollaboratorError, CollaboratorFailurePrefix+message, cause).
		WithContext("operation", operation)
}

// NewNarrativeError wraps a narrative generator failure for logging
func NewNarrativeError(kind string, cause error) *AppError {
	return NewAppErrorWithCause(ErrorCodeNarrativeError, "Narrative generation failed", cause).
		WithContext("kind", kind)
}

// NewMalformedJSONError reports an undecodable request body
func NewMalformedJSONError(cause error) *AppError {
	return NewAppErrorWithCause(ErrorCodeMalformedJSON, "Malformed JSON in request body", cause)
}

// AsAppError converts err to an AppError, wrapping unknown errors as internal
func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return NewAppErrorWithCause(ErrorCodeInternalError, "Internal server error", err)
}

// HandleError handles application errors and sends appropriate HTTP response
func HandleError(c *gin.Context, err error, log *logger.Logger) {
	appErr := AsAppError(err)

	ctx := c.Request.Context()
	correlationID := logger.GetCorrelationIDFromContext(ctx)
	if correlationID == "" {
		correlationID = c.GetString(string(logger.CorrelationIDKey))
	}

	appErr.WithContext("method", c.Request.Method).
		WithContext("path", c.Request.URL.Path)

	if log != nil {
		logFields := []zap.Field{
			zap.String("error_code", string(appErr.Code)),
			zap.String("error_message", appErr.Message),
			zap.Any("error_context", appErr.Context),
		}
		if appErr.Cause != nil {
			logFields = append(logFields, zap.Error(appErr.Cause))
		}

		contextLogger := log.WithContext(ctx)
		switch {
		case appErr.StatusCode >= 500:
			contextLogger.Error("Application error", logFields...)
		case appErr.Code == ErrorCodeRateLimitExceeded:
			contextLogger.Info("Request throttled", logFields...)
		default:
			contextLogger.Warn("Client error", logFields...)
		}
	}

	response := NewErrorResponse(appErr.Code, appErr.Message, appErr.Details, correlationID)
	if appErr.Code == ErrorCodeRateLimitExceeded {
		response.Error.WaitSeconds = appErr.WaitSeconds
		c.Header("Retry-After", strconv.Itoa(appErr.WaitSeconds))
	}

	c.JSON(appErr.StatusCode, response)
}
