package handlers

import (
	"net/http"

	"github.com/dcablorh/txsense/internal/models"
	"github.com/dcablorh/txsense/internal/services"
	"github.com/dcablorh/txsense/pkg/logger"
	"github.com/dcablorh/txsense/pkg/ratelimiter"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ExplainHandler handles explanation HTTP requests
type ExplainHandler struct {
	service services.ExplainServiceInterface
}

// NewExplainHandler creates a new ExplainHandler instance
func NewExplainHandler(service services.ExplainServiceInterface) *ExplainHandler {
	return &ExplainHandler{
		service: service,
	}
}

const (
	explainRequestKey = "explain_request"
	unclassifiedKey   = "explain_unclassified"
)

// BindInput decodes the explain request ahead of the rate limit gateway.
// Input that classifies as neither a transaction nor a package is flagged
// so the gateway lets it through to be rejected as invalid.
func (h *ExplainHandler) BindInput(c *gin.Context) {
	var req models.ExplainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log := logger.GetLogger().WithContext(c.Request.Context())
		log.Warn("Invalid JSON in request",
			zap.Error(err),
			zap.String("content_type", c.GetHeader("Content-Type")),
		)
		models.HandleError(c, models.NewMalformedJSONError(err), log)
		c.Abort()
		return
	}

	c.Set(explainRequestKey, req)
	c.Set(unclassifiedKey, !services.Classify(req.Input).HasID())
	c.Next()
}

func unclassified(c *gin.Context) bool {
	return c.GetBool(unclassifiedKey)
}

// Explain handles POST /api/explain requests
func (h *ExplainHandler) Explain(c *gin.Context) {
	log := logger.GetLogger().WithContext(c.Request.Context())

	req, bound := c.Get(explainRequestKey)
	if !bound {
		var body models.ExplainRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			log.Warn("Invalid JSON in request",
				zap.Error(err),
				zap.String("content_type", c.GetHeader("Content-Type")),
			)
			models.HandleError(c, models.NewMalformedJSONError(err), log)
			return
		}
		req = body
	}
	input := req.(models.ExplainRequest).Input

	identity := ratelimiter.IdentityFromContext(c)
	log.Info("Processing explain request",
		zap.String("identity", identity),
		zap.Int("input_length", len(input)),
	)

	result, err := h.service.Explain(c.Request.Context(), identity, input)
	if err != nil {
		models.HandleError(c, err, log)
		return
	}

	log.Info("Explain request completed", resultFields(result)...)
	c.JSON(http.StatusOK, result)
}

// Random handles POST /api/random requests
func (h *ExplainHandler) Random(c *gin.Context) {
	log := logger.GetLogger().WithContext(c.Request.Context())

	identity := ratelimiter.IdentityFromContext(c)
	log.Info("Processing random transaction request", zap.String("identity", identity))

	result, err := h.service.Random(c.Request.Context(), identity)
	if err != nil {
		models.HandleError(c, err, log)
		return
	}

	log.Info("Random transaction request completed", resultFields(result)...)
	c.JSON(http.StatusOK, result)
}

// Quota handles GET /api/quota requests
func (h *ExplainHandler) Quota(c *gin.Context) {
	decision := h.service.Quota(c.Request.Context(), ratelimiter.IdentityFromContext(c))
	c.JSON(http.StatusOK, decision)
}

func resultFields(result *models.ExplainResult) []zap.Field {
	fields := []zap.Field{zap.String("kind", string(result.Kind))}
	switch {
	case result.Transaction != nil:
		fields = append(fields,
			zap.String("digest", result.Transaction.Digest),
			zap.Bool("narrative_fallback", result.Transaction.NarrativeFallback),
		)
	case result.Package != nil:
		fields = append(fields,
			zap.String("package_id", result.Package.PackageID),
			zap.Bool("narrative_fallback", result.Package.NarrativeFallback),
		)
	}
	return fields
}
