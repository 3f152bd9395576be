package services

import (
	"context"
	"time"

	"github.com/dcablorh/txsense/internal/models"
	"github.com/dcablorh/txsense/pkg/logger"
	"github.com/dcablorh/txsense/pkg/metrics"
	"github.com/dcablorh/txsense/pkg/ratelimiter"

	"go.uber.org/zap"
)

// ExplainService runs the whole pipeline: classify, admit, enrich, record
type ExplainService struct {
	enricher    EnricherInterface
	chain       ChainReader
	limiter     *ratelimiter.SlidingWindow
	metrics     *metrics.MetricsCollector
	span        int
	maxAttempts int
}

// NewExplainService creates the pipeline. span and maxAttempts bound random
// checkpoint sampling.
func NewExplainService(enricher EnricherInterface, chain ChainReader, limiter *ratelimiter.SlidingWindow, span, maxAttempts int, collector *metrics.MetricsCollector) *ExplainService {
	if collector == nil {
		collector = metrics.NewMetricsCollector()
	}
	return &ExplainService{
		enricher:    enricher,
		chain:       chain,
		limiter:     limiter,
		metrics:     collector,
		span:        span,
		maxAttempts: maxAttempts,
	}
}

// Explain classifies raw input and explains what it names. Unrecognised
// input fails before any quota check or network call.
func (s *ExplainService) Explain(ctx context.Context, identity, raw string) (result *models.ExplainResult, err error) {
	start := time.Now()
	s.metrics.RecordRequest()
	defer func() { s.metrics.RecordRequestComplete(time.Since(start), err == nil) }()

	ref := Classify(raw)
	if !ref.HasID() {
		return nil, models.NewInputError(raw)
	}
	if err := s.admit(ctx, identity); err != nil {
		return nil, err
	}
	return s.run(ctx, identity, ref)
}

// Random explains a transaction sampled from a recent checkpoint. Sampling
// itself does not consume quota.
func (s *ExplainService) Random(ctx context.Context, identity string) (result *models.ExplainResult, err error) {
	start := time.Now()
	s.metrics.RecordRequest()
	defer func() { s.metrics.RecordRequestComplete(time.Since(start), err == nil) }()

	if err := s.admit(ctx, identity); err != nil {
		return nil, err
	}

	digest, err := s.chain.SampleTransactionDigest(ctx, s.span, s.maxAttempts)
	if err != nil {
		logger.GetLogger().WithContext(ctx).Error("Random transaction sampling failed", zap.Error(err))
		return nil, models.NewCollaboratorError("sui_getCheckpoint", err)
	}

	// the window may have filled while sampling
	if err := s.admit(ctx, identity); err != nil {
		return nil, err
	}
	return s.run(ctx, identity, models.InputReference{Kind: models.InputKindTransaction, ID: digest})
}

// Quota reports identity's current admission decision without recording
func (s *ExplainService) Quota(ctx context.Context, identity string) ratelimiter.Decision {
	return s.limiter.Check(ctx, identity)
}

func (s *ExplainService) admit(ctx context.Context, identity string) error {
	decision := s.limiter.Check(ctx, identity)
	if decision.Allowed {
		return nil
	}
	s.metrics.RecordRateLimited()
	logger.GetLogger().WithContext(ctx).Info("Request denied by rate window",
		zap.String("identity", identity),
		zap.Int("wait_seconds", decision.WaitSeconds),
	)
	return models.NewAdmissionDeniedError(decision.WaitSeconds)
}

func (s *ExplainService) run(ctx context.Context, identity string, ref models.InputReference) (*models.ExplainResult, error) {
	result, err := s.enricher.Enrich(ctx, ref)
	if err != nil {
		return nil, err
	}

	if err := s.limiter.Record(ctx, identity); err != nil {
		logger.GetLogger().WithContext(ctx).Warn("Failed to record request in rate window",
			zap.String("identity", identity),
			zap.Error(err),
		)
	}
	return result, nil
}
