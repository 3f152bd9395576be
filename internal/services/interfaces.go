package services

import (
	"context"

	"github.com/dcablorh/txsense/internal/models"
	"github.com/dcablorh/txsense/pkg/ratelimiter"
)

// ChainReader defines the Sui RPC operations the pipeline depends on
type ChainReader interface {
	GetTransactionBlock(ctx context.Context, digest string) (*models.TransactionBlock, error)
	GetNormalizedModules(ctx context.Context, packageID string) (map[string]models.NormalizedModule, error)
	SampleTransactionDigest(ctx context.Context, span, maxAttempts int) (string, error)
}

// CoinMetadataSource fetches metadata for many coin types in one call. The
// returned slice is aligned with coinTypes; nil marks a coin the source lacks.
type CoinMetadataSource interface {
	FetchCoinMetadata(ctx context.Context, coinTypes []string) ([]*models.CoinMetadataEntry, error)
}

// NameLookup performs a reverse name lookup for one address
type NameLookup interface {
	ResolveName(ctx context.Context, address string) (*string, error)
}

// NarrativeGenerator turns enriched data into prose. Errors are contained
// by the caller, which substitutes fallback text.
type NarrativeGenerator interface {
	ExplainTransaction(ctx context.Context, bundle *models.EnrichedBundle) (*models.TransactionNarrative, error)
	ExplainPackage(ctx context.Context, packageID string, moduleNames []string) (*models.PackageNarrative, error)
}

// MetadataResolverInterface resolves coin metadata, never failing
type MetadataResolverInterface interface {
	Resolve(ctx context.Context, coinTypes []string) map[string]models.CoinMetadataEntry
}

// NameResolverInterface resolves addresses to names, never failing
type NameResolverInterface interface {
	Resolve(ctx context.Context, addresses []string) map[string]*string
}

// EnricherInterface runs the lookup and narrative steps for a classified reference
type EnricherInterface interface {
	Enrich(ctx context.Context, ref models.InputReference) (*models.ExplainResult, error)
}

// ExplainServiceInterface is the full pipeline exposed to handlers and the CLI
type ExplainServiceInterface interface {
	Explain(ctx context.Context, identity, raw string) (*models.ExplainResult, error)
	Random(ctx context.Context, identity string) (*models.ExplainResult, error)
	Quota(ctx context.Context, identity string) ratelimiter.Decision
}
