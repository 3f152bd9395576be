package services

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/dcablorh/txsense/internal/models"
	"github.com/dcablorh/txsense/pkg/amount"
	"github.com/dcablorh/txsense/pkg/logger"
	"github.com/dcablorh/txsense/pkg/metrics"

	"go.uber.org/zap"
)

// Enricher fetches on-chain data for a classified reference, resolves coin
// metadata and names, and layers a generated narrative on top
type Enricher struct {
	chain    ChainReader
	metadata MetadataResolverInterface
	names    NameResolverInterface
	narrator NarrativeGenerator
	metrics  *metrics.MetricsCollector
}

// NewEnricher creates an Enricher
func NewEnricher(chain ChainReader, metadata MetadataResolverInterface, names NameResolverInterface, narrator NarrativeGenerator, collector *metrics.MetricsCollector) *Enricher {
	if collector == nil {
		collector = metrics.NewMetricsCollector()
	}
	return &Enricher{
		chain:    chain,
		metadata: metadata,
		names:    names,
		narrator: narrator,
		metrics:  collector,
	}
}

// Enrich produces the finished explanation for ref. Only chain lookups can
// fail it; metadata, names and narrative degrade to fallbacks.
func (e *Enricher) Enrich(ctx context.Context, ref models.InputReference) (*models.ExplainResult, error) {
	switch ref.Kind {
	case models.InputKindTransaction:
		e.metrics.RecordLookup(string(models.InputKindTransaction))
		tx, err := e.explainTransaction(ctx, ref.ID)
		if err != nil {
			return nil, err
		}
		return &models.ExplainResult{Kind: models.InputKindTransaction, Transaction: tx}, nil
	case models.InputKindPackage:
		e.metrics.RecordLookup(string(models.InputKindPackage))
		pkg, err := e.explainPackage(ctx, ref.ID)
		if err != nil {
			return nil, err
		}
		return &models.ExplainResult{Kind: models.InputKindPackage, Package: pkg}, nil
	default:
		return nil, models.NewInputError(ref.ID)
	}
}

// BuildBundle derives the coin types and addresses a transaction touches
func BuildBundle(tx *models.TransactionBlock) *models.EnrichedBundle {
	bundle := &models.EnrichedBundle{
		Transaction:  tx,
		CoinMetadata: map[string]models.CoinMetadataEntry{},
		Names:        map[string]*string{},
	}

	var addresses, coinTypes []string
	if tx.Transaction != nil {
		addresses = append(addresses, tx.Transaction.Data.Sender, tx.Transaction.Data.GasData.Owner)
	}
	for _, bc := range tx.BalanceChanges {
		addresses = append(addresses, bc.Owner.String())
		coinTypes = append(coinTypes, bc.CoinType)
	}

	for _, address := range uniqueStrings(addresses) {
		if strings.HasPrefix(address, "0x") {
			bundle.Addresses = append(bundle.Addresses, address)
		}
	}
	bundle.CoinTypes = uniqueStrings(coinTypes)
	return bundle
}

func (e *Enricher) explainTransaction(ctx context.Context, digest string) (*models.TransactionExplanation, error) {
	log := logger.GetLogger().WithContext(ctx)

	tx, err := e.chain.GetTransactionBlock(ctx, digest)
	if err != nil {
		if errors.Is(err, ErrInvalidDigest) {
			return nil, models.NewInputError(digest)
		}
		log.Error("Transaction lookup failed", zap.String("digest", digest), zap.Error(err))
		return nil, models.NewCollaboratorError("sui_getTransactionBlock", err)
	}

	bundle := BuildBundle(tx)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		bundle.CoinMetadata = e.metadata.Resolve(ctx, bundle.CoinTypes)
	}()
	go func() {
		defer wg.Done()
		bundle.Names = e.names.Resolve(ctx, bundle.Addresses)
	}()
	wg.Wait()

	fallback := false
	narrative, err := e.narrator.ExplainTransaction(ctx, bundle)
	if err != nil || narrative == nil {
		log.Warn("Transaction narrative failed, using fallback",
			zap.String("digest", digest),
			zap.Error(models.NewNarrativeError("transaction", err)),
		)
		narrative = FallbackTransactionNarrative()
		fallback = true
	} else {
		narrative = completeTransactionNarrative(narrative)
	}
	e.metrics.RecordNarrative(string(models.InputKindTransaction), fallback)

	for i := range narrative.InvolvedParties {
		narrative.InvolvedParties[i].SuinsName = bundle.NameOf(narrative.InvolvedParties[i].Address)
	}

	result := &models.TransactionExplanation{
		Digest:              tx.Digest,
		Raw:                 tx.Raw,
		Summary:             narrative.Summary,
		TechnicalPlayByPlay: narrative.TechnicalPlayByPlay,
		MermaidCode:         narrative.MermaidCode,
		Protocol:            narrative.Protocol,
		ActionType:          narrative.ActionType,
		InvolvedParties:     narrative.InvolvedParties,
		CoinMetadata:        bundle.CoinMetadata,
		Names:               bundle.Names,
		BalanceDeltas:       balanceDeltas(ctx, tx, bundle),
		NarrativeFallback:   fallback,
	}
	if result.Digest == "" {
		result.Digest = digest
	}
	if tx.Transaction != nil {
		result.Sender = tx.Transaction.Data.Sender
		result.SenderSuinsName = bundle.NameOf(result.Sender)
	}
	if tx.Effects != nil {
		result.Status = tx.Effects.Status.Status
		gas := tx.Effects.GasUsed
		if mist, err := amount.GasUsed(gas.ComputationCost, gas.StorageCost, gas.StorageRebate); err == nil {
			result.Gas = models.GasSummary{Mist: mist.String(), SUI: amount.MistToSUI(mist)}
		} else {
			log.Warn("Unreadable gas summary", zap.String("digest", digest), zap.Error(err))
		}
	}

	return result, nil
}

func balanceDeltas(ctx context.Context, tx *models.TransactionBlock, bundle *models.EnrichedBundle) []models.BalanceDelta {
	deltas := make([]models.BalanceDelta, 0, len(tx.BalanceChanges))
	for _, bc := range tx.BalanceChanges {
		var entry *models.CoinMetadataEntry
		if m, ok := bundle.CoinMetadata[bc.CoinType]; ok {
			entry = &m
		}
		display := models.DisplayFor(bc.CoinType, entry)

		formatted, err := amount.Format(bc.Amount, display.Decimals)
		if err != nil {
			logger.GetLogger().WithContext(ctx).Debug("Unreadable balance change amount",
				zap.String("coin_type", bc.CoinType),
				zap.String("amount", bc.Amount),
			)
			formatted = bc.Amount
		}

		owner := bc.Owner.String()
		deltas = append(deltas, models.BalanceDelta{
			Owner:       owner,
			OwnerName:   bundle.NameOf(owner),
			CoinType:    bc.CoinType,
			Amount:      bc.Amount,
			Formatted:   formatted,
			CoinDisplay: display,
		})
	}
	return deltas
}

func (e *Enricher) explainPackage(ctx context.Context, packageID string) (*models.PackageExplanation, error) {
	log := logger.GetLogger().WithContext(ctx)

	modules, err := e.chain.GetNormalizedModules(ctx, packageID)
	if err != nil {
		log.Error("Package lookup failed", zap.String("package_id", packageID), zap.Error(err))
		return nil, models.NewCollaboratorError("sui_getNormalizedMoveModulesByPackage", err)
	}
	moduleNames := models.ModuleNames(modules)

	fallback := false
	narrative, err := e.narrator.ExplainPackage(ctx, packageID, moduleNames)
	if err != nil || narrative == nil {
		log.Warn("Package narrative failed, using fallback",
			zap.String("package_id", packageID),
			zap.Error(models.NewNarrativeError("package", err)),
		)
		narrative = FailedPackageNarrative(moduleNames)
		fallback = true
	} else {
		narrative = completePackageNarrative(narrative, moduleNames)
	}
	e.metrics.RecordNarrative(string(models.InputKindPackage), fallback)

	result := &models.PackageExplanation{
		PackageID:         packageID,
		Summary:           narrative.Summary,
		Modules:           narrative.Modules,
		Capabilities:      narrative.Capabilities,
		NarrativeFallback: fallback,
	}
	if name, ok := models.KnownPackageName(packageID); ok {
		result.KnownName = name
	}
	return result, nil
}
