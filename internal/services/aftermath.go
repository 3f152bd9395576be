package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dcablorh/txsense/internal/config"
	"github.com/dcablorh/txsense/internal/models"
	"github.com/dcablorh/txsense/pkg/metrics"
)

const aftermathMetricName = "aftermath_coins_metadata"

// AftermathClient fetches coin metadata from the Aftermath Finance API
type AftermathClient struct {
	url        string
	httpClient *http.Client
	metrics    *metrics.MetricsCollector
}

type aftermathRequest struct {
	Coins []string `json:"coins"`
}

type aftermathMetadata struct {
	Decimals *int    `json:"decimals"`
	Name     string  `json:"name"`
	Symbol   string  `json:"symbol"`
	IconURL  *string `json:"iconUrl"`
}

// NewAftermathClient creates a client for cfg.AftermathURL
func NewAftermathClient(cfg *config.MetadataConfig, collector *metrics.MetricsCollector) *AftermathClient {
	if collector == nil {
		collector = metrics.NewMetricsCollector()
	}
	return &AftermathClient{
		url:        cfg.AftermathURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		metrics:    collector,
	}
}

// FetchCoinMetadata posts all coin types in one request. The response array
// is aligned with coinTypes; null or short entries come back as nil.
func (a *AftermathClient) FetchCoinMetadata(ctx context.Context, coinTypes []string) ([]*models.CoinMetadataEntry, error) {
	if len(coinTypes) == 0 {
		return nil, nil
	}

	start := time.Now()
	metadatas, err := a.post(ctx, coinTypes)
	a.metrics.RecordRPCCall(aftermathMetricName, time.Since(start), err == nil)
	if err != nil {
		return nil, err
	}

	out := make([]*models.CoinMetadataEntry, len(coinTypes))
	for i, coinType := range coinTypes {
		if i >= len(metadatas) || metadatas[i] == nil {
			continue
		}
		meta := metadatas[i]
		decimals := -1
		if meta.Decimals != nil {
			decimals = *meta.Decimals
		}
		entry := &models.CoinMetadataEntry{
			ID:       coinType,
			Name:     meta.Name,
			Symbol:   meta.Symbol,
			Decimals: decimals,
			Source:   models.MetadataSourceAftermath,
		}
		if meta.IconURL != nil {
			entry.IconURL = *meta.IconURL
		}
		out[i] = entry
	}
	return out, nil
}

func (a *AftermathClient) post(ctx context.Context, coinTypes []string) ([]*aftermathMetadata, error) {
	body, err := json.Marshal(aftermathRequest{Coins: coinTypes})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("aftermath request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("aftermath http %d: %s", resp.StatusCode, string(b))
	}

	var metadatas []*aftermathMetadata
	if err := json.NewDecoder(resp.Body).Decode(&metadatas); err != nil {
		return nil, fmt.Errorf("failed to decode aftermath response: %w", err)
	}
	return metadatas, nil
}
