package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"github.com/dcablorh/txsense/internal/config"
	"github.com/dcablorh/txsense/internal/models"
	"github.com/dcablorh/txsense/pkg/logger"
	"github.com/dcablorh/txsense/pkg/metrics"

	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/mr-tron/base58"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrInvalidDigest is returned for digests that are not 32 base58-encoded bytes
var ErrInvalidDigest = errors.New("invalid transaction digest")

// ErrNoTransactions is returned when checkpoint sampling finds only empty checkpoints
var ErrNoTransactions = errors.New("no transactions found in sampled checkpoints")

// RPCError is a JSON-RPC error object returned by the fullnode. Its Error
// text is the node's message verbatim.
type RPCError struct {
	Method  string
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return e.Message
}

// SuiClient talks JSON-RPC to a Sui fullnode with throttling and retries
type SuiClient struct {
	rpc        jsonrpc.RPCClient
	httpClient *http.Client
	config     *config.RPCConfig
	limiter    *rate.Limiter
	metrics    *metrics.MetricsCollector
	intN       func(n int) int
}

// NewSuiClient creates a client for cfg.Endpoint
func NewSuiClient(cfg *config.RPCConfig, collector *metrics.MetricsCollector) *SuiClient {
	httpClient := &http.Client{
		Timeout: cfg.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        50,
			MaxIdleConnsPerHost: 20,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	if collector == nil {
		collector = metrics.NewMetricsCollector()
	}

	return &SuiClient{
		rpc: jsonrpc.NewClientWithOpts(cfg.Endpoint, &jsonrpc.RPCClientOpts{
			HTTPClient: httpClient,
		}),
		httpClient: httpClient,
		config:     cfg,
		limiter:    rate.NewLimiter(limit, burst),
		metrics:    collector,
		intN:       rand.IntN,
	}
}

// GetTransactionBlock fetches a transaction with input, effects, object
// changes, balance changes and events
func (s *SuiClient) GetTransactionBlock(ctx context.Context, digest string) (*models.TransactionBlock, error) {
	if decoded, err := base58.Decode(digest); err != nil || len(decoded) != 32 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidDigest, digest)
	}

	options := map[string]bool{
		"showInput":          true,
		"showEffects":        true,
		"showObjectChanges":  true,
		"showBalanceChanges": true,
		"showEvents":         true,
	}

	var raw json.RawMessage
	if err := s.call(ctx, "sui_getTransactionBlock", []interface{}{digest, options}, &raw); err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, fmt.Errorf("transaction %s not found", digest)
	}

	var tx models.TransactionBlock
	if err := json.Unmarshal(raw, &tx); err != nil {
		return nil, fmt.Errorf("failed to decode transaction %s: %w", digest, err)
	}
	tx.Raw = raw
	return &tx, nil
}

// GetNormalizedModules lists the Move modules of a package keyed by module name
func (s *SuiClient) GetNormalizedModules(ctx context.Context, packageID string) (map[string]models.NormalizedModule, error) {
	var modules map[string]models.NormalizedModule
	if err := s.call(ctx, "sui_getNormalizedMoveModulesByPackage", []interface{}{packageID}, &modules); err != nil {
		return nil, err
	}
	if modules == nil {
		modules = map[string]models.NormalizedModule{}
	}
	return modules, nil
}

// GetLatestCheckpointSequenceNumber returns the newest checkpoint sequence number
func (s *SuiClient) GetLatestCheckpointSequenceNumber(ctx context.Context) (uint64, error) {
	var seq string
	if err := s.call(ctx, "sui_getLatestCheckpointSequenceNumber", []interface{}{}, &seq); err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(seq, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid checkpoint sequence number %q: %w", seq, err)
	}
	return n, nil
}

// GetCheckpoint fetches a checkpoint by sequence number
func (s *SuiClient) GetCheckpoint(ctx context.Context, seq uint64) (*models.Checkpoint, error) {
	var checkpoint models.Checkpoint
	if err := s.call(ctx, "sui_getCheckpoint", []interface{}{strconv.FormatUint(seq, 10)}, &checkpoint); err != nil {
		return nil, err
	}
	return &checkpoint, nil
}

// SampleTransactionDigest picks a random transaction from one of the latest
// span checkpoints, resampling when a checkpoint is empty
func (s *SuiClient) SampleTransactionDigest(ctx context.Context, span, maxAttempts int) (string, error) {
	latest, err := s.GetLatestCheckpointSequenceNumber(ctx)
	if err != nil {
		return "", err
	}
	if span <= 0 {
		span = 1
	}

	log := logger.GetLogger().WithContext(ctx)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		offset := uint64(s.intN(span))
		seq := uint64(0)
		if offset < latest {
			seq = latest - offset
		}

		checkpoint, err := s.GetCheckpoint(ctx, seq)
		if err != nil {
			return "", err
		}
		if len(checkpoint.Transactions) > 0 {
			return checkpoint.Transactions[s.intN(len(checkpoint.Transactions))], nil
		}

		log.Debug("Sampled empty checkpoint, resampling",
			zap.Uint64("checkpoint", seq),
			zap.Int("attempt", attempt),
		)
	}
	return "", ErrNoTransactions
}

// ResolveName returns the first SuiNS name registered for address, or nil
func (s *SuiClient) ResolveName(ctx context.Context, address string) (*string, error) {
	var page models.NameServicePage
	if err := s.call(ctx, "suix_resolveNameServiceNames", []interface{}{address, nil, 1}, &page); err != nil {
		return nil, err
	}
	if len(page.Data) == 0 || page.Data[0] == "" {
		return nil, nil
	}
	name := page.Data[0]
	return &name, nil
}

// FetchCoinMetadata issues one JSON-RPC batch of suix_getCoinMetadata calls.
// The result is aligned with coinTypes; unknown coins are nil.
func (s *SuiClient) FetchCoinMetadata(ctx context.Context, coinTypes []string) ([]*models.CoinMetadataEntry, error) {
	if len(coinTypes) == 0 {
		return nil, nil
	}

	requests := make([]batchRequest, len(coinTypes))
	for i, coinType := range coinTypes {
		requests[i] = batchRequest{JSONRPC: "2.0", ID: i, Method: "suix_getCoinMetadata", Params: []interface{}{coinType}}
	}

	responses, err := s.batch(ctx, "suix_getCoinMetadata", requests)
	if err != nil {
		return nil, err
	}

	out := make([]*models.CoinMetadataEntry, len(coinTypes))
	for _, resp := range responses {
		if resp.ID < 0 || resp.ID >= len(coinTypes) || resp.Error != nil {
			continue
		}
		var meta *models.SuiCoinMetadata
		if err := json.Unmarshal(resp.Result, &meta); err != nil || meta == nil {
			continue
		}
		entry := &models.CoinMetadataEntry{
			ID:       coinTypes[resp.ID],
			Name:     meta.Name,
			Symbol:   meta.Symbol,
			Decimals: meta.Decimals,
			Source:   models.MetadataSourceSuiRPC,
		}
		if meta.IconURL != nil {
			entry.IconURL = *meta.IconURL
		}
		out[resp.ID] = entry
	}
	return out, nil
}

// Ping checks the fullnode answers
func (s *SuiClient) Ping(ctx context.Context) error {
	_, err := s.GetLatestCheckpointSequenceNumber(ctx)
	return err
}

// Endpoint returns the configured fullnode URL
func (s *SuiClient) Endpoint() string {
	return s.config.Endpoint
}

// call performs a single JSON-RPC call with retries. Node-reported errors
// are not retried.
func (s *SuiClient) call(ctx context.Context, method string, params []interface{}, out interface{}) error {
	log := logger.GetLogger().WithContext(ctx)

	var lastErr error
	for attempt := 0; attempt <= s.config.MaxRetries; attempt++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}

		attemptCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
		start := time.Now()
		err := s.rpc.CallForInto(attemptCtx, out, method, params)
		cancel()
		s.metrics.RecordRPCCall(method, time.Since(start), err == nil)

		if err == nil {
			return nil
		}

		var rpcErr *jsonrpc.RPCError
		if errors.As(err, &rpcErr) {
			return &RPCError{Method: method, Code: rpcErr.Code, Message: rpcErr.Message}
		}
		lastErr = err

		log.Warn("Sui RPC call failed",
			zap.String("method", method),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)

		if attempt < s.config.MaxRetries {
			if err := sleepContext(ctx, s.config.RetryDelay*time.Duration(attempt+1)); err != nil {
				return err
			}
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", method, s.config.MaxRetries+1, lastErr)
}

type batchRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type batchResponse struct {
	ID     int             `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// batch posts a JSON-RPC batch. The whole batch succeeds or fails together.
func (s *SuiClient) batch(ctx context.Context, method string, requests []batchRequest) ([]batchResponse, error) {
	body, err := json.Marshal(requests)
	if err != nil {
		return nil, err
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	responses, err := s.postBatch(ctx, body)
	s.metrics.RecordRPCCall(method, time.Since(start), err == nil)
	return responses, err
}

func (s *SuiClient) postBatch(ctx context.Context, body []byte) ([]batchResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, string(b))
	}

	var responses []batchResponse
	if err := json.NewDecoder(resp.Body).Decode(&responses); err != nil {
		return nil, fmt.Errorf("failed to decode batch response: %w", err)
	}
	return responses, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
