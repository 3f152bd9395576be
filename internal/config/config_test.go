package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv(ConfigPathEnv, "")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "https://fullnode.mainnet.sui.io:443", cfg.RPC.Endpoint)
	assert.Equal(t, "https://aftermath.finance/api/coins/metadata", cfg.Metadata.AftermathURL)
	assert.Equal(t, 10, cfg.RateLimit.Requests)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, "txsense_rate_limit_timestamps", cfg.RateLimit.StorageKey)
	assert.Equal(t, 100, cfg.Random.CheckpointSpan)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, time.Duration(0), cfg.Cache.TTL)
	assert.Equal(t, 10*time.Minute, cfg.Cache.MutexCleanup)
	assert.NotEmpty(t, cfg.Metadata.IconFallback["0x2::sui::SUI"])
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv(ConfigPathEnv, "")
	t.Setenv("SUI_RPC_ENDPOINT", "http://localhost:9000")
	t.Setenv("RATE_LIMIT_REQUESTS", "3")
	t.Setenv("RATE_LIMIT_WINDOW", "30s")
	t.Setenv("SUI_RPC_REQUESTS_PER_SECOND", "2.5")
	t.Setenv("LOG_OUTPUT_PATHS", "stdout, /tmp/txsense.log")
	t.Setenv("RANDOM_MAX_ATTEMPTS", "not-a-number")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:9000", cfg.RPC.Endpoint)
	assert.Equal(t, 3, cfg.RateLimit.Requests)
	assert.Equal(t, 30*time.Second, cfg.RateLimit.Window)
	assert.Equal(t, 2.5, cfg.RPC.RequestsPerSecond)
	assert.Equal(t, []string{"stdout", "/tmp/txsense.log"}, cfg.Logging.OutputPaths)
	assert.Equal(t, 5, cfg.Random.MaxAttempts, "unparseable values keep the default")
}

func TestLoadConfigYAMLOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "txsense.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
rpc:
  endpoint: https://fullnode.testnet.sui.io:443
  timeout: 5s
metadata:
  icon_fallback:
    "0xabc::coin::COIN": https://example.com/coin.png
storage:
  driver: memory
random:
  checkpoint_span: 20
`), 0o600))

	t.Setenv(ConfigPathEnv, path)
	t.Setenv("STORAGE_DRIVER", "mongo")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "https://fullnode.testnet.sui.io:443", cfg.RPC.Endpoint)
	assert.Equal(t, 5*time.Second, cfg.RPC.Timeout)
	assert.Equal(t, 20, cfg.Random.CheckpointSpan)
	assert.Equal(t, "mongo", cfg.Storage.Driver, "environment wins over the file")
	assert.Equal(t, "https://example.com/coin.png", cfg.Metadata.IconFallback["0xabc::coin::COIN"])
	assert.Equal(t, 3, cfg.RPC.MaxRetries, "fields absent from the file keep defaults")
}

func TestLoadConfigErrors(t *testing.T) {
	t.Run("MissingFile", func(t *testing.T) {
		t.Setenv(ConfigPathEnv, filepath.Join(t.TempDir(), "absent.yaml"))
		_, err := LoadConfig()
		assert.Error(t, err)
	})

	t.Run("MalformedFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("rpc: [unterminated"), 0o600))
		t.Setenv(ConfigPathEnv, path)
		_, err := LoadConfig()
		assert.Error(t, err)
	})

	t.Run("InvalidRateLimit", func(t *testing.T) {
		t.Setenv(ConfigPathEnv, "")
		t.Setenv("RATE_LIMIT_REQUESTS", "0")
		_, err := LoadConfig()
		assert.ErrorContains(t, err, "rate_limit.requests")
	})

	t.Run("NegativeMutexCleanup", func(t *testing.T) {
		t.Setenv(ConfigPathEnv, "")
		t.Setenv("CACHE_MUTEX_CLEANUP", "-1s")
		_, err := LoadConfig()
		assert.ErrorContains(t, err, "cache.mutex_cleanup")
	})
}
