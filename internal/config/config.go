package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPathEnv names a YAML file overlaid on the defaults. Environment
// variables still win over values from the file.
const ConfigPathEnv = "TXSENSE_CONFIG"

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `json:"server" yaml:"server"`
	RPC       RPCConfig       `json:"rpc" yaml:"rpc"`
	Metadata  MetadataConfig  `json:"metadata" yaml:"metadata"`
	Narrative NarrativeConfig `json:"narrative" yaml:"narrative"`
	RateLimit RateLimitConfig `json:"rate_limit" yaml:"rate_limit"`
	Storage   StorageConfig   `json:"storage" yaml:"storage"`
	Cache     CacheConfig     `json:"cache" yaml:"cache"`
	Random    RandomConfig    `json:"random" yaml:"random"`
	Logging   LoggingConfig   `json:"logging" yaml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         string        `json:"port" yaml:"port"`
	Host         string        `json:"host" yaml:"host"`
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout" yaml:"idle_timeout"`
}

// RPCConfig holds Sui fullnode RPC configuration
type RPCConfig struct {
	Endpoint          string        `json:"endpoint" yaml:"endpoint"`
	Timeout           time.Duration `json:"timeout" yaml:"timeout"`
	MaxRetries        int           `json:"max_retries" yaml:"max_retries"`
	RetryDelay        time.Duration `json:"retry_delay" yaml:"retry_delay"`
	RequestsPerSecond float64       `json:"requests_per_second" yaml:"requests_per_second"`
	Burst             int           `json:"burst" yaml:"burst"`
}

// MetadataConfig holds coin metadata source configuration
type MetadataConfig struct {
	AftermathURL string            `json:"aftermath_url" yaml:"aftermath_url"`
	Timeout      time.Duration     `json:"timeout" yaml:"timeout"`
	IconFallback map[string]string `json:"icon_fallback" yaml:"icon_fallback"`
}

// NarrativeConfig holds narrative generator configuration
type NarrativeConfig struct {
	APIKey  string        `json:"-" yaml:"api_key"`
	Model   string        `json:"model" yaml:"model"`
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// RateLimitConfig holds admission control configuration
type RateLimitConfig struct {
	Requests   int           `json:"requests" yaml:"requests"`
	Window     time.Duration `json:"window" yaml:"window"`
	StorageKey string        `json:"storage_key" yaml:"storage_key"`
}

// StorageConfig selects the durable store backing the rate window
type StorageConfig struct {
	Driver          string        `json:"driver" yaml:"driver"`
	SQLitePath      string        `json:"sqlite_path" yaml:"sqlite_path"`
	MongoURI        string        `json:"-" yaml:"mongo_uri"`
	MongoDatabase   string        `json:"mongo_database" yaml:"mongo_database"`
	MongoCollection string        `json:"mongo_collection" yaml:"mongo_collection"`
	ConnectTimeout  time.Duration `json:"connect_timeout" yaml:"connect_timeout"`
}

// CacheConfig holds metadata/name cache configuration. A zero TTL keeps
// entries for the process lifetime. MutexCleanup drops idle per-key request
// mutexes.
type CacheConfig struct {
	TTL          time.Duration `json:"ttl" yaml:"ttl"`
	MutexCleanup time.Duration `json:"mutex_cleanup" yaml:"mutex_cleanup"`
}

// RandomConfig holds random transaction sampling configuration
type RandomConfig struct {
	CheckpointSpan int `json:"checkpoint_span" yaml:"checkpoint_span"`
	MaxAttempts    int `json:"max_attempts" yaml:"max_attempts"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level       string   `json:"level" yaml:"level"`
	Environment string   `json:"environment" yaml:"environment"`
	Encoding    string   `json:"encoding" yaml:"encoding"`
	OutputPaths []string `json:"output_paths" yaml:"output_paths"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         "8080",
			Host:         "0.0.0.0",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 90 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		RPC: RPCConfig{
			Endpoint:          "https://fullnode.mainnet.sui.io:443",
			Timeout:           20 * time.Second,
			MaxRetries:        3,
			RetryDelay:        500 * time.Millisecond,
			RequestsPerSecond: 20,
			Burst:             10,
		},
		Metadata: MetadataConfig{
			AftermathURL: "https://aftermath.finance/api/coins/metadata",
			Timeout:      10 * time.Second,
			IconFallback: map[string]string{
				"0x2::sui::SUI": "https://s2.coinmarketcap.com/static/img/coins/64x64/20947.png",
				"0x0000000000000000000000000000000000000000000000000000000000000002::sui::SUI": "https://s2.coinmarketcap.com/static/img/coins/64x64/20947.png",
			},
		},
		Narrative: NarrativeConfig{
			Model:   "gemini-2.5-flash",
			Timeout: 60 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Requests:   10,
			Window:     time.Minute,
			StorageKey: "txsense_rate_limit_timestamps",
		},
		Storage: StorageConfig{
			Driver:          "sqlite",
			SQLitePath:      "data/txsense.db",
			MongoDatabase:   "txsense",
			MongoCollection: "kv",
			ConnectTimeout:  10 * time.Second,
		},
		Cache: CacheConfig{
			MutexCleanup: 10 * time.Minute,
		},
		Random: RandomConfig{
			CheckpointSpan: 100,
			MaxAttempts:    5,
		},
		Logging: LoggingConfig{
			Level:       "info",
			Environment: "development",
			OutputPaths: []string{"stdout"},
		},
	}
}

// LoadConfig loads the defaults, the optional YAML file named by
// TXSENSE_CONFIG, then environment variable overrides
func LoadConfig() (*Config, error) {
	cfg := Default()

	if path := os.Getenv(ConfigPathEnv); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.Port = getEnv("SERVER_PORT", c.Server.Port)
	c.Server.Host = getEnv("SERVER_HOST", c.Server.Host)
	c.Server.ReadTimeout = getDurationEnv("SERVER_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getDurationEnv("SERVER_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.IdleTimeout = getDurationEnv("SERVER_IDLE_TIMEOUT", c.Server.IdleTimeout)

	c.RPC.Endpoint = getEnv("SUI_RPC_ENDPOINT", c.RPC.Endpoint)
	c.RPC.Timeout = getDurationEnv("SUI_RPC_TIMEOUT", c.RPC.Timeout)
	c.RPC.MaxRetries = getIntEnv("SUI_RPC_MAX_RETRIES", c.RPC.MaxRetries)
	c.RPC.RetryDelay = getDurationEnv("SUI_RPC_RETRY_DELAY", c.RPC.RetryDelay)
	c.RPC.RequestsPerSecond = getFloatEnv("SUI_RPC_REQUESTS_PER_SECOND", c.RPC.RequestsPerSecond)
	c.RPC.Burst = getIntEnv("SUI_RPC_BURST", c.RPC.Burst)

	c.Metadata.AftermathURL = getEnv("AFTERMATH_METADATA_URL", c.Metadata.AftermathURL)
	c.Metadata.Timeout = getDurationEnv("AFTERMATH_TIMEOUT", c.Metadata.Timeout)

	c.Narrative.APIKey = getEnv("GEMINI_API_KEY", c.Narrative.APIKey)
	c.Narrative.Model = getEnv("GEMINI_MODEL", c.Narrative.Model)
	c.Narrative.Timeout = getDurationEnv("GEMINI_TIMEOUT", c.Narrative.Timeout)

	c.RateLimit.Requests = getIntEnv("RATE_LIMIT_REQUESTS", c.RateLimit.Requests)
	c.RateLimit.Window = getDurationEnv("RATE_LIMIT_WINDOW", c.RateLimit.Window)
	c.RateLimit.StorageKey = getEnv("RATE_LIMIT_STORAGE_KEY", c.RateLimit.StorageKey)

	c.Storage.Driver = getEnv("STORAGE_DRIVER", c.Storage.Driver)
	c.Storage.SQLitePath = getEnv("STORAGE_SQLITE_PATH", c.Storage.SQLitePath)
	c.Storage.MongoURI = getEnv("MONGODB_URI", c.Storage.MongoURI)
	c.Storage.MongoDatabase = getEnv("MONGODB_DATABASE", c.Storage.MongoDatabase)
	c.Storage.MongoCollection = getEnv("MONGODB_COLLECTION", c.Storage.MongoCollection)
	c.Storage.ConnectTimeout = getDurationEnv("MONGODB_CONNECT_TIMEOUT", c.Storage.ConnectTimeout)

	c.Cache.TTL = getDurationEnv("CACHE_TTL", c.Cache.TTL)
	c.Cache.MutexCleanup = getDurationEnv("CACHE_MUTEX_CLEANUP", c.Cache.MutexCleanup)

	c.Random.CheckpointSpan = getIntEnv("RANDOM_CHECKPOINT_SPAN", c.Random.CheckpointSpan)
	c.Random.MaxAttempts = getIntEnv("RANDOM_MAX_ATTEMPTS", c.Random.MaxAttempts)

	c.Logging.Level = getEnv("LOG_LEVEL", c.Logging.Level)
	c.Logging.Environment = getEnv("LOG_ENVIRONMENT", c.Logging.Environment)
	c.Logging.Encoding = getEnv("LOG_ENCODING", c.Logging.Encoding)
	c.Logging.OutputPaths = getStringSliceEnv("LOG_OUTPUT_PATHS", c.Logging.OutputPaths)
}

// Validate rejects configurations the pipeline cannot run with
func (c *Config) Validate() error {
	if c.RPC.Endpoint == "" {
		return fmt.Errorf("rpc endpoint is required")
	}
	if c.RateLimit.Requests <= 0 {
		return fmt.Errorf("rate_limit.requests must be positive, got %d", c.RateLimit.Requests)
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("rate_limit.window must be positive, got %s", c.RateLimit.Window)
	}
	if c.Random.CheckpointSpan <= 0 {
		return fmt.Errorf("random.checkpoint_span must be positive, got %d", c.Random.CheckpointSpan)
	}
	if c.Random.MaxAttempts <= 0 {
		return fmt.Errorf("random.max_attempts must be positive, got %d", c.Random.MaxAttempts)
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl must not be negative")
	}
	if c.Cache.MutexCleanup < 0 {
		return fmt.Errorf("cache.mutex_cleanup must not be negative")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultValue
}
