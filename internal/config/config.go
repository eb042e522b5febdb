// Package config loads the engine configuration from YAML with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/toolkit-rag/engine/internal/rag/ragerr"
	"github.com/toolkit-rag/engine/pkg/models"
)

// Config is the main configuration structure for the engine.
type Config struct {
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Store     StoreConfig     `yaml:"store"`
	Query     QueryConfig     `yaml:"query"`
	Ingest    IngestConfig    `yaml:"ingest"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Cache     CacheConfig     `yaml:"cache"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

type ChunkingConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
}

type EmbeddingConfig struct {
	// Provider selects the backend: "ollama", "openai", or "tei".
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	APIKey   string `yaml:"api_key"`
	// Dimension overrides the model's default embedding width.
	// Required for the tei provider.
	Dimension int `yaml:"dimension"`
	// RequestTimeout bounds each provider call.
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type StoreConfig struct {
	// Backend selects the store: "pgvector", "qdrant", "sqlite", or "memory".
	Backend string `yaml:"backend"`
	// DSN is the PostgreSQL connection string for pgvector.
	DSN string `yaml:"dsn"`
	// URL is the Qdrant server URL.
	URL string `yaml:"url"`
	// APIKey authenticates against Qdrant when set.
	APIKey string `yaml:"api_key"`
	// Path is the SQLite database file.
	Path string `yaml:"path"`
	// RunMigrations applies schema migrations on startup (pgvector).
	RunMigrations bool `yaml:"run_migrations"`
}

type QueryConfig struct {
	// DefaultLimit caps result counts when the request does not set one.
	DefaultLimit int `yaml:"default_limit"`
	// MaxLimit is the largest limit a request may ask for.
	MaxLimit int `yaml:"max_limit"`
	// HybridAlpha weights the semantic score in hybrid mode; the
	// keyword score gets 1-alpha.
	HybridAlpha float64 `yaml:"hybrid_alpha"`
}

type IngestConfig struct {
	// Concurrency bounds parallel document ingestions in a batch.
	Concurrency int `yaml:"concurrency"`
	// Timeout bounds one document's full ingest pipeline.
	Timeout time.Duration `yaml:"timeout"`
	// RetryAttempts is how many times transient failures are retried.
	RetryAttempts int `yaml:"retry_attempts"`
}

type RateLimitConfig struct {
	Enabled bool            `yaml:"enabled"`
	Ingest  RateClassConfig `yaml:"ingest"`
	Query   RateClassConfig `yaml:"query"`
}

type RateClassConfig struct {
	Limit  int           `yaml:"limit"`
	Window time.Duration `yaml:"window"`
}

type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	TTL     time.Duration `yaml:"ttl"`
	MaxSize int           `yaml:"max_size"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type TracingConfig struct {
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
	Insecure     bool    `yaml:"insecure"`
}

// Load reads the configuration file, expands ${VAR} references, applies
// environment overrides, and validates the result. A missing path
// yields the defaults plus overrides. A .env file in the working
// directory is honored when present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Chunking.ChunkSize == 0 {
		cfg.Chunking.ChunkSize = 1000
	}
	if cfg.Chunking.ChunkOverlap == 0 {
		cfg.Chunking.ChunkOverlap = 200
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "ollama"
	}
	if cfg.Embedding.RequestTimeout == 0 {
		cfg.Embedding.RequestTimeout = 30 * time.Second
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "memory"
	}
	if cfg.Query.DefaultLimit == 0 {
		cfg.Query.DefaultLimit = 10
	}
	if cfg.Query.MaxLimit == 0 {
		cfg.Query.MaxLimit = 100
	}
	if cfg.Query.HybridAlpha == 0 {
		cfg.Query.HybridAlpha = 0.5
	}
	if cfg.Ingest.Concurrency == 0 {
		cfg.Ingest.Concurrency = 4
	}
	if cfg.Ingest.Timeout == 0 {
		cfg.Ingest.Timeout = 2 * time.Minute
	}
	if cfg.Ingest.RetryAttempts == 0 {
		cfg.Ingest.RetryAttempts = 3
	}
	if cfg.RateLimit.Ingest.Limit == 0 {
		cfg.RateLimit.Ingest.Limit = 30
	}
	if cfg.RateLimit.Ingest.Window == 0 {
		cfg.RateLimit.Ingest.Window = time.Minute
	}
	if cfg.RateLimit.Query.Limit == 0 {
		cfg.RateLimit.Query.Limit = 120
	}
	if cfg.RateLimit.Query.Window == 0 {
		cfg.RateLimit.Query.Window = time.Minute
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = 5 * time.Minute
	}
	if cfg.Cache.MaxSize == 0 {
		cfg.Cache.MaxSize = 1024
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Tracing.SamplingRate == 0 {
		cfg.Tracing.SamplingRate = 1.0
	}
}

// applyEnvOverrides lets deployment environments override the file
// without templating it.
func applyEnvOverrides(cfg *Config) {
	setInt(&cfg.Chunking.ChunkSize, "CHUNK_SIZE")
	setInt(&cfg.Chunking.ChunkOverlap, "CHUNK_OVERLAP")

	setString(&cfg.Embedding.Provider, "EMBEDDING_PROVIDER")
	setString(&cfg.Embedding.Model, "EMBEDDING_MODEL")
	setString(&cfg.Embedding.BaseURL, "EMBEDDING_BASE_URL")
	setString(&cfg.Embedding.APIKey, "EMBEDDING_API_KEY")
	setString(&cfg.Embedding.APIKey, "OPENAI_API_KEY")
	setInt(&cfg.Embedding.Dimension, "EMBEDDING_DIMENSION")
	setDuration(&cfg.Embedding.RequestTimeout, "EMBEDDING_TIMEOUT")

	setString(&cfg.Store.Backend, "STORE_BACKEND")
	setString(&cfg.Store.DSN, "DATABASE_URL")
	setString(&cfg.Store.URL, "QDRANT_URL")
	setString(&cfg.Store.APIKey, "QDRANT_API_KEY")
	setString(&cfg.Store.Path, "SQLITE_PATH")

	setFloat(&cfg.Query.HybridAlpha, "HYBRID_ALPHA")
	setInt(&cfg.Query.DefaultLimit, "QUERY_DEFAULT_LIMIT")
	setInt(&cfg.Query.MaxLimit, "QUERY_MAX_LIMIT")

	setInt(&cfg.Ingest.Concurrency, "INGEST_CONCURRENCY")

	setDuration(&cfg.Cache.TTL, "CACHE_TTL")
	setBool(&cfg.Cache.Enabled, "CACHE_ENABLED")
	setBool(&cfg.RateLimit.Enabled, "RATE_LIMIT_ENABLED")

	setString(&cfg.Logging.Level, "LOG_LEVEL")
	setString(&cfg.Logging.Format, "LOG_FORMAT")
	setString(&cfg.Tracing.Endpoint, "OTEL_ENDPOINT")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Chunking.ChunkSize <= 0 {
		return ragerr.New(ragerr.KindValidation, "chunk_size must be positive, got %d", c.Chunking.ChunkSize)
	}
	if c.Chunking.ChunkOverlap < 0 || c.Chunking.ChunkOverlap >= c.Chunking.ChunkSize {
		return ragerr.New(ragerr.KindValidation, "chunk_overlap must be in [0, chunk_size), got %d", c.Chunking.ChunkOverlap)
	}

	switch c.Embedding.Provider {
	case "ollama", "openai", "tei":
	default:
		return ragerr.New(ragerr.KindValidation, "unknown embedding provider %q", c.Embedding.Provider)
	}
	if c.Embedding.Provider == "tei" && c.Embedding.Dimension <= 0 {
		return ragerr.New(ragerr.KindValidation, "tei provider requires an explicit embedding dimension")
	}

	switch c.Store.Backend {
	case "pgvector":
		if c.Store.DSN == "" {
			return ragerr.New(ragerr.KindValidation, "pgvector backend requires a DSN")
		}
	case "qdrant":
		if c.Store.URL == "" {
			return ragerr.New(ragerr.KindValidation, "qdrant backend requires a URL")
		}
	case "sqlite":
		if c.Store.Path == "" {
			return ragerr.New(ragerr.KindValidation, "sqlite backend requires a path")
		}
	case "memory":
	default:
		return ragerr.New(ragerr.KindValidation, "unknown store backend %q", c.Store.Backend)
	}

	if c.Query.HybridAlpha < 0 || c.Query.HybridAlpha > 1 {
		return ragerr.New(ragerr.KindValidation, "hybrid_alpha must be in [0, 1], got %g", c.Query.HybridAlpha)
	}
	if c.Query.DefaultLimit <= 0 || c.Query.DefaultLimit > c.Query.MaxLimit {
		return ragerr.New(ragerr.KindValidation, "default_limit must be in (0, max_limit]")
	}
	if c.Ingest.Concurrency <= 0 {
		return ragerr.New(ragerr.KindValidation, "ingest concurrency must be positive")
	}
	return nil
}

// SearchDefaults returns the request-level defaults derived from the
// query section.
func (c *Config) SearchDefaults() (limit, maxLimit int, mode models.SearchMode) {
	return c.Query.DefaultLimit, c.Query.MaxLimit, models.SearchModeSemantic
}
