// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.docstore/config.yaml or ./config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - Storage: PostgreSQL connection and ANN index tuning (see storage.go)
//   - Embedding: provider selection, model, vector dimension
//   - Indexing: chunk size/overlap, embed rate limit
//   - Retrieval: top-k and minimum similarity score
//   - Tracing: OTLP exporter settings
//
// Validation uses sentinel errors for errors.Is() checks; see validation.go.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Embedding provider identifiers used in Config.Provider.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
)

const (
	// DefaultEmbeddingModel is the default OpenAI-compatible embedding model.
	// text-embedding-3-small outputs 1536 dimensions.
	DefaultEmbeddingModel = "text-embedding-3-small"

	// DefaultEmbeddingDimension matches DefaultEmbeddingModel.
	DefaultEmbeddingDimension = 1536

	// DefaultIndexLists is the default ivfflat partition count.
	// Rule of thumb: lists ≈ sqrt(row count); 100 suits corpora up to ~10k rows.
	DefaultIndexLists = 100

	// DefaultIndexProbes is the default number of ivfflat lists scanned
	// per query. Higher values raise recall at the cost of latency.
	DefaultIndexProbes = 10
)

// Config stores application configuration.
// SECURITY: sensitive fields (passwords, API keys) are never logged.
type Config struct {
	// PostgreSQL connection (see storage.go for DSN helpers)
	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"` // SENSITIVE
	PostgresDBName   string `mapstructure:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode"`

	// Vector store
	EmbeddingDimension int `mapstructure:"embedding_dimension"`
	IndexLists         int `mapstructure:"index_lists"`  // ivfflat lists (build-time)
	IndexProbes        int `mapstructure:"index_probes"` // ivfflat probes (query-time)

	// Embedding provider selection
	Provider       string `mapstructure:"provider"`        // "openai" (default), "gemini", "ollama"
	EmbeddingModel string `mapstructure:"embedding_model"` // model identifier
	OpenAIBaseURL  string `mapstructure:"openai_base_url"` // OpenAI-compatible endpoint override
	OllamaHost     string `mapstructure:"ollama_host"`

	// Indexing pipeline
	ChunkSize      int     `mapstructure:"chunk_size"`
	ChunkOverlap   int     `mapstructure:"chunk_overlap"`
	EmbedRateLimit float64 `mapstructure:"embed_rate_limit"` // embed calls per second, 0 = unlimited

	// Retrieval
	TopK     int     `mapstructure:"top_k"`
	MinScore float64 `mapstructure:"min_score"`

	// Tracing (see internal/observability)
	Tracing TracingConfig `mapstructure:"tracing"`
}

// TracingConfig configures the OTLP trace exporter.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"` // OTLP HTTP endpoint (host:port)
	Environment string `mapstructure:"environment"`
	ServiceName string `mapstructure:"service_name"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".docstore")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is not an error; defaults apply.
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL overrides individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper) {
	// PostgreSQL defaults for local development
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "docstore")
	v.SetDefault("postgres_password", "docstore_dev_password")
	v.SetDefault("postgres_db_name", "docstore")
	v.SetDefault("postgres_ssl_mode", "disable")

	// Vector store defaults
	v.SetDefault("embedding_dimension", DefaultEmbeddingDimension)
	v.SetDefault("index_lists", DefaultIndexLists)
	v.SetDefault("index_probes", DefaultIndexProbes)

	// Embedding defaults
	v.SetDefault("provider", ProviderOpenAI)
	v.SetDefault("embedding_model", DefaultEmbeddingModel)
	v.SetDefault("ollama_host", "http://localhost:11434")

	// Indexing defaults
	v.SetDefault("chunk_size", 1000)
	v.SetDefault("chunk_overlap", 200)
	v.SetDefault("embed_rate_limit", 5.0)

	// Retrieval defaults
	v.SetDefault("top_k", 5)
	v.SetDefault("min_score", 0.3)

	// Tracing defaults
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4318")
	v.SetDefault("tracing.environment", "dev")
	v.SetDefault("tracing.service_name", "docstore")
}

// bindEnvVariables binds environment variable overrides explicitly.
// API keys (OPENAI_API_KEY, GEMINI_API_KEY) are read by the embedding
// providers directly, not via viper; Validate() checks their presence
// based on the selected provider.
func bindEnvVariables(v *viper.Viper) {
	// Hardcoded keys cannot fail to bind; a panic here is a bug.
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("provider", "DOCSTORE_PROVIDER")
	mustBind("embedding_model", "DOCSTORE_EMBEDDING_MODEL")
	mustBind("embedding_dimension", "DOCSTORE_EMBEDDING_DIMENSION")
	mustBind("openai_base_url", "DOCSTORE_OPENAI_BASE_URL")
	mustBind("ollama_host", "DOCSTORE_OLLAMA_HOST")
	mustBind("index_lists", "DOCSTORE_INDEX_LISTS")
	mustBind("index_probes", "DOCSTORE_INDEX_PROBES")
	mustBind("tracing.enabled", "DOCSTORE_TRACING_ENABLED")
	mustBind("tracing.endpoint", "DOCSTORE_TRACING_ENDPOINT")
}
