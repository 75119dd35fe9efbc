package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidProvider indicates the embedding provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidEmbeddingModel indicates the embedding model is invalid.
	ErrInvalidEmbeddingModel = errors.New("invalid embedding model")

	// ErrInvalidEmbeddingDimension indicates the vector dimension is out of range.
	ErrInvalidEmbeddingDimension = errors.New("invalid embedding dimension")

	// ErrInvalidIndexLists indicates the ivfflat lists parameter is out of range.
	ErrInvalidIndexLists = errors.New("invalid index lists")

	// ErrInvalidIndexProbes indicates the ivfflat probes parameter is out of range.
	ErrInvalidIndexProbes = errors.New("invalid index probes")

	// ErrInvalidChunking indicates inconsistent chunk size/overlap settings.
	ErrInvalidChunking = errors.New("invalid chunking configuration")

	// ErrInvalidTopK indicates the retrieval top-k is out of range.
	ErrInvalidTopK = errors.New("invalid top_k")

	// ErrInvalidMinScore indicates the minimum similarity score is out of range.
	ErrInvalidMinScore = errors.New("invalid min_score")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresPassword indicates the PostgreSQL password is invalid.
	ErrInvalidPostgresPassword = errors.New("invalid PostgreSQL password")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrInvalidOllamaHost indicates the Ollama host is invalid.
	ErrInvalidOllamaHost = errors.New("invalid Ollama host")
)

// MaxEmbeddingDimension is the pgvector ivfflat indexing limit.
const MaxEmbeddingDimension = 2000

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	// 1. Embedding provider validation
	switch c.Provider {
	case ProviderOpenAI:
		if os.Getenv("OPENAI_API_KEY") == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY environment variable is required for provider %q",
				ErrMissingAPIKey, c.Provider)
		}
	case ProviderGemini:
		if os.Getenv("GEMINI_API_KEY") == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY environment variable is required for provider %q",
				ErrMissingAPIKey, c.Provider)
		}
	case ProviderOllama:
		if c.OllamaHost == "" {
			return fmt.Errorf("%w: ollama_host cannot be empty for provider %q",
				ErrInvalidOllamaHost, c.Provider)
		}
	default:
		return fmt.Errorf("%w: %q, must be one of: openai, gemini, ollama",
			ErrInvalidProvider, c.Provider)
	}

	if c.EmbeddingModel == "" {
		return fmt.Errorf("%w: embedding_model cannot be empty", ErrInvalidEmbeddingModel)
	}

	// 2. Vector store validation
	// Upper bound is the pgvector ivfflat indexing limit.
	if c.EmbeddingDimension < 1 || c.EmbeddingDimension > MaxEmbeddingDimension {
		return fmt.Errorf("%w: must be between 1 and %d, got %d",
			ErrInvalidEmbeddingDimension, MaxEmbeddingDimension, c.EmbeddingDimension)
	}

	if c.IndexLists < 1 || c.IndexLists > 32768 {
		return fmt.Errorf("%w: must be between 1 and 32768, got %d",
			ErrInvalidIndexLists, c.IndexLists)
	}

	if c.IndexProbes < 1 || c.IndexProbes > c.IndexLists {
		return fmt.Errorf("%w: must be between 1 and index_lists (%d), got %d",
			ErrInvalidIndexProbes, c.IndexLists, c.IndexProbes)
	}

	// 3. Indexing pipeline validation
	if c.ChunkSize < 1 {
		return fmt.Errorf("%w: chunk_size must be positive, got %d", ErrInvalidChunking, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap must be in [0, chunk_size), got %d",
			ErrInvalidChunking, c.ChunkOverlap)
	}

	// 4. Retrieval validation
	if c.TopK < 1 {
		return fmt.Errorf("%w: must be positive, got %d", ErrInvalidTopK, c.TopK)
	}
	if c.MinScore < 0 || c.MinScore > 1 {
		return fmt.Errorf("%w: must be between 0.0 and 1.0, got %.2f", ErrInvalidMinScore, c.MinScore)
	}

	// 5. PostgreSQL configuration validation
	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
	}

	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidPostgresPort, c.PostgresPort)
	}

	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDBName)
	}

	if c.PostgresPassword == "" {
		return fmt.Errorf("%w: postgres_password must be set", ErrInvalidPostgresPassword)
	}

	if c.PostgresPassword == "docstore_dev_password" {
		slog.Warn("Using default development password for PostgreSQL",
			"warning", "Change postgres_password for production deployments")
	}

	// Modern SSL modes only - deprecated allow/prefer are MITM vulnerable.
	validSSLModes := []string{"disable", "require", "verify-ca", "verify-full"}
	if !slices.Contains(validSSLModes, c.PostgresSSLMode) {
		return fmt.Errorf("%w: %q is not valid, must be one of: %v",
			ErrInvalidPostgresSSLMode, c.PostgresSSLMode, validSSLModes)
	}

	return nil
}
