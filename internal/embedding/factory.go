package embedding

import (
	"context"
	"fmt"
	"os"

	"github.com/repeatnomore/docstore/internal/config"
)

// New selects and constructs the configured embedding provider.
// API keys come from the environment (OPENAI_API_KEY, GEMINI_API_KEY);
// config.Validate has already checked their presence.
func New(ctx context.Context, cfg *config.Config) (Embedder, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return NewOpenAI(os.Getenv("OPENAI_API_KEY"), cfg.OpenAIBaseURL,
			cfg.EmbeddingModel, cfg.EmbeddingDimension)
	case config.ProviderGemini:
		return NewGemini(ctx, os.Getenv("GEMINI_API_KEY"),
			cfg.EmbeddingModel, cfg.EmbeddingDimension)
	case config.ProviderOllama:
		return NewOllama(cfg.OllamaHost, cfg.EmbeddingModel, cfg.EmbeddingDimension), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}
