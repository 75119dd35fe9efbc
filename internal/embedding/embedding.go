// Package embedding produces fixed-dimension vectors from text.
//
// The Embedder interface is a capability contract: any component
// satisfying it can be substituted, and the concrete provider (OpenAI,
// Gemini, Ollama) is selected by configuration through New. The vector
// store is agnostic to how vectors are produced but enforces
// dimensional consistency, so every provider verifies that the backend
// returned exactly the configured dimension.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyText indicates an attempt to embed empty or blank text.
	ErrEmptyText = errors.New("cannot embed empty text")

	// ErrDimensionMismatch indicates the backend returned a vector of
	// an unexpected length.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Embedder produces embedding vectors of a fixed dimension.
type Embedder interface {
	// Embed returns the embedding vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one vector per text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the length of the vectors this embedder produces.
	Dimension() int
}

// validateTexts rejects empty input and blank entries up front, before
// any backend call is made.
func validateTexts(texts []string) error {
	if len(texts) == 0 {
		return fmt.Errorf("%w: empty text list", ErrEmptyText)
	}
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return fmt.Errorf("%w: text %d is blank", ErrEmptyText, i)
		}
	}
	return nil
}

// checkDimension verifies a returned vector against the configured
// dimension.
func checkDimension(vec []float32, want int) error {
	if len(vec) != want {
		return fmt.Errorf("%w: backend returned %d dimensions, expected %d",
			ErrDimensionMismatch, len(vec), want)
	}
	return nil
}
