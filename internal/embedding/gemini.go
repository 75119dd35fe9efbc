package embedding

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiEmbedder produces embeddings through the Gemini API.
type GeminiEmbedder struct {
	client *genai.Client
	model  string
	dim    int
}

// NewGemini creates a Gemini embedder. The API key is read from the
// GEMINI_API_KEY environment variable when apiKey is empty.
func NewGemini(ctx context.Context, apiKey, model string, dimension int) (*GeminiEmbedder, error) {
	if model == "" {
		model = "gemini-embedding-001"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini embedder: %w", err)
	}

	return &GeminiEmbedder{
		client: client,
		model:  model,
		dim:    dimension,
	}, nil
}

func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *GeminiEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := validateTexts(texts); err != nil {
		return nil, err
	}

	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	// gemini-embedding-001 outputs 3072 dimensions by default;
	// OutputDimensionality truncates to the configured size.
	dim := int32(e.dim)
	resp, err := e.client.Models.EmbedContent(ctx, e.model, contents, &genai.EmbedContentConfig{
		OutputDimensionality: &dim,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini embeddings: %w", err)
	}

	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini embeddings: got %d vectors for %d texts",
			len(resp.Embeddings), len(texts))
	}

	vecs := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		if err := checkDimension(emb.Values, e.dim); err != nil {
			return nil, fmt.Errorf("gemini embeddings: %w", err)
		}
		vecs[i] = emb.Values
	}
	return vecs, nil
}

func (e *GeminiEmbedder) Dimension() int { return e.dim }
