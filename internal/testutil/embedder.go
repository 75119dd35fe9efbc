package testutil

import (
	"context"
	"hash/fnv"
	"math"

	"github.com/repeatnomore/docstore/internal/embedding"
)

// FakeEmbedder is a deterministic, offline embedding.Embedder for
// tests. The same text always maps to the same unit-length vector, and
// different texts map to (almost certainly) different vectors, so
// similarity ordering is stable across runs without any API calls.
type FakeEmbedder struct {
	Dim int
	// Err, when set, is returned by every call.
	Err error
	// Calls records every text passed to Embed or EmbedBatch.
	Calls []string
}

// NewFakeEmbedder returns a FakeEmbedder producing vectors of the given
// dimension.
func NewFakeEmbedder(dim int) *FakeEmbedder {
	return &FakeEmbedder{Dim: dim}
}

// Embed returns a deterministic unit vector derived from text.
func (f *FakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	f.Calls = append(f.Calls, text)
	return f.vector(text), nil
}

// EmbedBatch embeds each text independently.
func (f *FakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		f.Calls = append(f.Calls, text)
		out[i] = f.vector(text)
	}
	return out, nil
}

// Dimension returns the configured vector dimension.
func (f *FakeEmbedder) Dimension() int { return f.Dim }

func (f *FakeEmbedder) vector(text string) []float32 {
	v := make([]float32, f.Dim)
	var norm float64
	for i := range v {
		h := fnv.New64a()
		h.Write([]byte(text))
		h.Write([]byte{byte(i), byte(i >> 8)})
		// Map the hash into [-1, 1).
		v[i] = float32(int64(h.Sum64())%1000) / 1000
		norm += float64(v[i]) * float64(v[i])
	}
	if norm == 0 {
		v[0] = 1
		return v
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range v {
		v[i] *= scale
	}
	return v
}

var _ embedding.Embedder = (*FakeEmbedder)(nil)
