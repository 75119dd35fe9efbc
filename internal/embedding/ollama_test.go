package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newOllamaTestServer fakes the /api/embeddings endpoint, returning a
// fixed vector and recording the prompts it saw.
func newOllamaTestServer(t *testing.T, vector []float32, prompts *[]string) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			http.NotFound(w, r)
			return
		}

		var req struct {
			Model  string `json:"model"`
			Prompt string `json:"prompt"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		*prompts = append(*prompts, req.Prompt)

		resp := map[string]any{"embedding": vector}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func TestOllamaEmbed(t *testing.T) {
	var prompts []string
	srv := newOllamaTestServer(t, []float32{0.1, 0.2, 0.3}, &prompts)
	defer srv.Close()

	e := NewOllama(srv.URL, "nomic-embed-text", 3)

	vec, err := e.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
	assert.Equal(t, []string{"hello world"}, prompts)
}

func TestOllamaEmbed_EmptyText(t *testing.T) {
	e := NewOllama("http://localhost:11434", "nomic-embed-text", 3)
	_, err := e.Embed(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestOllamaEmbed_DimensionMismatch(t *testing.T) {
	var prompts []string
	srv := newOllamaTestServer(t, []float32{0.1, 0.2}, &prompts)
	defer srv.Close()

	e := NewOllama(srv.URL, "nomic-embed-text", 3)
	_, err := e.Embed(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestOllamaEmbedBatch(t *testing.T) {
	var prompts []string
	srv := newOllamaTestServer(t, []float32{1, 0}, &prompts)
	defer srv.Close()

	e := NewOllama(srv.URL, "nomic-embed-text", 2)

	vecs, err := e.EmbedBatch(context.Background(), []string{"one", "two", "three"})
	require.NoError(t, err)
	assert.Len(t, vecs, 3)
	assert.Equal(t, []string{"one", "two", "three"}, prompts)
}

func TestOllamaEmbed_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	e := NewOllama(srv.URL, "missing-model", 3)
	_, err := e.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}

func TestOllamaDefaults(t *testing.T) {
	e := NewOllama("", "", 768)
	assert.Equal(t, "http://localhost:11434", e.baseURL)
	assert.Equal(t, "nomic-embed-text", e.model)
}
