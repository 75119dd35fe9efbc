package rag

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/repeatnomore/docstore/internal/embedding"
	"github.com/repeatnomore/docstore/internal/log"
	"github.com/repeatnomore/docstore/internal/vectorstore"
)

// RetrieverStore is the slice of the record store the retriever needs.
type RetrieverStore interface {
	Query(ctx context.Context, embedding []float32, topK int, opts ...vectorstore.QueryOption) ([]vectorstore.Match, error)
}

// Retriever embeds a natural-language query and returns the closest
// stored chunks.
type Retriever struct {
	store    RetrieverStore
	embedder embedding.Embedder
	topK     int
	minScore float64
	logger   log.Logger
}

// RetrieverConfig carries the retriever defaults; per-call options can
// override them.
type RetrieverConfig struct {
	TopK     int
	MinScore float64
}

// NewRetriever creates a Retriever over the given store and embedder.
func NewRetriever(store RetrieverStore, embedder embedding.Embedder, cfg RetrieverConfig, logger log.Logger) *Retriever {
	return &Retriever{
		store:    store,
		embedder: embedder,
		topK:     cfg.TopK,
		minScore: cfg.MinScore,
		logger:   logger,
	}
}

// RetrieveOption adjusts a single Retrieve call.
type RetrieveOption func(*retrieveConfig)

type retrieveConfig struct {
	topK      int
	minScore  float64
	storeOpts []vectorstore.QueryOption
}

// WithTopK overrides the configured result count for one call.
func WithTopK(k int) RetrieveOption {
	return func(c *retrieveConfig) { c.topK = k }
}

// WithMinScore overrides the configured score floor for one call.
func WithMinScore(score float64) RetrieveOption {
	return func(c *retrieveConfig) { c.minScore = score }
}

// WithSource restricts results to chunks indexed from the given file.
func WithSource(source string) RetrieveOption {
	return func(c *retrieveConfig) {
		c.storeOpts = append(c.storeOpts, vectorstore.WithFilter("source", source))
	}
}

// WithFilter restricts results to chunks whose metadata contains the
// given key/value pair.
func WithFilter(key string, value any) RetrieveOption {
	return func(c *retrieveConfig) {
		c.storeOpts = append(c.storeOpts, vectorstore.WithFilter(key, value))
	}
}

// Retrieve embeds the query and returns up to topK matches ordered by
// similarity, filtered by the minimum score.
func (r *Retriever) Retrieve(ctx context.Context, query string, opts ...RetrieveOption) ([]vectorstore.Match, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("embed query: %w", embedding.ErrEmptyText)
	}

	cfg := retrieveConfig{topK: r.topK, minScore: r.minScore}
	for _, opt := range opts {
		opt(&cfg)
	}

	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	storeOpts := cfg.storeOpts
	if cfg.minScore > 0 {
		storeOpts = append(storeOpts, vectorstore.WithMinScore(cfg.minScore))
	}

	matches, err := r.store.Query(ctx, vector, cfg.topK, storeOpts...)
	if err != nil {
		return nil, fmt.Errorf("query store: %w", err)
	}

	r.logger.Debug("retrieved", "query_len", len(query), "matches", len(matches))
	return matches, nil
}

// BuildContext retrieves matches for the query and joins their content
// into a single prompt-ready block of at most maxLen runes; a maxLen
// of zero or less means no limit. Matches
// that would overflow the budget are dropped; the matches actually used
// are returned alongside the text.
func (r *Retriever) BuildContext(ctx context.Context, query string, maxLen int, opts ...RetrieveOption) (string, []vectorstore.Match, error) {
	matches, err := r.Retrieve(ctx, query, opts...)
	if err != nil {
		return "", nil, err
	}
	if len(matches) == 0 {
		return "", nil, nil
	}

	const sep = "\n\n---\n\n"

	var b strings.Builder
	var used []vectorstore.Match
	total := 0
	for _, m := range matches {
		n := utf8.RuneCountInString(m.Content)
		if len(used) > 0 {
			n += utf8.RuneCountInString(sep)
		}
		if maxLen > 0 && total+n > maxLen {
			break
		}
		if len(used) > 0 {
			b.WriteString(sep)
		}
		b.WriteString(m.Content)
		total += n
		used = append(used, m)
	}

	return b.String(), used, nil
}
