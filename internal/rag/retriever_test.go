package rag

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repeatnomore/docstore/internal/embedding"
	"github.com/repeatnomore/docstore/internal/testutil"
	"github.com/repeatnomore/docstore/internal/vectorstore"
)

// queryRecorder is a RetrieverStore that records the last call and
// returns canned matches.
type queryRecorder struct {
	matches  []vectorstore.Match
	err      error
	lastTopK int
	lastOpts int
	lastVec  []float32
}

func (q *queryRecorder) Query(_ context.Context, vec []float32, topK int, opts ...vectorstore.QueryOption) ([]vectorstore.Match, error) {
	q.lastVec = vec
	q.lastTopK = topK
	q.lastOpts = len(opts)
	return q.matches, q.err
}

func match(id, content string, distance float64) vectorstore.Match {
	return vectorstore.Match{
		Record:   vectorstore.Record{ID: id, Content: content},
		Distance: distance,
	}
}

func testRetriever(store RetrieverStore) *Retriever {
	return NewRetriever(store, testutil.NewFakeEmbedder(8), RetrieverConfig{
		TopK:     5,
		MinScore: 0.3,
	}, testutil.DiscardLogger())
}

func TestRetriever_Retrieve(t *testing.T) {
	store := &queryRecorder{matches: []vectorstore.Match{
		match("a", "first", 0.1),
		match("b", "second", 0.4),
	}}
	r := testRetriever(store)

	matches, err := r.Retrieve(context.Background(), "what is stored?")
	require.NoError(t, err)

	require.Len(t, matches, 2)
	assert.Equal(t, "a", matches[0].ID)
	assert.Equal(t, 5, store.lastTopK)
	assert.Len(t, store.lastVec, 8)
	// The configured min score is forwarded as a store option.
	assert.Equal(t, 1, store.lastOpts)
}

func TestRetriever_EmptyQuery(t *testing.T) {
	r := testRetriever(&queryRecorder{})

	tests := []string{"", "   ", "\n\t"}
	for _, query := range tests {
		_, err := r.Retrieve(context.Background(), query)
		assert.ErrorIs(t, err, embedding.ErrEmptyText, "query %q", query)
	}
}

func TestRetriever_Options(t *testing.T) {
	store := &queryRecorder{}
	r := testRetriever(store)

	_, err := r.Retrieve(context.Background(), "query",
		WithTopK(2),
		WithSource("/data/a.txt"),
		WithFilter("file_type", "md"),
	)
	require.NoError(t, err)

	assert.Equal(t, 2, store.lastTopK)
	// Two filters plus the default min score.
	assert.Equal(t, 3, store.lastOpts)
}

func TestRetriever_MinScoreZeroDisablesFloor(t *testing.T) {
	store := &queryRecorder{}
	r := NewRetriever(store, testutil.NewFakeEmbedder(8), RetrieverConfig{TopK: 3}, testutil.DiscardLogger())

	_, err := r.Retrieve(context.Background(), "query")
	require.NoError(t, err)
	assert.Zero(t, store.lastOpts)
}

func TestRetriever_StoreError(t *testing.T) {
	store := &queryRecorder{err: errors.New("boom")}
	r := testRetriever(store)

	_, err := r.Retrieve(context.Background(), "query")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query store")
}

func TestRetriever_EmbedderError(t *testing.T) {
	embedErr := errors.New("quota exhausted")
	fake := testutil.NewFakeEmbedder(8)
	fake.Err = embedErr
	r := NewRetriever(&queryRecorder{}, fake, RetrieverConfig{TopK: 3}, testutil.DiscardLogger())

	_, err := r.Retrieve(context.Background(), "query")
	assert.ErrorIs(t, err, embedErr)
}

func TestRetriever_BuildContext(t *testing.T) {
	store := &queryRecorder{matches: []vectorstore.Match{
		match("a", "aaaa", 0.1),
		match("b", "bbbb", 0.2),
		match("c", "cccc", 0.3),
	}}
	r := testRetriever(store)

	text, used, err := r.BuildContext(context.Background(), "query", 0)
	require.NoError(t, err)
	assert.Equal(t, "aaaa\n\n---\n\nbbbb\n\n---\n\ncccc", text)
	assert.Len(t, used, 3)
}

func TestRetriever_BuildContextBudget(t *testing.T) {
	store := &queryRecorder{matches: []vectorstore.Match{
		match("a", "aaaa", 0.1),
		match("b", "bbbb", 0.2),
		match("c", "cccc", 0.3),
	}}
	r := testRetriever(store)

	// 4 + 7 + 4 = 15 runes for two chunks; the third would overflow.
	text, used, err := r.BuildContext(context.Background(), "query", 16)
	require.NoError(t, err)
	assert.Equal(t, "aaaa\n\n---\n\nbbbb", text)
	require.Len(t, used, 2)
	assert.Equal(t, "a", used[0].ID)
	assert.Equal(t, "b", used[1].ID)
}

func TestRetriever_BuildContextNoMatches(t *testing.T) {
	r := testRetriever(&queryRecorder{})

	text, used, err := r.BuildContext(context.Background(), "query", 100)
	require.NoError(t, err)
	assert.Empty(t, text)
	assert.Empty(t, used)
}
