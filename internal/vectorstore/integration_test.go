package vectorstore_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repeatnomore/docstore/internal/testutil"
	"github.com/repeatnomore/docstore/internal/vectorstore"
)

// setupStore starts a pgvector container and returns an initialized
// 3-dimensional store.
func setupStore(t *testing.T) *vectorstore.Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db, cleanup := testutil.SetupTestDB(t)
	t.Cleanup(cleanup)

	store, err := vectorstore.New(db.Pool, vectorstore.Config{
		Dimension: 3,
		Lists:     4,
		// Probe every list so tiny test datasets get exact results.
		Probes: 4,
	}, testutil.DiscardLogger())
	require.NoError(t, err)
	require.NoError(t, store.Init(context.Background()))
	return store
}

func rec(id string, embedding []float32, metadata map[string]any) vectorstore.Record {
	return vectorstore.Record{
		ID:        id,
		Content:   "content of " + id,
		Metadata:  metadata,
		Embedding: embedding,
	}
}

func ids(matches []vectorstore.Match) []string {
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.ID
	}
	return out
}

func TestStore_UpsertGetRoundtrip_Integration(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	in := rec("doc-1", []float32{1, 0, 0}, map[string]any{"topic": "go", "chunk_index": float64(0)})
	require.NoError(t, store.Upsert(ctx, in))

	got, err := store.Get(ctx, "doc-1")
	require.NoError(t, err)

	assert.Equal(t, in.ID, got.ID)
	assert.Equal(t, in.Content, got.Content)
	assert.Equal(t, in.Metadata, got.Metadata)
	assert.Equal(t, in.Embedding, got.Embedding)
	assert.False(t, got.CreatedAt.IsZero())
	assert.False(t, got.UpdatedAt.IsZero())
}

func TestStore_UpsertUpdatesInPlace_Integration(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, rec("doc-1", []float32{1, 0, 0}, nil)))
	first, err := store.Get(ctx, "doc-1")
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)

	updated := rec("doc-1", []float32{0, 1, 0}, map[string]any{"v": float64(2)})
	updated.Content = "revised content"
	require.NoError(t, store.Upsert(ctx, updated))

	second, err := store.Get(ctx, "doc-1")
	require.NoError(t, err)

	assert.Equal(t, "revised content", second.Content)
	assert.Equal(t, updated.Embedding, second.Embedding)
	assert.Equal(t, updated.Metadata, second.Metadata)
	// The original creation time survives the update.
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.True(t, second.UpdatedAt.After(first.UpdatedAt))

	count, err := store.Count(ctx, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestStore_QueryOrdering_Integration(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertBatch(ctx, []vectorstore.Record{
		rec("a", []float32{1, 0, 0}, nil),
		rec("b", []float32{0, 1, 0}, nil),
		rec("c", []float32{1, 0, 0}, nil),
	}))

	// a and c are equidistant from the query vector; ties break by id.
	matches, err := store.Query(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, ids(matches))

	require.NoError(t, store.Delete(ctx, "a"))

	matches, err = store.Query(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	assert.Equal(t, "c", matches[0].ID)

	// Distances come back in non-decreasing order.
	for i := 1; i < len(matches); i++ {
		assert.GreaterOrEqual(t, matches[i].Distance, matches[i-1].Distance)
	}
}

func TestStore_QueryEmptyStore_Integration(t *testing.T) {
	store := setupStore(t)

	matches, err := store.Query(context.Background(), []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestStore_QueryMetadataFilter_Integration(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertBatch(ctx, []vectorstore.Record{
		rec("a", []float32{1, 0, 0}, map[string]any{"category": "x"}),
		rec("b", []float32{0.9, 0.1, 0}, map[string]any{"category": "y"}),
		rec("c", []float32{0.8, 0.2, 0}, nil),
	}))

	matches, err := store.Query(ctx, []float32{1, 0, 0}, 10,
		vectorstore.WithFilter("category", "x"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(matches))

	// Records without the filter key are excluded.
	matches, err = store.Query(ctx, []float32{1, 0, 0}, 10,
		vectorstore.WithFilter("missing_key", "anything"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestStore_QueryMinScore_Integration(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertBatch(ctx, []vectorstore.Record{
		rec("near", []float32{1, 0, 0}, nil),
		rec("far", []float32{0, 1, 0}, nil), // orthogonal, score 0.5
	}))

	matches, err := store.Query(ctx, []float32{1, 0, 0}, 10,
		vectorstore.WithMinScore(0.6))
	require.NoError(t, err)
	assert.Equal(t, []string{"near"}, ids(matches))
	assert.InDelta(t, 1.0, matches[0].Score(), 0.01)
}

func TestStore_UpsertBatchAtomic_Integration(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, rec("existing", []float32{1, 0, 0}, nil)))

	batch := []vectorstore.Record{
		rec("new-1", []float32{0, 1, 0}, nil),
		rec("bad", []float32{1, 0}, nil), // wrong dimension
		rec("new-2", []float32{0, 0, 1}, nil),
	}
	err := store.UpsertBatch(ctx, batch)
	require.ErrorIs(t, err, vectorstore.ErrValidation)

	// Nothing from the failed batch landed.
	count, err := store.Count(ctx, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestStore_DimensionMismatch_Integration(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	err := store.Upsert(ctx, rec("bad", []float32{1, 0, 0, 0}, nil))
	require.ErrorIs(t, err, vectorstore.ErrValidation)

	_, err = store.Query(ctx, []float32{1, 0}, 5)
	require.ErrorIs(t, err, vectorstore.ErrValidation)
}

func TestStore_DeleteSemantics_Integration(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, rec("doc-1", []float32{1, 0, 0}, nil)))

	require.NoError(t, store.Delete(ctx, "doc-1"))
	_, err := store.Get(ctx, "doc-1")
	require.ErrorIs(t, err, vectorstore.ErrNotFound)

	// Deleting an absent id is a no-op.
	require.NoError(t, store.Delete(ctx, "doc-1"))
	require.NoError(t, store.Delete(ctx, "never-existed"))
}

func TestStore_DeleteMany_Integration(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertBatch(ctx, []vectorstore.Record{
		rec("a", []float32{1, 0, 0}, nil),
		rec("b", []float32{0, 1, 0}, nil),
		rec("c", []float32{0, 0, 1}, nil),
	}))

	deleted, err := store.DeleteMany(ctx, []string{"a", "c", "ghost"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, deleted)

	count, err := store.Count(ctx, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestStore_Reset_Integration(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Upsert(ctx, rec(fmt.Sprintf("doc-%d", i), []float32{1, 0, 0}, nil)))
	}

	require.NoError(t, store.Reset(ctx))

	count, err := store.Count(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, count)

	// The store stays usable after a reset.
	require.NoError(t, store.Upsert(ctx, rec("doc-new", []float32{0, 1, 0}, nil)))
}

func TestStore_CountWithFilter_Integration(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertBatch(ctx, []vectorstore.Record{
		rec("a", []float32{1, 0, 0}, map[string]any{"source": "/data/a.txt"}),
		rec("b", []float32{0, 1, 0}, map[string]any{"source": "/data/a.txt"}),
		rec("c", []float32{0, 0, 1}, map[string]any{"source": "/data/b.txt"}),
	}))

	count, err := store.Count(ctx, map[string]any{"source": "/data/a.txt"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}

func TestStore_IDsByMetadata_Integration(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertBatch(ctx, []vectorstore.Record{
		rec("a", []float32{1, 0, 0}, map[string]any{"source": "/data/a.txt"}),
		rec("b", []float32{0, 1, 0}, map[string]any{"source": "/data/b.txt"}),
		rec("c", []float32{0, 0, 1}, map[string]any{"source": "/data/a.txt"}),
	}))

	got, err := store.IDsByMetadata(ctx, map[string]any{"source": "/data/a.txt"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "c"}, got)
}

func TestStore_ConcurrentReaders_Integration(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		require.NoError(t, store.Upsert(ctx, rec(fmt.Sprintf("doc-%d", i), []float32{1, 0, 0}, nil)))
	}

	var wg sync.WaitGroup
	errCh := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Query(ctx, []float32{1, 0, 0}, 5); err != nil {
				errCh <- err
			}
		}()
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		t.Errorf("concurrent query failed: %v", err)
	}
}
